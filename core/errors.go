package core

import "github.com/pkg/errors"

// ErrNotFound is returned when a document addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

func IsNotFound(err error) bool {
	return errors.Cause(err) == ErrNotFound
}
