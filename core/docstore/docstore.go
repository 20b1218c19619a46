// Package docstore defines the document store contract and the Gateway that shields callers
// from storage failures.
package docstore

import (
	"context"
	"fmt"

	"github.com/trezcool/minierp/core"
)

// Collections read and written by the application.
const (
	Attendance     = "attendance"
	Fees           = "fees"
	Exams          = "exams"
	Leaves         = "leaves"
	HostelRequests = "hostel_requests"
	Notifications  = "notifications"
	Students       = "students"
)

// ErrNotFound is returned by Store.Get, Store.Update and Store.Delete for unknown ids.
var ErrNotFound = core.ErrNotFound

// Document is a record of a collection, tagged with its id.
type Document struct {
	ID   string                 `json:"id"`
	Data map[string]interface{} `json:"data"`
}

// Get returns the value of a top level field.
func (d Document) Get(field string) (interface{}, bool) {
	if d.Data == nil {
		return nil, false
	}
	v, ok := d.Data[field]
	return v, ok
}

// String returns a field as a string ("" when missing or not a string).
func (d Document) String(field string) string {
	if v, ok := d.Get(field); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Flatten returns the document data merged with its id, as served over the API.
func (d Document) Flatten() map[string]interface{} {
	m := make(map[string]interface{}, len(d.Data)+1)
	for k, v := range d.Data {
		m[k] = v
	}
	m["id"] = d.ID
	return m
}

type Operator string

const (
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpIn           Operator = "in"
	OpNotIn        Operator = "not-in"
)

func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpIn, OpNotIn:
		return true
	}
	return false
}

// Filter is a single field comparison. In and NotIn expect a []interface{} (or []string) value.
type Filter struct {
	Field string
	Op    Operator
	Value interface{}
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

// Store is implemented by the document store backends.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	// Add upserts the document when id is given, else the store mints one. It returns the id.
	Add(ctx context.Context, collection string, data map[string]interface{}, id string) (string, error)
	// Update merges partial into the stored document.
	Update(ctx context.Context, collection, id string, partial map[string]interface{}) error
	Delete(ctx context.Context, collection, id string) error
	// Watch notifies on every change of the collection until ctx is done. The channel is closed then.
	Watch(ctx context.Context, collection string) (<-chan struct{}, error)
	Close(ctx context.Context) error
}
