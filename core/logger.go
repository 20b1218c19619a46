package core

// Logger is implemented by the logging services.
// args may hold errors, maps of extra data or a Principal (the user the log entry relates to).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
