package core

// Logger is any service that can record application events.
// args may carry an error, a map of extra fields and a *Person (the authenticated caller).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the caller attached to a logged event.
type Person struct {
	ID    string
	Email string
}
