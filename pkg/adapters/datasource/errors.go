package datasource

import (
	"errors"
	"fmt"
)

// DatabaseError is a statement rejected by the database. Message is the
// driver's text verbatim; it is fed back to the model on correction.
type DatabaseError struct {
	Message string
	Code    string
	Cause   error
}

func (e *DatabaseError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("database error %s: %s", e.Code, e.Message)
	}
	return "database error: " + e.Message
}

func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError wraps cause with the given code.
func NewDatabaseError(code string, cause error) *DatabaseError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &DatabaseError{Message: msg, Code: code, Cause: cause}
}

// AsDatabaseError reports whether err carries a *DatabaseError.
func AsDatabaseError(err error) (*DatabaseError, bool) {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr, true
	}
	return nil, false
}
