package session

import (
	"errors"
	"fmt"
)

// Session error codes.
const (
	CodeSessionUnavailable = "SESSION_UNAVAILABLE"
	CodeSessionExhausted   = "SESSION_EXHAUSTED"
	CodeSessionClosed      = "SESSION_CLOSED"
	CodeHostIncompatible   = "HOST_INCOMPATIBLE"
)

// ErrClosed is matched by errors.Is after Close.
var ErrClosed = errors.New("session: closed")

// Error is a fatal session failure. Callers stop sending work to the
// session when they see one.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// TransportError reports a command the host did not accept. The session
// stays usable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *Error.
func IsFatal(err error) bool {
	var serr *Error
	return errors.As(err, &serr)
}

// IsTransport reports whether err carries a *TransportError.
func IsTransport(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}

// CodeOf returns the code of a *Error in err's chain, or "".
func CodeOf(err error) string {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Code
	}
	return ""
}
