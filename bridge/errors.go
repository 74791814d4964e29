package bridge

import (
	"errors"
	"fmt"
)

// Error classes returned by Bridger implementations. Use errors.Is.
var (
	ErrTransient    = errors.New("transient transport error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrRejected     = errors.New("request rejected")
)

// RemoteError is an error response from the server, classified into one of
// the error classes above.
type RemoteError struct {
	// Code is the protocol error code, e.g. M_FORBIDDEN.
	Code string
	// Message is the human readable reason given by the server.
	Message    string
	StatusCode int
	Class      error
	Err        error
}

func (e *RemoteError) Error() string {
	reason := e.Message
	if reason == "" && e.Err != nil {
		reason = e.Err.Error()
	}

	if e.Code == "" {
		return fmt.Sprintf("%s (%d): %s", e.Class, e.StatusCode, reason)
	}

	return fmt.Sprintf("%s (%d): %s", e.Code, e.StatusCode, reason)
}

func (e *RemoteError) Unwrap() []error {
	errs := make([]error, 0, 2)

	for _, err := range []error{e.Class, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}

// SetupError names the setting a transport client could not be built from.
type SetupError struct {
	Field string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// Reason returns the server supplied reason of err, or err itself.
func Reason(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) && remote.Message != "" {
		return remote.Message
	}

	return err.Error()
}

// IsFatal reports whether err means the session can no longer be used.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
