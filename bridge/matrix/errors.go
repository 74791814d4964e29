package matrix

import (
	"context"
	"errors"
	"net/http"

	"github.com/42wim/matrixbotd/bridge"
	"maunium.net/go/mautrix"
)

// classifyError maps a mautrix error onto the bridge error classes. Context
// errors are passed through untouched.
func classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	remote := &bridge.RemoteError{
		Class: bridge.ErrTransient,
		Err:   err,
	}

	var httpErr mautrix.HTTPError
	if !errors.As(err, &httpErr) {
		return remote
	}

	if httpErr.Response != nil {
		remote.StatusCode = httpErr.Response.StatusCode
	}

	if httpErr.RespError != nil {
		remote.Code = httpErr.RespError.ErrCode
		remote.Message = httpErr.RespError.Err
	}

	remote.Class = errorClass(remote.Code, remote.StatusCode)

	return remote
}

func errorClass(code string, status int) error {
	switch code {
	case "M_UNKNOWN_TOKEN", "M_MISSING_TOKEN", "M_USER_DEACTIVATED":
		return bridge.ErrUnauthorized
	case "M_FORBIDDEN":
		return bridge.ErrForbidden
	case "M_NOT_FOUND":
		return bridge.ErrNotFound
	case "M_LIMIT_EXCEEDED":
		return bridge.ErrTransient
	}

	switch {
	// no response at all
	case status == 0:
		return bridge.ErrTransient
	case status >= http.StatusInternalServerError,
		status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout:
		return bridge.ErrTransient
	case status == http.StatusUnauthorized:
		return bridge.ErrUnauthorized
	case status == http.StatusForbidden:
		return bridge.ErrForbidden
	case status == http.StatusNotFound:
		return bridge.ErrNotFound
	}

	return bridge.ErrRejected
}
