package matrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
)

func TestErrorClass(t *testing.T) {
	tests := []struct {
		code   string
		status int
		want   error
	}{
		{"M_UNKNOWN_TOKEN", http.StatusUnauthorized, bridge.ErrUnauthorized},
		{"M_MISSING_TOKEN", http.StatusUnauthorized, bridge.ErrUnauthorized},
		{"M_USER_DEACTIVATED", http.StatusForbidden, bridge.ErrUnauthorized},
		{"M_FORBIDDEN", http.StatusForbidden, bridge.ErrForbidden},
		{"M_NOT_FOUND", http.StatusNotFound, bridge.ErrNotFound},
		{"M_LIMIT_EXCEEDED", http.StatusTooManyRequests, bridge.ErrTransient},
		{"", 0, bridge.ErrTransient},
		{"M_UNKNOWN", http.StatusInternalServerError, bridge.ErrTransient},
		{"", http.StatusBadGateway, bridge.ErrTransient},
		{"", http.StatusRequestTimeout, bridge.ErrTransient},
		{"", http.StatusUnauthorized, bridge.ErrUnauthorized},
		{"", http.StatusForbidden, bridge.ErrForbidden},
		{"", http.StatusNotFound, bridge.ErrNotFound},
		{"M_BAD_JSON", http.StatusBadRequest, bridge.ErrRejected},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_%d", tt.code, tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, errorClass(tt.code, tt.status))
		})
	}
}

func TestClassifyHTTPError(t *testing.T) {
	httpErr := mautrix.HTTPError{
		Request:  httptest.NewRequest(http.MethodGet, "/_matrix/client/v3/sync", nil),
		Response: &http.Response{StatusCode: http.StatusUnauthorized},
		RespError: &mautrix.RespError{
			ErrCode: "M_UNKNOWN_TOKEN",
			Err:     "Access token has been revoked",
		},
	}

	err := classifyError(fmt.Errorf("sync: %w", httpErr))

	var remote *bridge.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "M_UNKNOWN_TOKEN", remote.Code)
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.Equal(t, "Access token has been revoked", bridge.Reason(err))
	assert.ErrorIs(t, err, bridge.ErrUnauthorized)
	assert.True(t, bridge.IsFatal(err))
	assert.Equal(t, "M_UNKNOWN_TOKEN (401): Access token has been revoked", err.Error())
}

func TestClassifyOtherErrors(t *testing.T) {
	assert.NoError(t, classifyError(nil))
	assert.Equal(t, context.Canceled, classifyError(context.Canceled))

	netErr := errors.New("dial tcp 127.0.0.1:1: connect: connection refused")
	err := classifyError(netErr)
	assert.ErrorIs(t, err, bridge.ErrTransient)
	assert.ErrorIs(t, err, netErr)
	assert.False(t, bridge.IsFatal(err))
}
