package bot

import (
	"errors"
	"fmt"

	"github.com/42wim/matrixbotd/bridge"
)

// ConfigError is a missing or unusable piece of configuration. It is fatal
// and reported before any network activity where possible.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Err)
	}

	return fmt.Sprintf("config error: %s: %s", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// AuthError means the homeserver rejected the login. Retrying will not help.
type AuthError struct {
	UserID string
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("failed to log in as %s: %s", e.UserID, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ResolutionError means a room alias could not be turned into a room id.
type ResolutionError struct {
	Alias string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unable to resolve room alias %s: %s", e.Alias, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// JoinError is a rejected room join.
type JoinError struct {
	RoomID string
	Err    error
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("unable to join %s: %s", e.RoomID, e.Err)
}

func (e *JoinError) Unwrap() error { return e.Err }

// TransientTransportError is a network or server side failure. The sync loop
// recovers from it by polling again, during login it still ends the run.
type TransientTransportError struct {
	Err error
}

func (e *TransientTransportError) Error() string {
	return fmt.Sprintf("transient transport failure: %s", e.Err)
}

func (e *TransientTransportError) Unwrap() error { return e.Err }

// SyncError is a sync failure that ends the loop, e.g. a revoked session.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync failed: %s", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// IsTransient reports whether the sync loop should poll again after err.
// Everything but a rejected session is retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientTransportError
	if errors.As(err, &transient) {
		return true
	}

	return !bridge.IsFatal(err)
}
