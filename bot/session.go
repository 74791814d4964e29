package bot

import (
	"context"
	"errors"

	"github.com/42wim/matrixbotd/bridge"
	"github.com/42wim/matrixbotd/config"
)

// Authenticator is the part of the transport the session manager needs.
type Authenticator interface {
	Login(ctx context.Context, userID, password string) (*bridge.Session, error)
}

// SessionManager decides between restoring a stored session and logging in
// with the configured password.
type SessionManager struct {
	store *CredentialStore
	auth  Authenticator
}

func NewSessionManager(store *CredentialStore, auth Authenticator) *SessionManager {
	return &SessionManager{
		store: store,
		auth:  auth,
	}
}

// CanEstablish fails with a ConfigError when Establish would need a password
// that is not configured. It never touches the network.
func (sm *SessionManager) CanEstablish(cfg config.BotConfig) error {
	exists, err := sm.store.Exists()
	if err != nil {
		return &ConfigError{Field: "credentials_path", Err: err}
	}

	if !exists && cfg.Password == "" {
		return &ConfigError{
			Field: "password",
			Err:   errors.New("no stored credentials at " + sm.store.Path() + " and no password configured"),
		}
	}

	return nil
}

// Establish returns the stored session if there is one, otherwise it logs in
// and stores the new session.
func (sm *SessionManager) Establish(ctx context.Context, cfg config.BotConfig) (*bridge.Session, error) {
	if err := sm.CanEstablish(cfg); err != nil {
		return nil, err
	}

	if exists, _ := sm.store.Exists(); exists {
		session, err := sm.store.Load()
		if err != nil {
			return nil, &ConfigError{Field: "credentials_path", Err: err}
		}

		logger.Infof("using stored credentials for %s (device %s)", session.UserID, session.DeviceID)

		return session, nil
	}

	logger.Infof("logging in as %s on %s", cfg.UserID, cfg.HomeServer)

	session, err := sm.auth.Login(ctx, cfg.UserID, cfg.Password)
	if err != nil {
		// the server never judged the credentials
		if errors.Is(err, bridge.ErrTransient) {
			return nil, &TransientTransportError{Err: err}
		}

		return nil, &AuthError{
			UserID: cfg.UserID,
			Reason: bridge.Reason(err),
			Err:    err,
		}
	}

	if err := session.Validate(); err != nil {
		return nil, &AuthError{UserID: cfg.UserID, Reason: err.Error(), Err: err}
	}

	if err := sm.store.Save(session); err != nil {
		return nil, &ConfigError{Field: "credentials_path", Err: err}
	}

	logger.Infof("logged in as %s, credentials saved to %s", session.UserID, sm.store.Path())

	return session, nil
}
