package bot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/42wim/matrixbotd/bridge"
)

// CredentialStore keeps a session in a json file.
type CredentialStore struct {
	path string
}

func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

func (s *CredentialStore) Path() string {
	return s.path
}

// Exists reports whether a credentials file is present. Any error other than
// the file not existing is returned.
func (s *CredentialStore) Exists() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}

// Load reads the session back. A file with a missing field is an error, a
// session is never partially populated.
func (s *CredentialStore) Load() (*bridge.Session, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	session := &bridge.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}

	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}

	return session, nil
}

// Save writes session atomically: a temporary file in the same directory is
// renamed over the old one.
func (s *CredentialStore) Save(session *bridge.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}

	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path)
}
