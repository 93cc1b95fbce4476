package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/valuta-trade/internal/errors"
)

const sessionFile = "session.json"

// session is the logged-in identity persisted between CLI invocations.
type session struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func sessionPath(dataDir string) string {
	return filepath.Join(dataDir, sessionFile)
}

func saveSession(dataDir string, s session) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return errors.NewStoreIO("create data directory", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return errors.NewStoreIO("encode session", err)
	}
	if err := os.WriteFile(sessionPath(dataDir), data, 0o600); err != nil {
		return errors.NewStoreIO("write session", err)
	}
	return nil
}

// currentSession loads the persisted session. A missing file means the
// user never logged in.
func currentSession(dataDir string) (*session, error) {
	data, err := os.ReadFile(sessionPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errNotLoggedIn()
		}
		return nil, errors.NewStoreIO("read session", err)
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.NewStoreIO("decode session", err)
	}
	if s.UserID == "" {
		return nil, errNotLoggedIn()
	}
	return &s, nil
}

func errNotLoggedIn() *errors.DomainError {
	return &errors.DomainError{
		Kind:    errors.KindAuthenticationFailed,
		Message: "not logged in, run `valutatrade login` first",
	}
}

func clearSession(dataDir string) error {
	if err := os.Remove(sessionPath(dataDir)); err != nil && !os.IsNotExist(err) {
		return errors.NewStoreIO("remove session", err)
	}
	return nil
}
