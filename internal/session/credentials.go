package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wagatehq/wagate/internal/transport"
)

const credentialsFile = "creds.json"

type credentialsPayload struct {
	Registered bool   `json:"registered"`
	SelfJID    string `json:"self_jid,omitempty"`
	Payload    []byte `json:"payload,omitempty"`
}

// CredentialStore persists transport credentials under a deterministic
// per-session directory. Saves race with session teardown; a save against a
// removed directory is skipped silently.
type CredentialStore struct {
	basePath string
	logger   *slog.Logger
}

// NewCredentialStore creates a store rooted at basePath.
func NewCredentialStore(log *slog.Logger, basePath string) *CredentialStore {
	if log == nil {
		log = slog.Default()
	}
	return &CredentialStore{
		basePath: basePath,
		logger:   log.With(slog.String("component", "credentials")),
	}
}

// Dir returns the per-session credential directory.
func (s *CredentialStore) Dir(name string) string {
	return filepath.Join(s.basePath, name)
}

// Ensure creates the per-session directory, reporting whether it had to be
// created. CreateSession uses this to roll back only directories it made.
func (s *CredentialStore) Ensure(name string) (created bool, err error) {
	dir := s.Dir(name)
	if _, statErr := os.Stat(dir); statErr == nil {
		return false, nil
	} else if !os.IsNotExist(statErr) {
		return false, statErr
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("create session dir: %w", err)
	}
	return true, nil
}

// Load restores persisted credentials. A missing file yields zero-value
// credentials, which start a fresh pairing flow.
func (s *CredentialStore) Load(name string) (transport.Credentials, error) {
	raw, err := os.ReadFile(filepath.Join(s.Dir(name), credentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return transport.Credentials{}, nil
		}
		return transport.Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	var payload credentialsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return transport.Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	return transport.Credentials{
		Registered: payload.Registered,
		SelfJID:    payload.SelfJID,
		Payload:    payload.Payload,
	}, nil
}

// Save writes updated credentials. When the session directory has been torn
// down concurrently the write is skipped without error.
func (s *CredentialStore) Save(name string, creds transport.Credentials) error {
	dir := s.Dir(name)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			s.logger.Warn("session directory missing, skipping credential save",
				slog.String("session", name),
			)
			return nil
		}
		return err
	}
	raw, err := json.Marshal(credentialsPayload{
		Registered: creds.Registered,
		SelfJID:    creds.SelfJID,
		Payload:    creds.Payload,
	})
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, credentialsFile), raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Remove deletes the per-session credential directory.
func (s *CredentialStore) Remove(name string) error {
	return os.RemoveAll(s.Dir(name))
}
