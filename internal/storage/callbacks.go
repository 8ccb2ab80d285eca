package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wagatehq/wagate/internal/webhook"
)

// CallbackConfig is one per-session callback row.
type CallbackConfig struct {
	SessionName string `json:"session"`
	URL         string `json:"url"`
	Token       string `json:"token,omitempty"`
}

// CallbackStore persists per-session webhook overrides. It implements
// webhook.CallbackResolver for the forwarder and CRUD for the HTTP API.
type CallbackStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewCallbackStore creates a CallbackStore.
func NewCallbackStore(log *slog.Logger, pool *pgxpool.Pool) *CallbackStore {
	if log == nil {
		log = slog.Default()
	}
	return &CallbackStore{
		pool:   pool,
		logger: log.With(slog.String("service", "callbacks")),
	}
}

// GetCallback resolves the per-session override for the forwarder.
func (s *CallbackStore) GetCallback(ctx context.Context, sessionName string) (webhook.Callback, bool, error) {
	var cb webhook.Callback
	err := s.pool.QueryRow(ctx,
		`SELECT url, token FROM callbacks WHERE session_name = $1`,
		sessionName,
	).Scan(&cb.URL, &cb.Token)
	if errors.Is(err, pgx.ErrNoRows) {
		return webhook.Callback{}, false, nil
	}
	if err != nil {
		return webhook.Callback{}, false, fmt.Errorf("get callback: %w", err)
	}
	return cb, true, nil
}

// Upsert creates or replaces the callback row for a session.
func (s *CallbackStore) Upsert(ctx context.Context, cfg CallbackConfig) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO callbacks (session_name, url, token, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (session_name) DO UPDATE SET
			url = EXCLUDED.url,
			token = EXCLUDED.token,
			updated_at = now()`,
		cfg.SessionName, cfg.URL, cfg.Token,
	)
	if err != nil {
		return fmt.Errorf("upsert callback: %w", err)
	}
	return nil
}

// Get returns the callback row for a session.
func (s *CallbackStore) Get(ctx context.Context, sessionName string) (CallbackConfig, bool, error) {
	cfg := CallbackConfig{SessionName: sessionName}
	err := s.pool.QueryRow(ctx,
		`SELECT url, token FROM callbacks WHERE session_name = $1`,
		sessionName,
	).Scan(&cfg.URL, &cfg.Token)
	if errors.Is(err, pgx.ErrNoRows) {
		return CallbackConfig{}, false, nil
	}
	if err != nil {
		return CallbackConfig{}, false, fmt.Errorf("get callback: %w", err)
	}
	return cfg, true, nil
}

// Delete removes the callback row for a session.
func (s *CallbackStore) Delete(ctx context.Context, sessionName string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM callbacks WHERE session_name = $1`, sessionName)
	if err != nil {
		return fmt.Errorf("delete callback: %w", err)
	}
	return nil
}
