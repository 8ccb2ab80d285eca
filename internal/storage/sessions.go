package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wagatehq/wagate/internal/session"
)

// SessionStore is the durable session registry backing the lifecycle
// manager.
type SessionStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(log *slog.Logger, pool *pgxpool.Pool) *SessionStore {
	if log == nil {
		log = slog.Default()
	}
	return &SessionStore{
		pool:   pool,
		logger: log.With(slog.String("service", "sessions")),
	}
}

// UpsertSession records the paired phone identity for a session name. The
// row survives credential purges so the operator keeps the phone mapping.
func (s *SessionStore) UpsertSession(ctx context.Context, name, phoneNumber string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (name, phone_number, status, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name) DO UPDATE SET
			phone_number = EXCLUDED.phone_number,
			status = EXCLUDED.status,
			updated_at = now()`,
		name, phoneNumber, string(session.StatusConnected),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// UpdateStatus stores the lifecycle status. Missing rows are created so a
// status written before first pairing is not lost.
func (s *SessionStore) UpdateStatus(ctx context.Context, name string, status session.Status) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (name, status, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = now()`,
		name, string(status),
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// DeleteSession removes the registry row.
func (s *SessionStore) DeleteSession(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessions returns all registry rows.
func (s *SessionStore) ListSessions(ctx context.Context) ([]session.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, phone_number, status FROM sessions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []session.Record
	for rows.Next() {
		var rec session.Record
		var status string
		if err := rows.Scan(&rec.Name, &rec.PhoneNumber, &status); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Status = session.Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}
