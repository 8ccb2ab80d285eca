package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wagatehq/wagate/internal/message"
)

// ArchiveStore keeps a bounded archive of dispatched messages for audit and
// replay. Old rows are pruned on a schedule.
type ArchiveStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewArchiveStore creates an ArchiveStore.
func NewArchiveStore(log *slog.Logger, pool *pgxpool.Pool) *ArchiveStore {
	if log == nil {
		log = slog.Default()
	}
	return &ArchiveStore{
		pool:   pool,
		logger: log.With(slog.String("service", "archive")),
	}
}

// Record appends one dispatched message to the archive.
func (s *ArchiveStore) Record(ctx context.Context, sessionName string, m *message.Message) error {
	if m == nil {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO message_archive (session_name, remote_jid, sender, content_type, body, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sessionName, m.From, m.Sender, string(m.ContentType), m.Body, m.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("archive message: %w", err)
	}
	return nil
}

// DeleteOlderThan prunes archive rows received before the cutoff and
// reports how many were removed.
func (s *ArchiveStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM message_archive WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune archive: %w", err)
	}
	return tag.RowsAffected(), nil
}
