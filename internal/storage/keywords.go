package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wagatehq/wagate/internal/responder"
)

// KeywordStore backs the responder chain: single-use button keywords,
// multi-use list keywords, and per-identity auto replies.
type KeywordStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewKeywordStore creates a KeywordStore.
func NewKeywordStore(log *slog.Logger, pool *pgxpool.Pool) *KeywordStore {
	if log == nil {
		log = slog.Default()
	}
	return &KeywordStore{
		pool:   pool,
		logger: log.With(slog.String("service", "keywords")),
	}
}

// Buttons exposes the button keyword view.
func (s *KeywordStore) Buttons() responder.ButtonKeywordStore { return buttonView{s} }

// Lists exposes the list keyword view.
func (s *KeywordStore) Lists() responder.ListKeywordStore { return listView{s} }

// Autos exposes the auto-reply view.
func (s *KeywordStore) Autos() responder.AutoReplyStore { return autoView{s} }

// SaveButtonKeywords registers single-use button keywords tied to the
// message that carried the buttons.
func (s *KeywordStore) SaveButtonKeywords(ctx context.Context, messageID, conversation string, keywords map[string]string) error {
	for keyword, response := range keywords {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO button_replies (message_id, keyword, conversation, response)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (message_id, keyword) DO UPDATE SET
				conversation = EXCLUDED.conversation,
				response = EXCLUDED.response`,
			messageID, keyword, conversation, response,
		)
		if err != nil {
			return fmt.Errorf("save button keyword: %w", err)
		}
	}
	return nil
}

// SaveListKeyword registers a multi-use list keyword.
func (s *KeywordStore) SaveListKeyword(ctx context.Context, keyword, conversation, response string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO list_replies (keyword, conversation, response)
		VALUES ($1, $2, $3)
		ON CONFLICT (keyword, conversation) DO UPDATE SET
			response = EXCLUDED.response`,
		keyword, conversation, response,
	)
	if err != nil {
		return fmt.Errorf("save list keyword: %w", err)
	}
	return nil
}

// SaveAutoReply registers a free-text auto reply for a bot identity.
func (s *KeywordStore) SaveAutoReply(ctx context.Context, botJID, keyword, response string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO auto_replies (bot_jid, keyword, response)
		VALUES ($1, $2, $3)
		ON CONFLICT (bot_jid, keyword) DO UPDATE SET
			response = EXCLUDED.response`,
		botJID, keyword, response,
	)
	if err != nil {
		return fmt.Errorf("save auto reply: %w", err)
	}
	return nil
}

// DeleteAutoReply removes an auto reply.
func (s *KeywordStore) DeleteAutoReply(ctx context.Context, botJID, keyword string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM auto_replies WHERE bot_jid = $1 AND keyword = $2`,
		botJID, keyword,
	)
	if err != nil {
		return fmt.Errorf("delete auto reply: %w", err)
	}
	return nil
}

type buttonView struct{ s *KeywordStore }

func (v buttonView) Lookup(ctx context.Context, keyword, conversation string) (responder.ButtonMatch, bool, error) {
	var match responder.ButtonMatch
	err := v.s.pool.QueryRow(ctx, `
		SELECT message_id, keyword, response
		FROM button_replies
		WHERE keyword = $1 AND conversation = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		keyword, conversation,
	).Scan(&match.MessageID, &match.Keyword, &match.Response)
	if errors.Is(err, pgx.ErrNoRows) {
		return responder.ButtonMatch{}, false, nil
	}
	if err != nil {
		return responder.ButtonMatch{}, false, fmt.Errorf("button lookup: %w", err)
	}
	return match, true, nil
}

func (v buttonView) Delete(ctx context.Context, messageID, keyword string) error {
	_, err := v.s.pool.Exec(ctx,
		`DELETE FROM button_replies WHERE message_id = $1 AND keyword = $2`,
		messageID, keyword,
	)
	if err != nil {
		return fmt.Errorf("button delete: %w", err)
	}
	return nil
}

type listView struct{ s *KeywordStore }

func (v listView) Lookup(ctx context.Context, keyword, conversation string) (string, bool, error) {
	var response string
	err := v.s.pool.QueryRow(ctx, `
		SELECT response FROM list_replies
		WHERE keyword = $1 AND conversation = $2`,
		keyword, conversation,
	).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("list lookup: %w", err)
	}
	return response, true, nil
}

type autoView struct{ s *KeywordStore }

func (v autoView) Lookup(ctx context.Context, botJID, body string) (string, bool, error) {
	var response string
	err := v.s.pool.QueryRow(ctx, `
		SELECT response FROM auto_replies
		WHERE bot_jid = $1 AND keyword = $2`,
		botJID, body,
	).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("auto reply lookup: %w", err)
	}
	return response, true, nil
}
