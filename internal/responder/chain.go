// Package responder implements the first-match-wins auto-response pipeline
// consulted for every non-command inbound message.
package responder

import (
	"context"
	"log/slog"

	"github.com/wagatehq/wagate/internal/message"
	"github.com/wagatehq/wagate/internal/transport"
)

// ButtonMatch is one matched button keyword. Button keywords are single-use:
// the chain deletes them after replying.
type ButtonMatch struct {
	MessageID string
	Keyword   string
	Response  string
}

// ButtonKeywordStore looks up button-reply keywords by (keyword,
// conversation) and supports the single-use delete.
type ButtonKeywordStore interface {
	Lookup(ctx context.Context, keyword, conversation string) (ButtonMatch, bool, error)
	Delete(ctx context.Context, messageID, keyword string) error
}

// ListKeywordStore looks up list-reply keywords. List keywords are multi-use
// and never deleted by the chain.
type ListKeywordStore interface {
	Lookup(ctx context.Context, keyword, conversation string) (response string, found bool, err error)
}

// AutoReplyStore looks up free-text auto replies keyed by bot identity and
// message body.
type AutoReplyStore interface {
	Lookup(ctx context.Context, botJID, body string) (response string, found bool, err error)
}

// Replier sends a quoted reply back through the transport.
type Replier interface {
	Reply(ctx context.Context, to, text string, quoted *transport.MessageEvent) (transport.SendReceipt, error)
}

// StaticReply is a literal-body fallback applied when no store matches.
type StaticReply struct {
	Body     string
	Response string
}

// DefaultStaticReplies are the built-in liveness fallbacks.
var DefaultStaticReplies = []StaticReply{
	{Body: "Bot", Response: "Yes Sir.."},
	{Body: "Test", Response: "Okee"},
}

// Chain consults the keyword stores in fixed priority order: button, list,
// auto-reply, then static fallbacks. The first match wins and later stores
// are not consulted.
type Chain struct {
	buttons ButtonKeywordStore
	lists   ListKeywordStore
	autos   AutoReplyStore
	statics []StaticReply
	logger  *slog.Logger
}

// NewChain creates a Chain with the default static fallbacks.
func NewChain(log *slog.Logger, buttons ButtonKeywordStore, lists ListKeywordStore, autos AutoReplyStore) *Chain {
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		buttons: buttons,
		lists:   lists,
		autos:   autos,
		statics: DefaultStaticReplies,
		logger:  log.With(slog.String("component", "responder")),
	}
}

// Respond runs the chain for one canonical message. Store and send failures
// are logged and never propagated; a failed send still consumes a single-use
// button keyword, matching the at-most-once semantics of the store.
func (c *Chain) Respond(ctx context.Context, replier Replier, m *message.Message) {
	if m == nil || m.Body == "" {
		return
	}

	if c.buttons != nil {
		match, found, err := c.buttons.Lookup(ctx, m.Body, m.From)
		if err != nil {
			c.logger.Warn("button keyword lookup failed", slog.Any("error", err))
		} else if found {
			c.reply(ctx, replier, m, match.Response)
			if err := c.buttons.Delete(ctx, match.MessageID, match.Keyword); err != nil {
				c.logger.Warn("button keyword delete failed",
					slog.String("keyword", match.Keyword),
					slog.Any("error", err),
				)
			}
			return
		}
	}

	if c.lists != nil {
		response, found, err := c.lists.Lookup(ctx, m.Body, m.From)
		if err != nil {
			c.logger.Warn("list keyword lookup failed", slog.Any("error", err))
		} else if found {
			c.reply(ctx, replier, m, response)
			return
		}
	}

	if c.autos != nil {
		response, found, err := c.autos.Lookup(ctx, m.BotJID, m.Body)
		if err != nil {
			c.logger.Warn("auto reply lookup failed", slog.Any("error", err))
		} else if found {
			c.reply(ctx, replier, m, response)
			return
		}
	}

	for _, static := range c.statics {
		if m.Body == static.Body {
			c.reply(ctx, replier, m, static.Response)
			return
		}
	}
}

func (c *Chain) reply(ctx context.Context, replier Replier, m *message.Message, text string) {
	if _, err := replier.Reply(ctx, m.From, text, m.Raw); err != nil {
		// The connection may have dropped mid-dispatch; sending is always
		// best-effort here.
		c.logger.Warn("responder reply failed",
			slog.String("to", m.From),
			slog.Any("error", err),
		)
	}
}
