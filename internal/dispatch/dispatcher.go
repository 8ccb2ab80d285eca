// Package dispatch routes raw inbound transport events through
// normalization, webhook forwarding, and the responder chain.
package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wagatehq/wagate/internal/media"
	"github.com/wagatehq/wagate/internal/message"
	"github.com/wagatehq/wagate/internal/responder"
	"github.com/wagatehq/wagate/internal/transport"
)

// Normalizer produces the canonical message for a raw event.
type Normalizer interface {
	Normalize(ctx context.Context, lookup message.Lookup, evt *transport.MessageEvent) message.Message
}

// Forwarder delivers canonical messages to the configured webhook.
type Forwarder interface {
	Forward(ctx context.Context, fetcher media.Fetcher, m *message.Message, sessionName string)
}

// Responder runs the auto-response chain.
type Responder interface {
	Respond(ctx context.Context, replier responder.Replier, m *message.Message)
}

// Archiver records dispatched messages for audit. Optional; failures are
// logged and never block dispatch.
type Archiver interface {
	Record(ctx context.Context, sessionName string, m *message.Message) error
}

type receiptFunc func(ctx context.Context, client transport.Client, key transport.MessageKey) error

// Dispatcher handles inbound message batches for all sessions. Receipt
// capability is negotiated once per connection handle and cached until the
// manager forgets the handle.
type Dispatcher struct {
	normalizer Normalizer
	forwarder  Forwarder
	chain      Responder
	archiver   Archiver
	logger     *slog.Logger

	mu       sync.Mutex
	receipts map[transport.Client]receiptFunc
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(log *slog.Logger, normalizer Normalizer, forwarder Forwarder, chain Responder) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		normalizer: normalizer,
		forwarder:  forwarder,
		chain:      chain,
		logger:     log.With(slog.String("component", "dispatch")),
		receipts:   map[transport.Client]receiptFunc{},
	}
}

// SetArchiver enables message archiving.
func (d *Dispatcher) SetArchiver(a Archiver) {
	d.archiver = a
}

// Handle processes the head of one inbound batch. Only live ("notify")
// batches are considered; the rest of the batch is intentionally not
// drained. Nothing in here may fail the caller: the connection handler
// treats dispatch as fire-and-forget.
func (d *Dispatcher) Handle(ctx context.Context, client transport.Client, sessionName string, batch transport.MessagesEvent) {
	if client == nil || batch.Kind != transport.NotifyKind || len(batch.Messages) == 0 {
		return
	}
	evt := batch.Messages[0]
	if evt == nil {
		return
	}
	if evt.Key.RemoteJID == transport.StatusBroadcastJID {
		return
	}
	if evt.Content == nil {
		return
	}

	d.markRead(ctx, client, evt.Key)

	m := d.normalizer.Normalize(ctx, client, evt)

	if d.archiver != nil {
		if err := d.archiver.Record(ctx, sessionName, &m); err != nil {
			d.logger.Warn("archive record failed",
				slog.String("session", sessionName),
				slog.Any("error", err),
			)
		}
	}

	// Webhook delivery must not block the responder path, but the handler
	// waits for it before returning so backlog stays bounded.
	webhookDone := make(chan struct{})
	go func() {
		defer close(webhookDone)
		d.forwarder.Forward(ctx, client, &m, sessionName)
	}()

	if !m.IsCommand() {
		d.chain.Respond(ctx, client, &m)
		// Second receipt covers transports that only commit the read once
		// the responder ran.
		d.markRead(ctx, client, evt.Key)
	}
	<-webhookDone
}

// Forget drops the cached receipt capability for a closed connection.
func (d *Dispatcher) Forget(client transport.Client) {
	if client == nil {
		return
	}
	d.mu.Lock()
	delete(d.receipts, client)
	d.mu.Unlock()
}

func (d *Dispatcher) markRead(ctx context.Context, client transport.Client, key transport.MessageKey) {
	if key.RemoteJID == "" || key.ID == "" {
		return
	}
	send := d.receiptFor(client)
	if send == nil {
		return
	}
	if err := send(ctx, client, key); err != nil {
		d.logger.Debug("mark read failed",
			slog.String("message_id", key.ID),
			slog.Any("error", err),
		)
	}
}

// receiptFor returns the negotiated receipt primitive for the connection,
// probing the capability interfaces in preference order exactly once.
func (d *Dispatcher) receiptFor(client transport.Client) receiptFunc {
	d.mu.Lock()
	defer d.mu.Unlock()
	if send, ok := d.receipts[client]; ok {
		return send
	}
	send := negotiateReceipt(client)
	d.receipts[client] = send
	return send
}

func negotiateReceipt(client transport.Client) receiptFunc {
	if _, ok := client.(transport.MessageReader); ok {
		return func(ctx context.Context, c transport.Client, key transport.MessageKey) error {
			return c.(transport.MessageReader).ReadMessages(ctx, []transport.MessageKey{key})
		}
	}
	if _, ok := client.(transport.ReceiptSender); ok {
		return func(ctx context.Context, c transport.Client, key transport.MessageKey) error {
			return c.(transport.ReceiptSender).SendReceipt(ctx, key.RemoteJID, key.Participant, []string{key.ID})
		}
	}
	if _, ok := client.(transport.ChatReader); ok {
		return func(ctx context.Context, c transport.Client, key transport.MessageKey) error {
			return c.(transport.ChatReader).ChatRead(ctx, key)
		}
	}
	return nil
}
