package transport

import (
	"context"
	"time"
)

// Credentials is the opaque authentication state the transport needs to
// restore a session without re-pairing. Payload is owned by the transport;
// the gateway only persists it.
type Credentials struct {
	Registered bool
	SelfJID    string
	Payload    []byte
}

// SendReceipt acknowledges an outbound send.
type SendReceipt struct {
	ID        string
	Timestamp time.Time
}

// GroupParticipant is one roster entry. Admin is empty for plain members.
type GroupParticipant struct {
	JID   string
	Admin string
}

// GroupMetadata is the roster snapshot for a group conversation.
type GroupMetadata struct {
	ID           string
	Subject      string
	Participants []GroupParticipant
}

// AdminJIDs returns the identifiers of participants holding any admin role.
func (g GroupMetadata) AdminJIDs() []string {
	admins := make([]string, 0, len(g.Participants))
	for _, p := range g.Participants {
		if p.Admin != "" {
			admins = append(admins, p.JID)
		}
	}
	return admins
}

// Handlers receives transport events for one connection. All callbacks are
// invoked from transport goroutines; after Client.Disconnect returns no
// further callbacks are delivered.
type Handlers struct {
	OnCredentials func(creds Credentials)
	OnConnection  func(update ConnectionUpdate)
	OnMessages    func(event MessagesEvent)
}

// Dialer establishes transport connections. Dial restores the given
// credentials (zero-value Credentials starts a fresh pairing flow) and
// begins delivering events to the handlers.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials, handlers Handlers) (Client, error)
}

// Client is a live connection handle. At most one Client exists per session
// name; the lifecycle manager owns it exclusively.
type Client interface {
	// SelfJID returns the authenticated identity, empty before pairing.
	SelfJID() string
	SendText(ctx context.Context, to string, text string) (SendReceipt, error)
	// Send delivers an arbitrary outbound content envelope.
	Send(ctx context.Context, to string, envelope *Envelope) (SendReceipt, error)
	// Reply sends text quoting the given inbound message.
	Reply(ctx context.Context, to string, text string, quoted *MessageEvent) (SendReceipt, error)
	// ResolveIdentity maps an identifier into the stable user namespace.
	// It returns empty without error when the identifier is unresolvable.
	ResolveIdentity(ctx context.Context, jid string) (string, error)
	GroupMetadata(ctx context.Context, jid string) (GroupMetadata, error)
	// Download fetches the raw bytes behind a lazy media handle.
	Download(ctx context.Context, media *MediaContent) ([]byte, error)
	Logout(ctx context.Context) error
	// Disconnect tears the connection down and deregisters all handlers.
	Disconnect()
}

// Read-receipt capability probes. Transports expose one of several
// equivalent primitives; the dispatcher negotiates which once per
// connection and caches the result.

// MessageReader is the preferred receipt primitive.
type MessageReader interface {
	ReadMessages(ctx context.Context, keys []MessageKey) error
}

// ReceiptSender is the second receipt primitive probed.
type ReceiptSender interface {
	SendReceipt(ctx context.Context, jid, participant string, ids []string) error
}

// ChatReader is the last receipt primitive probed.
type ChatReader interface {
	ChatRead(ctx context.Context, key MessageKey) error
}
