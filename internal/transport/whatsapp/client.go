package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/wagatehq/wagate/internal/transport"
)

type client struct {
	cli      *whatsmeow.Client
	handlers transport.Handlers
	logger   *slog.Logger
}

func (c *client) SelfJID() string {
	if id := c.cli.Store.ID; id != nil {
		return id.String()
	}
	return ""
}

func (c *client) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emitConnection(transport.ConnectionUpdate{
				State:       transport.ConnectionConnecting,
				QRChallenge: item.Code,
			})
		case "timeout":
			c.emitConnection(closeUpdate(transport.ReasonTimedOut, "qr scan timed out"))
		case "success":
			c.logger.Info("qr pairing succeeded")
		case "error":
			c.logger.Error("qr pairing failed", slog.Any("error", item.Error))
			c.emitConnection(closeUpdate(transport.ReasonUnknown, fmt.Sprintf("qr pairing failed: %v", item.Error)))
		}
	}
}

func (c *client) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		c.emitConnection(transport.ConnectionUpdate{State: transport.ConnectionOpen})
	case *events.PairSuccess:
		c.emitCredentials(transport.Credentials{Registered: true, SelfJID: evt.ID.String()})
		c.emitConnection(transport.ConnectionUpdate{
			State:      transport.ConnectionConnecting,
			IsNewLogin: true,
		})
	case *events.Message:
		if msg := translateMessage(evt); msg != nil {
			c.emitMessages(transport.MessagesEvent{
				Messages: []*transport.MessageEvent{msg},
				Kind:     transport.NotifyKind,
			})
		}
	case *events.Disconnected:
		c.emitConnection(closeUpdate(transport.ReasonConnectionLost, "socket disconnected"))
	case *events.StreamReplaced:
		c.emitConnection(closeUpdate(transport.ReasonConnectionReplaced, "stream replaced by another connection"))
	case *events.LoggedOut:
		c.emitConnection(closeUpdate(transport.ReasonLoggedOut, fmt.Sprintf("logged out: %v", evt.Reason)))
	case *events.StreamError:
		c.emitConnection(closeUpdate(streamErrorReason(evt.Code), "stream error "+evt.Code))
	case *events.ClientOutdated:
		c.emitConnection(closeUpdate(transport.ReasonUnknown, "client version is outdated"))
	case *events.TemporaryBan:
		c.emitConnection(closeUpdate(transport.ReasonUnknown, fmt.Sprintf("temporarily banned: %v", evt.Code)))
	case *events.ConnectFailure:
		c.emitConnection(closeUpdate(connectFailureReason(evt.Reason), fmt.Sprintf("connect failure: %v", evt.Reason)))
	}
}

func (c *client) emitConnection(update transport.ConnectionUpdate) {
	if c.handlers.OnConnection != nil {
		c.handlers.OnConnection(update)
	}
}

func (c *client) emitCredentials(creds transport.Credentials) {
	if c.handlers.OnCredentials != nil {
		c.handlers.OnCredentials(creds)
	}
}

func (c *client) emitMessages(event transport.MessagesEvent) {
	if c.handlers.OnMessages != nil {
		c.handlers.OnMessages(event)
	}
}

func (c *client) send(ctx context.Context, to string, msg *waE2E.Message) (transport.SendReceipt, error) {
	jid, err := types.ParseJID(to)
	if err != nil {
		return transport.SendReceipt{}, fmt.Errorf("whatsapp: parse recipient %q: %w", to, err)
	}
	resp, err := c.cli.SendMessage(ctx, jid, msg)
	if err != nil {
		return transport.SendReceipt{}, err
	}
	return transport.SendReceipt{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

func (c *client) SendText(ctx context.Context, to, text string) (transport.SendReceipt, error) {
	return c.send(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
}

func (c *client) Send(ctx context.Context, to string, envelope *transport.Envelope) (transport.SendReceipt, error) {
	msg, err := envelopeMessage(envelope)
	if err != nil {
		return transport.SendReceipt{}, err
	}
	return c.send(ctx, to, msg)
}

func (c *client) Reply(ctx context.Context, to, text string, quoted *transport.MessageEvent) (transport.SendReceipt, error) {
	if quoted == nil || quoted.Key.ID == "" {
		return c.SendText(ctx, to, text)
	}
	participant := quoted.Key.Participant
	if participant == "" {
		participant = quoted.Key.RemoteJID
	}
	msg := &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text: proto.String(text),
		ContextInfo: &waE2E.ContextInfo{
			StanzaID:      proto.String(quoted.Key.ID),
			Participant:   proto.String(participant),
			QuotedMessage: quotedProto(quoted.Content),
		},
	}}
	return c.send(ctx, to, msg)
}

func (c *client) ResolveIdentity(ctx context.Context, jid string) (string, error) {
	number := transport.JIDNumber(jid)
	if number == "" {
		return "", nil
	}
	resp, err := c.cli.IsOnWhatsApp(ctx, []string{"+" + number})
	if err != nil {
		return "", err
	}
	for _, item := range resp {
		if item.IsIn {
			return item.JID.String(), nil
		}
	}
	return "", nil
}

func (c *client) GroupMetadata(ctx context.Context, jid string) (transport.GroupMetadata, error) {
	gjid, err := types.ParseJID(jid)
	if err != nil {
		return transport.GroupMetadata{}, fmt.Errorf("whatsapp: parse group %q: %w", jid, err)
	}
	info, err := c.cli.GetGroupInfo(ctx, gjid)
	if err != nil {
		return transport.GroupMetadata{}, err
	}
	meta := transport.GroupMetadata{ID: info.JID.String(), Subject: info.Name}
	for _, p := range info.Participants {
		admin := ""
		switch {
		case p.IsSuperAdmin:
			admin = "superadmin"
		case p.IsAdmin:
			admin = "admin"
		}
		meta.Participants = append(meta.Participants, transport.GroupParticipant{
			JID:   p.JID.String(),
			Admin: admin,
		})
	}
	return meta, nil
}

func (c *client) Download(ctx context.Context, media *transport.MediaContent) ([]byte, error) {
	if media == nil || media.Handle == "" {
		return nil, errors.New("whatsapp: media has no download handle")
	}
	ref, err := decodeHandle(media.Handle)
	if err != nil {
		return nil, err
	}
	return c.cli.Download(ctx, ref)
}

// ReadMessages marks the given messages read, batching per chat and sender.
func (c *client) ReadMessages(ctx context.Context, keys []transport.MessageKey) error {
	type chatKey struct{ chat, sender string }
	grouped := map[chatKey][]types.MessageID{}
	for _, key := range keys {
		sender := key.Participant
		if sender == "" {
			sender = key.RemoteJID
		}
		ck := chatKey{chat: key.RemoteJID, sender: sender}
		grouped[ck] = append(grouped[ck], key.ID)
	}
	for ck, ids := range grouped {
		chat, err := types.ParseJID(ck.chat)
		if err != nil {
			return fmt.Errorf("whatsapp: parse chat %q: %w", ck.chat, err)
		}
		sender, err := types.ParseJID(ck.sender)
		if err != nil {
			return fmt.Errorf("whatsapp: parse sender %q: %w", ck.sender, err)
		}
		if err := c.cli.MarkRead(ctx, ids, time.Now(), chat, sender); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) Logout(ctx context.Context) error {
	return c.cli.Logout(ctx)
}

func (c *client) Disconnect() {
	c.cli.RemoveEventHandlers()
	c.cli.Disconnect()
}
