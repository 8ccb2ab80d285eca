package message

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wagatehq/wagate/internal/transport"
)

// Lookup is the slice of the transport client the normalizer needs: own
// identity, stable-identifier resolution, and group roster fetch.
type Lookup interface {
	SelfJID() string
	ResolveIdentity(ctx context.Context, jid string) (string, error)
	GroupMetadata(ctx context.Context, jid string) (transport.GroupMetadata, error)
}

// Normalizer converts raw transport events into canonical Messages.
type Normalizer struct {
	prefix string
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer using the given command prefix.
func NewNormalizer(log *slog.Logger, prefix string) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{
		prefix: prefix,
		logger: log.With(slog.String("component", "normalizer")),
	}
}

// Normalize builds the canonical Message for one raw event. It is a pure
// function of the event apart from the identity and group lookups; lookup
// failures degrade the result instead of failing it.
func (n *Normalizer) Normalize(ctx context.Context, lookup Lookup, evt *transport.MessageEvent) Message {
	m := Message{
		ID:        evt.Key.ID,
		FromMe:    evt.Key.FromMe,
		From:      evt.Key.RemoteJID,
		PushName:  evt.PushName,
		Timestamp: evt.Timestamp,
		Device:    DeviceFromMessageID(evt.Key.ID),
		Raw:       evt,
	}

	// A stable identifier supplied alongside an ephemeral conversation id
	// overrides it for all downstream use.
	senderPN := evt.Key.SenderPN
	if transport.IsLinkedDeviceJID(m.From) && senderPN != "" {
		m.From = senderPN
	}

	self := lookup.SelfJID()
	m.BotJID = transport.JIDNumber(self) + "@" + transport.UserServer

	switch {
	case m.FromMe:
		m.Sender = transport.NormalizeJID(self)
	case transport.IsGroupJID(m.From), transport.IsBroadcastJID(m.From):
		m.Sender = transport.NormalizeJID(evt.Key.Participant)
	default:
		m.Sender = transport.NormalizeJID(m.From)
	}
	m.IsGroup = transport.IsGroupJID(m.From)

	content := unwrapped(evt.Content)
	m.ContentType = content.Type()
	m.Body = extractBody(content, m.ContentType)

	if ctxInfo := contextInfo(content); ctxInfo != nil && ctxInfo.Quoted != nil {
		m.Quoted = &Quoted{
			ID:       ctxInfo.StanzaID,
			FromSelf: ctxInfo.Participant == m.BotJID,
			Type:     ctxInfo.Quoted.Type(),
			Content:  ctxInfo.Quoted,
		}
	}

	if m.IsGroup {
		m.Group = n.groupContext(ctx, lookup, m.From, m.Sender, m.BotJID)
	}

	m.Flags = mediaFlags(m.ContentType, m.Quoted)
	m.PhoneNumber = n.resolvePhoneNumber(ctx, lookup, m.Sender, m.From, m.IsGroup, senderPN)

	if m.Body != "" && strings.HasPrefix(m.Body, n.prefix) {
		rest := strings.TrimPrefix(m.Body, n.prefix)
		if fields := strings.Fields(rest); len(fields) > 0 {
			m.Command = strings.ToLower(fields[0])
		}
	}
	return m
}

// resolvePhoneNumber applies the ordered best-effort fallback: explicit
// stable hint, direct extraction from the stable namespace, active transport
// resolution, then naive prefix strip.
func (n *Normalizer) resolvePhoneNumber(ctx context.Context, lookup Lookup, sender, from string, isGroup bool, senderPN string) string {
	if senderPN != "" {
		return transport.JIDNumber(senderPN)
	}

	jid := from
	if isGroup {
		jid = sender
	}
	if jid == "" {
		return ""
	}
	if transport.IsUserJID(jid) {
		return transport.JIDNumber(jid)
	}

	if strings.Contains(jid, "@") {
		resolved, err := lookup.ResolveIdentity(ctx, jid)
		if err != nil {
			n.logger.Debug("identity resolution failed", slog.String("jid", jid), slog.Any("error", err))
		} else if transport.IsUserJID(resolved) {
			return transport.JIDNumber(resolved)
		}
	}
	return transport.JIDNumber(jid)
}

func (n *Normalizer) groupContext(ctx context.Context, lookup Lookup, groupJID, sender, botJID string) *GroupContext {
	meta, err := lookup.GroupMetadata(ctx, groupJID)
	if err != nil {
		n.logger.Warn("group metadata fetch failed", slog.String("group", groupJID), slog.Any("error", err))
		return nil
	}
	admins := meta.AdminJIDs()
	gc := &GroupContext{
		Metadata: meta,
		Admins:   admins,
	}
	for _, jid := range admins {
		if jid == sender {
			gc.SenderIsAdmin = true
		}
		if jid == botJID {
			gc.BotIsAdmin = true
		}
	}
	return gc
}

func extractBody(c *transport.Content, ct transport.ContentType) string {
	if c == nil {
		return ""
	}
	switch ct {
	case transport.ContentConversation:
		return c.Conversation.Text
	case transport.ContentExtendedText:
		return c.ExtendedText.Text
	case transport.ContentImage:
		return c.Image.Caption
	case transport.ContentVideo:
		return c.Video.Caption
	case transport.ContentButtonsReply:
		return c.ButtonsReply.SelectedID
	case transport.ContentListReply:
		return c.ListReply.SelectedID
	case transport.ContentTemplateReply:
		return c.TemplateReply.SelectedID
	default:
		return ""
	}
}

func contextInfo(c *transport.Content) *transport.ContextInfo {
	if c == nil {
		return nil
	}
	return c.Context
}

func mediaFlags(ct transport.ContentType, quoted *Quoted) MediaFlags {
	flags := MediaFlags{
		IsImage:    ct == transport.ContentImage,
		IsVideo:    ct == transport.ContentVideo,
		IsAudio:    ct == transport.ContentAudio,
		IsSticker:  ct == transport.ContentSticker,
		IsContact:  ct == transport.ContentContact,
		IsLocation: ct == transport.ContentLocation,
	}
	if quoted != nil {
		flags.IsQuotedImage = quoted.Type == transport.ContentImage
		flags.IsQuotedVideo = quoted.Type == transport.ContentVideo
		flags.IsQuotedAudio = quoted.Type == transport.ContentAudio
		flags.IsQuotedSticker = quoted.Type == transport.ContentSticker
		flags.IsQuotedContact = quoted.Type == transport.ContentContact
		flags.IsQuotedLocation = quoted.Type == transport.ContentLocation
	}
	return flags
}
