// Package transport defines the contract this gateway consumes from the
// real-time messaging transport: connection dialing, event delivery, the
// closed disconnect-reason enum, and the raw inbound event model. The wire
// protocol behind it is owned by the transport implementation.
package transport

import (
	"strings"
	"time"
)

// JID namespace suffixes. A stable, phone-scoped identifier lives under the
// user server; linked devices get an ephemeral identifier under the lid
// server that must never leak into persisted or forwarded state when a
// stable alternative is known.
const (
	UserServer         = "s.whatsapp.net"
	GroupServer        = "g.us"
	BroadcastServer    = "broadcast"
	LinkedDeviceServer = "lid"
)

// StatusBroadcastJID is the pseudo-conversation carrying status updates.
const StatusBroadcastJID = "status@broadcast"

// IsGroupJID reports whether the identifier addresses a group conversation.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+GroupServer)
}

// IsBroadcastJID reports whether the identifier addresses a broadcast list.
func IsBroadcastJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+BroadcastServer)
}

// IsUserJID reports whether the identifier is in the stable user namespace.
func IsUserJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+UserServer)
}

// IsLinkedDeviceJID reports whether the identifier is ephemeral.
func IsLinkedDeviceJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+LinkedDeviceServer)
}

// NormalizeJID strips the per-device suffix from the local part, e.g.
// "628123:12@s.whatsapp.net" becomes "628123@s.whatsapp.net".
func NormalizeJID(jid string) string {
	local, server, ok := strings.Cut(jid, "@")
	if !ok {
		return jid
	}
	if idx := strings.IndexByte(local, ':'); idx >= 0 {
		local = local[:idx]
	}
	return local + "@" + server
}

// JIDNumber extracts the bare number from an identifier, dropping any device
// suffix and server part.
func JIDNumber(jid string) string {
	local, _, _ := strings.Cut(jid, "@")
	if idx := strings.IndexByte(local, ':'); idx >= 0 {
		local = local[:idx]
	}
	return local
}

// DisconnectReason is the closed enum of connection-close causes reported by
// the transport. Codes outside this set are surfaced as ReasonUnknown with
// the raw value preserved on the update.
type DisconnectReason int

const (
	ReasonUnknown DisconnectReason = iota
	ReasonBadSession
	ReasonConnectionClosed
	ReasonConnectionLost
	ReasonConnectionReplaced
	ReasonLoggedOut
	ReasonRestartRequired
	ReasonTimedOut
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonBadSession:
		return "bad_session"
	case ReasonConnectionClosed:
		return "connection_closed"
	case ReasonConnectionLost:
		return "connection_lost"
	case ReasonConnectionReplaced:
		return "connection_replaced"
	case ReasonLoggedOut:
		return "logged_out"
	case ReasonRestartRequired:
		return "restart_required"
	case ReasonTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// ConnectionState mirrors the transport's coarse connection phases.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionClose      ConnectionState = "close"
)

// ConnectionUpdate is delivered on every connection-state change. QRChallenge
// is non-empty when the transport demands a fresh pairing scan. RawReason
// carries the transport's original close cause for operator diagnosis.
type ConnectionUpdate struct {
	State       ConnectionState
	QRChallenge string
	IsNewLogin  bool
	Reason      DisconnectReason
	RawReason   string
}

// MessageKey identifies one inbound message. SenderPN, when set, is the
// transport's resolved stable identifier for an ephemeral RemoteJID.
type MessageKey struct {
	ID          string
	RemoteJID   string
	FromMe      bool
	Participant string
	SenderPN    string
}

// TextContent is a plain or extended text body.
type TextContent struct {
	Text string
}

// MediaContent references a binary attachment. Handle is the opaque
// lazy-fetch token consumed by Client.Download.
type MediaContent struct {
	Mime    string
	Caption string
	Size    int64
	Handle  string
}

// SelectionContent is a button, list, or template reply carrying the chosen
// option identifier.
type SelectionContent struct {
	SelectedID string
}

// LocationContent is a shared location pin.
type LocationContent struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// ContactContent is a shared contact card.
type ContactContent struct {
	DisplayName string
	VCard       string
}

// ContextInfo carries quoting and mention context attached to a content
// member.
type ContextInfo struct {
	StanzaID      string
	Participant   string
	Quoted        *Content
	MentionedJIDs []string
}

// Content is the inbound content union. Exactly one member is expected to be
// populated; Type reports which.
type Content struct {
	Conversation  *TextContent
	ExtendedText  *TextContent
	Image         *MediaContent
	Video         *MediaContent
	Audio         *MediaContent
	Document      *MediaContent
	Sticker       *MediaContent
	Contact       *ContactContent
	Location      *LocationContent
	ButtonsReply  *SelectionContent
	ListReply     *SelectionContent
	TemplateReply *SelectionContent
	Ephemeral     *Content
	ViewOnce      *Content
	Context       *ContextInfo
}

// ContentType names a member of the content union.
type ContentType string

const (
	ContentUnknown       ContentType = ""
	ContentConversation  ContentType = "conversation"
	ContentExtendedText  ContentType = "extendedTextMessage"
	ContentImage         ContentType = "imageMessage"
	ContentVideo         ContentType = "videoMessage"
	ContentAudio         ContentType = "audioMessage"
	ContentDocument      ContentType = "documentMessage"
	ContentSticker       ContentType = "stickerMessage"
	ContentContact       ContentType = "contactMessage"
	ContentLocation      ContentType = "locationMessage"
	ContentButtonsReply  ContentType = "buttonsResponseMessage"
	ContentListReply     ContentType = "listResponseMessage"
	ContentTemplateReply ContentType = "templateButtonReplyMessage"
	ContentEphemeral     ContentType = "ephemeralMessage"
	ContentViewOnce      ContentType = "viewOnceMessage"
)

// Type reports which union member is populated. Envelope types are reported
// as-is; callers unwrap them explicitly.
func (c *Content) Type() ContentType {
	switch {
	case c == nil:
		return ContentUnknown
	case c.Ephemeral != nil:
		return ContentEphemeral
	case c.ViewOnce != nil:
		return ContentViewOnce
	case c.Conversation != nil:
		return ContentConversation
	case c.ExtendedText != nil:
		return ContentExtendedText
	case c.Image != nil:
		return ContentImage
	case c.Video != nil:
		return ContentVideo
	case c.Audio != nil:
		return ContentAudio
	case c.Document != nil:
		return ContentDocument
	case c.Sticker != nil:
		return ContentSticker
	case c.Contact != nil:
		return ContentContact
	case c.Location != nil:
		return ContentLocation
	case c.ButtonsReply != nil:
		return ContentButtonsReply
	case c.ListReply != nil:
		return ContentListReply
	case c.TemplateReply != nil:
		return ContentTemplateReply
	default:
		return ContentUnknown
	}
}

// Media returns the media member for downloadable content types, or nil.
func (c *Content) Media() *MediaContent {
	if c == nil {
		return nil
	}
	switch {
	case c.Image != nil:
		return c.Image
	case c.Video != nil:
		return c.Video
	case c.Audio != nil:
		return c.Audio
	case c.Document != nil:
		return c.Document
	case c.Sticker != nil:
		return c.Sticker
	default:
		return nil
	}
}

// ButtonOption is one quick-reply button in an outbound envelope. A tapped
// button comes back as ButtonsReply content carrying the ID.
type ButtonOption struct {
	ID    string
	Label string
}

// ButtonsEnvelope is an outbound quick-reply button message.
type ButtonsEnvelope struct {
	Text    string
	Footer  string
	Buttons []ButtonOption
}

// ListRow is one selectable row of an outbound list message. A chosen row
// comes back as ListReply content carrying the ID.
type ListRow struct {
	ID          string
	Title       string
	Description string
}

// ListSection groups rows under a section title.
type ListSection struct {
	Title string
	Rows  []ListRow
}

// ListEnvelope is an outbound single-select list message.
type ListEnvelope struct {
	Title      string
	Text       string
	Footer     string
	ButtonText string
	Sections   []ListSection
}

// Envelope is the outbound content union consumed by Client.Send. Exactly
// one member must be set.
type Envelope struct {
	Text     *TextContent
	Location *LocationContent
	Contact  *ContactContent
	Buttons  *ButtonsEnvelope
	List     *ListEnvelope
}

// MessageEvent is one raw inbound message as delivered by the transport.
type MessageEvent struct {
	Key       MessageKey
	Content   *Content
	PushName  string
	Timestamp time.Time
}

// MessagesEvent batches inbound messages. Kind "notify" marks live delivery;
// other kinds (history sync, append) are ignored by the dispatcher.
type MessagesEvent struct {
	Messages []*MessageEvent
	Kind     string
}

// NotifyKind marks live message delivery.
const NotifyKind = "notify"
