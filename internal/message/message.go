// Package message defines the canonical inbound message representation and
// the normalizer that produces it from raw transport events.
package message

import (
	"strings"
	"time"

	"github.com/wagatehq/wagate/internal/transport"
)

// Quoted references the message being replied to.
type Quoted struct {
	ID       string
	Type     transport.ContentType
	FromSelf bool
	Content  *transport.Content
}

// Media returns the quoted message's media member, or nil.
func (q *Quoted) Media() *transport.MediaContent {
	if q == nil {
		return nil
	}
	return q.Content.Media()
}

// GroupContext is the roster snapshot computed for group-addressed messages.
// It is nil when the metadata fetch failed; normalization degrades rather
// than aborting.
type GroupContext struct {
	Metadata      transport.GroupMetadata
	Admins        []string
	SenderIsAdmin bool
	BotIsAdmin    bool
}

// MediaFlags are convenience booleans derived from the content type,
// duplicated for the quoted message when present.
type MediaFlags struct {
	IsImage          bool
	IsVideo          bool
	IsAudio          bool
	IsSticker        bool
	IsContact        bool
	IsLocation       bool
	IsQuotedImage    bool
	IsQuotedVideo    bool
	IsQuotedAudio    bool
	IsQuotedSticker  bool
	IsQuotedContact  bool
	IsQuotedLocation bool
}

// Message is the canonical, transport-agnostic representation of one inbound
// event. It is produced once per event and handed read-only to downstream
// consumers.
type Message struct {
	ID          string
	Sender      string
	From        string
	IsGroup     bool
	FromMe      bool
	BotJID      string
	ContentType transport.ContentType
	Body        string
	PushName    string
	Device      string
	Timestamp   time.Time
	PhoneNumber string
	Command     string
	Quoted      *Quoted
	Group       *GroupContext
	Flags       MediaFlags

	// Raw keeps the originating event for lazy media download and quoting.
	Raw *transport.MessageEvent
}

// Media returns the message's media member, or nil.
func (m *Message) Media() *transport.MediaContent {
	if m == nil || m.Raw == nil {
		return nil
	}
	return unwrapped(m.Raw.Content).Media()
}

// IsCommand reports whether the body carried the command prefix.
func (m *Message) IsCommand() bool {
	return m != nil && m.Command != ""
}

// DeviceFromMessageID derives the originating device class from the shape of
// the message identifier.
func DeviceFromMessageID(id string) string {
	switch {
	case len(id) > 21:
		return "android"
	case strings.HasPrefix(id, "3A"):
		return "ios"
	default:
		return "web"
	}
}

func unwrapped(c *transport.Content) *transport.Content {
	if c == nil {
		return nil
	}
	switch {
	case c.Ephemeral != nil:
		return c.Ephemeral
	case c.ViewOnce != nil:
		return c.ViewOnce
	default:
		return c
	}
}
