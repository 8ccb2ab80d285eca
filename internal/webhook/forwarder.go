// Package webhook forwards canonical inbound messages to an external HTTP
// endpoint, with best-effort media persistence.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wagatehq/wagate/internal/media"
	"github.com/wagatehq/wagate/internal/message"
	"github.com/wagatehq/wagate/internal/transport"
)

// Callback is a per-session endpoint override.
type Callback struct {
	URL   string
	Token string
}

// CallbackResolver looks up the per-session callback configuration. found is
// false when the session has no override.
type CallbackResolver interface {
	GetCallback(ctx context.Context, sessionName string) (cb Callback, found bool, err error)
}

// MediaPersister stores attachment bytes and yields their public location.
type MediaPersister interface {
	Persist(ctx context.Context, fetcher media.Fetcher, mc *transport.MediaContent, sessionName string) (media.Stored, error)
}

// Payload is the JSON body POSTed to the webhook endpoint.
type Payload struct {
	Session     string  `json:"session"`
	Sender      string  `json:"sender"`
	PushName    string  `json:"pushname"`
	From        string  `json:"from"`
	IsGroup     bool    `json:"isGroup"`
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Timestamp   int64   `json:"timestamp"`
	Time        string  `json:"time"`
	Device      string  `json:"device"`
	URL         *string `json:"url"`
	FileName    string  `json:"fileName,omitempty"`
	Mimetype    string  `json:"mimetype,omitempty"`
	Bytes       int64   `json:"bytes,omitempty"`
}

// Forwarder maps canonical messages to webhook notifications. Every failure
// is logged and swallowed; Forward never propagates an error.
type Forwarder struct {
	resolver     CallbackResolver
	persister    MediaPersister
	client       *http.Client
	defaultURL   string
	defaultToken string
	logger       *slog.Logger
}

// NewForwarder creates a Forwarder with the global default endpoint and a
// bounded request timeout.
func NewForwarder(log *slog.Logger, resolver CallbackResolver, persister MediaPersister, defaultURL, defaultToken string, timeout time.Duration) *Forwarder {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Forwarder{
		resolver:     resolver,
		persister:    persister,
		client:       &http.Client{Timeout: timeout},
		defaultURL:   defaultURL,
		defaultToken: defaultToken,
		logger:       log.With(slog.String("component", "webhook")),
	}
}

// Forward delivers one canonical message. When neither a per-session
// callback nor a global default is configured it is a no-op.
func (f *Forwarder) Forward(ctx context.Context, fetcher media.Fetcher, m *message.Message, sessionName string) {
	if err := f.forward(ctx, fetcher, m, sessionName); err != nil {
		f.logger.Error("webhook forward failed",
			slog.String("session", sessionName),
			slog.Any("error", err),
		)
	}
}

func (f *Forwarder) forward(ctx context.Context, fetcher media.Fetcher, m *message.Message, sessionName string) error {
	var cb Callback
	if f.resolver != nil && sessionName != "" {
		resolved, found, err := f.resolver.GetCallback(ctx, sessionName)
		if err != nil {
			f.logger.Warn("callback lookup failed", slog.String("session", sessionName), slog.Any("error", err))
		} else if found {
			cb = resolved
		}
	}
	targetURL := cb.URL
	if targetURL == "" {
		targetURL = f.defaultURL
	}
	if targetURL == "" {
		return nil
	}

	category := Category(m.ContentType)
	payload := Payload{
		Session:   sessionName,
		Sender:    m.PhoneNumber,
		PushName:  m.PushName,
		From:      m.From,
		IsGroup:   m.IsGroup,
		Type:      category,
		Message:   m.Body,
		Timestamp: m.Timestamp.Unix(),
		Time:      m.Timestamp.Format("02/01/06 15:04:05"),
		Device:    m.Device,
	}

	if requiresAttachment(category) {
		stored, err := f.persister.Persist(ctx, fetcher, m.Media(), sessionName)
		if err != nil {
			// Attachment fields are omitted; the notification still goes out.
			f.logger.Warn("media persist failed",
				slog.String("session", sessionName),
				slog.String("message_id", m.ID),
				slog.Any("error", err),
			)
		} else {
			payload.URL = &stored.URL
			payload.FileName = stored.Filename
			payload.Mimetype = stored.Mime
			payload.Bytes = stored.Bytes
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	token := cb.Token
	if token == "" {
		token = f.defaultToken
	}
	if token != "" {
		req.Header.Set("x-api-key", token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	f.logger.Debug("webhook delivered",
		slog.String("session", sessionName),
		slog.String("type", category),
	)
	return nil
}

// Category maps a content type to the coarse outbound category. Button and
// list replies coerce to text.
func Category(ct transport.ContentType) string {
	switch ct {
	case transport.ContentImage:
		return "image"
	case transport.ContentVideo:
		return "video"
	case transport.ContentAudio:
		return "audio"
	case transport.ContentDocument:
		return "document"
	case transport.ContentSticker:
		return "sticker"
	default:
		return "text"
	}
}

func requiresAttachment(category string) bool {
	switch category {
	case "image", "video", "audio", "document", "sticker":
		return true
	default:
		return false
	}
}
