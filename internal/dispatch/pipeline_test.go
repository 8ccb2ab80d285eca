package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wagatehq/wagate/internal/media"
	"github.com/wagatehq/wagate/internal/message"
	"github.com/wagatehq/wagate/internal/responder"
	"github.com/wagatehq/wagate/internal/transport"
	"github.com/wagatehq/wagate/internal/webhook"
)

// pipelineClient backs the full pipeline: identity lookups, media download,
// and reply capture.
type pipelineClient struct {
	readingClient
	selfJID string
	groups  map[string]transport.GroupMetadata
	mu      sync.Mutex
	replies []string
}

func (c *pipelineClient) SelfJID() string { return c.selfJID }

func (c *pipelineClient) GroupMetadata(ctx context.Context, jid string) (transport.GroupMetadata, error) {
	if meta, ok := c.groups[jid]; ok {
		return meta, nil
	}
	return transport.GroupMetadata{}, nil
}

func (c *pipelineClient) Download(ctx context.Context, m *transport.MediaContent) ([]byte, error) {
	return []byte("image-bytes"), nil
}

func (c *pipelineClient) Reply(ctx context.Context, to, text string, quoted *transport.MessageEvent) (transport.SendReceipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replies = append(c.replies, text)
	return transport.SendReceipt{ID: "sent"}, nil
}

func newPipeline(t *testing.T, webhookURL string) (*Dispatcher, *pipelineClient) {
	t.Helper()
	normalizer := message.NewNormalizer(nil, "!")
	store := media.NewStore(nil, t.TempDir(), "http://localhost:8080")
	forwarder := webhook.NewForwarder(nil, nil, store, webhookURL, "", time.Second)
	chain := responder.NewChain(nil, nil, nil, nil)
	client := &pipelineClient{}
	return NewDispatcher(nil, normalizer, forwarder, chain), client
}

func TestPipelineImageCommandForwardsWithoutResponding(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		payload webhook.Payload
		hits    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		hits++
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d, client := newPipeline(t, srv.URL)
	client.selfJID = "628999:2@s.whatsapp.net"

	evt := &transport.MessageEvent{
		Key: transport.MessageKey{ID: "IMG1", RemoteJID: "628123@s.whatsapp.net"},
		Content: &transport.Content{
			Image: &transport.MediaContent{Mime: "image/jpeg", Caption: "!hello there"},
		},
		PushName:  "Alice",
		Timestamp: time.Unix(1700000000, 0),
	}
	d.Handle(context.Background(), client, "alpha", transport.MessagesEvent{
		Messages: []*transport.MessageEvent{evt},
		Kind:     transport.NotifyKind,
	})

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected one webhook delivery, got %d", hits)
	}
	if payload.Type != "image" {
		t.Fatalf("unexpected type: %q", payload.Type)
	}
	if payload.Message != "!hello there" {
		t.Fatalf("caption must be the body, got %q", payload.Message)
	}
	if payload.URL == nil || !strings.Contains(*payload.URL, "/uploads/alpha/") {
		t.Fatalf("expected persisted media url, got %v", payload.URL)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.replies) != 0 {
		t.Fatalf("command must bypass the responder, got %v", client.replies)
	}
}

func TestPipelineGroupImageCommandForwards(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		payload webhook.Payload
		hits    int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		hits++
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d, client := newPipeline(t, srv.URL)
	client.selfJID = "628999:2@s.whatsapp.net"
	client.groups = map[string]transport.GroupMetadata{
		"12036304@g.us": {
			ID:      "12036304@g.us",
			Subject: "Ops",
			Participants: []transport.GroupParticipant{
				{JID: "628123@s.whatsapp.net", Admin: "admin"},
				{JID: "628456@s.whatsapp.net"},
			},
		},
	}

	evt := &transport.MessageEvent{
		Key: transport.MessageKey{
			ID:          "IMG2",
			RemoteJID:   "12036304@g.us",
			Participant: "628123:7@s.whatsapp.net",
		},
		Content: &transport.Content{
			Image: &transport.MediaContent{Mime: "image/jpeg", Caption: "!hello there"},
		},
		PushName:  "Alice",
		Timestamp: time.Unix(1700000000, 0),
	}
	d.Handle(context.Background(), client, "alpha", transport.MessagesEvent{
		Messages: []*transport.MessageEvent{evt},
		Kind:     transport.NotifyKind,
	})

	mu.Lock()
	defer mu.Unlock()
	if hits != 1 {
		t.Fatalf("expected one webhook delivery, got %d", hits)
	}
	if !payload.IsGroup {
		t.Fatalf("expected group flag set")
	}
	if payload.From != "12036304@g.us" {
		t.Fatalf("from must stay the group conversation, got %q", payload.From)
	}
	if payload.Sender != "628123" {
		t.Fatalf("sender must resolve to the participant number, got %q", payload.Sender)
	}
	if payload.Type != "image" {
		t.Fatalf("unexpected type: %q", payload.Type)
	}
	if payload.URL == nil || !strings.Contains(*payload.URL, "/uploads/alpha/") {
		t.Fatalf("expected persisted media url, got %v", payload.URL)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.replies) != 0 {
		t.Fatalf("command must bypass the responder, got %v", client.replies)
	}
}

func TestPipelineStaticReplyRoundTrip(t *testing.T) {
	t.Parallel()

	d, client := newPipeline(t, "")
	client.selfJID = "628999@s.whatsapp.net"

	evt := &transport.MessageEvent{
		Key: transport.MessageKey{ID: "TXT1", RemoteJID: "628123@s.whatsapp.net"},
		Content: &transport.Content{
			Conversation: &transport.TextContent{Text: "Bot"},
		},
		Timestamp: time.Unix(1700000000, 0),
	}
	d.Handle(context.Background(), client, "alpha", transport.MessagesEvent{
		Messages: []*transport.MessageEvent{evt},
		Kind:     transport.NotifyKind,
	})

	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.replies) != 1 || client.replies[0] != "Yes Sir.." {
		t.Fatalf("expected static liveness reply, got %v", client.replies)
	}
}
