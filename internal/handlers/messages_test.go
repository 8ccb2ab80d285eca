package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/wagatehq/wagate/internal/session"
	"github.com/wagatehq/wagate/internal/transport"
)

type sendingClient struct {
	receipt   transport.SendReceipt
	envelopes []*transport.Envelope
	sentTo    []string
}

func (c *sendingClient) SelfJID() string { return "628999@s.whatsapp.net" }

func (c *sendingClient) SendText(ctx context.Context, to, text string) (transport.SendReceipt, error) {
	c.sentTo = append(c.sentTo, to)
	return c.receipt, nil
}

func (c *sendingClient) Send(ctx context.Context, to string, envelope *transport.Envelope) (transport.SendReceipt, error) {
	c.sentTo = append(c.sentTo, to)
	c.envelopes = append(c.envelopes, envelope)
	return c.receipt, nil
}

func (c *sendingClient) Reply(ctx context.Context, to, text string, quoted *transport.MessageEvent) (transport.SendReceipt, error) {
	return c.receipt, nil
}

func (c *sendingClient) ResolveIdentity(ctx context.Context, jid string) (string, error) {
	return "", nil
}

func (c *sendingClient) GroupMetadata(ctx context.Context, jid string) (transport.GroupMetadata, error) {
	return transport.GroupMetadata{}, nil
}

func (c *sendingClient) Download(ctx context.Context, m *transport.MediaContent) ([]byte, error) {
	return nil, nil
}

func (c *sendingClient) Logout(ctx context.Context) error { return nil }
func (c *sendingClient) Disconnect()                      {}

type recordingSeeder struct {
	buttonMessageID string
	buttonKeywords  map[string]string
	listKeywords    map[string]string
}

func (s *recordingSeeder) SaveButtonKeywords(ctx context.Context, messageID, conversation string, keywords map[string]string) error {
	s.buttonMessageID = messageID
	s.buttonKeywords = keywords
	return nil
}

func (s *recordingSeeder) SaveListKeyword(ctx context.Context, keyword, conversation, response string) error {
	if s.listKeywords == nil {
		s.listKeywords = map[string]string{}
	}
	s.listKeywords[keyword] = response
	return nil
}

func newConnectedManager(t *testing.T, client transport.Client) *session.Manager {
	t.Helper()
	dir := t.TempDir()
	dialer := stubClientDialer{client: client}
	creds := session.NewCredentialStore(nil, dir+"/sessions")
	m := session.NewManager(nil, dialer, &stubStore{}, creds, stubInbound{}, nil, dir+"/logs", 3, 0)
	if err := m.CreateSession(context.Background(), "alpha"); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return m
}

type stubClientDialer struct {
	client transport.Client
}

func (d stubClientDialer) Dial(ctx context.Context, creds transport.Credentials, handlers transport.Handlers) (transport.Client, error) {
	return d.client, nil
}

func TestSendTextRequiresLiveSession(t *testing.T) {
	t.Parallel()

	store := &stubStore{}
	h := NewMessageHandler(nil, newStubManager(t, store), nil)
	e := newTestEcho()

	body := `{"session":"alpha","to":"628123","text":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/messages/send", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.SendText(c)
	httpErr, ok := err.(*echo.HTTPError)
	assert.True(t, ok)
	assert.Equal(t, http.StatusConflict, httpErr.Code)
}

func TestSendButtonsSeedsKeywords(t *testing.T) {
	t.Parallel()

	client := &sendingClient{receipt: transport.SendReceipt{ID: "MSG1", Timestamp: time.Unix(1700000000, 0)}}
	seeder := &recordingSeeder{}
	h := NewMessageHandler(nil, newConnectedManager(t, client), seeder)
	e := newTestEcho()

	body := `{
		"session": "alpha",
		"to": "628123:3@s.whatsapp.net",
		"text": "Pick one",
		"buttons": [
			{"id": "yes", "label": "Yes", "response": "Great"},
			{"id": "no", "label": "No", "response": "Too bad"},
			{"id": "skip", "label": "Skip"}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/messages/buttons", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, h.SendButtons(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "MSG1", resp["id"])

	assert.Len(t, client.envelopes, 1)
	assert.Len(t, client.envelopes[0].Buttons.Buttons, 3)
	assert.Equal(t, "628123@s.whatsapp.net", client.sentTo[0])

	assert.Equal(t, "MSG1", seeder.buttonMessageID)
	assert.Equal(t, map[string]string{"yes": "Great", "no": "Too bad"}, seeder.buttonKeywords)
}

func TestSendListSeedsRowKeywords(t *testing.T) {
	t.Parallel()

	client := &sendingClient{receipt: transport.SendReceipt{ID: "MSG2", Timestamp: time.Unix(1700000000, 0)}}
	seeder := &recordingSeeder{}
	h := NewMessageHandler(nil, newConnectedManager(t, client), seeder)
	e := newTestEcho()

	body := `{
		"session": "alpha",
		"to": "628123@s.whatsapp.net",
		"text": "Our menu",
		"button_text": "Open",
		"sections": [
			{"title": "Drinks", "rows": [
				{"id": "coffee", "title": "Coffee", "response": "One coffee coming up"},
				{"id": "tea", "title": "Tea"}
			]}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/messages/lists", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assert.NoError(t, h.SendList(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Len(t, client.envelopes, 1)
	assert.Equal(t, "Open", client.envelopes[0].List.ButtonText)
	assert.Equal(t, map[string]string{"coffee": "One coffee coming up"}, seeder.listKeywords)
}
