package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wagatehq/wagate/internal/session"
)

func dialTestHub(t *testing.T) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(nil)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		hub.Attach(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return hub, conn
}

func readEvent(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestHubBroadcastsSessionStatus(t *testing.T) {
	t.Parallel()

	hub, conn := dialTestHub(t)

	// Broadcast may race the attach; retry briefly until the client is
	// registered.
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		attached := len(hub.clients) > 0
		hub.mu.Unlock()
		if attached || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.SessionStatus("alpha", session.StatusConnected)
	env := readEvent(t, conn)
	if env.Event != "session-status" {
		t.Fatalf("unexpected event: %q", env.Event)
	}
	data, ok := env.Data.(map[string]any)
	if !ok {
		t.Fatalf("unexpected data shape: %T", env.Data)
	}
	if data["session"] != "alpha" || data["status"] != "CONNECTED" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestHubQREventCarriesEncodedImage(t *testing.T) {
	t.Parallel()

	hub, conn := dialTestHub(t)
	deadline := time.Now().Add(time.Second)
	for {
		hub.mu.Lock()
		attached := len(hub.clients) > 0
		hub.mu.Unlock()
		if attached || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.QRCode("alpha", []byte("challenge"))
	env := readEvent(t, conn)
	if env.Event != "update-qr" {
		t.Fatalf("unexpected event: %q", env.Event)
	}
	data := env.Data.(map[string]any)
	if data["qr"] == "" {
		t.Fatalf("expected encoded qr payload")
	}
}
