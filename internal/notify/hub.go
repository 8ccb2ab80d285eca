// Package notify fans lifecycle events out to dashboard websocket clients.
package notify

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wagatehq/wagate/internal/session"
)

const (
	clientSendBuffer = 16
	writeDeadline    = 10 * time.Second
)

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub broadcasts lifecycle events to all attached dashboard connections.
// Broadcasts never block: a client whose buffer is full loses the event.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates a Hub.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		logger:  log.With(slog.String("component", "notify")),
		clients: map[*client]struct{}{},
	}
}

// Attach registers a websocket connection and blocks until it closes. The
// caller hands over connection ownership.
func (h *Hub) Attach(conn *websocket.Conn) {
	c := &client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
	conn.Close()
}

// readPump discards inbound frames; the dashboard stream is one-way. It
// returns when the peer closes the connection.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.close()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Debug("client write failed", slog.Any("error", err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) broadcast(event string, data any) {
	raw, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("event encode failed", slog.String("event", event), slog.Any("error", err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- raw:
		default:
			// Slow consumer; the event is dropped for this client only.
		}
	}
}

// SessionStatus implements session.Notifier.
func (h *Hub) SessionStatus(sessionName string, status session.Status) {
	h.broadcast("session-status", map[string]any{
		"session": sessionName,
		"status":  string(status),
	})
}

// ConnectionStatus implements session.Notifier.
func (h *Hub) ConnectionStatus(sessionName, result string) {
	h.broadcast("connection-status", map[string]any{
		"session": sessionName,
		"result":  result,
	})
}

// QRCode implements session.Notifier.
func (h *Hub) QRCode(sessionName string, image []byte) {
	h.broadcast("update-qr", map[string]any{
		"session": sessionName,
		"qr":      base64.StdEncoding.EncodeToString(image),
	})
}

// Log implements session.Notifier.
func (h *Hub) Log(sessionName, excerpt, phoneNumber string, status session.Status) {
	h.broadcast("logger", map[string]any{
		"session":      sessionName,
		"log":          excerpt,
		"phone_number": phoneNumber,
		"status":       string(status),
	})
}
