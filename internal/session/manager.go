// Package session owns the per-name connection lifecycle: dialing, pairing,
// reconnect policy, credential persistence, and teardown.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/wagatehq/wagate/internal/transport"
)

// Record is one durable session registry row.
type Record struct {
	Name        string
	PhoneNumber string
	Status      Status
}

// Store is the durable session registry.
type Store interface {
	UpsertSession(ctx context.Context, name, phoneNumber string) error
	UpdateStatus(ctx context.Context, name string, status Status) error
	DeleteSession(ctx context.Context, name string) error
	ListSessions(ctx context.Context) ([]Record, error)
}

// MediaCleaner removes persisted attachments for a session.
type MediaCleaner interface {
	Remove(sessionName string) error
}

// InboundHandler consumes raw inbound batches for a live connection.
type InboundHandler interface {
	Handle(ctx context.Context, client transport.Client, sessionName string, batch transport.MessagesEvent)
	// Forget releases per-connection state after teardown.
	Forget(client transport.Client)
}

// Info is the observable state of one managed session.
type Info struct {
	Name  string
	State Status
}

type session struct {
	name       string
	client     transport.Client
	state      Status
	qrAttempts int
	stopped    bool
}

// Manager drives one connection lifecycle per session name. It owns every
// connection handle exclusively: at most one live handle exists per name,
// and creating a new one always tears down the previous handle first.
type Manager struct {
	dialer        transport.Dialer
	store         Store
	creds         *CredentialStore
	inbound       InboundHandler
	notifier      Notifier
	logger        *slog.Logger
	logPath       string
	maxQRAttempts int
	qrDelay       time.Duration
	media         MediaCleaner

	mu       sync.Mutex
	sessions map[string]*session
}

// SetMediaCleaner enables upload cleanup when a session is deleted.
func (m *Manager) SetMediaCleaner(cleaner MediaCleaner) {
	m.media = cleaner
}

// NewManager creates a Manager.
func NewManager(
	log *slog.Logger,
	dialer transport.Dialer,
	store Store,
	creds *CredentialStore,
	inbound InboundHandler,
	notifier Notifier,
	logPath string,
	maxQRAttempts int,
	qrDelay time.Duration,
) *Manager {
	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if maxQRAttempts <= 0 {
		maxQRAttempts = 3
	}
	return &Manager{
		dialer:        dialer,
		store:         store,
		creds:         creds,
		inbound:       inbound,
		notifier:      notifier,
		logger:        log.With(slog.String("component", "session")),
		logPath:       logPath,
		maxQRAttempts: maxQRAttempts,
		qrDelay:       qrDelay,
		sessions:      map[string]*session{},
	}
}

// Bootstrap marks all persisted sessions stopped. Pairing is never started
// automatically; the operator restarts sessions explicitly.
func (m *Manager) Bootstrap(ctx context.Context) error {
	records, err := m.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, record := range records {
		if err := m.store.UpdateStatus(ctx, record.Name, StatusStopped); err != nil {
			m.logger.Warn("bootstrap status update failed",
				slog.String("session", record.Name),
				slog.Any("error", err),
			)
		}
	}
	m.logger.Info("sessions restored", slog.Int("count", len(records)))
	return nil
}

// CreateSession establishes a fresh connection for the name, tearing down
// any previous handle first. Handshake failures roll back a session
// directory this call created, mark the session stopped, and notify.
func (m *Manager) CreateSession(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("session name is required")
	}
	m.teardown(name)

	created, err := m.creds.Ensure(name)
	if err != nil {
		m.notifier.ConnectionStatus(name, fmt.Sprintf("Error creating session: %v. Please try again.", err))
		return err
	}
	creds, err := m.creds.Load(name)
	if err != nil {
		m.logger.Warn("credential load failed, starting fresh pairing",
			slog.String("session", name),
			slog.Any("error", err),
		)
		creds = transport.Credentials{}
	}

	entry := &session{name: name, state: StatusConnecting}
	m.mu.Lock()
	m.sessions[name] = entry
	m.mu.Unlock()

	handlers := transport.Handlers{
		OnCredentials: func(updated transport.Credentials) {
			if err := m.creds.Save(name, updated); err != nil {
				m.logger.Error("credential save failed",
					slog.String("session", name),
					slog.Any("error", err),
				)
			}
		},
		OnConnection: func(update transport.ConnectionUpdate) {
			m.handleConnectionUpdate(name, update)
		},
		OnMessages: func(batch transport.MessagesEvent) {
			m.mu.Lock()
			client := entry.client
			m.mu.Unlock()
			if client != nil {
				m.inbound.Handle(context.Background(), client, name, batch)
			}
		},
	}

	// The connection must outlive the request that created it.
	client, err := m.dialer.Dial(context.WithoutCancel(ctx), creds, handlers)
	if err != nil {
		if created {
			if rmErr := m.creds.Remove(name); rmErr != nil {
				m.logger.Warn("session dir rollback failed",
					slog.String("session", name),
					slog.Any("error", rmErr),
				)
			}
		}
		m.mu.Lock()
		if m.sessions[name] == entry {
			delete(m.sessions, name)
		}
		m.mu.Unlock()
		m.updateStoredStatus(name, StatusStopped)
		m.notifier.ConnectionStatus(name, fmt.Sprintf("Error creating session: %v. Please try again.", err))
		return fmt.Errorf("dial transport: %w", err)
	}

	m.mu.Lock()
	// A concurrent CreateSession for the same name may have replaced the
	// entry while we were dialing; the newest call wins.
	if m.sessions[name] != entry {
		m.mu.Unlock()
		client.Disconnect()
		return nil
	}
	entry.client = client
	m.mu.Unlock()

	m.logger.Info("session connecting", slog.String("session", name))
	return nil
}

// StopSession flags the session stopped by the operator and tears down its
// handle. Credentials stay on disk so the session can be restarted without
// re-pairing.
func (m *Manager) StopSession(ctx context.Context, name string) error {
	m.mu.Lock()
	if entry := m.sessions[name]; entry != nil {
		entry.stopped = true
	}
	m.mu.Unlock()
	m.teardown(name)
	m.setState(name, StatusStopped)
	if err := m.store.UpdateStatus(ctx, name, StatusStopped); err != nil {
		return err
	}
	m.notifier.SessionStatus(name, StatusStopped)
	return nil
}

// DeleteSession removes on-disk session artifacts. With purgeRecord the
// durable registry row is deleted too, otherwise it is marked stopped. The
// in-memory handle is always reset.
func (m *Manager) DeleteSession(ctx context.Context, name string, purgeRecord bool) error {
	m.teardown(name)
	m.mu.Lock()
	delete(m.sessions, name)
	m.mu.Unlock()

	if err := m.creds.Remove(name); err != nil {
		m.logger.Warn("credential purge failed", slog.String("session", name), slog.Any("error", err))
	}
	m.removeSessionLog(name)
	if m.media != nil {
		if err := m.media.Remove(name); err != nil {
			m.logger.Warn("media purge failed", slog.String("session", name), slog.Any("error", err))
		}
	}

	if purgeRecord {
		return m.store.DeleteSession(ctx, name)
	}
	return m.store.UpdateStatus(ctx, name, StatusStopped)
}

// Client returns the live connection handle for a session, if any.
func (m *Manager) Client(name string) (transport.Client, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := m.sessions[name]
	if entry == nil || entry.client == nil {
		return nil, false
	}
	return entry.client, true
}

// Sessions lists the in-memory session states.
func (m *Manager) Sessions() []Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]Info, 0, len(m.sessions))
	for _, entry := range m.sessions {
		items = append(items, Info{Name: entry.name, State: entry.state})
	}
	return items
}

// Shutdown disconnects every live handle.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.Unlock()
	for _, name := range names {
		m.teardown(name)
	}
}

func (m *Manager) handleConnectionUpdate(name string, update transport.ConnectionUpdate) {
	m.mu.Lock()
	entry := m.sessions[name]
	m.mu.Unlock()
	if entry == nil {
		return
	}

	if update.QRChallenge != "" {
		m.handleQRChallenge(name, entry, update.QRChallenge)
		return
	}

	if update.IsNewLogin {
		m.handleNewLogin(name, entry)
	}

	switch update.State {
	case transport.ConnectionOpen:
		m.handleOpen(name, entry)
	case transport.ConnectionClose:
		m.handleClose(name, entry, update)
	}
}

// handleQRChallenge enforces the pairing attempt budget: once the counter
// reaches the maximum the session is torn down without emitting another QR,
// so an abandoned pairing flow cannot hold a connection open.
func (m *Manager) handleQRChallenge(name string, entry *session, challenge string) {
	m.mu.Lock()
	entry.qrAttempts++
	attempts := entry.qrAttempts
	entry.state = StatusQRPending
	m.mu.Unlock()

	if attempts >= m.maxQRAttempts {
		m.logger.Warn("qr budget exhausted",
			slog.String("session", name),
			slog.Int("attempts", attempts),
		)
		m.teardown(name)
		if err := m.creds.Remove(name); err != nil {
			m.logger.Warn("credential purge failed", slog.String("session", name), slog.Any("error", err))
		}
		m.removeSessionLog(name)
		m.setState(name, StatusStopped)
		m.updateStoredStatus(name, StatusStopped)
		m.notifier.ConnectionStatus(name, "No Response, QR Scan Canceled")
		return
	}

	// Short fixed delay rate-limits QR churn toward the dashboard.
	if m.qrDelay > 0 {
		time.Sleep(m.qrDelay)
	}
	m.notifier.QRCode(name, []byte(challenge))
	m.logger.Info("qr challenge ready", slog.String("session", name), slog.Int("attempt", attempts))
}

func (m *Manager) handleNewLogin(name string, entry *session) {
	m.mu.Lock()
	entry.qrAttempts = 0
	client := entry.client
	m.mu.Unlock()
	if client == nil {
		return
	}
	phone := transport.JIDNumber(client.SelfJID())
	if phone == "" {
		return
	}
	ctx := context.Background()
	if err := m.store.UpsertSession(ctx, name, phone); err != nil {
		m.logger.Error("session record upsert failed",
			slog.String("session", name),
			slog.Any("error", err),
		)
	}
	excerpt := m.appendSessionLog(name, phone)
	m.notifier.Log(name, excerpt, phone, StatusConnected)
}

func (m *Manager) handleOpen(name string, entry *session) {
	m.mu.Lock()
	already := entry.state == StatusConnected
	entry.state = StatusConnected
	entry.qrAttempts = 0
	m.mu.Unlock()
	if already {
		return
	}
	m.updateStoredStatus(name, StatusConnected)
	m.notifier.SessionStatus(name, StatusConnected)
	m.logger.Info("session connected", slog.String("session", name))
}

func (m *Manager) handleClose(name string, entry *session, update transport.ConnectionUpdate) {
	policy, known := policyFor(update.Reason)
	if !known {
		m.logger.Warn("unknown disconnect reason",
			slog.String("session", name),
			slog.String("raw", update.RawReason),
		)
		m.teardown(name)
		m.notifier.ConnectionStatus(name, fmt.Sprintf("Unknown disconnect reason: %s", update.RawReason))
		return
	}

	m.mu.Lock()
	stopped := entry.stopped
	m.mu.Unlock()

	if policy.reconnect || (policy.conditionalReconnect && !stopped) {
		m.setState(name, StatusReconnecting)
		m.teardown(name)
		m.logger.Info("session reconnecting",
			slog.String("session", name),
			slog.String("reason", update.Reason.String()),
		)
		// Reconnect is scheduled, never recursed into, so a flapping
		// connection cannot starve the transport's event goroutine.
		go func() {
			if err := m.CreateSession(context.Background(), name); err != nil {
				m.logger.Error("reconnect failed",
					slog.String("session", name),
					slog.Any("error", err),
				)
			}
		}()
		return
	}

	if policy.conditionalReconnect {
		// Operator stopped the session; persist and report.
		m.teardown(name)
		m.setState(name, StatusStopped)
		m.updateStoredStatus(name, StatusStopped)
		m.notifier.SessionStatus(name, StatusStopped)
		m.logger.Info("session stopped", slog.String("session", name))
		return
	}

	// Terminal reasons: best-effort logout, purge pairing artifacts, keep
	// the durable registry row, notify exactly once.
	m.mu.Lock()
	client := entry.client
	entry.client = nil
	entry.state = policy.state
	m.mu.Unlock()

	if client != nil {
		if policy.logout {
			m.safeLogout(client)
		}
		m.inbound.Forget(client)
		client.Disconnect()
	}
	if policy.purgeCredentials {
		if err := m.creds.Remove(name); err != nil {
			m.logger.Warn("credential purge failed", slog.String("session", name), slog.Any("error", err))
		}
		m.removeSessionLog(name)
	}
	m.updateStoredStatus(name, StatusStopped)
	m.notifier.ConnectionStatus(name, fmt.Sprintf("[Session: %s] %s", name, policy.notice))
	m.logger.Warn("session terminated",
		slog.String("session", name),
		slog.String("reason", update.Reason.String()),
	)
}

// teardown invalidates the live handle for a name: deregisters inbound
// handling, disconnects, and clears the slot. Safe to call when no handle
// exists.
func (m *Manager) teardown(name string) {
	m.mu.Lock()
	entry := m.sessions[name]
	var client transport.Client
	if entry != nil {
		client = entry.client
		entry.client = nil
	}
	m.mu.Unlock()
	if client != nil {
		m.inbound.Forget(client)
		client.Disconnect()
	}
}

func (m *Manager) setState(name string, state Status) {
	m.mu.Lock()
	if entry := m.sessions[name]; entry != nil {
		entry.state = state
	}
	m.mu.Unlock()
}

func (m *Manager) updateStoredStatus(name string, status Status) {
	if err := m.store.UpdateStatus(context.Background(), name, status); err != nil {
		m.logger.Warn("status update failed",
			slog.String("session", name),
			slog.String("status", string(status)),
			slog.Any("error", err),
		)
	}
}

func (m *Manager) safeLogout(client transport.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Logout(ctx); err != nil {
		// The socket is usually already gone at this point.
		m.logger.Debug("logout failed", slog.Any("error", err))
	}
}

func (m *Manager) sessionLogFile(name string) string {
	return filepath.Join(m.logPath, name+".txt")
}

// appendSessionLog records the successful pairing and returns the full log
// excerpt for the dashboard.
func (m *Manager) appendSessionLog(name, phone string) string {
	if err := os.MkdirAll(m.logPath, 0o755); err != nil {
		m.logger.Warn("log dir create failed", slog.Any("error", err))
		return ""
	}
	file := m.sessionLogFile(name)
	if _, err := os.Stat(file); os.IsNotExist(err) {
		line := fmt.Sprintf("Success Create new Session : %s, %s\n", name, phone)
		if err := os.WriteFile(file, []byte(line), 0o644); err != nil {
			m.logger.Warn("session log write failed", slog.Any("error", err))
			return ""
		}
	}
	raw, err := os.ReadFile(file)
	if err != nil {
		m.logger.Warn("session log read failed", slog.Any("error", err))
		return ""
	}
	return string(raw)
}

func (m *Manager) removeSessionLog(name string) {
	if err := os.Remove(m.sessionLogFile(name)); err != nil && !os.IsNotExist(err) {
		m.logger.Warn("session log remove failed", slog.String("session", name), slog.Any("error", err))
	}
}
