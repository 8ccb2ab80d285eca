package session

// Notifier receives lifecycle events for the dashboard/observer layer.
// Implementations must be non-blocking and may drop events; the manager
// never depends on delivery.
type Notifier interface {
	// SessionStatus reports a durable state change (CONNECTED, STOPPED).
	SessionStatus(sessionName string, status Status)
	// ConnectionStatus reports a free-text connection outcome.
	ConnectionStatus(sessionName, result string)
	// QRCode delivers a fresh pairing challenge to render.
	QRCode(sessionName string, image []byte)
	// Log delivers the session log excerpt after a successful pairing.
	Log(sessionName, excerpt, phoneNumber string, status Status)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) SessionStatus(string, Status)       {}
func (NopNotifier) ConnectionStatus(string, string)    {}
func (NopNotifier) QRCode(string, []byte)              {}
func (NopNotifier) Log(string, string, string, Status) {}
