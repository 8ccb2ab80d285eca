package session

import "github.com/wagatehq/wagate/internal/transport"

// Status is the lifecycle state of one session's connection attempt.
// Terminal states end the connection attempt, not the session name: a fresh
// CreateSession restarts from StatusDisconnected.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusConnecting   Status = "CONNECTING"
	StatusQRPending    Status = "QR_PENDING"
	StatusConnected    Status = "CONNECTED"
	StatusReconnecting Status = "RECONNECTING"
	StatusStopped      Status = "STOPPED"
	StatusBadSession   Status = "BAD_SESSION"
	StatusLoggedOut    Status = "LOGGED_OUT"
)

// reasonPolicy is one row of the disconnect-reason action table. Exactly one
// of reconnect/terminal is set for the known reasons; unknown reasons get
// neither and just terminate the handle.
type reasonPolicy struct {
	// purgeCredentials removes the on-disk auth artifacts. Durable phone
	// identity records are kept.
	purgeCredentials bool
	// logout performs a best-effort transport logout before teardown.
	logout bool
	// reconnect schedules a fresh CreateSession.
	reconnect bool
	// conditionalReconnect only reconnects when the operator has not
	// flagged the session stopped.
	conditionalReconnect bool
	// terminal marks the connection attempt finished; the session needs
	// operator re-pairing.
	terminal bool
	state    Status
	notice   string
}

var disconnectPolicies = map[transport.DisconnectReason]reasonPolicy{
	transport.ReasonBadSession: {
		purgeCredentials: true,
		logout:           true,
		terminal:         true,
		state:            StatusBadSession,
		notice:           "Bad Session File, Please Create QR Again",
	},
	transport.ReasonConnectionReplaced: {
		purgeCredentials: true,
		logout:           true,
		terminal:         true,
		state:            StatusStopped,
		notice:           "Connection Replaced, Another New Session Opened, Please Create QR Again",
	},
	transport.ReasonLoggedOut: {
		purgeCredentials: true,
		logout:           true,
		terminal:         true,
		state:            StatusLoggedOut,
		notice:           "Device Logged Out, Please Create QR Again",
	},
	transport.ReasonConnectionClosed: {
		conditionalReconnect: true,
	},
	transport.ReasonConnectionLost: {
		reconnect: true,
	},
	transport.ReasonRestartRequired: {
		reconnect: true,
	},
	transport.ReasonTimedOut: {
		reconnect: true,
	},
}

// policyFor returns the action row for a disconnect reason. Unknown reasons
// yield the zero policy: terminate the handle and notify with the raw
// reason, no reconnect.
func policyFor(reason transport.DisconnectReason) (reasonPolicy, bool) {
	p, ok := disconnectPolicies[reason]
	return p, ok
}
