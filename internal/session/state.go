// Package session implements the WhatsApp session lifecycle core: the
// per-device connection state machine, the registry that multiplexes many
// concurrent device sessions in one process, and the reconnect policy that
// decides what happens after a transport drop.
package session

import "errors"

// State of one device session. Mutated only by DeviceSession transition
// handlers; disconnected is always re-enterable via Connect.
type State string

const (
	StateDisconnected    State = "disconnected"
	StateConnecting      State = "connecting"
	StateQRRequired      State = "qr_required"
	StatePairingRequired State = "pairing_required"
	StateConnected       State = "connected"
)

// LinkMethod selects how an unlinked session is paired during a connect
// attempt. QR scan and numeric pairing code are mutually exclusive per
// attempt.
type LinkMethod string

const (
	LinkQR   LinkMethod = "qr"
	LinkPair LinkMethod = "pair"
)

// ConnectOpts carries per-attempt linking parameters. Phone is required
// for LinkPair and ignored otherwise.
type ConnectOpts struct {
	Method LinkMethod
	Phone  string
}

// CloseCode classifies a transport closure for the reconnect policy.
type CloseCode int

const (
	// CloseNetwork is any transport-level drop that is not a deliberate
	// unlink: socket errors, server restarts, stream timeouts.
	CloseNetwork CloseCode = iota
	// CloseLoggedOut means the user unlinked the device from the phone.
	// Stored credentials are no longer valid; retrying is pointless.
	CloseLoggedOut
	// CloseReplaced means another client took over the session stream.
	CloseReplaced
)

func (c CloseCode) String() string {
	switch c {
	case CloseLoggedOut:
		return "logged_out"
	case CloseReplaced:
		return "replaced"
	default:
		return "network"
	}
}

// CloseReason describes why the transport went down.
type CloseReason struct {
	Code CloseCode
	Err  error
}

var (
	ErrNotConnected      = errors.New("session not connected")
	ErrAlreadyConnecting = errors.New("session already connecting")
	ErrAlreadyConnected  = errors.New("session already connected")
)
