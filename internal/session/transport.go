package session

import (
	"context"
	"time"
)

// Events are the callbacks a Transport fires as the handshake progresses.
// All callbacks may be invoked from arbitrary goroutines; the device
// session serializes them internally.
type Events struct {
	// QR delivers a fresh QR payload. Each payload invalidates the
	// previous one for the same attempt.
	QR func(code string)
	// PairingCode delivers the numeric linking code (LinkPair attempts).
	PairingCode func(code string)
	// CredentialsUpdated fires whenever the protocol layer rotates or
	// extends its stored material. Applied last-write-wins.
	CredentialsUpdated func(blob []byte)
	// Connected fires once the handshake completes; identity is the
	// canonical phone identity of the linked device.
	Connected func(identity string)
	// Closed fires when the transport goes down for any reason, including
	// a locally requested disconnect.
	Closed func(reason CloseReason)
}

// Transport is one live protocol connection. Implementations wrap the
// actual WhatsApp protocol client; tests substitute fakes.
type Transport interface {
	// Connect starts the handshake and returns once it is underway. All
	// further progress is reported through Events.
	Connect(ctx context.Context) error
	// Disconnect tears the connection down. Safe in any state, including
	// mid-handshake.
	Disconnect()
	// Send dispatches a text message to a canonical address and returns
	// the provider-assigned message id.
	Send(ctx context.Context, to string, text string) (string, error)
	// Logout unlinks the device server-side. Used only on hard delete.
	Logout(ctx context.Context) error
}

// TransportFactory constructs transports bound to stored credentials.
type TransportFactory interface {
	Open(ctx context.Context, sessionID string, creds []byte, opts ConnectOpts, ev Events) (Transport, error)
	// Drop removes any protocol-side persisted device matching the blob.
	// Called on hard delete; a missing device is not an error.
	Drop(ctx context.Context, creds []byte) error
}

// RecordStore persists session state transitions. Writes are best-effort:
// a failure is logged by the caller and never interrupts the lifecycle.
type RecordStore interface {
	UpdateState(sessionID string, state State, phoneIdentity string, seenAt time.Time) error
	TouchSeen(sessionID string, seenAt time.Time) error
}

// NopRecordStore discards state updates. Used by tests.
type NopRecordStore struct{}

func (NopRecordStore) UpdateState(string, State, string, time.Time) error { return nil }
func (NopRecordStore) TouchSeen(string, time.Time) error                 { return nil }
