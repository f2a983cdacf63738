// Package credstore persists per-session protocol credential blobs.
//
// Blobs are opaque to the gateway: the protocol adapter writes whatever it
// needs to resume a device link without re-pairing. A missing blob is a
// normal state (new session, or a session purged on another node), so Load
// never treats it as an error.
package credstore

import "context"

type Store interface {
	// Load returns the stored blob for the session, or (nil, nil) when no
	// credentials exist yet.
	Load(ctx context.Context, sessionID string) ([]byte, error)
	// Save overwrites the blob for the session. Last write wins; it is
	// called from asynchronous protocol callbacks during the handshake.
	Save(ctx context.Context, sessionID string, blob []byte) error
	// Purge irreversibly deletes the stored material. Used only for hard
	// delete of a session, never for an ordinary disconnect.
	Purge(ctx context.Context, sessionID string) error
}
