package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Registry multiplexes device sessions in one process and enforces the
// single-live-instance invariant: at most one DeviceSession per session id
// between GetOrCreate and Remove.
type Registry struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*DeviceSession
}

func NewRegistry(deps Deps) *Registry {
	if deps.Records == nil {
		deps.Records = NopRecordStore{}
	}
	if deps.Policy == nil {
		deps.Policy = NewBackoffPolicy(0, 0)
	}
	return &Registry{
		deps:     deps,
		sessions: make(map[string]*DeviceSession),
	}
}

// GetOrCreate returns the live instance for the id, constructing a
// disconnected one on first use. Callers are responsible for checking
// that a persistent session record exists.
func (r *Registry) GetOrCreate(id string) *DeviceSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ds, ok := r.sessions[id]; ok {
		return ds
	}
	ds := NewDeviceSession(id, r.deps)
	r.sessions[id] = ds
	return ds
}

func (r *Registry) Get(id string) (*DeviceSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ds, ok := r.sessions[id]
	return ds, ok
}

// Remove disconnects the live instance (if any) and drops the in-memory
// entry. Credentials are not purged; the session record stays cold.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	ds, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		ds.Disconnect()
	}
}

// Purge is the hard-delete path: logout the linked device (best effort),
// remove the live instance and irreversibly delete stored credentials.
func (r *Registry) Purge(ctx context.Context, id string) error {
	r.mu.Lock()
	ds, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		if t := ds.liveTransport(); t != nil {
			if err := t.Logout(ctx); err != nil {
				zap.L().Warn("registry: logout during purge failed",
					zap.String("session_id", id), zap.Error(err))
			}
		}
		ds.Disconnect()
	}

	blob, err := r.deps.Creds.Load(ctx, id)
	if err != nil {
		zap.L().Warn("registry: credential load during purge failed",
			zap.String("session_id", id), zap.Error(err))
	} else if len(blob) > 0 {
		if err := r.deps.Factory.Drop(ctx, blob); err != nil {
			zap.L().Warn("registry: protocol device drop failed",
				zap.String("session_id", id), zap.Error(err))
		}
	}
	return r.deps.Creds.Purge(ctx, id)
}

// Snapshots returns a copy of every live session's state, keyed by id.
func (r *Registry) Snapshots() map[string]Snapshot {
	r.mu.Lock()
	list := make([]*DeviceSession, 0, len(r.sessions))
	for _, ds := range r.sessions {
		list = append(list, ds)
	}
	r.mu.Unlock()

	out := make(map[string]Snapshot, len(list))
	for _, ds := range list {
		out[ds.ID()] = ds.Snapshot()
	}
	return out
}

// Shutdown disconnects every live session. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	list := make([]*DeviceSession, 0, len(r.sessions))
	for _, ds := range r.sessions {
		list = append(list, ds)
	}
	r.sessions = make(map[string]*DeviceSession)
	r.mu.Unlock()
	for _, ds := range list {
		ds.Disconnect()
	}
}
