// Package eventhub fans connection-state and linking events out to
// subscribed dashboard clients. Delivery is best-effort: the hub is a live
// update channel, not a durable log, and clients are expected to re-query
// current state whenever they (re)connect.
package eventhub

import (
	"fmt"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

type Type string

const (
	TypeQR           Type = "qr"
	TypePairingCode  Type = "pairing_code"
	TypeStateChanged Type = "state_changed"
)

type Event struct {
	Type          Type      `json:"type"`
	SessionID     string    `json:"session_id"`
	State         string    `json:"state,omitempty"`
	PhoneIdentity string    `json:"phone_identity,omitempty"`
	Code          string    `json:"code,omitempty"`
	Image         string    `json:"image,omitempty"`
	At            time.Time `json:"at"`
}

const subscriberBuffer = 16

// Hub is the process-wide event broadcaster. Every subscriber gets its own
// bus topic so that unsubscribing one dashboard tab never detaches another
// (EventBus matches handlers by function pointer, which collides for
// closures created at the same call site).
type Hub struct {
	bus    evbus.Bus
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]struct{}
}

func New() *Hub {
	return &Hub{
		bus:  evbus.New(),
		subs: make(map[string]map[uint64]struct{}),
	}
}

func subTopic(sessionID string, id uint64) string {
	return fmt.Sprintf("session.%s.%d", sessionID, id)
}

// Publish delivers the event to every current subscriber of the session.
// Subscribers whose buffers are full miss the event; there is no backlog.
func (h *Hub) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	h.mu.Lock()
	ids := make([]uint64, 0, len(h.subs[evt.SessionID]))
	for id := range h.subs[evt.SessionID] {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.bus.Publish(subTopic(evt.SessionID, id), evt)
	}
}

// Subscribe returns a channel of events for one session and a cancel
// function. The channel is closed after cancel; cancel is idempotent.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	var chMu sync.Mutex
	closed := false
	handler := func(evt Event) {
		chMu.Lock()
		defer chMu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- evt:
		default:
			// slow subscriber, drop
		}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[uint64]struct{})
	}
	h.subs[sessionID][id] = struct{}{}
	h.mu.Unlock()
	_ = h.bus.Subscribe(subTopic(sessionID, id), handler)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[sessionID], id)
			if len(h.subs[sessionID]) == 0 {
				delete(h.subs, sessionID)
			}
			h.mu.Unlock()
			_ = h.bus.Unsubscribe(subTopic(sessionID, id), handler)
			chMu.Lock()
			closed = true
			chMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// SubscriberCount reports the number of live subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
