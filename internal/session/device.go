package session

import (
	"context"
	"sync"
	"time"

	"github.com/talkincode/wagate/internal/credstore"
	"github.com/talkincode/wagate/internal/eventhub"
	"go.uber.org/zap"
)

// Deps are the collaborators shared by every device session.
type Deps struct {
	Factory     TransportFactory
	Creds       credstore.Store
	Hub         *eventhub.Hub
	Policy      ReconnectPolicy
	Records     RecordStore
	CountryCode string
}

// DeviceSession owns one protocol connection and its state machine:
//
//	disconnected --Connect--> connecting
//	connecting --linking by scan--> qr_required
//	connecting --linking by code--> pairing_required
//	qr_required / pairing_required --handshake done--> connected
//	any live state --drop / Disconnect--> disconnected
//
// All transitions run under the session mutex; transport callbacks from
// superseded connection attempts are discarded by generation check.
type DeviceSession struct {
	id   string
	deps Deps

	mu            sync.Mutex
	gen           int
	state         State
	phoneIdentity string
	qrCode        string
	qrImage       string
	pairingCode   string
	attempts      int
	userClosed    bool
	lastOpts      ConnectOpts
	lastSeen      time.Time
	transport     Transport
	retryTimer    *time.Timer
}

// Snapshot is a point-in-time copy of the session's live state.
type Snapshot struct {
	ID            string    `json:"id"`
	State         State     `json:"state"`
	PhoneIdentity string    `json:"phone_identity,omitempty"`
	QRCode        string    `json:"qr_code,omitempty"`
	QRImage       string    `json:"qr_image,omitempty"`
	PairingCode   string    `json:"pairing_code,omitempty"`
	Attempts      int       `json:"attempts"`
	LastSeenAt    time.Time `json:"last_seen_at"`
}

func NewDeviceSession(id string, deps Deps) *DeviceSession {
	return &DeviceSession{
		id:       id,
		deps:     deps,
		state:    StateDisconnected,
		lastSeen: time.Now(),
	}
}

func (s *DeviceSession) ID() string { return s.id }

func (s *DeviceSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *DeviceSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		State:         s.state,
		PhoneIdentity: s.phoneIdentity,
		QRCode:        s.qrCode,
		QRImage:       s.qrImage,
		PairingCode:   s.pairingCode,
		Attempts:      s.attempts,
		LastSeenAt:    s.lastSeen,
	}
}

// Connect starts a handshake bound to the stored credential blob. It
// returns immediately; progress is reported through the event hub. A
// session already mid-handshake or live rejects with ErrAlreadyConnecting
// or ErrAlreadyConnected.
func (s *DeviceSession) Connect(ctx context.Context, opts ConnectOpts) error {
	s.mu.Lock()
	switch s.state {
	case StateConnecting, StateQRRequired, StatePairingRequired:
		s.mu.Unlock()
		return ErrAlreadyConnecting
	case StateConnected:
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	if opts.Method == "" {
		opts.Method = LinkQR
	}
	s.stopRetryLocked()
	s.userClosed = false
	s.lastOpts = opts
	s.gen++
	gen := s.gen
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	blob, err := s.deps.Creds.Load(ctx, s.id)
	if err != nil {
		zap.L().Warn("session: credential load failed, linking fresh",
			zap.String("session_id", s.id), zap.Error(err))
		blob = nil
	}

	t, err := s.deps.Factory.Open(ctx, s.id, blob, opts, s.events(gen))
	if err != nil {
		s.closeNow(gen, CloseReason{Code: CloseNetwork, Err: err})
		return err
	}

	s.mu.Lock()
	if gen != s.gen || s.state != StateConnecting {
		// disconnected while the transport was being constructed
		s.mu.Unlock()
		t.Disconnect()
		return nil
	}
	s.transport = t
	s.mu.Unlock()

	go func() {
		if err := t.Connect(ctx); err != nil {
			zap.L().Warn("session: transport connect failed",
				zap.String("session_id", s.id), zap.Error(err))
			s.closeNow(gen, CloseReason{Code: CloseNetwork, Err: err})
		}
	}()
	return nil
}

// Disconnect tears down the live transport and cancels any pending retry.
// Credentials are kept: a later Connect may resume without re-linking.
func (s *DeviceSession) Disconnect() {
	s.mu.Lock()
	s.userClosed = true
	s.stopRetryLocked()
	t := s.transport
	gen := s.gen
	s.mu.Unlock()
	if t != nil {
		t.Disconnect()
	}
	s.closeNow(gen, CloseReason{Code: CloseNetwork})
}

// Send dispatches a text message. Valid only while connected; the target
// address is normalized to canonical form before dispatch.
func (s *DeviceSession) Send(ctx context.Context, to string, text string) (string, error) {
	s.mu.Lock()
	if s.state != StateConnected || s.transport == nil {
		s.mu.Unlock()
		return "", ErrNotConnected
	}
	t := s.transport
	s.mu.Unlock()

	addr, err := NormalizeAddress(to, s.deps.CountryCode)
	if err != nil {
		return "", err
	}
	msgID, err := t.Send(ctx, addr, text)
	if err != nil {
		return "", err
	}

	now := time.Now()
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
	if err := s.deps.Records.TouchSeen(s.id, now); err != nil {
		zap.L().Debug("session: seen persist failed", zap.String("session_id", s.id), zap.Error(err))
	}
	return msgID, nil
}

func (s *DeviceSession) events(gen int) Events {
	return Events{
		QR:                 func(code string) { s.onQR(gen, code) },
		PairingCode:        func(code string) { s.onPairingCode(gen, code) },
		CredentialsUpdated: func(blob []byte) { s.onCredentials(gen, blob) },
		Connected:          func(identity string) { s.onConnected(gen, identity) },
		Closed:             func(reason CloseReason) { s.closeNow(gen, reason) },
	}
}

func (s *DeviceSession) onQR(gen int, code string) {
	img := renderQRImage(code)
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateConnecting, StateQRRequired:
	default:
		s.mu.Unlock()
		return
	}
	s.qrCode = code
	s.qrImage = img
	s.pairingCode = ""
	s.setStateLocked(StateQRRequired)
	s.mu.Unlock()

	s.deps.Hub.Publish(eventhub.Event{
		Type:      eventhub.TypeQR,
		SessionID: s.id,
		Code:      code,
		Image:     img,
	})
}

func (s *DeviceSession) onPairingCode(gen int, code string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	switch s.state {
	case StateConnecting, StatePairingRequired:
	default:
		s.mu.Unlock()
		return
	}
	s.pairingCode = code
	s.qrCode = ""
	s.qrImage = ""
	s.setStateLocked(StatePairingRequired)
	s.mu.Unlock()

	s.deps.Hub.Publish(eventhub.Event{
		Type:      eventhub.TypePairingCode,
		SessionID: s.id,
		Code:      code,
	})
}

func (s *DeviceSession) onCredentials(gen int, blob []byte) {
	s.mu.Lock()
	stale := gen != s.gen
	s.mu.Unlock()
	if stale {
		return
	}
	// Best effort: a failed write degrades to re-linking after the next
	// restart, it never aborts the handshake.
	if err := s.deps.Creds.Save(context.Background(), s.id, blob); err != nil {
		zap.L().Warn("session: credential persist failed, keeping in-memory state",
			zap.String("session_id", s.id), zap.Error(err))
	}
}

func (s *DeviceSession) onConnected(gen int, identity string) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.qrCode = ""
	s.qrImage = ""
	s.pairingCode = ""
	s.phoneIdentity = identity
	s.attempts = 0
	s.setStateLocked(StateConnected)
	s.mu.Unlock()
	zap.L().Info("session: connected",
		zap.String("session_id", s.id), zap.String("identity", identity))
}

// closeNow drives the transition to disconnected, clears linking
// artifacts and hands the close reason to the reconnect policy. Idempotent
// per connection attempt.
func (s *DeviceSession) closeNow(gen int, reason CloseReason) {
	s.mu.Lock()
	if gen != s.gen || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.transport = nil
	s.qrCode = ""
	s.qrImage = ""
	s.pairingCode = ""
	s.phoneIdentity = ""
	s.setStateLocked(StateDisconnected)

	if !s.userClosed && s.deps.Policy.ShouldRetry(reason) {
		delay := s.deps.Policy.NextDelay(s.attempts)
		attempt := s.attempts
		s.attempts++
		opts := s.lastOpts
		s.retryTimer = time.AfterFunc(delay, func() {
			if err := s.Connect(context.Background(), opts); err != nil {
				zap.L().Debug("session: scheduled reconnect skipped",
					zap.String("session_id", s.id), zap.Error(err))
			}
		})
		s.mu.Unlock()
		zap.L().Info("session: transport dropped, reconnect scheduled",
			zap.String("session_id", s.id),
			zap.String("reason", reason.Code.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(reason.Err))
		return
	}
	s.attempts = 0
	requested := s.userClosed
	s.mu.Unlock()
	zap.L().Info("session: disconnected",
		zap.String("session_id", s.id),
		zap.String("reason", reason.Code.String()),
		zap.Bool("requested", requested),
		zap.Error(reason.Err))
}

func (s *DeviceSession) setStateLocked(st State) {
	now := time.Now()
	s.lastSeen = now
	if st == s.state {
		return
	}
	s.state = st
	if err := s.deps.Records.UpdateState(s.id, st, s.phoneIdentity, now); err != nil {
		zap.L().Warn("session: state persist failed",
			zap.String("session_id", s.id), zap.String("state", string(st)), zap.Error(err))
	}
	s.deps.Hub.Publish(eventhub.Event{
		Type:          eventhub.TypeStateChanged,
		SessionID:     s.id,
		State:         string(st),
		PhoneIdentity: s.phoneIdentity,
	})
}

func (s *DeviceSession) stopRetryLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

func (s *DeviceSession) liveTransport() Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}
