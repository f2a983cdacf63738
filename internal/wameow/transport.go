package wameow

import (
	"context"
	"sync"

	"github.com/talkincode/wagate/internal/session"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

type transport struct {
	sessionID string
	cli       *whatsmeow.Client
	ev        session.Events
	opts      session.ConnectOpts

	mu       sync.Mutex
	qrCancel context.CancelFunc
}

func (t *transport) Connect(ctx context.Context) error {
	if t.cli.Store.ID == nil {
		// Unlinked device: take the QR channel before dialing, whatsmeow
		// rejects it afterwards.
		qrCtx, cancel := context.WithCancel(context.Background())
		t.mu.Lock()
		t.qrCancel = cancel
		t.mu.Unlock()
		qrChan, err := t.cli.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			if err != whatsmeow.ErrQRStoreContainsID {
				return err
			}
		} else {
			go t.watchQR(qrChan)
		}
	}
	if err := t.cli.Connect(); err != nil {
		return err
	}
	if t.opts.Method == session.LinkPair && t.opts.Phone != "" && t.cli.Store.ID == nil {
		go t.requestPairingCode(ctx)
	}
	return nil
}

func (t *transport) watchQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case "code":
			// Pairing-code attempts suppress QR payloads so only one
			// linking method is ever presented per attempt.
			if t.opts.Method != session.LinkPair && t.ev.QR != nil {
				t.ev.QR(item.Code)
			}
		case whatsmeow.QRChannelSuccess.Event:
			return
		default:
			// timeout or error; the client tears itself down and the
			// Disconnected event drives the close path
			zap.L().Debug("wameow: qr channel ended",
				zap.String("session_id", t.sessionID), zap.String("event", item.Event))
			return
		}
	}
}

func (t *transport) requestPairingCode(ctx context.Context) {
	code, err := t.cli.PairPhone(ctx, t.opts.Phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
	if err != nil {
		zap.L().Warn("wameow: pairing code request failed",
			zap.String("session_id", t.sessionID), zap.Error(err))
		return
	}
	if t.ev.PairingCode != nil {
		t.ev.PairingCode(code)
	}
}

func (t *transport) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.PairSuccess:
		t.saveRef(e.ID)
	case *events.Connected:
		identity := ""
		if t.cli.Store.ID != nil {
			identity = t.cli.Store.ID.String()
			t.saveRef(*t.cli.Store.ID)
		}
		if t.ev.Connected != nil {
			t.ev.Connected(identity)
		}
	case *events.LoggedOut:
		if t.ev.Closed != nil {
			t.ev.Closed(session.CloseReason{Code: session.CloseLoggedOut})
		}
	case *events.StreamReplaced:
		if t.ev.Closed != nil {
			t.ev.Closed(session.CloseReason{Code: session.CloseReplaced})
		}
	case *events.Disconnected:
		if t.ev.Closed != nil {
			t.ev.Closed(session.CloseReason{Code: session.CloseNetwork})
		}
	}
}

func (t *transport) saveRef(jid waTypes.JID) {
	if t.ev.CredentialsUpdated == nil {
		return
	}
	blob, err := json.Marshal(deviceRef{JID: jid.String()})
	if err != nil {
		zap.L().Warn("wameow: encode credential ref failed",
			zap.String("session_id", t.sessionID), zap.Error(err))
		return
	}
	t.ev.CredentialsUpdated(blob)
}

func (t *transport) Disconnect() {
	t.mu.Lock()
	if t.qrCancel != nil {
		t.qrCancel()
		t.qrCancel = nil
	}
	t.mu.Unlock()
	t.cli.Disconnect()
}

func (t *transport) Send(ctx context.Context, to string, text string) (string, error) {
	jid, err := waTypes.ParseJID(to)
	if err != nil {
		return "", err
	}
	resp, err := t.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", err
	}
	return string(resp.ID), nil
}

func (t *transport) Logout(ctx context.Context) error {
	return t.cli.Logout(ctx)
}
