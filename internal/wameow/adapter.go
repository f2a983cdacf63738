// Package wameow implements the session transport boundary on top of the
// whatsmeow protocol library. The gateway core never touches whatsmeow
// types directly: it sees only session.Transport and the opaque credential
// blob, which for this adapter is a small JSON reference to the device row
// whatsmeow keeps in its own sqlstore.
package wameow

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/talkincode/wagate/internal/session"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// deviceRef is the credential blob payload: enough to find the persisted
// whatsmeow device again after a restart.
type deviceRef struct {
	JID string `json:"jid"`
}

// Factory builds whatsmeow-backed transports sharing one sqlstore
// container.
type Factory struct {
	container  *sqlstore.Container
	deviceName string
}

// NewFactory opens (and migrates) the whatsmeow credential container.
// driver is "sqlite3" or "postgres"; dsn points at the protocol store,
// which may share the application database.
func NewFactory(ctx context.Context, driver, dsn, deviceName string) (*Factory, error) {
	container, err := sqlstore.New(ctx, driver, dsn, nil)
	if err != nil {
		return nil, errors.Wrap(err, "wameow: open sqlstore")
	}
	if deviceName == "" {
		deviceName = "wagate"
	}
	return &Factory{container: container, deviceName: deviceName}, nil
}

func (f *Factory) Open(ctx context.Context, sessionID string, creds []byte, opts session.ConnectOpts, ev session.Events) (session.Transport, error) {
	dev := f.lookupDevice(ctx, creds)
	if dev == nil {
		dev = f.container.NewDevice()
		dev.PushName = f.deviceName
	}
	cli := whatsmeow.NewClient(dev, nil)
	// The reconnect policy of the session core owns retries.
	cli.EnableAutoReconnect = false

	t := &transport{
		sessionID: sessionID,
		cli:       cli,
		ev:        ev,
		opts:      opts,
	}
	cli.AddEventHandler(t.handleEvent)
	return t, nil
}

// Drop deletes the persisted whatsmeow device referenced by the blob.
// Called on hard delete of a session; an unknown reference is not an
// error.
func (f *Factory) Drop(ctx context.Context, creds []byte) error {
	var ref deviceRef
	if err := json.Unmarshal(creds, &ref); err != nil || ref.JID == "" {
		return nil
	}
	jid, err := waTypes.ParseJID(ref.JID)
	if err != nil {
		return nil
	}
	dev, err := f.container.GetDevice(ctx, jid)
	if err != nil || dev == nil {
		return nil
	}
	return errors.Wrap(f.container.DeleteDevice(ctx, dev), "wameow: delete device")
}

func (f *Factory) lookupDevice(ctx context.Context, creds []byte) *store.Device {
	if len(creds) == 0 {
		return nil
	}
	var ref deviceRef
	if err := json.Unmarshal(creds, &ref); err != nil || ref.JID == "" {
		zap.L().Warn("wameow: unreadable credential blob, linking fresh")
		return nil
	}
	jid, err := waTypes.ParseJID(ref.JID)
	if err != nil {
		zap.L().Warn("wameow: bad jid in credential blob, linking fresh",
			zap.String("jid", ref.JID), zap.Error(err))
		return nil
	}
	dev, err := f.container.GetDevice(ctx, jid)
	if err != nil || dev == nil {
		zap.L().Warn("wameow: stored device not found, linking fresh",
			zap.String("jid", ref.JID), zap.Error(err))
		return nil
	}
	return dev
}
