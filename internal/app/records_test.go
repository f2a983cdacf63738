package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/credstore"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/eventhub"
	"github.com/talkincode/wagate/internal/session"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type idleTransport struct{}

func (idleTransport) Connect(ctx context.Context) error { return nil }
func (idleTransport) Disconnect()                       {}
func (idleTransport) Logout(ctx context.Context) error  { return nil }
func (idleTransport) Send(ctx context.Context, to, text string) (string, error) {
	return "", session.ErrNotConnected
}

type idleFactory struct {
	events session.Events
}

func (f *idleFactory) Open(ctx context.Context, sessionID string, creds []byte, opts session.ConnectOpts, ev session.Events) (session.Transport, error) {
	f.events = ev
	return idleTransport{}, nil
}

func (f *idleFactory) Drop(ctx context.Context, creds []byte) error { return nil }

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "wagate.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrator().AutoMigrate(domain.Tables...))
	return db
}

func seedSession(t *testing.T, db *gorm.DB, id, state string) {
	t.Helper()
	now := time.Now()
	require.NoError(t, db.Create(&domain.WaSession{
		ID:         id,
		Pool:       domain.PoolCRM,
		State:      state,
		LastSeenAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
}

func TestGormRecordStoreUpdateState(t *testing.T) {
	db := testDB(t)
	seedSession(t, db, "s1", "disconnected")
	store := NewGormRecordStore(db)

	seen := time.Now()
	require.NoError(t, store.UpdateState("s1", session.StateConnected, "628111@s.whatsapp.net", seen))

	var rec domain.WaSession
	require.NoError(t, db.Where("id = ?", "s1").First(&rec).Error)
	assert.Equal(t, "connected", rec.State)
	assert.Equal(t, "628111@s.whatsapp.net", rec.PhoneIdentity)
	assert.WithinDuration(t, seen, rec.LastSeenAt, time.Second)
}

func TestGormRecordStoreTouchSeen(t *testing.T) {
	db := testDB(t)
	seedSession(t, db, "s1", "connected")
	store := NewGormRecordStore(db)

	seen := time.Now().Add(time.Minute)
	require.NoError(t, store.TouchSeen("s1", seen))

	var rec domain.WaSession
	require.NoError(t, db.Where("id = ?", "s1").First(&rec).Error)
	assert.WithinDuration(t, seen, rec.LastSeenAt, time.Second)
	assert.Equal(t, "connected", rec.State)
}

func TestReconcileSessionRecords(t *testing.T) {
	db := testDB(t)
	seedSession(t, db, "live", "disconnected")
	seedSession(t, db, "cold", "connected")

	factory := &idleFactory{}
	reg := session.NewRegistry(session.Deps{
		Factory: factory,
		Creds:   credstore.NewMemoryStore(),
		Hub:     eventhub.New(),
		Policy:  session.NewBackoffPolicy(time.Hour, time.Hour),
	})
	require.NoError(t, reg.GetOrCreate("live").Connect(context.Background(), session.ConnectOpts{}))
	factory.events.Connected("628999@s.whatsapp.net")

	a := &Application{
		appConfig: config.LoadConfig(""),
		gormDB:    db,
		registry:  reg,
	}
	a.reconcileSessionRecords()

	var rec domain.WaSession
	require.NoError(t, db.Where("id = ?", "live").First(&rec).Error)
	assert.Equal(t, "connected", rec.State)
	assert.Equal(t, "628999@s.whatsapp.net", rec.PhoneIdentity)

	rec = domain.WaSession{}
	require.NoError(t, db.Where("id = ?", "cold").First(&rec).Error)
	assert.Equal(t, "disconnected", rec.State)
}
