package adminapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/wagate/config"
	"github.com/talkincode/wagate/internal/credstore"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/eventhub"
	"github.com/talkincode/wagate/internal/session"
	"github.com/talkincode/wagate/internal/webserver"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubTransport struct {
	ev session.Events

	mu   sync.Mutex
	sent []string
}

func (t *stubTransport) Connect(ctx context.Context) error { return nil }
func (t *stubTransport) Disconnect()                       {}
func (t *stubTransport) Logout(ctx context.Context) error  { return nil }

func (t *stubTransport) Send(ctx context.Context, to, text string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, to)
	return "3EB0AABB1122", nil
}

type stubFactory struct {
	mu         sync.Mutex
	transports []*stubTransport
	drops      int
}

func (f *stubFactory) Open(ctx context.Context, sessionID string, creds []byte, opts session.ConnectOpts, ev session.Events) (session.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &stubTransport{ev: ev}
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *stubFactory) Drop(ctx context.Context, creds []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops++
	return nil
}

func (f *stubFactory) last() *stubTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[len(f.transports)-1]
}

type apiEnv struct {
	e       *echo.Echo
	db      *gorm.DB
	factory *stubFactory
}

func setupAPI(t *testing.T, secret string) *apiEnv {
	t.Helper()

	cfg := config.LoadConfig("")
	cfg.Web.Secret = secret

	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "wagate.db")),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)},
	)
	require.NoError(t, err)
	require.NoError(t, db.Migrator().AutoMigrate(domain.Tables...))

	factory := &stubFactory{}
	h := eventhub.New()
	reg := session.NewRegistry(session.Deps{
		Factory:     factory,
		Creds:       credstore.NewMemoryStore(),
		Hub:         h,
		Policy:      session.NewBackoffPolicy(0, 0),
		CountryCode: "62",
	})

	ws := webserver.Init(cfg, db)
	Init(cfg, reg, h)
	t.Cleanup(reg.Shutdown)

	return &apiEnv{e: ws.Echo(), db: db, factory: factory}
}

func (env *apiEnv) request(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) createSession(t *testing.T, id, pool string) {
	t.Helper()
	rec := env.request(http.MethodPost, "/api/session",
		`{"id":"`+id+`","pool":"`+pool+`","display_name":"test"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestCreateSession(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")

	var rec domain.WaSession
	require.NoError(t, env.db.Where("id = ?", "crm-1").First(&rec).Error)
	assert.Equal(t, "crm", rec.Pool)
	assert.Equal(t, "disconnected", rec.State)
}

func TestCreateSessionGeneratesID(t *testing.T) {
	env := setupAPI(t, "")
	rec := env.request(http.MethodPost, "/api/session", `{"pool":"bulk"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var count int64
	env.db.Model(&domain.WaSession{}).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestCreateSessionRejectsDuplicate(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")
	rec := env.request(http.MethodPost, "/api/session", `{"id":"crm-1","pool":"crm"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSessionRejectsUnknownPool(t *testing.T) {
	env := setupAPI(t, "")
	rec := env.request(http.MethodPost, "/api/session", `{"id":"x","pool":"marketing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionStatusNotFound(t *testing.T) {
	env := setupAPI(t, "")
	rec := env.request(http.MethodGet, "/api/session/ghost/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESSION_NOT_FOUND")
}

func TestConnectFlow(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")

	rec := env.request(http.MethodPost, "/api/session/crm-1/connect", `{"method":"qr"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	// repeating the call while the handshake is in flight stays idempotent
	rec = env.request(http.MethodPost, "/api/session/crm-1/connect", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	env.factory.last().ev.QR("qr-blob")
	rec = env.request(http.MethodGet, "/api/session/crm-1/qr", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_qr":true`)
	assert.Contains(t, rec.Body.String(), "qr-blob")

	env.factory.last().ev.Connected("628111@s.whatsapp.net")
	rec = env.request(http.MethodGet, "/api/session/crm-1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"connected"`)
	assert.Contains(t, rec.Body.String(), "628111@s.whatsapp.net")
}

func TestConnectPairRequiresPhone(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")
	rec := env.request(http.MethodPost, "/api/session/crm-1/connect", `{"method":"pair"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendNotConnected(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")

	rec := env.request(http.MethodPost, "/api/session/crm-1/send", `{"to":"0812345","text":"hi"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_CONNECTED")
}

func TestSendConnected(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")
	require.Equal(t, http.StatusAccepted,
		env.request(http.MethodPost, "/api/session/crm-1/connect", "").Code)
	env.factory.last().ev.Connected("628111@s.whatsapp.net")

	rec := env.request(http.MethodPost, "/api/session/crm-1/send", `{"to":"0812345","text":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "3EB0AABB1122")

	var entry domain.WaMsgLog
	require.NoError(t, env.db.Where("session_id = ?", "crm-1").First(&entry).Error)
	assert.Equal(t, "3EB0AABB1122", entry.MessageID)
	assert.Equal(t, "0812345", entry.Target)
}

func TestDisconnect(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")
	require.Equal(t, http.StatusAccepted,
		env.request(http.MethodPost, "/api/session/crm-1/connect", "").Code)
	env.factory.last().ev.Connected("628111@s.whatsapp.net")

	rec := env.request(http.MethodPost, "/api/session/crm-1/disconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.request(http.MethodPost, "/api/session/crm-1/send", `{"to":"0812345","text":"hi"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDeleteSessionHard(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")
	require.Equal(t, http.StatusAccepted,
		env.request(http.MethodPost, "/api/session/crm-1/connect", "").Code)
	env.factory.last().ev.Connected("628111@s.whatsapp.net")
	env.factory.last().ev.CredentialsUpdated([]byte(`{"jid":"628111:1@s.whatsapp.net"}`))

	rec := env.request(http.MethodDelete, "/api/session/crm-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, env.factory.drops)

	rec = env.request(http.MethodGet, "/api/session/crm-1/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	env := setupAPI(t, "")
	env.createSession(t, "crm-1", "crm")
	env.createSession(t, "bulk-1", "bulk")

	rec := env.request(http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "crm-1")
	assert.Contains(t, rec.Body.String(), "bulk-1")
	assert.Contains(t, rec.Body.String(), `"total":2`)

	rec = env.request(http.MethodGet, "/api/session?pool=bulk", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "crm-1")
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestBearerAuth(t *testing.T) {
	env := setupAPI(t, "sekrit")

	// missing key is a malformed request, a wrong key is unauthorized
	rec := env.request(http.MethodGet, "/api/session", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer wrong")
	res := httptest.NewRecorder()
	env.e.ServeHTTP(res, req)
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer sekrit")
	res = httptest.NewRecorder()
	env.e.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)

	// the query fallback used by EventSource clients
	rec = env.request(http.MethodGet, "/api/session?token=sekrit", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
