package adminapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/eventhub"
	"github.com/talkincode/wagate/internal/session"
	"github.com/talkincode/wagate/internal/webserver"
	"github.com/talkincode/wagate/pkg/common"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func registerSessionRoutes() {
	webserver.ApiPOST("/session", createSession)
	webserver.ApiGET("/session", listSessions)
	webserver.ApiGET("/session/:id/status", getSessionStatus)
	webserver.ApiPOST("/session/:id/connect", postSessionConnect)
	webserver.ApiPOST("/session/:id/disconnect", postSessionDisconnect)
	webserver.ApiPOST("/session/:id/send", postSessionSend)
	webserver.ApiGET("/session/:id/qr", getSessionQR)
	webserver.ApiDELETE("/session/:id", deleteSession)
	webserver.ApiGET("/session/:id/events", getSessionEvents)
}

type sessionPayload struct {
	ID          string `json:"id" validate:"omitempty,min=1,max=64"`
	DisplayName string `json:"display_name" validate:"omitempty,max=200"`
	Pool        string `json:"pool" validate:"required"`
}

type connectPayload struct {
	Method string `json:"method" validate:"omitempty,oneof=qr pair"`
	Phone  string `json:"phone" validate:"omitempty,max=32"`
}

type sendPayload struct {
	To   string `json:"to" validate:"required,max=64"`
	Text string `json:"text" validate:"required"`
}

// sessionView is a DB record merged with the live snapshot when one exists.
type sessionView struct {
	domain.WaSession
	QRCode      string `json:"qr_code,omitempty"`
	QRImage     string `json:"qr_image,omitempty"`
	PairingCode string `json:"pairing_code,omitempty"`
	Attempts    int    `json:"attempts"`
	Live        bool   `json:"live"`
}

func mergeView(rec domain.WaSession, snap *session.Snapshot) sessionView {
	v := sessionView{WaSession: rec}
	if snap == nil {
		return v
	}
	v.Live = true
	v.State = string(snap.State)
	v.PhoneIdentity = snap.PhoneIdentity
	v.QRCode = snap.QRCode
	v.QRImage = snap.QRImage
	v.PairingCode = snap.PairingCode
	v.Attempts = snap.Attempts
	v.LastSeenAt = snap.LastSeenAt
	return v
}

func findSession(c echo.Context, id string) (domain.WaSession, error) {
	var rec domain.WaSession
	err := GetDB(c).Where("id = ?", id).First(&rec).Error
	return rec, err
}

func createSession(c echo.Context) error {
	var payload sessionPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse session parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	pool := strings.ToLower(strings.TrimSpace(payload.Pool))
	if !domain.ValidPool(pool) {
		return fail(c, http.StatusBadRequest, "INVALID_POOL", "Unknown session pool", pool)
	}

	id := strings.TrimSpace(payload.ID)
	if id == "" {
		id = common.UUIDstr()
	}

	var exists int64
	GetDB(c).Model(&domain.WaSession{}).Where("id = ?", id).Count(&exists)
	if exists > 0 {
		return fail(c, http.StatusConflict, "SESSION_EXISTS", "Session id already exists", id)
	}

	now := time.Now()
	rec := domain.WaSession{
		ID:          id,
		DisplayName: strings.TrimSpace(payload.DisplayName),
		Pool:        pool,
		State:       string(session.StateDisconnected),
		LastSeenAt:  now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := GetDB(c).Create(&rec).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to create session", err.Error())
	}
	zap.L().Info("adminapi: session created",
		zap.String("session_id", rec.ID), zap.String("pool", rec.Pool))
	return okStatus(c, http.StatusCreated, rec)
}

func listSessions(c echo.Context) error {
	page, pageSize := parsePagination(c)

	db := GetDB(c).Model(&domain.WaSession{})
	if pool := strings.TrimSpace(c.QueryParam("pool")); pool != "" {
		db = db.Where("pool = ?", pool)
	}
	if state := strings.TrimSpace(c.QueryParam("state")); state != "" {
		db = db.Where("state = ?", state)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query sessions", err.Error())
	}

	var recs []domain.WaSession
	if err := db.Order("created_at DESC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&recs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query sessions", err.Error())
	}

	snaps := registry.Snapshots()
	views := make([]sessionView, 0, len(recs))
	for _, rec := range recs {
		if snap, live := snaps[rec.ID]; live {
			views = append(views, mergeView(rec, &snap))
		} else {
			views = append(views, mergeView(rec, nil))
		}
	}
	return paged(c, views, total, page, pageSize)
}

func getSessionStatus(c echo.Context) error {
	id := c.Param("id")
	rec, err := findSession(c, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	if ds, live := registry.Get(id); live {
		snap := ds.Snapshot()
		return ok(c, mergeView(rec, &snap))
	}
	return ok(c, mergeView(rec, nil))
}

// postSessionConnect starts the async handshake. Repeating the call while a
// handshake is in flight or the session is live is harmless and answered
// with the current state.
func postSessionConnect(c echo.Context) error {
	id := c.Param("id")
	if _, err := findSession(c, id); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	var payload connectPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse connect parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	opts := session.ConnectOpts{Method: session.LinkQR}
	if payload.Method == "pair" {
		if strings.TrimSpace(payload.Phone) == "" {
			return fail(c, http.StatusBadRequest, "MISSING_FIELDS", "phone is required for pairing-code linking", nil)
		}
		opts = session.ConnectOpts{Method: session.LinkPair, Phone: strings.TrimSpace(payload.Phone)}
	}

	ds := registry.GetOrCreate(id)
	err := ds.Connect(c.Request().Context(), opts)
	switch {
	case err == nil, errors.Is(err, session.ErrAlreadyConnecting), errors.Is(err, session.ErrAlreadyConnected):
		return okStatus(c, http.StatusAccepted, map[string]interface{}{
			"id":    id,
			"state": ds.State(),
		})
	default:
		return fail(c, http.StatusInternalServerError, "CONNECT_FAILED", "Failed to start connection", err.Error())
	}
}

func postSessionDisconnect(c echo.Context) error {
	id := c.Param("id")
	if _, err := findSession(c, id); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	if ds, live := registry.Get(id); live {
		ds.Disconnect()
	}
	return ok(c, map[string]interface{}{"id": id, "state": session.StateDisconnected})
}

func postSessionSend(c echo.Context) error {
	id := c.Param("id")
	if _, err := findSession(c, id); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	var payload sendPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse send parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	ds, live := registry.Get(id)
	if !live {
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "Session is not connected", nil)
	}
	msgID, err := ds.Send(c.Request().Context(), payload.To, payload.Text)
	if errors.Is(err, session.ErrNotConnected) {
		return fail(c, http.StatusConflict, "NOT_CONNECTED", "Session is not connected", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "SEND_FAILED", "Failed to send message", err.Error())
	}

	logEntry := domain.WaMsgLog{
		ID:        common.UUIDint64(),
		SessionID: id,
		Target:    payload.To,
		MessageID: msgID,
		CreatedAt: time.Now(),
	}
	if err := GetDB(c).Create(&logEntry).Error; err != nil {
		zap.L().Warn("adminapi: message log write failed",
			zap.String("session_id", id), zap.Error(err))
	}
	return ok(c, map[string]interface{}{"message_id": msgID})
}

// getSessionQR serves the current linking artifact: QR payload with a
// rendered data-URI image, or the pairing code when the session linked by
// phone number.
func getSessionQR(c echo.Context) error {
	id := c.Param("id")
	if _, err := findSession(c, id); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	ds, live := registry.Get(id)
	if !live {
		return ok(c, map[string]interface{}{"has_qr": false})
	}
	snap := ds.Snapshot()
	return ok(c, map[string]interface{}{
		"has_qr":       snap.QRCode != "",
		"code":         snap.QRCode,
		"image":        snap.QRImage,
		"pairing_code": snap.PairingCode,
		"state":        snap.State,
	})
}

// deleteSession is the hard-delete path: logout, credential purge, record
// removal. There is no soft variant.
func deleteSession(c echo.Context) error {
	id := c.Param("id")
	if _, err := findSession(c, id); errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	if err := registry.Purge(c.Request().Context(), id); err != nil {
		zap.L().Warn("adminapi: credential purge failed",
			zap.String("session_id", id), zap.Error(err))
	}
	db := GetDB(c)
	if err := db.Where("session_id = ?", id).Delete(&domain.WaMsgLog{}).Error; err != nil {
		zap.L().Warn("adminapi: message log delete failed",
			zap.String("session_id", id), zap.Error(err))
	}
	if err := db.Where("id = ?", id).Delete(&domain.WaSession{}).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to delete session", err.Error())
	}
	zap.L().Info("adminapi: session deleted", zap.String("session_id", id))
	return ok(c, map[string]interface{}{"id": id})
}

// getSessionEvents streams session lifecycle events as server-sent events.
// The stream opens with a state_changed snapshot so late subscribers see
// the current state without waiting for the next transition.
func getSessionEvents(c echo.Context) error {
	id := c.Param("id")
	rec, err := findSession(c, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found", nil)
	} else if err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to query session", err.Error())
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set(echo.HeaderConnection, "keep-alive")
	resp.WriteHeader(http.StatusOK)

	ch, cancel := hub.Subscribe(id)
	defer cancel()

	initial := eventhub.Event{
		Type:      eventhub.TypeStateChanged,
		SessionID: id,
		State:     rec.State,
		At:        time.Now(),
	}
	if ds, live := registry.Get(id); live {
		snap := ds.Snapshot()
		initial.State = string(snap.State)
		initial.PhoneIdentity = snap.PhoneIdentity
	}
	if err := writeSSE(resp, initial); err != nil {
		return nil
	}

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()
	done := c.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case evt, open := <-ch:
			if !open {
				return nil
			}
			if err := writeSSE(resp, evt); err != nil {
				return nil
			}
		case <-ping.C:
			if _, err := fmt.Fprint(resp, ": ping\n\n"); err != nil {
				return nil
			}
			resp.Flush()
		}
	}
}

func writeSSE(resp *echo.Response, evt eventhub.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
