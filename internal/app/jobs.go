package app

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/session"
	"go.uber.org/zap"
)

// msgLogRetention bounds the wa_msg_log table; dispatch records older than
// this are swept daily.
const msgLogRetention = 90 * 24 * time.Hour

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@every 30s", func() {
		a.reconcileSessionRecords()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	_, err = a.sched.AddFunc("@daily", func() {
		res := a.gormDB.
			Where("created_at < ?", time.Now().Add(-msgLogRetention)).
			Delete(&domain.WaMsgLog{})
		if res.Error != nil {
			zap.L().Warn("job: message log sweep failed", zap.Error(res.Error))
		} else if res.RowsAffected > 0 {
			zap.L().Info("job: message log sweep", zap.Int64("removed", res.RowsAffected))
		}
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}
}

// reconcileSessionRecords repairs drift between the in-memory registry and
// the wa_session table: live sessions overwrite their row's state, rows
// claiming a live state without a registry entry are marked disconnected.
func (a *Application) reconcileSessionRecords() {
	snaps := a.registry.Snapshots()

	var recs []domain.WaSession
	if err := a.gormDB.Find(&recs).Error; err != nil {
		zap.L().Warn("job: session reconcile query failed", zap.Error(err))
		return
	}
	for _, rec := range recs {
		snap, live := snaps[rec.ID]
		switch {
		case live && rec.State != string(snap.State):
			a.gormDB.Model(&domain.WaSession{}).Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"state":          string(snap.State),
					"phone_identity": snap.PhoneIdentity,
					"last_seen_at":   snap.LastSeenAt,
					"updated_at":     time.Now(),
				})
		case !live && rec.State != string(session.StateDisconnected):
			a.gormDB.Model(&domain.WaSession{}).Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"state":      string(session.StateDisconnected),
					"updated_at": time.Now(),
				})
			zap.L().Debug("job: marked cold session disconnected", zap.String("session_id", rec.ID))
		}
	}
}
