package app

import (
	"time"

	"github.com/talkincode/wagate/internal/domain"
	"github.com/talkincode/wagate/internal/session"
	"gorm.io/gorm"
)

// GormRecordStore mirrors live session state into the wa_session table so
// that list/status queries and the resume path survive restarts.
type GormRecordStore struct {
	db *gorm.DB
}

func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

func (r *GormRecordStore) UpdateState(id string, state session.State, phoneIdentity string, seenAt time.Time) error {
	return r.db.Model(&domain.WaSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"state":          string(state),
			"phone_identity": phoneIdentity,
			"last_seen_at":   seenAt,
			"updated_at":     time.Now(),
		}).Error
}

func (r *GormRecordStore) TouchSeen(id string, seenAt time.Time) error {
	return r.db.Model(&domain.WaSession{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_seen_at": seenAt,
			"updated_at":   time.Now(),
		}).Error
}
