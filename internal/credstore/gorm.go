package credstore

import (
	"context"
	"errors"
	"time"

	"github.com/talkincode/wagate/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps credential blobs in the wa_credential table, sharing the
// application database connection. Selected with credential.backend=database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	var rec domain.WaCredential
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Blob, nil
}

func (s *GormStore) Save(ctx context.Context, sessionID string, blob []byte) error {
	rec := domain.WaCredential{
		SessionID: sessionID,
		Blob:      blob,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"blob", "updated_at"}),
		}).
		Create(&rec).Error
}

func (s *GormStore) Purge(ctx context.Context, sessionID string) error {
	return s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&domain.WaCredential{}).Error
}
