package db

import (
	"context"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"gorm.io/gorm"
)

// SessionStore is the gorm-backed video session store.
type SessionStore struct {
	db *gorm.DB
}

func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, v *models.VideoSession) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return apperrors.Internal("creating video session", err)
	}
	return nil
}

func (s *SessionStore) ByID(ctx context.Context, id uint) (*models.VideoSession, error) {
	var v models.VideoSession
	if err := s.db.WithContext(ctx).First(&v, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("session")
		}
		return nil, apperrors.Internal("retrieving video session", err)
	}
	return &v, nil
}

func (s *SessionStore) ByMeetingID(ctx context.Context, meetingID string) (*models.VideoSession, error) {
	var v models.VideoSession
	err := s.db.WithContext(ctx).Where("meeting_id = ?", meetingID).First(&v).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("session")
		}
		return nil, apperrors.Internal("retrieving video session", err)
	}
	return &v, nil
}

func (s *SessionStore) Save(ctx context.Context, v *models.VideoSession) error {
	if err := s.db.WithContext(ctx).Save(v).Error; err != nil {
		return apperrors.Internal("saving video session", err)
	}
	return nil
}

func (s *SessionStore) CountActiveByCreator(ctx context.Context, creatorID uint, now time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.VideoSession{}).
		Where("creator_id = ? AND status = ? AND expires_at > ?",
			creatorID, models.SessionActive, now).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Internal("counting active sessions", err)
	}
	return count, nil
}

func (s *SessionStore) ListByCreator(ctx context.Context, creatorID uint) ([]models.VideoSession, error) {
	var sessions []models.VideoSession
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, apperrors.Internal("retrieving video sessions", err)
	}
	return sessions, nil
}

func (s *SessionStore) ListWithRecordings(ctx context.Context, creatorID *uint) ([]models.VideoSession, error) {
	query := s.db.WithContext(ctx).Where("recording_url <> ''")
	if creatorID != nil {
		query = query.Where("creator_id = ?", *creatorID)
	}

	var sessions []models.VideoSession
	if err := query.Order("created_at DESC").Find(&sessions).Error; err != nil {
		return nil, apperrors.Internal("retrieving recordings", err)
	}
	return sessions, nil
}
