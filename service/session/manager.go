package session

import (
	"context"
	"fmt"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/devmentor/devmentor-server/videosdk"
	"go.uber.org/zap"
)

// Store is session persistence. Implementations return NotFound-coded
// errors for missing rows.
type Store interface {
	Create(ctx context.Context, s *models.VideoSession) error
	ByID(ctx context.Context, id uint) (*models.VideoSession, error)
	ByMeetingID(ctx context.Context, meetingID string) (*models.VideoSession, error)
	Save(ctx context.Context, s *models.VideoSession) error
	CountActiveByCreator(ctx context.Context, creatorID uint, now time.Time) (int64, error)
	ListByCreator(ctx context.Context, creatorID uint) ([]models.VideoSession, error)
	ListWithRecordings(ctx context.Context, creatorID *uint) ([]models.VideoSession, error)
}

// Provider is the video backend behind sessions.
type Provider interface {
	CreateMeeting(ctx context.Context, description string, durationMinutes int) (*videosdk.Meeting, error)
	GenerateToken(permissions []string, durationHours int) (string, error)
	StartRecording(ctx context.Context, meetingID string) (string, error)
	StopRecording(ctx context.Context, meetingID string) error
	EndMeeting(ctx context.Context, meetingID string) error
}

// Pusher delivers best-effort push notifications.
type Pusher interface {
	PushToUser(userID uint, title, body string, data map[string]interface{})
}

// Manager owns the video session lifecycle: creation, lazy expiry,
// explicit ending, and the recording sub-state driven by provider
// webhooks.
type Manager struct {
	store    Store
	provider Provider
	pusher   Pusher
	logger   *zap.Logger
	now      func() time.Time
}

func NewManager(store Store, provider Provider, logger *zap.Logger) *Manager {
	return &Manager{store: store, provider: provider, logger: logger, now: time.Now}
}

// WithPusher enables push notifications for recording completion.
func (m *Manager) WithPusher(p Pusher) *Manager {
	m.pusher = p
	return m
}

// CreateSession provisions a provider room and stores the session. The
// join link always lives for the fixed TTL; the creator's tier only
// bounds how long the call itself may run. Premium creators are limited
// to one active session at a time.
func (m *Manager) CreateSession(ctx context.Context, creator *models.User, bookingID *uint, description string) (*models.VideoSession, error) {
	maxDuration := models.MaxDurationFreeMinutes
	if creator.IsPremium() {
		maxDuration = models.MaxDurationPremiumMinutes

		active, err := m.store.CountActiveByCreator(ctx, creator.ID, m.now())
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, apperrors.Conflict("you already have an active session; end it before starting another")
		}
	}

	if description == "" {
		description = fmt.Sprintf("Session by %s", creator.FullName())
	}
	meeting, err := m.provider.CreateMeeting(ctx, description, maxDuration)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &models.VideoSession{
		CreatorID:          creator.ID,
		BookingID:          bookingID,
		MeetingID:          meeting.MeetingID,
		SessionURL:         meeting.JoinURL,
		MeetingToken:       meeting.Token,
		ExpiresAt:          now.Add(models.SessionLinkTTL),
		MaxDurationMinutes: maxDuration,
		Status:             models.SessionActive,
		RecordingStatus:    models.RecordingNone,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}

	m.logger.Info("video session created",
		zap.Uint("session_id", s.ID),
		zap.Uint("creator_id", creator.ID),
		zap.String("meeting_id", s.MeetingID),
		zap.Int("max_duration_minutes", maxDuration))
	return s, nil
}

// GetByMeetingID loads a session and lazily expires it when the link
// TTL has lapsed. There is no background sweeper; expiry is observed on
// access.
func (m *Manager) GetByMeetingID(ctx context.Context, meetingID string) (*models.VideoSession, error) {
	s, err := m.store.ByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, s)
}

func (m *Manager) GetByID(ctx context.Context, id uint) (*models.VideoSession, error) {
	s, err := m.store.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.refresh(ctx, s)
}

// Join returns the session plus a fresh participant token. Expired and
// ended sessions cannot be joined.
func (m *Manager) Join(ctx context.Context, meetingID string) (*models.VideoSession, string, error) {
	s, err := m.GetByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, "", err
	}
	if s.Status != models.SessionActive {
		return nil, "", apperrors.Conflict(fmt.Sprintf("session is %s and cannot be joined", s.Status))
	}

	token, err := m.provider.GenerateToken([]string{videosdk.PermissionJoin}, 6)
	if err != nil {
		return nil, "", err
	}
	return s, token, nil
}

// End marks the session ended and asks the provider to close the room.
// Only the creator may end a session. The provider call is best effort;
// our record is authoritative for the link's validity.
func (m *Manager) End(ctx context.Context, id, callerID uint) (*models.VideoSession, error) {
	s, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.CreatorID != callerID {
		return nil, apperrors.Forbidden("only the session creator can end it")
	}
	if s.Status == models.SessionEnded {
		return s, nil
	}

	if err := m.provider.EndMeeting(ctx, s.MeetingID); err != nil {
		m.logger.Warn("provider end-meeting failed",
			zap.String("meeting_id", s.MeetingID), zap.Error(err))
	}

	s.Status = models.SessionEnded
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	m.logger.Info("video session ended", zap.Uint("session_id", s.ID))
	return s, nil
}

// StartRecording asks the provider to begin recording. On a provider
// timeout the state still moves to starting: the request may have gone
// through, and the webhook will settle the truth either way.
func (m *Manager) StartRecording(ctx context.Context, meetingID string, callerID uint) (*models.VideoSession, error) {
	s, err := m.GetByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if s.CreatorID != callerID {
		return nil, apperrors.Forbidden("only the session creator can control recording")
	}
	if s.Status != models.SessionActive {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot record a session that is %s", s.Status))
	}
	if s.RecordingStatus.Rank() >= models.RecordingStarting.Rank() && !s.RecordingStatus.Terminal() {
		return nil, apperrors.Conflict("recording is already in progress")
	}

	recordingID, err := m.provider.StartRecording(ctx, meetingID)
	if err != nil && !apperrors.IsCode(err, apperrors.CodeTimeout) {
		return nil, err
	}
	if err != nil {
		m.logger.Warn("start-recording timed out, awaiting webhook",
			zap.String("meeting_id", meetingID))
	}

	s.RecordingStatus = models.RecordingStarting
	if recordingID != "" {
		s.RecordingID = recordingID
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// StopRecording mirrors StartRecording: a timeout still moves the state
// to stopping and leaves the webhook to finish the job.
func (m *Manager) StopRecording(ctx context.Context, meetingID string, callerID uint) (*models.VideoSession, error) {
	s, err := m.GetByMeetingID(ctx, meetingID)
	if err != nil {
		return nil, err
	}
	if s.CreatorID != callerID {
		return nil, apperrors.Forbidden("only the session creator can control recording")
	}
	if s.RecordingStatus != models.RecordingStarting && s.RecordingStatus != models.RecordingActive {
		return nil, apperrors.Conflict(fmt.Sprintf("no recording to stop (state %s)", s.RecordingStatus))
	}

	err = m.provider.StopRecording(ctx, meetingID)
	if err != nil && !apperrors.IsCode(err, apperrors.CodeTimeout) {
		return nil, err
	}
	if err != nil {
		m.logger.Warn("stop-recording timed out, awaiting webhook",
			zap.String("meeting_id", meetingID))
	}

	s.RecordingStatus = models.RecordingStopping
	if err := m.store.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// HandleWebhook applies a provider callback. Unknown webhook types and
// callbacks for unknown meetings are logged and swallowed so the
// provider always gets a 2xx and stops retrying.
func (m *Manager) HandleWebhook(ctx context.Context, ev RecordingEvent) error {
	if _, known := ev.targetStatus(); !known {
		m.logger.Info("ignoring webhook",
			zap.String("webhook_type", ev.WebhookType),
			zap.String("meeting_id", ev.MeetingID))
		return nil
	}

	s, err := m.store.ByMeetingID(ctx, ev.MeetingID)
	if err != nil {
		m.logger.Warn("webhook for unknown meeting",
			zap.String("meeting_id", ev.MeetingID),
			zap.String("webhook_type", ev.WebhookType))
		return nil
	}

	if !applyRecordingEvent(s, ev) {
		m.logger.Debug("webhook did not advance recording state",
			zap.String("meeting_id", ev.MeetingID),
			zap.String("webhook_type", ev.WebhookType),
			zap.String("current", string(s.RecordingStatus)))
		return nil
	}

	if err := m.store.Save(ctx, s); err != nil {
		return err
	}
	m.logger.Info("recording state advanced",
		zap.String("meeting_id", ev.MeetingID),
		zap.String("status", string(s.RecordingStatus)))

	if s.RecordingStatus == models.RecordingCompleted && m.pusher != nil {
		m.pusher.PushToUser(s.CreatorID, "Recording ready",
			"Your session recording is ready to watch.",
			map[string]interface{}{"meeting_id": s.MeetingID, "recording_url": s.RecordingURL})
	}
	return nil
}

// ListByCreator returns the creator's sessions with lazy expiry applied.
func (m *Manager) ListByCreator(ctx context.Context, creatorID uint) ([]models.VideoSession, error) {
	sessions, err := m.store.ListByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	for i := range sessions {
		if sessions[i].ExpiredBy(now) {
			sessions[i].Status = models.SessionExpired
			if err := m.store.Save(ctx, &sessions[i]); err != nil {
				return nil, err
			}
		}
	}
	return sessions, nil
}

func (m *Manager) ListRecordings(ctx context.Context, creatorID *uint) ([]models.VideoSession, error) {
	return m.store.ListWithRecordings(ctx, creatorID)
}

func (m *Manager) refresh(ctx context.Context, s *models.VideoSession) (*models.VideoSession, error) {
	if s.ExpiredBy(m.now()) {
		s.Status = models.SessionExpired
		if err := m.store.Save(ctx, s); err != nil {
			return nil, err
		}
		m.logger.Info("video session expired on access", zap.Uint("session_id", s.ID))
	}
	return s, nil
}
