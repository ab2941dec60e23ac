package reminder

import (
	"context"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReminderMailer sends the actual reminder email.
type ReminderMailer interface {
	SendBookingReminder(b *models.Booking, mentor, customer *models.User, until time.Duration) error
}

// Pusher delivers best-effort push reminders.
type Pusher interface {
	PushToUser(userID uint, title, body string, data map[string]interface{})
}

const reminderWindow = 24 * time.Hour

// Scheduler periodically sweeps confirmed bookings and reminds the
// customer ahead of the session. ReminderSentAt keeps the sweep
// idempotent across restarts and multiple instances.
type Scheduler struct {
	db       *gorm.DB
	mailer   ReminderMailer
	pusher   Pusher
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
	stopChan chan struct{}
}

func NewScheduler(db *gorm.DB, mailer ReminderMailer, pusher Pusher, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		db:       db,
		mailer:   mailer,
		pusher:   pusher,
		logger:   logger,
		interval: 15 * time.Minute,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("starting reminder scheduler")
	go s.run(ctx)
}

func (s *Scheduler) Stop() {
	s.logger.Info("stopping reminder scheduler")
	close(s.stopChan)
}

func (s *Scheduler) run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("reminder sweep stopped")
			return
		case <-ctx.Done():
			s.logger.Info("reminder sweep cancelled")
			return
		}
	}
}

// sweep finds confirmed bookings starting within the reminder window
// that have not been reminded yet and sends each reminder once.
func (s *Scheduler) sweep(ctx context.Context) {
	now := s.now().UTC()

	var due []models.Booking
	err := s.db.WithContext(ctx).
		Where("status = ? AND reminder_sent_at IS NULL AND session_start_time > ? AND session_start_time <= ?",
			models.BookingConfirmed, now, now.Add(reminderWindow)).
		Preload("Mentor").Preload("Customer").
		Find(&due).Error
	if err != nil {
		s.logger.Error("loading bookings due for reminders", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	for i := range due {
		s.remind(ctx, &due[i], now)
	}
}

func (s *Scheduler) remind(ctx context.Context, b *models.Booking, now time.Time) {
	if b.Mentor == nil || b.Customer == nil {
		s.logger.Warn("booking missing participants, skipping reminder",
			zap.Uint("booking_id", b.ID))
		return
	}

	until := b.SessionStart.Sub(now)
	if err := s.mailer.SendBookingReminder(b, b.Mentor, b.Customer, until); err != nil {
		s.logger.Error("sending reminder email",
			zap.Uint("booking_id", b.ID), zap.Error(err))
		return
	}

	if s.pusher != nil {
		s.pusher.PushToUser(b.CustomerID, "Upcoming session",
			"Your mentoring session with "+b.Mentor.FullName()+" is coming up.",
			map[string]interface{}{"booking_id": b.ID})
	}

	sentAt := now
	b.ReminderSentAt = &sentAt
	if err := s.db.WithContext(ctx).Model(b).Update("reminder_sent_at", sentAt).Error; err != nil {
		s.logger.Error("recording reminder timestamp",
			zap.Uint("booking_id", b.ID), zap.Error(err))
		return
	}

	s.logger.Info("reminder sent",
		zap.Uint("booking_id", b.ID),
		zap.Duration("until_start", until))
}
