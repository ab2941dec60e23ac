package db

import (
	"context"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"gorm.io/gorm"
)

// CalendarStore serves the read side of slot generation. Missing
// settings surface as NotConfigured; defaults are only created through
// the mentor-facing settings endpoints.
type CalendarStore struct {
	db *gorm.DB
}

func NewCalendarStore(db *gorm.DB) *CalendarStore {
	return &CalendarStore{db: db}
}

func (s *CalendarStore) SettingsFor(ctx context.Context, mentorID uint) (*models.CalendarSettings, error) {
	var settings models.CalendarSettings
	err := s.db.WithContext(ctx).Where("mentor_id = ?", mentorID).First(&settings).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotConfigured("mentor has not configured their calendar")
		}
		return nil, apperrors.Internal("retrieving calendar settings", err)
	}
	return &settings, nil
}

func (s *CalendarStore) ActiveWindows(ctx context.Context, mentorID uint) ([]models.AvailabilityWindow, error) {
	var windows []models.AvailabilityWindow
	err := s.db.WithContext(ctx).
		Where("mentor_id = ? AND is_active = ?", mentorID, true).
		Order("day_of_week, start_minute").
		Find(&windows).Error
	if err != nil {
		return nil, apperrors.Internal("retrieving availability windows", err)
	}
	return windows, nil
}

func (s *CalendarStore) UnavailabilityBetween(ctx context.Context, mentorID uint, from, to time.Time) ([]models.UnavailabilityPeriod, error) {
	var periods []models.UnavailabilityPeriod
	err := s.db.WithContext(ctx).
		Where("mentor_id = ? AND start_datetime < ? AND end_datetime > ?", mentorID, to, from).
		Find(&periods).Error
	if err != nil {
		return nil, apperrors.Internal("retrieving unavailability periods", err)
	}
	return periods, nil
}

func (s *CalendarStore) BlockingBookingsBetween(ctx context.Context, mentorID uint, from, to time.Time) ([]models.Booking, error) {
	var bookings []models.Booking
	err := s.db.WithContext(ctx).
		Where("mentor_id = ? AND status IN ? AND session_start_time < ? AND session_end_time > ?",
			mentorID,
			[]models.BookingStatus{models.BookingPaid, models.BookingConfirmed},
			to, from).
		Find(&bookings).Error
	if err != nil {
		return nil, apperrors.Internal("retrieving bookings", err)
	}
	return bookings, nil
}
