package db

import (
	"context"
	"errors"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// BookingLedger is the gorm-backed booking store. Claim atomicity comes
// from the database, in two layers: the transaction takes a per-mentor
// advisory lock before the overlap re-check, serializing concurrent
// claims even when the interval is empty (row locks cannot cover rows
// that do not exist yet), and the bookings exclusion constraint rejects
// any overlapping blocking insert that slips through.
type BookingLedger struct {
	db *gorm.DB
}

func NewBookingLedger(db *gorm.DB) *BookingLedger {
	return &BookingLedger{db: db}
}

func (l *BookingLedger) InsertIfFree(ctx context.Context, b *models.Booking) error {
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", int64(b.MentorID)).Error; err != nil {
			return err
		}

		var existing []models.Booking
		err := tx.Where("mentor_id = ? AND status IN ? AND session_start_time < ? AND session_end_time > ?",
			b.MentorID,
			[]models.BookingStatus{models.BookingPaid, models.BookingConfirmed},
			b.SessionEnd, b.SessionStart,
		).Find(&existing).Error
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return apperrors.Conflict("slot is no longer available")
		}
		return tx.Create(b).Error
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			return err
		}
		if isExclusionViolation(err) {
			return apperrors.Conflict("slot is no longer available")
		}
		return apperrors.Internal("claiming slot", err)
	}
	return nil
}

// isExclusionViolation reports whether err is the bookings overlap
// exclusion constraint firing (SQLSTATE 23P01).
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func (l *BookingLedger) Get(ctx context.Context, id uint) (*models.Booking, error) {
	var b models.Booking
	if err := l.db.WithContext(ctx).First(&b, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("booking")
		}
		return nil, apperrors.Internal("retrieving booking", err)
	}
	return &b, nil
}

func (l *BookingLedger) Save(ctx context.Context, b *models.Booking) error {
	if err := l.db.WithContext(ctx).Save(b).Error; err != nil {
		return apperrors.Internal("saving booking", err)
	}
	return nil
}
