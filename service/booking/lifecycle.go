package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/devmentor/devmentor-server/service/scheduling"
	"go.uber.org/zap"
)

// PlatformFeeRate is the platform's cut of every booking amount; the
// mentor payout is the remainder.
const PlatformFeeRate = 0.10

// PaymentProof is the fact handed over by the payment collaborator. The
// booking engine never talks to the payment provider itself.
type PaymentProof struct {
	Reference string
	Amount    float64
	Verified  bool
}

// Ledger is the write side of booking storage. InsertIfFree must be
// atomic against concurrent inserts for the same mentor: re-check the
// overlap and insert in one transaction, returning a Conflict error when
// another blocking booking holds any part of the interval. Application
// locks are not enough since several server instances may run at once.
type Ledger interface {
	InsertIfFree(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, id uint) (*models.Booking, error)
	Save(ctx context.Context, b *models.Booking) error
}

type Party string

const (
	ByCustomer Party = "customer"
	ByMentor   Party = "mentor"
)

// Service owns booking creation and every status transition. Nothing
// else mutates bookings.
type Service struct {
	ledger Ledger
	logger *zap.Logger
	now    func() time.Time
}

func NewService(ledger Ledger, logger *zap.Logger) *Service {
	return &Service{ledger: ledger, logger: logger, now: time.Now}
}

// ClaimSlot races the chosen interval against every other claim for the
// mentor. Exactly one concurrent claim for an overlapping interval wins;
// the losers get a Conflict error and must re-query the slot list.
func (s *Service) ClaimSlot(ctx context.Context, mentorID, customerID uint, slot scheduling.Slot, proof *PaymentProof) (*models.Booking, error) {
	if !slot.Start.Before(slot.End) {
		return nil, apperrors.Validation("slot start must be before slot end")
	}
	if slot.Start.Before(s.now()) {
		return nil, apperrors.Validation("slot is in the past")
	}

	b := &models.Booking{
		MentorID:     mentorID,
		CustomerID:   customerID,
		SessionStart: slot.Start.UTC(),
		SessionEnd:   slot.End.UTC(),
		Status:       models.BookingPendingPayment,
	}

	if proof != nil && proof.Verified {
		paidAt := s.now().UTC()
		b.Status = models.BookingPaid
		b.PaymentRef = proof.Reference
		b.Amount = proof.Amount
		b.PlatformFee = proof.Amount * PlatformFeeRate
		b.MentorPayout = proof.Amount - b.PlatformFee
		b.PaidAt = &paidAt
	}

	if err := s.ledger.InsertIfFree(ctx, b); err != nil {
		if apperrors.IsCode(err, apperrors.CodeConflict) {
			s.logger.Info("slot claim lost the race",
				zap.Uint("mentor_id", mentorID),
				zap.Time("slot_start", slot.Start))
		}
		return nil, err
	}

	s.logger.Info("slot claimed",
		zap.Uint("booking_id", b.ID),
		zap.Uint("mentor_id", mentorID),
		zap.Uint("customer_id", customerID),
		zap.String("status", string(b.Status)))
	return b, nil
}

// MarkPaid moves a deferred-payment booking to PAID once the payment
// collaborator reports the charge.
func (s *Service) MarkPaid(ctx context.Context, bookingID uint, proof PaymentProof) (*models.Booking, error) {
	if !proof.Verified {
		return nil, apperrors.Validation("payment proof is not verified")
	}
	return s.transition(ctx, bookingID, models.BookingPaid, func(b *models.Booking) {
		paidAt := s.now().UTC()
		b.PaymentRef = proof.Reference
		b.Amount = proof.Amount
		b.PlatformFee = proof.Amount * PlatformFeeRate
		b.MentorPayout = proof.Amount - b.PlatformFee
		b.PaidAt = &paidAt
	})
}

// Confirm moves PAID to CONFIRMED once the downstream scheduling side
// effect (calendar invite, meeting room) has run. When the side effect
// fails the booking stays PAID with ManualFollowUp set: the payment is
// already captured and must not be thrown away.
func (s *Service) Confirm(ctx context.Context, bookingID uint, sideEffect func(*models.Booking) error) (*models.Booking, error) {
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(models.BookingConfirmed) {
		return nil, apperrors.Conflict(fmt.Sprintf("cannot confirm booking in status %s", b.Status))
	}

	if sideEffect != nil {
		if err := sideEffect(b); err != nil {
			b.ManualFollowUp = true
			if saveErr := s.ledger.Save(ctx, b); saveErr != nil {
				return nil, saveErr
			}
			s.logger.Warn("confirmation side effect failed, booking flagged for manual follow-up",
				zap.Uint("booking_id", b.ID), zap.Error(err))
			return b, apperrors.ExternalService("scheduling side effect failed", err)
		}
	}

	scheduledAt := s.now().UTC()
	b.Status = models.BookingConfirmed
	b.ScheduledAt = &scheduledAt
	if err := s.ledger.Save(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking confirmed", zap.Uint("booking_id", b.ID))
	return b, nil
}

// Cancel moves a PAID or CONFIRMED booking to the cancelling party's
// terminal state. The freed interval reappears in slot generation
// immediately because only PAID/CONFIRMED rows block.
func (s *Service) Cancel(ctx context.Context, bookingID uint, by Party) (*models.Booking, error) {
	target := models.BookingCancelledByCustomer
	if by == ByMentor {
		target = models.BookingCancelledByMentor
	}
	return s.transition(ctx, bookingID, target, func(b *models.Booking) {
		cancelledAt := s.now().UTC()
		b.CancelledAt = &cancelledAt
	})
}

func (s *Service) Complete(ctx context.Context, bookingID uint) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingCompleted, nil)
}

func (s *Service) Refund(ctx context.Context, bookingID uint) (*models.Booking, error) {
	return s.transition(ctx, bookingID, models.BookingRefunded, nil)
}

func (s *Service) transition(ctx context.Context, bookingID uint, target models.BookingStatus, mutate func(*models.Booking)) (*models.Booking, error) {
	b, err := s.ledger.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !b.Status.CanTransitionTo(target) {
		return nil, apperrors.Conflict(fmt.Sprintf("illegal transition %s -> %s", b.Status, target))
	}
	b.Status = target
	if mutate != nil {
		mutate(b)
	}
	if err := s.ledger.Save(ctx, b); err != nil {
		return nil, err
	}
	s.logger.Info("booking transitioned",
		zap.Uint("booking_id", b.ID), zap.String("status", string(target)))
	return b, nil
}
