package models

import (
	"time"

	"gorm.io/gorm"
)

// BookingStatus is a closed set of booking lifecycle states. Transitions
// go through CanTransitionTo; writing a status directly bypasses the
// state machine and is a bug.
type BookingStatus string

const (
	BookingPendingPayment      BookingStatus = "PENDING_PAYMENT"
	BookingPaid                BookingStatus = "PAID"
	BookingConfirmed           BookingStatus = "CONFIRMED"
	BookingCompleted           BookingStatus = "COMPLETED"
	BookingCancelledByCustomer BookingStatus = "CANCELLED_BY_CUSTOMER"
	BookingCancelledByMentor   BookingStatus = "CANCELLED_BY_MENTOR"
	BookingRefunded            BookingStatus = "REFUNDED"
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPendingPayment: {BookingPaid},
	BookingPaid: {
		BookingConfirmed,
		BookingCancelledByCustomer,
		BookingCancelledByMentor,
	},
	BookingConfirmed: {
		BookingCompleted,
		BookingCancelledByCustomer,
		BookingCancelledByMentor,
	},
	BookingCompleted:           {BookingRefunded},
	BookingCancelledByCustomer: {BookingRefunded},
	BookingCancelledByMentor:   {BookingRefunded},
	BookingRefunded:            {},
}

func (s BookingStatus) Valid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Blocking reports whether a booking in this status reserves mentor time
// and therefore removes the interval from generated slots.
func (s BookingStatus) Blocking() bool {
	return s == BookingPaid || s == BookingConfirmed
}

func (s BookingStatus) Terminal() bool {
	return len(bookingTransitions[s]) == 0 || s == BookingCompleted ||
		s == BookingCancelledByCustomer || s == BookingCancelledByMentor
}

type Booking struct {
	gorm.Model
	MentorID     uint          `gorm:"column:mentor_id;not null;index" json:"mentor_id"`
	CustomerID   uint          `gorm:"column:customer_id;not null;index" json:"customer_id"`
	SessionStart time.Time     `gorm:"column:session_start_time;not null;index" json:"session_start_time"`
	SessionEnd   time.Time     `gorm:"column:session_end_time;not null" json:"session_end_time"`
	Status       BookingStatus `gorm:"column:status;size:30;not null;default:PENDING_PAYMENT" json:"status"`

	PaymentRef   string  `gorm:"column:payment_ref;size:255;index" json:"payment_ref,omitempty"`
	Amount       float64 `gorm:"column:amount" json:"amount"`
	PlatformFee  float64 `gorm:"column:platform_fee" json:"platform_fee"`
	MentorPayout float64 `gorm:"column:mentor_payout" json:"mentor_payout"`

	// Set when Confirm's downstream side effect fails so support can
	// finish scheduling by hand instead of the payment being rolled back.
	ManualFollowUp bool `gorm:"column:manual_follow_up;default:false" json:"manual_follow_up"`

	MeetingID  string `gorm:"column:meeting_id;size:100" json:"meeting_id,omitempty"`
	MeetingURL string `gorm:"column:meeting_url;size:500" json:"meeting_url,omitempty"`

	PaidAt         *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	ScheduledAt    *time.Time `gorm:"column:scheduled_at" json:"scheduled_at,omitempty"`
	CancelledAt    *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	ReminderSentAt *time.Time `gorm:"column:reminder_sent_at" json:"reminder_sent_at,omitempty"`

	Mentor   *User `gorm:"foreignKey:MentorID" json:"mentor,omitempty"`
	Customer *User `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
}

func (Booking) TableName() string {
	return "bookings"
}
