package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionStatus is the lifecycle of a video session itself, distinct
// from the recording lifecycle nested inside it.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionEnded   SessionStatus = "ended"
)

// RecordingStatus is the recording sub-state of a session. Provider
// callbacks may arrive duplicated or out of order, so states carry a
// monotonic precedence rank and a callback is only applied when it moves
// the state forward.
type RecordingStatus string

const (
	RecordingNone      RecordingStatus = "none"
	RecordingStarting  RecordingStatus = "starting"
	RecordingActive    RecordingStatus = "active"
	RecordingStopping  RecordingStatus = "stopping"
	RecordingCompleted RecordingStatus = "completed"
	RecordingFailed    RecordingStatus = "failed"
)

var recordingRank = map[RecordingStatus]int{
	RecordingNone:      0,
	RecordingStarting:  1,
	RecordingActive:    2,
	RecordingStopping:  3,
	RecordingCompleted: 4,
	RecordingFailed:    4,
}

// Rank returns the position of the status in the precedence order
// none < starting < active < stopping < {completed, failed}.
func (s RecordingStatus) Rank() int {
	return recordingRank[s]
}

func (s RecordingStatus) Terminal() bool {
	return s == RecordingCompleted || s == RecordingFailed
}

const (
	// SessionLinkTTL is how long a join link stays valid after creation,
	// regardless of the creator's tier or the session's max duration.
	SessionLinkTTL = 6 * time.Hour

	MaxDurationFreeMinutes    = 50
	MaxDurationPremiumMinutes = 360
)

type VideoSession struct {
	gorm.Model
	CreatorID          uint            `gorm:"column:creator_id;not null;index" json:"creator_id"`
	BookingID          *uint           `gorm:"column:booking_id;index" json:"booking_id,omitempty"`
	MeetingID          string          `gorm:"column:meeting_id;size:100;uniqueIndex;not null" json:"meeting_id"`
	SessionURL         string          `gorm:"column:session_url;size:500" json:"session_url"`
	MeetingToken       string          `gorm:"column:meeting_token;type:text" json:"-"`
	ExpiresAt          time.Time       `gorm:"column:expires_at;not null;index" json:"expires_at"`
	MaxDurationMinutes int             `gorm:"column:max_duration_minutes;not null" json:"max_duration_minutes"`
	Status             SessionStatus   `gorm:"column:status;size:20;not null;default:active" json:"status"`
	RecordingStatus    RecordingStatus `gorm:"column:recording_status;size:20;not null;default:none" json:"recording_status"`
	RecordingID        string          `gorm:"column:recording_id;size:100" json:"recording_id,omitempty"`
	RecordingURL       string          `gorm:"column:recording_url;size:500" json:"recording_url,omitempty"`

	Creator *User    `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Booking *Booking `gorm:"foreignKey:BookingID" json:"booking,omitempty"`
}

func (VideoSession) TableName() string {
	return "video_sessions"
}

// ExpiredBy reports whether the session's join link has lapsed at the
// given instant. Callers that observe this should also flip Status to
// expired (lazy expiry).
func (v *VideoSession) ExpiredBy(now time.Time) bool {
	return v.Status == SessionActive && now.After(v.ExpiresAt)
}
