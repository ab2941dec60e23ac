package models

import (
	"time"

	"gorm.io/gorm"
)

// AvailabilityWindow is a recurring weekly window during which a mentor
// accepts bookings. Start and end are minutes from local midnight in the
// window's timezone, so a window survives DST transitions intact.
type AvailabilityWindow struct {
	gorm.Model
	MentorID    uint   `gorm:"column:mentor_id;not null;index" json:"mentor_id"`
	DayOfWeek   int    `gorm:"column:day_of_week;not null" json:"day_of_week"` // 0 = Sunday, matches time.Weekday
	StartMinute int    `gorm:"column:start_minute;not null" json:"start_minute"`
	EndMinute   int    `gorm:"column:end_minute;not null" json:"end_minute"`
	Timezone    string `gorm:"column:timezone;size:50;not null;default:America/Los_Angeles" json:"timezone"`
	Active      bool   `gorm:"column:is_active;not null;default:true" json:"is_active"`

	Mentor *User `gorm:"foreignKey:MentorID" json:"-"`
}

func (AvailabilityWindow) TableName() string {
	return "mentor_availability"
}

// UnavailabilityPeriod is a one-off blackout interval for a mentor,
// stored as absolute UTC instants.
type UnavailabilityPeriod struct {
	gorm.Model
	MentorID uint      `gorm:"column:mentor_id;not null;index" json:"mentor_id"`
	StartAt  time.Time `gorm:"column:start_datetime;not null" json:"start_datetime"`
	EndAt    time.Time `gorm:"column:end_datetime;not null" json:"end_datetime"`
	Reason   string    `gorm:"column:reason;size:255" json:"reason,omitempty"`

	Mentor *User `gorm:"foreignKey:MentorID" json:"-"`
}

func (UnavailabilityPeriod) TableName() string {
	return "mentor_unavailability"
}

// CalendarSettings holds per-mentor booking parameters. One row per
// mentor, created lazily with defaults on first access.
type CalendarSettings struct {
	gorm.Model
	MentorID               uint   `gorm:"column:mentor_id;not null;uniqueIndex" json:"mentor_id"`
	SessionDurationMinutes int    `gorm:"column:session_duration;not null;default:60" json:"session_duration"`
	BufferMinutes          int    `gorm:"column:buffer_time;not null;default:15" json:"buffer_time"`
	AdvanceBookingDays     int    `gorm:"column:advance_booking_days;not null;default:30" json:"advance_booking_days"`
	MinimumNoticeHours     int    `gorm:"column:minimum_notice_hours;not null;default:24" json:"minimum_notice_hours"`
	Timezone               string `gorm:"column:timezone;size:50;not null;default:America/Los_Angeles" json:"timezone"`

	Mentor *User `gorm:"foreignKey:MentorID" json:"-"`
}

func (CalendarSettings) TableName() string {
	return "calendar_settings"
}

// DefaultCalendarSettings returns the settings row used when a mentor has
// never configured their calendar.
func DefaultCalendarSettings(mentorID uint) CalendarSettings {
	return CalendarSettings{
		MentorID:               mentorID,
		SessionDurationMinutes: 60,
		BufferMinutes:          15,
		AdvanceBookingDays:     30,
		MinimumNoticeHours:     24,
		Timezone:               "America/Los_Angeles",
	}
}
