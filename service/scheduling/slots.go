package scheduling

import (
	"fmt"
	"sort"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
)

// Slot is a candidate bookable half-open interval [Start, End) in UTC.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// CalendarData is everything GenerateSlots needs, loaded up front so the
// generation itself is a pure function over it.
type CalendarData struct {
	Settings       models.CalendarSettings
	Windows        []models.AvailabilityWindow
	Unavailability []models.UnavailabilityPeriod
	Bookings       []models.Booking
}

type interval struct {
	start, end time.Time
}

// overlaps is the strict interval overlap test: touching endpoints do
// not overlap, so back-to-back slots are allowed.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// GenerateSlots computes the bookable slots for the calendar dates in
// [startDate, endDate] (inclusive). Dates are taken as plain calendar
// dates; the result is ordered chronologically in UTC.
//
// endDate is clamped to startDate + advance_booking_days. Slots starting
// before now + minimum_notice_hours are dropped, as is anything that
// strictly overlaps an unavailability period or a blocking booking.
func GenerateSlots(data CalendarData, startDate, endDate time.Time, now time.Time) ([]Slot, error) {
	settings := data.Settings
	if settings.SessionDurationMinutes <= 0 {
		return nil, apperrors.Validation("session duration must be positive")
	}
	if settings.BufferMinutes < 0 || settings.MinimumNoticeHours < 0 || settings.AdvanceBookingDays < 0 {
		return nil, apperrors.Validation("calendar settings contain negative values")
	}
	if endDate.Before(startDate) {
		return nil, apperrors.Validation("end date is before start date")
	}

	horizon := dateOnly(startDate).AddDate(0, 0, settings.AdvanceBookingDays)
	if endDate.After(horizon) {
		endDate = horizon
	}

	duration := time.Duration(settings.SessionDurationMinutes) * time.Minute
	buffer := time.Duration(settings.BufferMinutes) * time.Minute
	notice := now.Add(time.Duration(settings.MinimumNoticeHours) * time.Hour)

	busy := busyIntervals(data)

	locations := make(map[string]*time.Location)
	var slots []Slot

	for day := dateOnly(startDate); !day.After(dateOnly(endDate)); day = day.AddDate(0, 0, 1) {
		for _, window := range data.Windows {
			if !window.Active || window.DayOfWeek != int(day.Weekday()) {
				continue
			}

			loc, ok := locations[window.Timezone]
			if !ok {
				var err error
				loc, err = time.LoadLocation(window.Timezone)
				if err != nil {
					return nil, apperrors.Validation(fmt.Sprintf("unknown timezone %q", window.Timezone))
				}
				locations[window.Timezone] = loc
			}

			// Localizing via time.Date keeps the wall-clock bounds
			// correct across DST transitions.
			year, month, dom := day.Date()
			winStart := time.Date(year, month, dom, 0, window.StartMinute, 0, 0, loc)
			winEnd := time.Date(year, month, dom, 0, window.EndMinute, 0, 0, loc)
			if !winStart.Before(winEnd) {
				continue
			}

			for cur := winStart; ; cur = cur.Add(duration + buffer) {
				slotEnd := cur.Add(duration)
				if slotEnd.After(winEnd) {
					break
				}
				if cur.Before(notice) {
					continue
				}
				if conflictsAny(cur, slotEnd, busy) {
					continue
				}
				slots = append(slots, Slot{Start: cur.UTC(), End: slotEnd.UTC()})
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

func conflictsAny(start, end time.Time, busy []interval) bool {
	for _, b := range busy {
		if overlaps(start, end, b.start, b.end) {
			return true
		}
	}
	return false
}

// busyIntervals flattens unavailability periods and blocking bookings
// into one list, normalized to UTC. Legacy rows persisted without zone
// information come back in UTC from the store, never local time.
func busyIntervals(data CalendarData) []interval {
	busy := make([]interval, 0, len(data.Unavailability)+len(data.Bookings))
	for _, u := range data.Unavailability {
		busy = append(busy, interval{start: u.StartAt.UTC(), end: u.EndAt.UTC()})
	}
	for _, b := range data.Bookings {
		if !b.Status.Blocking() {
			continue
		}
		busy = append(busy, interval{start: b.SessionStart.UTC(), end: b.SessionEnd.UTC()})
	}
	return busy
}

func dateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
