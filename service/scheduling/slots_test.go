package scheduling

import (
	"testing"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
)

// 2026-03-02 is a Monday; Los Angeles is on PST (UTC-8) that week.
var (
	testMonday = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	// 48 hours before the window opens at 09:00 PST.
	testNow = time.Date(2026, time.February, 28, 17, 0, 0, 0, time.UTC)
)

func laSettings() models.CalendarSettings {
	return models.CalendarSettings{
		MentorID:               1,
		SessionDurationMinutes: 60,
		BufferMinutes:          15,
		AdvanceBookingDays:     30,
		MinimumNoticeHours:     24,
		Timezone:               "America/Los_Angeles",
	}
}

func mondayMorningWindow() models.AvailabilityWindow {
	return models.AvailabilityWindow{
		MentorID:    1,
		DayOfWeek:   int(time.Monday),
		StartMinute: 9 * 60,
		EndMinute:   11 * 60,
		Timezone:    "America/Los_Angeles",
		Active:      true,
	}
}

func TestGenerateSlots_WindowTooShortForSecondSlot(t *testing.T) {
	// 09:00-11:00 with 60min sessions and 15min buffer: 09:00-10:00 fits,
	// the next candidate 10:15-11:15 exceeds the window.
	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday, testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected exactly 1 slot, got %d: %+v", len(slots), slots)
	}

	wantStart := time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC) // 09:00 PST
	wantEnd := time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC)
	if !slots[0].Start.Equal(wantStart) || !slots[0].End.Equal(wantEnd) {
		t.Errorf("slot = [%v, %v), want [%v, %v)", slots[0].Start, slots[0].End, wantStart, wantEnd)
	}
}

func TestGenerateSlots_BlockingBookingRemovesSlot(t *testing.T) {
	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
		Bookings: []models.Booking{{
			MentorID:     1,
			Status:       models.BookingConfirmed,
			SessionStart: time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC),
			SessionEnd:   time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC),
		}},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday, testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots, got %+v", slots)
	}
}

func TestGenerateSlots_NonBlockingBookingIgnored(t *testing.T) {
	for _, status := range []models.BookingStatus{
		models.BookingPendingPayment,
		models.BookingCancelledByCustomer,
		models.BookingCancelledByMentor,
		models.BookingCompleted,
		models.BookingRefunded,
	} {
		data := CalendarData{
			Settings: laSettings(),
			Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
			Bookings: []models.Booking{{
				MentorID:     1,
				Status:       status,
				SessionStart: time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC),
				SessionEnd:   time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC),
			}},
		}

		slots, err := GenerateSlots(data, testMonday, testMonday, testNow)
		if err != nil {
			t.Fatalf("status %s: %v", status, err)
		}
		if len(slots) != 1 {
			t.Errorf("status %s should not block the slot, got %d slots", status, len(slots))
		}
	}
}

func TestGenerateSlots_MinimumNotice(t *testing.T) {
	// Now is 30 minutes before the window opens; with 24h notice nothing
	// on that Monday is bookable.
	lateNow := time.Date(2026, time.March, 2, 16, 30, 0, 0, time.UTC)

	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday, lateNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected no slots inside the notice period, got %+v", slots)
	}
}

func TestGenerateSlots_NoticePropertyHolds(t *testing.T) {
	settings := laSettings()
	settings.BufferMinutes = 0
	data := CalendarData{
		Settings: settings,
		Windows: []models.AvailabilityWindow{{
			MentorID:    1,
			DayOfWeek:   int(time.Monday),
			StartMinute: 8 * 60,
			EndMinute:   18 * 60,
			Timezone:    "America/Los_Angeles",
			Active:      true,
		}},
	}
	now := time.Date(2026, time.March, 1, 20, 0, 0, 0, time.UTC)
	cutoff := now.Add(24 * time.Hour)

	slots, err := GenerateSlots(data, testMonday, testMonday.AddDate(0, 0, 7), now)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("expected some slots")
	}
	for _, s := range slots {
		if s.Start.Before(cutoff) {
			t.Errorf("slot %v starts before notice cutoff %v", s.Start, cutoff)
		}
	}
}

func TestGenerateSlots_TouchingUnavailabilityDoesNotBlock(t *testing.T) {
	// Blackout ends exactly when the slot starts: [a,b) intervals that
	// touch do not overlap.
	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
		Unavailability: []models.UnavailabilityPeriod{{
			MentorID: 1,
			StartAt:  time.Date(2026, time.March, 2, 15, 0, 0, 0, time.UTC),
			EndAt:    time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC),
		}},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday, testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 1 {
		t.Errorf("touching blackout must not block the slot, got %d slots", len(slots))
	}
}

func TestGenerateSlots_UnavailabilityBlocks(t *testing.T) {
	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
		Unavailability: []models.UnavailabilityPeriod{{
			MentorID: 1,
			StartAt:  time.Date(2026, time.March, 2, 17, 30, 0, 0, time.UTC),
			EndAt:    time.Date(2026, time.March, 2, 17, 45, 0, 0, time.UTC),
		}},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday, testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("expected blackout to remove the slot, got %+v", slots)
	}
}

func TestGenerateSlots_InactiveWindowSkipped(t *testing.T) {
	window := mondayMorningWindow()
	window.Active = false
	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{window},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday, testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 0 {
		t.Errorf("inactive window must produce no slots, got %+v", slots)
	}
}

func TestGenerateSlots_AdvanceBookingClamp(t *testing.T) {
	settings := laSettings()
	settings.AdvanceBookingDays = 7
	settings.MinimumNoticeHours = 0
	data := CalendarData{
		Settings: settings,
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
	}

	// Ask for 60 days; only the Mondays inside the 7-day horizon count.
	slots, err := GenerateSlots(data, testMonday, testMonday.AddDate(0, 0, 60), testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}

	horizon := testMonday.AddDate(0, 0, 8)
	for _, s := range slots {
		if s.Start.After(horizon) {
			t.Errorf("slot %v beyond the advance-booking horizon", s.Start)
		}
	}
	// Two Mondays fall inside the horizon: Mar 2 and Mar 9.
	if len(slots) != 2 {
		t.Errorf("expected 2 slots within the horizon, got %d", len(slots))
	}
}

func TestGenerateSlots_DSTTransitionWeek(t *testing.T) {
	// US DST begins Sunday 2026-03-08. A 09:00 local window the day after
	// must land at 16:00 UTC (PDT), not 17:00 (PST).
	settings := laSettings()
	settings.MinimumNoticeHours = 0
	data := CalendarData{
		Settings: settings,
		Windows:  []models.AvailabilityWindow{mondayMorningWindow()},
	}

	monday := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	slots, err := GenerateSlots(data, monday, monday, testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	want := time.Date(2026, time.March, 9, 16, 0, 0, 0, time.UTC)
	if !slots[0].Start.Equal(want) {
		t.Errorf("slot start = %v, want %v (PDT offset)", slots[0].Start, want)
	}
}

func TestGenerateSlots_OrderedAcrossWindows(t *testing.T) {
	afternoon := models.AvailabilityWindow{
		MentorID:    1,
		DayOfWeek:   int(time.Monday),
		StartMinute: 13 * 60,
		EndMinute:   15 * 60,
		Timezone:    "America/Los_Angeles",
		Active:      true,
	}
	data := CalendarData{
		Settings: laSettings(),
		Windows:  []models.AvailabilityWindow{afternoon, mondayMorningWindow()},
	}

	slots, err := GenerateSlots(data, testMonday, testMonday.AddDate(0, 0, 7), testNow)
	if err != nil {
		t.Fatalf("GenerateSlots returned error: %v", err)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Start.Before(slots[i-1].Start) {
			t.Fatalf("slots out of order at %d: %v before %v", i, slots[i].Start, slots[i-1].Start)
		}
	}
}

func TestGenerateSlots_InvalidInputs(t *testing.T) {
	badDuration := laSettings()
	badDuration.SessionDurationMinutes = 0

	badTZ := mondayMorningWindow()
	badTZ.Timezone = "Mars/Olympus_Mons"

	tests := []struct {
		name string
		data CalendarData
	}{
		{"zero duration", CalendarData{Settings: badDuration}},
		{"unknown timezone", CalendarData{Settings: laSettings(), Windows: []models.AvailabilityWindow{badTZ}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateSlots(tt.data, testMonday, testMonday, testNow)
			if !apperrors.IsCode(err, apperrors.CodeValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}
