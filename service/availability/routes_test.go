package availability

import (
	"testing"

	"github.com/devmentor/devmentor-server/service/apperrors"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"9am", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := parseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseClock(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseClock(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestWindowRequestValidation(t *testing.T) {
	base := windowRequest{DayOfWeek: 1, StartTime: "09:00", EndTime: "11:00"}

	w, err := base.toWindow(7)
	if err != nil {
		t.Fatalf("toWindow: %v", err)
	}
	if w.StartMinute != 540 || w.EndMinute != 660 {
		t.Errorf("minutes = %d..%d, want 540..660", w.StartMinute, w.EndMinute)
	}
	if w.Timezone != "America/Los_Angeles" {
		t.Errorf("default timezone = %q", w.Timezone)
	}
	if !w.Active {
		t.Error("window should default to active")
	}

	inverted := base
	inverted.EndTime = "08:00"
	if _, err := inverted.toWindow(7); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("inverted window: err = %v, want validation error", err)
	}

	badTZ := base
	badTZ.Timezone = "Mars/Olympus_Mons"
	if _, err := badTZ.toWindow(7); !apperrors.IsCode(err, apperrors.CodeValidation) {
		t.Errorf("bad timezone: err = %v, want validation error", err)
	}
}
