package session

import (
	"testing"

	"github.com/devmentor/devmentor-server/cmd/models"
)

func sessionInState(status models.RecordingStatus) *models.VideoSession {
	return &models.VideoSession{MeetingID: "room-1", RecordingStatus: status}
}

func TestRecordingEventAdvances(t *testing.T) {
	s := sessionInState(models.RecordingNone)

	for _, step := range []struct {
		webhookType string
		want        models.RecordingStatus
	}{
		{"hls-starting", models.RecordingStarting},
		{"hls-started", models.RecordingActive},
		{"hls-stopping", models.RecordingStopping},
		{"hls-stopped", models.RecordingCompleted},
	} {
		if !applyRecordingEvent(s, RecordingEvent{WebhookType: step.webhookType}) {
			t.Fatalf("%s did not apply from %s", step.webhookType, s.RecordingStatus)
		}
		if s.RecordingStatus != step.want {
			t.Fatalf("after %s: status = %s, want %s", step.webhookType, s.RecordingStatus, step.want)
		}
	}
}

func TestRecordingEventDuplicateIsNoop(t *testing.T) {
	s := sessionInState(models.RecordingActive)

	if applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-started"}) {
		t.Error("duplicate started event applied")
	}
	if s.RecordingStatus != models.RecordingActive {
		t.Errorf("status = %s, want active", s.RecordingStatus)
	}
}

// A stale callback arriving after a later state must not move the state
// backwards.
func TestRecordingEventOutOfOrder(t *testing.T) {
	s := sessionInState(models.RecordingNone)

	applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-started"})
	if applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-starting"}) {
		t.Error("late starting event applied over active")
	}
	if s.RecordingStatus != models.RecordingActive {
		t.Errorf("status = %s, want active", s.RecordingStatus)
	}

	applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-stopped"})
	if applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-stopping"}) {
		t.Error("late stopping event applied over completed")
	}
	if s.RecordingStatus != models.RecordingCompleted {
		t.Errorf("status = %s, want completed", s.RecordingStatus)
	}
}

func TestRecordingFailureFromInFlightStates(t *testing.T) {
	for _, from := range []models.RecordingStatus{
		models.RecordingStarting,
		models.RecordingActive,
		models.RecordingStopping,
	} {
		s := sessionInState(from)
		if !applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-failed"}) {
			t.Errorf("failure did not apply from %s", from)
		}
		if s.RecordingStatus != models.RecordingFailed {
			t.Errorf("from %s: status = %s, want failed", from, s.RecordingStatus)
		}
	}
}

// Terminal states are final in both directions: completed cannot be
// failed afterwards and failed cannot be completed.
func TestRecordingTerminalStatesAreFinal(t *testing.T) {
	s := sessionInState(models.RecordingCompleted)
	if applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-failed"}) {
		t.Error("failure applied over completed")
	}

	s = sessionInState(models.RecordingFailed)
	if applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-stopped"}) {
		t.Error("completion applied over failed")
	}
	if s.RecordingStatus != models.RecordingFailed {
		t.Errorf("status = %s, want failed", s.RecordingStatus)
	}
}

func TestRecordingURLPreference(t *testing.T) {
	tests := []struct {
		name string
		ev   RecordingEvent
		want string
	}{
		{
			"hls playback wins",
			RecordingEvent{WebhookType: "hls-stopped", PlaybackHLSURL: "https://cdn/p.m3u8", DownstreamURL: "https://cdn/d", DownloadURL: "https://cdn/dl.mp4"},
			"https://cdn/p.m3u8",
		},
		{
			"downstream over download",
			RecordingEvent{WebhookType: "hls-stopped", DownstreamURL: "https://cdn/d", DownloadURL: "https://cdn/dl.mp4"},
			"https://cdn/d",
		},
		{
			"download as last resort",
			RecordingEvent{WebhookType: "hls-stopped", DownloadURL: "https://cdn/dl.mp4"},
			"https://cdn/dl.mp4",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := sessionInState(models.RecordingStopping)
			applyRecordingEvent(s, tc.ev)
			if s.RecordingURL != tc.want {
				t.Errorf("recording URL = %q, want %q", s.RecordingURL, tc.want)
			}
		})
	}
}

func TestRecordingEventKeepsFirstRecordingID(t *testing.T) {
	s := sessionInState(models.RecordingNone)

	applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-starting", RecordingID: "rec-1"})
	if s.RecordingID != "rec-1" {
		t.Fatalf("recording ID = %q, want rec-1", s.RecordingID)
	}

	applyRecordingEvent(s, RecordingEvent{WebhookType: "hls-started", RecordingID: "rec-1"})
	if s.RecordingID != "rec-1" {
		t.Errorf("recording ID changed to %q", s.RecordingID)
	}
}

func TestRecordingEventLegacyDottedNames(t *testing.T) {
	s := sessionInState(models.RecordingNone)

	if !applyRecordingEvent(s, RecordingEvent{WebhookType: "hls.started"}) {
		t.Fatal("legacy dotted event did not apply")
	}
	if s.RecordingStatus != models.RecordingActive {
		t.Errorf("status = %s, want active", s.RecordingStatus)
	}
}

func TestRecordingEventUnknownType(t *testing.T) {
	s := sessionInState(models.RecordingActive)

	for _, webhookType := range []string{"participant-joined", "session-ended", "some-new-event"} {
		if applyRecordingEvent(s, RecordingEvent{WebhookType: webhookType}) {
			t.Errorf("%s applied", webhookType)
		}
	}
	if s.RecordingStatus != models.RecordingActive {
		t.Errorf("status = %s, want active", s.RecordingStatus)
	}
}
