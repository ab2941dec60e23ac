package session

import (
	"strings"

	"github.com/devmentor/devmentor-server/cmd/models"
)

// RecordingEvent is a provider callback normalized to our recording
// state machine. The provider delivers webhooks at-least-once and in no
// guaranteed order.
type RecordingEvent struct {
	WebhookType string
	MeetingID   string
	RecordingID string

	PlaybackHLSURL string
	DownstreamURL  string
	DownloadURL    string
}

// webhookTargets maps provider webhook types to the recording state they
// assert. Both the HLS and legacy recording event families are accepted.
var webhookTargets = map[string]models.RecordingStatus{
	"hls-starting":        models.RecordingStarting,
	"hls-started":         models.RecordingActive,
	"hls-playable":        models.RecordingActive,
	"hls-stopping":        models.RecordingStopping,
	"hls-stopped":         models.RecordingCompleted,
	"hls-failed":          models.RecordingFailed,
	"recording-starting":  models.RecordingStarting,
	"recording-started":   models.RecordingActive,
	"recording-stopping":  models.RecordingStopping,
	"recording-stopped":   models.RecordingCompleted,
	"recording-failed":    models.RecordingFailed,
	"participant-left":    "",
	"participant-joined":  "",
	"session-started":     "",
	"session-ended":       "",
}

// targetStatus resolves a webhook type to a recording state. The second
// return is false for unknown or recording-irrelevant types, which the
// caller must acknowledge without changing anything. Older provider
// payloads spell the type with dots ("hls.started"), so those normalize
// to the dashed form first.
func (e RecordingEvent) targetStatus() (models.RecordingStatus, bool) {
	key := strings.ReplaceAll(strings.ToLower(e.WebhookType), ".", "-")
	target, ok := webhookTargets[key]
	if !ok || target == "" {
		return "", false
	}
	return target, true
}

// recordingURL picks the best playback URL the event carries. HLS
// playback beats the downstream URL, which beats the raw download.
func (e RecordingEvent) recordingURL() string {
	if e.PlaybackHLSURL != "" {
		return e.PlaybackHLSURL
	}
	if e.DownstreamURL != "" {
		return e.DownstreamURL
	}
	return e.DownloadURL
}

// applyRecordingEvent advances the session's recording state and returns
// whether anything changed. Duplicates and stale out-of-order callbacks
// are no-ops: a state only applies when its rank exceeds the current
// one. A failure event applies from any non-terminal state, so an
// in-flight recording can fail, but a completed one can never be
// retroactively failed (nor a failed one completed).
func applyRecordingEvent(s *models.VideoSession, ev RecordingEvent) bool {
	target, ok := ev.targetStatus()
	if !ok {
		return false
	}

	current := s.RecordingStatus
	switch {
	case target == models.RecordingFailed:
		if current.Terminal() {
			return false
		}
	case target.Rank() <= current.Rank():
		return false
	}

	s.RecordingStatus = target
	if ev.RecordingID != "" {
		s.RecordingID = ev.RecordingID
	}
	if url := ev.recordingURL(); url != "" && target == models.RecordingCompleted {
		s.RecordingURL = url
	}
	return true
}
