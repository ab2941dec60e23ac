package session

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/cmd/utils"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Handler struct {
	manager *Manager
	db      *gorm.DB
	logger  *zap.Logger
}

func NewHandler(manager *Manager, db *gorm.DB, logger *zap.Logger) *Handler {
	return &Handler{manager: manager, db: db, logger: logger}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/sessions", utils.AuthMiddleware(h.CreateSession)).Methods("POST")
	router.HandleFunc("/sessions/my", utils.AuthMiddleware(h.MySessions)).Methods("GET")
	router.HandleFunc("/sessions/join/{meetingId}", h.JoinSession).Methods("GET")
	router.HandleFunc("/sessions/{meetingId}/status", h.SessionStatus).Methods("GET")
	router.HandleFunc("/sessions/{id}/end", utils.AuthMiddleware(h.EndSession)).Methods("POST")
	router.HandleFunc("/sessions/{meetingId}/recording/start", utils.AuthMiddleware(h.StartRecording)).Methods("POST")
	router.HandleFunc("/sessions/{meetingId}/recording/stop", utils.AuthMiddleware(h.StopRecording)).Methods("POST")
	router.HandleFunc("/recordings/my", utils.AuthMiddleware(h.MyRecordings)).Methods("GET")
	router.HandleFunc("/videosdk/webhook", h.Webhook).Methods("POST")
	router.HandleFunc("/videosdk/webhook", h.WebhookProbe).Methods("GET")
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var req struct {
		BookingID   *uint  `json:"booking_id"`
		Description string `json:"description"`
	}
	// An empty body is fine; every field is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}

	s, err := h.manager.CreateSession(r.Context(), user, req.BookingID, req.Description)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":       s,
		"meeting_token": s.MeetingToken,
	})
}

func (h *Handler) MySessions(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Unauthorized("authentication required"))
		return
	}

	sessions, err := h.manager.ListByCreator(r.Context(), userID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"sessions": sessions})
}

// JoinSession is reachable without authentication: booking customers
// follow the emailed link and join as guests with a join-only token.
func (h *Handler) JoinSession(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]

	s, token, err := h.manager.Join(r.Context(), meetingID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"meeting_id":           s.MeetingID,
		"token":                token,
		"max_duration_minutes": s.MaxDurationMinutes,
		"recording_status":     s.RecordingStatus,
	})
}

func (h *Handler) SessionStatus(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]

	s, err := h.manager.GetByMeetingID(r.Context(), meetingID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"meeting_id":       s.MeetingID,
		"status":           s.Status,
		"expires_at":       s.ExpiresAt,
		"recording_status": s.RecordingStatus,
		"recording_url":    s.RecordingURL,
	})
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Unauthorized("authentication required"))
		return
	}

	rawID, parseErr := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if parseErr != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid session ID"))
		return
	}

	s, err := h.manager.End(r.Context(), uint(rawID), userID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

// StartRecording is limited to premium creators; recording is a paid
// feature even though any creator can hold sessions.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	if !user.IsPremium() {
		apperrors.WriteJSON(w, apperrors.Forbidden("recording requires a premium subscription"))
		return
	}

	s, err := h.manager.StartRecording(r.Context(), mux.Vars(r)["meetingId"], user.ID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	user, err := h.currentUser(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	s, err := h.manager.StopRecording(r.Context(), mux.Vars(r)["meetingId"], user.ID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}

func (h *Handler) MyRecordings(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Unauthorized("authentication required"))
		return
	}

	sessions, err := h.manager.ListRecordings(r.Context(), &userID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"recordings": sessions})
}

type webhookPayload struct {
	WebhookType string `json:"webhookType"`
	Event       string `json:"event"` // legacy payloads use "event" with dotted names
	Data        struct {
		MeetingID      string `json:"meetingId"`
		RoomID         string `json:"roomId"`
		SessionID      string `json:"sessionId"`
		ID             string `json:"id"`
		PlaybackHLSURL string `json:"playbackHlsUrl"`
		DownstreamURL  string `json:"downstreamUrl"`
		DownloadURL    string `json:"downloadUrl"`
	} `json:"data"`
}

// Webhook ingests provider callbacks. It answers 200 for everything it
// can parse, including unknown event types, so the provider does not
// retry events we have chosen to ignore.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid webhook payload"))
		return
	}

	webhookType := payload.WebhookType
	if webhookType == "" {
		webhookType = payload.Event
	}
	meetingID := payload.Data.MeetingID
	if meetingID == "" {
		meetingID = payload.Data.RoomID
	}
	recordingID := payload.Data.SessionID
	if recordingID == "" {
		recordingID = payload.Data.ID
	}

	ev := RecordingEvent{
		WebhookType:    webhookType,
		MeetingID:      meetingID,
		RecordingID:    recordingID,
		PlaybackHLSURL: payload.Data.PlaybackHLSURL,
		DownstreamURL:  payload.Data.DownstreamURL,
		DownloadURL:    payload.Data.DownloadURL,
	}
	if err := h.manager.HandleWebhook(r.Context(), ev); err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "received"})
}

// WebhookProbe answers provider reachability checks.
func (h *Handler) WebhookProbe(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Handler) currentUser(r *http.Request) (*models.User, error) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		return nil, apperrors.Unauthorized("authentication required")
	}
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return nil, apperrors.NotFound("user")
	}
	return &user, nil
}
