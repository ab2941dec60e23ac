package availability

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AvailabilityHandler struct {
	db       *gorm.DB
	logger   *zap.Logger
	validate *validator.Validate
}

func NewAvailabilityHandler(db *gorm.DB, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{db: db, logger: logger, validate: validator.New()}
}

func (h *AvailabilityHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/mentors/{mentorId}/availability", h.CreateWindow).Methods("POST")
	router.HandleFunc("/mentors/{mentorId}/availability", h.GetWindows).Methods("GET")
	router.HandleFunc("/mentors/{mentorId}/availability/{id}", h.UpdateWindow).Methods("PUT")
	router.HandleFunc("/mentors/{mentorId}/availability/{id}", h.DeleteWindow).Methods("DELETE")
	router.HandleFunc("/mentors/{mentorId}/unavailability", h.CreateUnavailability).Methods("POST")
	router.HandleFunc("/mentors/{mentorId}/unavailability", h.GetUnavailability).Methods("GET")
	router.HandleFunc("/mentors/{mentorId}/unavailability/{id}", h.DeleteUnavailability).Methods("DELETE")
	router.HandleFunc("/mentors/{mentorId}/calendar-settings", h.GetSettings).Methods("GET")
	router.HandleFunc("/mentors/{mentorId}/calendar-settings", h.UpdateSettings).Methods("PUT")
}

type windowRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required"` // "HH:MM" local to Timezone
	EndTime   string `json:"end_time" validate:"required"`
	Timezone  string `json:"timezone"`
	Active    *bool  `json:"is_active"`
}

func (req windowRequest) toWindow(mentorID uint) (*models.AvailabilityWindow, error) {
	startMinute, err := parseClock(req.StartTime)
	if err != nil {
		return nil, err
	}
	endMinute, err := parseClock(req.EndTime)
	if err != nil {
		return nil, err
	}
	if endMinute <= startMinute {
		return nil, apperrors.Validation("end_time must be after start_time")
	}

	tz := req.Timezone
	if tz == "" {
		tz = "America/Los_Angeles"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, apperrors.Validation(fmt.Sprintf("unknown timezone %q", tz))
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &models.AvailabilityWindow{
		MentorID:    mentorID,
		DayOfWeek:   req.DayOfWeek,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		Timezone:    tz,
		Active:      active,
	}, nil
}

func (h *AvailabilityHandler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation(err.Error()))
		return
	}

	window, err := req.toWindow(mentorID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	// Overlapping windows on the same weekday are rejected outright
	// instead of being merged.
	var existing models.AvailabilityWindow
	overlap := h.db.Where(
		"mentor_id = ? AND day_of_week = ? AND is_active = ? AND start_minute < ? AND end_minute > ?",
		mentorID, window.DayOfWeek, true, window.EndMinute, window.StartMinute,
	).First(&existing)
	if overlap.Error == nil {
		apperrors.WriteJSON(w, apperrors.Conflict("window overlaps an existing availability window"))
		return
	}
	if overlap.Error != gorm.ErrRecordNotFound {
		apperrors.WriteJSON(w, apperrors.Internal("checking window overlap", overlap.Error))
		return
	}

	if err := h.db.Create(window).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("creating availability window", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(window)
}

func (h *AvailabilityHandler) GetWindows(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	query := h.db.Where("mentor_id = ?", mentorID)
	if r.URL.Query().Get("include_inactive") != "true" {
		query = query.Where("is_active = ?", true)
	}

	var windows []models.AvailabilityWindow
	if err := query.Order("day_of_week, start_minute").Find(&windows).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving availability windows", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"availability": windows})
}

func (h *AvailabilityHandler) UpdateWindow(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	windowID, err := pathUint(r, "id")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var window models.AvailabilityWindow
	if dbErr := h.db.Where("mentor_id = ?", mentorID).First(&window, windowID).Error; dbErr != nil {
		apperrors.WriteJSON(w, apperrors.NotFound("availability window"))
		return
	}

	var req windowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	updated, err := req.toWindow(mentorID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	window.DayOfWeek = updated.DayOfWeek
	window.StartMinute = updated.StartMinute
	window.EndMinute = updated.EndMinute
	window.Timezone = updated.Timezone
	window.Active = updated.Active

	if err := h.db.Save(&window).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("updating availability window", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(window)
}

func (h *AvailabilityHandler) DeleteWindow(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, &models.AvailabilityWindow{}, "availability window")
}

type unavailabilityRequest struct {
	StartAt time.Time `json:"start_datetime" validate:"required"`
	EndAt   time.Time `json:"end_datetime" validate:"required"`
	Reason  string    `json:"reason" validate:"max=255"`
}

func (h *AvailabilityHandler) CreateUnavailability(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var req unavailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation(err.Error()))
		return
	}
	if !req.StartAt.Before(req.EndAt) {
		apperrors.WriteJSON(w, apperrors.Validation("end_datetime must be after start_datetime"))
		return
	}

	period := models.UnavailabilityPeriod{
		MentorID: mentorID,
		StartAt:  req.StartAt.UTC(),
		EndAt:    req.EndAt.UTC(),
		Reason:   req.Reason,
	}
	if err := h.db.Create(&period).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("creating unavailability period", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(period)
}

func (h *AvailabilityHandler) GetUnavailability(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	query := h.db.Where("mentor_id = ?", mentorID)
	if from := r.URL.Query().Get("from"); from != "" {
		query = query.Where("end_datetime > ?", from)
	}

	var periods []models.UnavailabilityPeriod
	if err := query.Order("start_datetime").Find(&periods).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving unavailability periods", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"unavailability": periods})
}

func (h *AvailabilityHandler) DeleteUnavailability(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, &models.UnavailabilityPeriod{}, "unavailability period")
}

// GetSettings returns the mentor's calendar settings, creating the
// default row on first access. Slot generation reads settings through a
// different path that reports missing settings instead of defaulting, so
// a mentor is never bookable before visiting their calendar setup.
func (h *AvailabilityHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	settings, appErr := h.settingsOrDefault(mentorID)
	if appErr != nil {
		apperrors.WriteJSON(w, appErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

type settingsRequest struct {
	SessionDurationMinutes int    `json:"session_duration" validate:"min=15,max=480"`
	BufferMinutes          int    `json:"buffer_time" validate:"min=0,max=120"`
	AdvanceBookingDays     int    `json:"advance_booking_days" validate:"min=1,max=365"`
	MinimumNoticeHours     int    `json:"minimum_notice_hours" validate:"min=0,max=168"`
	Timezone               string `json:"timezone" validate:"required"`
}

func (h *AvailabilityHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation(err.Error()))
		return
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation(fmt.Sprintf("unknown timezone %q", req.Timezone)))
		return
	}

	settings, appErr := h.settingsOrDefault(mentorID)
	if appErr != nil {
		apperrors.WriteJSON(w, appErr)
		return
	}

	settings.SessionDurationMinutes = req.SessionDurationMinutes
	settings.BufferMinutes = req.BufferMinutes
	settings.AdvanceBookingDays = req.AdvanceBookingDays
	settings.MinimumNoticeHours = req.MinimumNoticeHours
	settings.Timezone = req.Timezone

	if err := h.db.Save(settings).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("updating calendar settings", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

func (h *AvailabilityHandler) settingsOrDefault(mentorID uint) (*models.CalendarSettings, *apperrors.AppError) {
	var settings models.CalendarSettings
	err := h.db.Where("mentor_id = ?", mentorID).First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, apperrors.Internal("retrieving calendar settings", err)
	}

	settings = models.DefaultCalendarSettings(mentorID)
	if err := h.db.Create(&settings).Error; err != nil {
		return nil, apperrors.Internal("creating default calendar settings", err)
	}
	h.logger.Info("created default calendar settings", zap.Uint("mentor_id", mentorID))
	return &settings, nil
}

func (h *AvailabilityHandler) deleteByID(w http.ResponseWriter, r *http.Request, model interface{}, name string) {
	mentorID, err := pathUint(r, "mentorId")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	id, err := pathUint(r, "id")
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	result := h.db.Where("mentor_id = ?", mentorID).Delete(model, id)
	if result.Error != nil {
		apperrors.WriteJSON(w, apperrors.Internal("deleting "+name, result.Error))
		return
	}
	if result.RowsAffected == 0 {
		apperrors.WriteJSON(w, apperrors.NotFound(name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseClock converts "HH:MM" to minutes from midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, apperrors.Validation(fmt.Sprintf("invalid time %q, expected HH:MM", s))
	}
	return t.Hour()*60 + t.Minute(), nil
}

func pathUint(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, apperrors.Validation("invalid " + name)
	}
	return uint(id), nil
}
