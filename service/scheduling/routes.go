package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// CalendarStore is the read side of the storage collaborator that slot
// generation needs. SettingsFor returns a NotConfigured error when the
// mentor has never set up a calendar; the public slot query must not
// invent defaults on the mentor's behalf.
type CalendarStore interface {
	SettingsFor(ctx context.Context, mentorID uint) (*models.CalendarSettings, error)
	ActiveWindows(ctx context.Context, mentorID uint) ([]models.AvailabilityWindow, error)
	UnavailabilityBetween(ctx context.Context, mentorID uint, from, to time.Time) ([]models.UnavailabilityPeriod, error)
	BlockingBookingsBetween(ctx context.Context, mentorID uint, from, to time.Time) ([]models.Booking, error)
}

type SlotHandler struct {
	store  CalendarStore
	logger *zap.Logger
	now    func() time.Time
}

func NewSlotHandler(store CalendarStore, logger *zap.Logger) *SlotHandler {
	return &SlotHandler{store: store, logger: logger, now: time.Now}
}

func (h *SlotHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/mentors/{mentorId}/slots", h.GetSlots).Methods("GET")
}

// GetSlots returns the bookable slots for a mentor over a date range.
// Defaults to today through the mentor's advance-booking horizon.
func (h *SlotHandler) GetSlots(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mentorID, err := strconv.ParseUint(vars["mentorId"], 10, 64)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid mentor ID"))
		return
	}

	now := h.now()
	startDate := now.UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		startDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			apperrors.WriteJSON(w, apperrors.Validation("invalid start_date, use YYYY-MM-DD"))
			return
		}
	}

	settings, err := h.store.SettingsFor(r.Context(), uint(mentorID))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	endDate := startDate.AddDate(0, 0, settings.AdvanceBookingDays)
	if raw := r.URL.Query().Get("end_date"); raw != "" {
		endDate, err = time.Parse("2006-01-02", raw)
		if err != nil {
			apperrors.WriteJSON(w, apperrors.Validation("invalid end_date, use YYYY-MM-DD"))
			return
		}
	}

	data, err := h.loadCalendar(r.Context(), uint(mentorID), *settings, startDate, endDate)
	if err != nil {
		h.logger.Error("loading calendar data failed",
			zap.Uint64("mentor_id", mentorID), zap.Error(err))
		apperrors.WriteJSON(w, err)
		return
	}

	slots, err := GenerateSlots(*data, startDate, endDate, now)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	if slots == nil {
		slots = []Slot{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"mentor_id": mentorID,
		"timezone":  settings.Timezone,
		"slots":     slots,
		"total":     len(slots),
	})
}

// loadCalendar fetches windows, blackouts and blocking bookings with a
// day of margin each side, since localized windows can spill over the
// UTC date boundary.
func (h *SlotHandler) loadCalendar(ctx context.Context, mentorID uint, settings models.CalendarSettings, startDate, endDate time.Time) (*CalendarData, error) {
	from := startDate.AddDate(0, 0, -1)
	to := endDate.AddDate(0, 0, 2)

	windows, err := h.store.ActiveWindows(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	unavailability, err := h.store.UnavailabilityBetween(ctx, mentorID, from, to)
	if err != nil {
		return nil, err
	}
	bookings, err := h.store.BlockingBookingsBetween(ctx, mentorID, from, to)
	if err != nil {
		return nil, err
	}

	return &CalendarData{
		Settings:       settings,
		Windows:        windows,
		Unavailability: unavailability,
		Bookings:       bookings,
	}, nil
}
