package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/calendar"
	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/devmentor/devmentor-server/service/scheduling"
	"github.com/devmentor/devmentor-server/videosdk"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MeetingScheduler provisions the session room during confirmation.
type MeetingScheduler interface {
	CreateMeeting(ctx context.Context, description string, durationMinutes int) (*videosdk.Meeting, error)
}

// ConfirmationMailer sends the booking confirmation with calendar links.
type ConfirmationMailer interface {
	SendBookingConfirmation(b *models.Booking, mentor, customer *models.User, links calendar.Links) error
}

// Pusher delivers best-effort push notifications; failures are logged,
// never propagated.
type Pusher interface {
	PushToUser(userID uint, title, body string, data map[string]interface{})
}

type Handler struct {
	svc      *Service
	db       *gorm.DB
	meetings MeetingScheduler
	mailer   ConfirmationMailer
	pusher   Pusher
	logger   *zap.Logger
	validate *validator.Validate
}

func NewHandler(svc *Service, db *gorm.DB, meetings MeetingScheduler, mailer ConfirmationMailer, pusher Pusher, logger *zap.Logger) *Handler {
	return &Handler{
		svc:      svc,
		db:       db,
		meetings: meetings,
		mailer:   mailer,
		pusher:   pusher,
		logger:   logger,
		validate: validator.New(),
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/claim", h.ClaimSlot).Methods("POST")
	router.HandleFunc("/bookings/{id}", h.GetBooking).Methods("GET")
	router.HandleFunc("/bookings/{id}/confirm", h.Confirm).Methods("PATCH")
	router.HandleFunc("/bookings/{id}/cancel", h.Cancel).Methods("PATCH")
	router.HandleFunc("/bookings/{id}/complete", h.Complete).Methods("PATCH")
	router.HandleFunc("/bookings/{id}/refund", h.Refund).Methods("PATCH")
	router.HandleFunc("/bookings/{id}/payment", h.MarkPaid).Methods("PATCH")
	router.HandleFunc("/bookings/mentor/{mentorId}", h.GetMentorBookings).Methods("GET")
	router.HandleFunc("/bookings/customer/{customerId}", h.GetCustomerBookings).Methods("GET")
}

type claimRequest struct {
	MentorID   uint      `json:"mentor_id" validate:"required"`
	CustomerID uint      `json:"customer_id" validate:"required"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	Payment    *struct {
		Reference string  `json:"reference" validate:"required"`
		Amount    float64 `json:"amount" validate:"gt=0"`
		Verified  bool    `json:"verified"`
	} `json:"payment"`
}

// ClaimSlot books the chosen interval. On a lost race the response is a
// 409 and the client must re-query slots and pick another time.
func (h *Handler) ClaimSlot(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation(err.Error()))
		return
	}

	var proof *PaymentProof
	if req.Payment != nil {
		proof = &PaymentProof{
			Reference: req.Payment.Reference,
			Amount:    req.Payment.Amount,
			Verified:  req.Payment.Verified,
		}
	}

	b, err := h.svc.ClaimSlot(r.Context(), req.MentorID, req.CustomerID,
		scheduling.Slot{Start: req.Start, End: req.End}, proof)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(b)
}

// Confirm provisions the meeting room, mails both parties the invite
// with calendar links, then moves the booking to CONFIRMED. A failed
// side effect leaves the booking PAID with the manual follow-up flag.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	bookingID, err := h.pathID(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	b, err := h.svc.Confirm(r.Context(), bookingID, func(b *models.Booking) error {
		var mentor, customer models.User
		if err := h.db.First(&mentor, b.MentorID).Error; err != nil {
			return fmt.Errorf("loading mentor: %w", err)
		}
		if err := h.db.First(&customer, b.CustomerID).Error; err != nil {
			return fmt.Errorf("loading customer: %w", err)
		}

		duration := int(b.SessionEnd.Sub(b.SessionStart).Minutes())
		description := fmt.Sprintf("Mentoring session: %s with %s", mentor.FullName(), customer.FullName())
		meeting, err := h.meetings.CreateMeeting(r.Context(), description, duration)
		if err != nil {
			return err
		}
		b.MeetingID = meeting.MeetingID
		b.MeetingURL = meeting.JoinURL

		links := calendar.ForEvent(calendar.Event{
			Title:       description,
			Start:       b.SessionStart,
			End:         b.SessionEnd,
			Description: "Join: " + meeting.JoinURL,
			Location:    meeting.JoinURL,
		})
		if h.mailer != nil {
			if err := h.mailer.SendBookingConfirmation(b, &mentor, &customer, links); err != nil {
				return fmt.Errorf("sending confirmation email: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	if h.pusher != nil {
		h.pusher.PushToUser(b.CustomerID, "Booking confirmed",
			"Your mentoring session is confirmed.",
			map[string]interface{}{"booking_id": b.ID, "meeting_url": b.MeetingURL})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	bookingID, err := h.pathID(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var req struct {
		By string `json:"by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}
	by := ByCustomer
	switch req.By {
	case "customer":
	case "mentor":
		by = ByMentor
	default:
		apperrors.WriteJSON(w, apperrors.Validation(`"by" must be "customer" or "mentor"`))
		return
	}

	b, err := h.svc.Cancel(r.Context(), bookingID, by)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Complete)
}

func (h *Handler) Refund(w http.ResponseWriter, r *http.Request) {
	h.simpleTransition(w, r, h.svc.Refund)
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	bookingID, err := h.pathID(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var req struct {
		Reference string  `json:"reference"`
		Amount    float64 `json:"amount"`
		Verified  bool    `json:"verified"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid request body"))
		return
	}

	b, err := h.svc.MarkPaid(r.Context(), bookingID, PaymentProof(req))
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, err := h.pathID(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}

	var b models.Booking
	if err := h.db.Preload("Mentor").Preload("Customer").First(&b, bookingID).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.NotFound("booking"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) GetMentorBookings(w http.ResponseWriter, r *http.Request) {
	h.listBookings(w, r, "mentor_id", mux.Vars(r)["mentorId"], "Customer")
}

func (h *Handler) GetCustomerBookings(w http.ResponseWriter, r *http.Request) {
	h.listBookings(w, r, "customer_id", mux.Vars(r)["customerId"], "Mentor")
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request, column, rawID, preload string) {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid user ID"))
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize := 100

	query := h.db.Model(&models.Booking{}).Where(column+" = ?", id).Preload(preload)
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	query.Count(&total)

	var bookings []models.Booking
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).
		Order("session_start_time DESC").Find(&bookings).Error; err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving bookings", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"bookings":    bookings,
		"total":       total,
		"page":        page,
		"page_size":   pageSize,
		"total_pages": (total + int64(pageSize) - 1) / int64(pageSize),
	})
}

func (h *Handler) simpleTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, uint) (*models.Booking, error)) {
	bookingID, err := h.pathID(r)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	b, err := fn(r.Context(), bookingID)
	if err != nil {
		apperrors.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(b)
}

func (h *Handler) pathID(r *http.Request) (uint, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.Validation("invalid booking ID")
	}
	return uint(id), nil
}
