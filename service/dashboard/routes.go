package dashboard

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/cmd/utils"
	"github.com/devmentor/devmentor-server/service/apperrors"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type DashboardHandler struct {
	db *gorm.DB
}

func NewDashboardHandler(db *gorm.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

func (h *DashboardHandler) RegisterRoutes(router *mux.Router) {
	dashboardRouter := router.PathPrefix("/dashboard").Subrouter()
	dashboardRouter.HandleFunc("/stats", utils.AuthMiddleware(h.GetPlatformStats)).Methods("GET")
	dashboardRouter.HandleFunc("/mentors/{mentorId}", utils.AuthMiddleware(h.GetMentorDashboard)).Methods("GET")
}

type PlatformStats struct {
	TotalMentors      int64   `json:"total_mentors"`
	TotalCustomers    int64   `json:"total_customers"`
	ConfirmedBookings int64   `json:"confirmed_bookings"`
	PlatformRevenue   float64 `json:"platform_revenue"`
}

func (h *DashboardHandler) GetPlatformStats(w http.ResponseWriter, r *http.Request) {
	var stats PlatformStats

	h.db.Model(&models.User{}).Where("role = ?", models.RoleMentor).Count(&stats.TotalMentors)
	h.db.Model(&models.User{}).Where("role = ?", models.RoleCustomer).Count(&stats.TotalCustomers)
	h.db.Model(&models.Booking{}).
		Where("status = ?", models.BookingConfirmed).
		Count(&stats.ConfirmedBookings)
	h.db.Model(&models.Booking{}).
		Where("status IN ?", []models.BookingStatus{models.BookingConfirmed, models.BookingCompleted}).
		Select("COALESCE(SUM(platform_fee), 0)").
		Scan(&stats.PlatformRevenue)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type MentorDashboard struct {
	UpcomingBookings  []models.Booking `json:"upcoming_bookings"`
	CompletedSessions int64            `json:"completed_sessions"`
	PendingFollowUps  int64            `json:"pending_follow_ups"`
	TotalEarnings     float64          `json:"total_earnings"`
}

func (h *DashboardHandler) GetMentorDashboard(w http.ResponseWriter, r *http.Request) {
	mentorID, err := strconv.ParseUint(mux.Vars(r)["mentorId"], 10, 64)
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Validation("invalid mentor ID"))
		return
	}

	var dashboard MentorDashboard
	now := time.Now().UTC()

	err = h.db.Where("mentor_id = ? AND status IN ? AND session_start_time > ?",
		mentorID,
		[]models.BookingStatus{models.BookingPaid, models.BookingConfirmed},
		now).
		Preload("Customer").
		Order("session_start_time").
		Limit(10).
		Find(&dashboard.UpcomingBookings).Error
	if err != nil {
		apperrors.WriteJSON(w, apperrors.Internal("retrieving upcoming bookings", err))
		return
	}

	h.db.Model(&models.Booking{}).
		Where("mentor_id = ? AND status = ?", mentorID, models.BookingCompleted).
		Count(&dashboard.CompletedSessions)
	h.db.Model(&models.Booking{}).
		Where("mentor_id = ? AND manual_follow_up = ? AND status = ?",
			mentorID, true, models.BookingPaid).
		Count(&dashboard.PendingFollowUps)
	h.db.Model(&models.Booking{}).
		Where("mentor_id = ? AND status = ?", mentorID, models.BookingCompleted).
		Select("COALESCE(SUM(mentor_payout), 0)").
		Scan(&dashboard.TotalEarnings)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dashboard)
}
