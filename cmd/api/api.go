package api

import (
	"context"
	"net/http"
	"os"

	"github.com/devmentor/devmentor-server/db"
	"github.com/devmentor/devmentor-server/mailer"
	"github.com/devmentor/devmentor-server/service/availability"
	"github.com/devmentor/devmentor-server/service/booking"
	"github.com/devmentor/devmentor-server/service/dashboard"
	"github.com/devmentor/devmentor-server/service/notifications"
	"github.com/devmentor/devmentor-server/service/reminder"
	"github.com/devmentor/devmentor-server/service/scheduling"
	"github.com/devmentor/devmentor-server/service/session"
	"github.com/devmentor/devmentor-server/service/user"
	"github.com/devmentor/devmentor-server/videosdk"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type APIServer struct {
	address string
	db      *gorm.DB
	logger  *zap.Logger

	reminders *reminder.Scheduler
}

func NewApiServer(address string, database *gorm.DB, logger *zap.Logger) *APIServer {
	return &APIServer{
		address: address,
		db:      database,
		logger:  logger,
	}
}

// Reminders exposes the reminder scheduler so main can stop it during
// shutdown. Valid after Run has been called.
func (s *APIServer) Reminders() *reminder.Scheduler {
	return s.reminders
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	mail := mailer.NewFromEnv(s.logger)
	provider := videosdk.NewClientFromEnv(s.logger)

	userHandler := user.NewHandler(s.db, s.logger)
	userHandler.RegisterRoutes(subrouter)

	availabilityHandler := availability.NewAvailabilityHandler(s.db, s.logger)
	availabilityHandler.RegisterRoutes(subrouter)

	slotHandler := scheduling.NewSlotHandler(db.NewCalendarStore(s.db), s.logger)
	slotHandler.RegisterRoutes(subrouter)

	notificationHandler := notifications.NewNotificationHandler(s.db, s.logger)
	notificationHandler.RegisterRoutes(subrouter)

	bookingService := booking.NewService(db.NewBookingLedger(s.db), s.logger)
	bookingHandler := booking.NewHandler(bookingService, s.db, provider, mail, notificationHandler, s.logger)
	bookingHandler.RegisterRoutes(subrouter)

	sessionManager := session.NewManager(db.NewSessionStore(s.db), provider, s.logger).
		WithPusher(notificationHandler)
	sessionHandler := session.NewHandler(sessionManager, s.db, s.logger)
	sessionHandler.RegisterRoutes(subrouter)

	dashboardHandler := dashboard.NewDashboardHandler(s.db)
	dashboardHandler.RegisterRoutes(subrouter)

	s.reminders = reminder.NewScheduler(s.db, mail, notificationHandler, s.logger)
	s.reminders.Start(context.Background())

	corsHandler := handlers.CORS(
		handlers.AllowedOrigins([]string{os.Getenv("FRONTEND_URL"), "*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	s.logger.Info("server running", zap.String("address", s.address))
	return http.ListenAndServe(s.address,
		handlers.RecoveryHandler()(corsHandler(router)))
}
