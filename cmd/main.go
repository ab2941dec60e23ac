package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/devmentor/devmentor-server/cmd/api"
	"github.com/devmentor/devmentor-server/cmd/models"
	"github.com/devmentor/devmentor-server/db"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment")
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations()
			return
		case "clear-db":
			runDatabaseClear()
			return
		default:
			log.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer()
}

func newLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if os.Getenv("ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("Logger initialization error: %v", err)
	}
	return logger
}

func runMigrations() {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB)
	log.Println("Connected to the database for migrations")

	if err := performMigrations(DB); err != nil {
		log.Fatalf("Migration error: %v", err)
	}
	log.Println("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB) error {
	migrations := map[interface{}]string{
		&models.User{}:                 "User",
		&models.AvailabilityWindow{}:   "AvailabilityWindow",
		&models.UnavailabilityPeriod{}: "UnavailabilityPeriod",
		&models.CalendarSettings{}:     "CalendarSettings",
		&models.Booking{}:              "Booking",
		&models.VideoSession{}:         "VideoSession",
		&models.Device{}:               "Device",
		&models.NotificationHistory{}:  "NotificationHistory",
	}

	log.Println("Starting database migrations...")
	for model, name := range migrations {
		log.Printf("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Printf("%s migration successful", name)
	}

	log.Println("Ensuring booking overlap exclusion constraint...")
	if err := DB.Exec("CREATE EXTENSION IF NOT EXISTS btree_gist").Error; err != nil {
		return fmt.Errorf("error creating btree_gist extension: %w", err)
	}
	constraint := `
DO $$
BEGIN
	ALTER TABLE bookings ADD CONSTRAINT bookings_no_blocking_overlap
		EXCLUDE USING gist (
			mentor_id WITH =,
			tstzrange(session_start_time, session_end_time) WITH &&
		) WHERE (status IN ('PAID', 'CONFIRMED'));
EXCEPTION
	WHEN duplicate_object THEN NULL;
	WHEN duplicate_table THEN NULL;
END $$;
`
	if err := DB.Exec(constraint).Error; err != nil {
		return fmt.Errorf("error creating booking overlap constraint: %w", err)
	}
	return nil
}

func runDatabaseClear() {
	if strings.ToLower(os.Getenv("ALLOW_DB_CLEAR")) != "true" {
		log.Fatal("Refusing to clear database: set ALLOW_DB_CLEAR=true to confirm")
	}

	DB, err := db.NewPSQLStorage()
	if err != nil {
		log.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB)

	tables := []string{
		"notification_history",
		"devices",
		"video_sessions",
		"bookings",
		"calendar_settings",
		"mentor_unavailability",
		"mentor_availability",
		"users",
	}
	for _, table := range tables {
		if err := DB.Exec("DROP TABLE IF EXISTS " + table + " CASCADE").Error; err != nil {
			log.Fatalf("Error dropping table %s: %v", table, err)
		}
		log.Printf("Dropped table %s", table)
	}
	log.Println("Database cleared")
}

func startServer() {
	logger := newLogger()
	defer logger.Sync()

	DB, err := db.NewPSQLStorage()
	if err != nil {
		logger.Fatal("database initialization error", zap.Error(err))
	}
	defer closeDB(DB)
	logger.Info("connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewApiServer(":"+port, DB, logger)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down")
	if reminders := server.Reminders(); reminders != nil {
		reminders.Stop()
	}
}

func closeDB(DB *gorm.DB) {
	sqlDB, err := DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	log.Println("Database connection closed")
}
