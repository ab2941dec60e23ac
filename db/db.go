package db

import (
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPSQLStorage opens the postgres connection from DB_URL and tunes the
// pool. Callers load .env themselves before this runs.
func NewPSQLStorage() (*gorm.DB, error) {
	connString := os.Getenv("DB_URL")

	db, err := gorm.Open(postgres.Open(connString), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(25)

	return db, nil
}
