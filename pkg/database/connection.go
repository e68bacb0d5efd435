// Package database opens the shared GORM postgres connection.
package database

import (
	"fmt"

	"github.com/finsight/scripts-backend/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection builds a DSN from raw config values and opens the
// connection. Every field except the password falls back to a
// local-development default; an empty password is valid locally.
func NewConnection(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		orDefault(cfg.Host, "localhost"),
		orDefault(cfg.User, "postgres"),
		cfg.Password,
		orDefault(cfg.DBName, "scripts"),
		orDefault(cfg.Port, "5432"),
		orDefault(cfg.SSLMode, "disable"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
