package database

import (
	"log"

	"github.com/aquaparkhq/booking-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewPostgresDB(dsn string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Booking{}, &models.SequenceCounter{}, &models.WebhookEvent{}); err != nil {
		log.Fatalf("failed to auto-migrate: %v", err)
	}

	// Partial unique index: one booking per merchant order ref. Cash
	// bookings carry no ref and stay out of the index.
	db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_booking_merchant_order
		ON bookings (merchant_order_id)
		WHERE merchant_order_id <> ''
	`)

	return db
}
