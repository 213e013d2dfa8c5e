package models

import "time"

// WebhookEvent is an audit record of every gateway callback delivery,
// including rejected ones. Recording it is best effort and never blocks
// the reconciliation itself.
type WebhookEvent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	EventType       string    `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Payload         string    `gorm:"type:text;not null" json:"payload"`
	SignatureValid  bool      `gorm:"not null;default:false" json:"signature_valid"`
	BookingCode     string    `gorm:"type:varchar(20);index" json:"booking_code"`
	ProcessingError string    `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time `json:"created_at"`
}
