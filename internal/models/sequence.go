package models

// SequenceCounter holds one monotonically increasing counter per namespace.
// Booking codes are minted from the "booking" namespace.
type SequenceCounter struct {
	Namespace string `gorm:"primaryKey;type:varchar(50)"`
	Value     int64  `gorm:"not null"`
}
