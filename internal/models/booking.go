package models

import "time"

type PaymentStatus string

const (
	StatusPending   PaymentStatus = "Pending"
	StatusInitiated PaymentStatus = "Initiated"
	StatusCompleted PaymentStatus = "Completed"
	StatusFailed    PaymentStatus = "Failed"
)

// IsTerminal reports whether no further transition is expected from s.
// Failed is terminal but may still be superseded by a late Completed signal.
func (s PaymentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodOnline PaymentMethod = "online"
)

type Booking struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	BookingCode string `gorm:"type:varchar(20);not null;uniqueIndex" json:"booking_code"`
	ParkID      uint   `gorm:"not null;index" json:"park_id"`

	// Customer and visit details. Frozen once the payment completes.
	CustomerName  string    `gorm:"type:varchar(100);not null" json:"customer_name"`
	Email         string    `gorm:"type:varchar(120);not null" json:"email"`
	Phone         string    `gorm:"type:varchar(20);not null" json:"phone"`
	VisitDate     time.Time `gorm:"not null" json:"visit_date"`
	Adults        int       `gorm:"not null" json:"adults"`
	Children      int       `gorm:"not null;default:0" json:"children"`
	TotalAmount   float64   `gorm:"not null" json:"total_amount"`
	AdvanceAmount float64   `gorm:"not null" json:"advance_amount"`
	LeftAmount    float64   `gorm:"not null" json:"left_amount"`

	// Payment lifecycle. Owned by the reconciliation engine once set.
	PaymentStatus   PaymentStatus `gorm:"type:varchar(20);not null;default:'Pending';index" json:"payment_status"`
	PaymentMethod   PaymentMethod `gorm:"type:varchar(20);not null" json:"payment_method"`
	GatewayOrderID  string        `gorm:"type:varchar(100);index" json:"gateway_order_id,omitempty"`
	MerchantOrderID string        `gorm:"type:varchar(100);index" json:"merchant_order_id,omitempty"`
	PaymentID       string        `gorm:"type:varchar(100)" json:"payment_id,omitempty"`

	// TicketURL may be re-derived after completion; it is the only field
	// outside the payment lifecycle that stays mutable on a Completed booking.
	TicketURL *string `gorm:"type:text" json:"ticket_url,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
