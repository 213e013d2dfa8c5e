package dto

import "time"

type CreateBookingRequest struct {
	ParkID        uint      `json:"park_id"`
	CustomerName  string    `json:"customer_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	VisitDate     time.Time `json:"visit_date"`
	Adults        int       `json:"adults"`
	Children      int       `json:"children"`
	TotalAmount   float64   `json:"total_amount"`
	AdvanceAmount float64   `json:"advance_amount"`
	PaymentMethod string    `json:"payment_method"`
	RedirectURL   string    `json:"redirect_url,omitempty"`
}

type UpdateBookingRequest struct {
	CustomerName *string    `json:"customer_name,omitempty"`
	Email        *string    `json:"email,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	VisitDate    *time.Time `json:"visit_date,omitempty"`
	Adults       *int       `json:"adults,omitempty"`
	Children     *int       `json:"children,omitempty"`
}

type VerifyPaymentRequest struct {
	OrderID string `json:"order_id"`
}

type InitiatePaymentRequest struct {
	RedirectURL string `json:"redirect_url,omitempty"`
}
