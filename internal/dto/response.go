package dto

import (
	"time"

	"github.com/aquaparkhq/booking-backend/internal/models"
)

type BookingResponse struct {
	ID            uint                 `json:"id"`
	BookingCode   string               `json:"booking_code"`
	ParkID        uint                 `json:"park_id"`
	CustomerName  string               `json:"customer_name"`
	Email         string               `json:"email"`
	Phone         string               `json:"phone"`
	VisitDate     time.Time            `json:"visit_date"`
	Adults        int                  `json:"adults"`
	Children      int                  `json:"children"`
	TotalAmount   float64              `json:"total_amount"`
	AdvanceAmount float64              `json:"advance_amount"`
	LeftAmount    float64              `json:"left_amount"`
	PaymentStatus models.PaymentStatus `json:"payment_status"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	PaymentID     string               `json:"payment_id,omitempty"`
	TicketURL     *string              `json:"ticket_url,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

type CreateBookingResponse struct {
	BookingResponse
	RedirectURL string `json:"redirect_url,omitempty"`
}

type WebhookResponse struct {
	Status      string `json:"status"`
	BookingCode string `json:"booking_code,omitempty"`
	Applied     bool   `json:"applied"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func ToBookingResponse(b *models.Booking) BookingResponse {
	return BookingResponse{
		ID:            b.ID,
		BookingCode:   b.BookingCode,
		ParkID:        b.ParkID,
		CustomerName:  b.CustomerName,
		Email:         b.Email,
		Phone:         b.Phone,
		VisitDate:     b.VisitDate,
		Adults:        b.Adults,
		Children:      b.Children,
		TotalAmount:   b.TotalAmount,
		AdvanceAmount: b.AdvanceAmount,
		LeftAmount:    b.LeftAmount,
		PaymentStatus: b.PaymentStatus,
		PaymentMethod: b.PaymentMethod,
		PaymentID:     b.PaymentID,
		TicketURL:     b.TicketURL,
		CreatedAt:     b.CreatedAt,
	}
}
