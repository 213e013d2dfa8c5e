// Package notification fans booking confirmations out to the side-channel
// workers (SMS, WhatsApp, email) over RabbitMQ. Delivery is best effort:
// every outcome is logged independently and no failure ever reaches the
// reconciliation path that triggered it.
package notification

import (
	"log"
	"sync"
	"time"

	"github.com/aquaparkhq/booking-backend/internal/models"
	"github.com/aquaparkhq/booking-backend/pkg/rabbitmq"
)

const (
	RouteSMS        = "booking.sms"
	RouteWhatsApp   = "booking.whatsapp"
	RouteEmail      = "booking.email"
	RouteCommission = "booking.commission"
)

var confirmationRoutes = []string{RouteSMS, RouteWhatsApp, RouteEmail}

// Message is the payload the channel workers consume.
type Message struct {
	BookingCode   string    `json:"booking_code"`
	CustomerName  string    `json:"customer_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	VisitDate     time.Time `json:"visit_date"`
	Adults        int       `json:"adults"`
	Children      int       `json:"children"`
	TotalAmount   float64   `json:"total_amount"`
	AdvanceAmount float64   `json:"advance_amount"`
	LeftAmount    float64   `json:"left_amount"`
	PaymentStatus string    `json:"payment_status"`
	PaymentID     string    `json:"payment_id,omitempty"`
}

type AMQPDispatcher struct {
	publisher *rabbitmq.Publisher
}

func NewAMQPDispatcher(publisher *rabbitmq.Publisher) *AMQPDispatcher {
	return &AMQPDispatcher{publisher: publisher}
}

// DispatchConfirmation publishes the booking snapshot to every confirmation
// channel in parallel. Channel outcomes are independent; one failing never
// stops the others.
func (d *AMQPDispatcher) DispatchConfirmation(booking models.Booking) {
	msg := toMessage(booking)

	var wg sync.WaitGroup
	for _, route := range confirmationRoutes {
		wg.Add(1)
		go func(route string) {
			defer wg.Done()
			if err := d.publisher.Publish(route, msg); err != nil {
				log.Printf("[Notify] %s dispatch failed for %s: %v", route, booking.BookingCode, err)
				return
			}
			log.Printf("[Notify] %s dispatched for %s", route, booking.BookingCode)
		}(route)
	}
	wg.Wait()
}

// DispatchCommission hands the sale to the referral-commission worker.
func (d *AMQPDispatcher) DispatchCommission(booking models.Booking) {
	if err := d.publisher.Publish(RouteCommission, toMessage(booking)); err != nil {
		log.Printf("[Notify] commission dispatch failed for %s: %v", booking.BookingCode, err)
	}
}

func toMessage(b models.Booking) Message {
	return Message{
		BookingCode:   b.BookingCode,
		CustomerName:  b.CustomerName,
		Email:         b.Email,
		Phone:         b.Phone,
		VisitDate:     b.VisitDate,
		Adults:        b.Adults,
		Children:      b.Children,
		TotalAmount:   b.TotalAmount,
		AdvanceAmount: b.AdvanceAmount,
		LeftAmount:    b.LeftAmount,
		PaymentStatus: string(b.PaymentStatus),
		PaymentID:     b.PaymentID,
	}
}
