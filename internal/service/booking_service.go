package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aquaparkhq/booking-backend/internal/gateway"
	"github.com/aquaparkhq/booking-backend/internal/models"
	"github.com/aquaparkhq/booking-backend/internal/repository"
	"gorm.io/gorm"
)

// BookingSequence is the counter namespace booking codes are minted from.
const BookingSequence = "booking"

const bookingCodePrefix = "AQP"

// PaymentGateway is the slice of the gateway client the engine needs.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error)
	GetOrderStatus(ctx context.Context, merchantOrderID string) (*gateway.OrderStatus, error)
}

// Dispatcher delivers best-effort side effects after a booking is paid.
// Implementations absorb and log their own failures; nothing they do can
// reach back into the payment transaction.
type Dispatcher interface {
	DispatchConfirmation(booking models.Booking)
	DispatchCommission(booking models.Booking)
}

type CreateBookingInput struct {
	ParkID        uint
	CustomerName  string
	Email         string
	Phone         string
	VisitDate     time.Time
	Adults        int
	Children      int
	TotalAmount   float64
	AdvanceAmount float64
	PaymentMethod models.PaymentMethod
	RedirectURL   string
}

type UpdateBookingInput struct {
	CustomerName *string
	Email        *string
	Phone        *string
	VisitDate    *time.Time
	Adults       *int
	Children     *int
}

type CreateBookingResult struct {
	Booking     *models.Booking
	RedirectURL string
}

type PaymentResult struct {
	Booking     *models.Booking
	RedirectURL string
}

type BookingService interface {
	CreateBooking(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error)
	InitiatePayment(ctx context.Context, code, redirectURL string) (*PaymentResult, error)
	GetBooking(ctx context.Context, code string, anyStatus bool) (*models.Booking, error)
	UpdateBooking(ctx context.Context, code string, in UpdateBookingInput) (*models.Booking, error)
	ListBookings(ctx context.Context, parkID uint, status *models.PaymentStatus) ([]models.Booking, error)
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error)
	VerifyPayment(ctx context.Context, orderRef string) (*models.Booking, error)
	CheckStatus(ctx context.Context, code string) (*models.Booking, error)
}

type bookingService struct {
	bookingRepo   repository.BookingRepository
	sequenceRepo  repository.SequenceRepository
	webhookRepo   repository.WebhookEventRepository
	gateway       PaymentGateway
	dispatcher    Dispatcher
	webhookSecret []byte
}

func NewBookingService(
	bookingRepo repository.BookingRepository,
	sequenceRepo repository.SequenceRepository,
	webhookRepo repository.WebhookEventRepository,
	gw PaymentGateway,
	dispatcher Dispatcher,
	webhookSecret string,
) BookingService {
	return &bookingService{
		bookingRepo:   bookingRepo,
		sequenceRepo:  sequenceRepo,
		webhookRepo:   webhookRepo,
		gateway:       gw,
		dispatcher:    dispatcher,
		webhookSecret: []byte(webhookSecret),
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (*CreateBookingResult, error) {
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	seq, err := s.sequenceRepo.NextValue(ctx, BookingSequence)
	if err != nil {
		return nil, err
	}
	code := fmt.Sprintf("%s%d", bookingCodePrefix, seq)

	booking := &models.Booking{
		BookingCode:   code,
		ParkID:        in.ParkID,
		CustomerName:  strings.TrimSpace(in.CustomerName),
		Email:         strings.TrimSpace(in.Email),
		Phone:         strings.TrimSpace(in.Phone),
		VisitDate:     in.VisitDate,
		Adults:        in.Adults,
		Children:      in.Children,
		TotalAmount:   in.TotalAmount,
		AdvanceAmount: in.AdvanceAmount,
		LeftAmount:    in.TotalAmount - in.AdvanceAmount,
		PaymentStatus: models.StatusPending,
		PaymentMethod: in.PaymentMethod,
	}
	if in.PaymentMethod != models.MethodCash {
		booking.PaymentStatus = models.StatusInitiated
		booking.MerchantOrderID = code
	}

	if err := s.bookingRepo.Create(ctx, booking); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrCodeConflict
		}
		return nil, fmt.Errorf("persist booking: %w", err)
	}

	if in.PaymentMethod == models.MethodCash {
		// No async confirmation step follows for cash, so the booking is
		// eligible for notification right away.
		s.fireSideEffects(booking, false)
		return &CreateBookingResult{Booking: booking}, nil
	}

	redirect, err := s.createGatewayOrder(ctx, booking, in.RedirectURL)
	if err != nil {
		// The booking stays persisted; the client can retry the payment
		// step against the existing code.
		return nil, err
	}
	return &CreateBookingResult{Booking: booking, RedirectURL: redirect}, nil
}

// InitiatePayment (re)creates the gateway order for an existing booking,
// used when order creation failed during booking creation.
func (s *bookingService) InitiatePayment(ctx context.Context, code, redirectURL string) (*PaymentResult, error) {
	booking, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.StatusCompleted {
		return nil, ErrBookingImmutable
	}
	if booking.PaymentMethod == models.MethodCash {
		return nil, fmt.Errorf("%w: cash bookings have no payment order", ErrValidation)
	}

	redirect, err := s.createGatewayOrder(ctx, booking, redirectURL)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{Booking: booking, RedirectURL: redirect}, nil
}

func (s *bookingService) createGatewayOrder(ctx context.Context, booking *models.Booking, redirectURL string) (string, error) {
	order, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		MerchantOrderID: booking.MerchantOrderID,
		Amount:          int64(booking.AdvanceAmount * 100),
		RedirectURL:     redirectURL,
	})
	if err != nil {
		return "", s.translateGatewayError(err)
	}

	applied, err := s.bookingRepo.UpdateDetails(ctx, booking.ID, map[string]any{
		"gateway_order_id": order.OrderID,
		"payment_status":   models.StatusInitiated,
	})
	if err != nil {
		return "", fmt.Errorf("store gateway order ref: %w", err)
	}
	if !applied {
		// Completed in the meantime; the order just created will never be paid.
		return "", ErrBookingImmutable
	}
	booking.GatewayOrderID = order.OrderID
	booking.PaymentStatus = models.StatusInitiated
	return order.RedirectURL, nil
}

func (s *bookingService) GetBooking(ctx context.Context, code string, anyStatus bool) (*models.Booking, error) {
	booking, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if !anyStatus && booking.PaymentStatus != models.StatusCompleted {
		return nil, ErrBookingNotFound
	}
	return booking, nil
}

func (s *bookingService) UpdateBooking(ctx context.Context, code string, in UpdateBookingInput) (*models.Booking, error) {
	booking, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.StatusCompleted {
		return nil, ErrBookingImmutable
	}

	fields := map[string]any{}
	if in.CustomerName != nil {
		fields["customer_name"] = strings.TrimSpace(*in.CustomerName)
	}
	if in.Email != nil {
		fields["email"] = strings.TrimSpace(*in.Email)
	}
	if in.Phone != nil {
		fields["phone"] = strings.TrimSpace(*in.Phone)
	}
	if in.VisitDate != nil {
		fields["visit_date"] = *in.VisitDate
	}
	if in.Adults != nil {
		fields["adults"] = *in.Adults
	}
	if in.Children != nil {
		fields["children"] = *in.Children
	}
	if len(fields) == 0 {
		return booking, nil
	}

	applied, err := s.bookingRepo.UpdateDetails(ctx, booking.ID, fields)
	if err != nil {
		return nil, fmt.Errorf("update booking %s: %w", code, err)
	}
	if !applied {
		// Lost a race with a completing payment; the guard held the write back.
		return nil, ErrBookingImmutable
	}
	return s.bookingRepo.FindByID(ctx, booking.ID)
}

func (s *bookingService) ListBookings(ctx context.Context, parkID uint, status *models.PaymentStatus) ([]models.Booking, error) {
	return s.bookingRepo.ListByPark(ctx, parkID, status)
}

func (s *bookingService) findByCode(ctx context.Context, code string) (*models.Booking, error) {
	booking, err := s.bookingRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("find booking %s: %w", code, err)
	}
	return booking, nil
}

func (s *bookingService) translateGatewayError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrTimeout):
		return ErrGatewayTimeout
	case errors.Is(err, gateway.ErrOrderNotFound):
		return ErrOrderNotFound
	default:
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
}

// fireSideEffects hands the booking snapshot to the dispatcher on a
// detached goroutine. Nothing here is awaited and nothing can fail the
// caller; a panicking dispatcher is recovered and logged.
func (s *bookingService) fireSideEffects(booking *models.Booking, withCommission bool) {
	snapshot := *booking
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[Booking] side-effect dispatch panicked for %s: %v", snapshot.BookingCode, r)
			}
		}()
		s.dispatcher.DispatchConfirmation(snapshot)
		if withCommission {
			s.dispatcher.DispatchCommission(snapshot)
		}
	}()
}

func validateCreate(in CreateBookingInput) error {
	switch {
	case strings.TrimSpace(in.CustomerName) == "":
		return fmt.Errorf("%w: customer name is required", ErrValidation)
	case strings.TrimSpace(in.Email) == "":
		return fmt.Errorf("%w: email is required", ErrValidation)
	case strings.TrimSpace(in.Phone) == "":
		return fmt.Errorf("%w: phone is required", ErrValidation)
	case in.VisitDate.IsZero():
		return fmt.Errorf("%w: visit date is required", ErrValidation)
	case in.Adults < 1:
		return fmt.Errorf("%w: at least one adult is required", ErrValidation)
	case in.Children < 0:
		return fmt.Errorf("%w: children count cannot be negative", ErrValidation)
	case in.TotalAmount <= 0:
		return fmt.Errorf("%w: total amount must be positive", ErrValidation)
	case in.AdvanceAmount < 0 || in.AdvanceAmount > in.TotalAmount:
		return fmt.Errorf("%w: advance amount must be between 0 and the total", ErrValidation)
	case in.PaymentMethod != models.MethodCash && in.PaymentMethod != models.MethodOnline:
		return fmt.Errorf("%w: unsupported payment method %q", ErrValidation, in.PaymentMethod)
	}
	return nil
}
