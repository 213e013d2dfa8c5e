package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aquaparkhq/booking-backend/internal/gateway"
	"github.com/aquaparkhq/booking-backend/internal/models"
	"gorm.io/gorm"
)

// Reconciliation rules. Gateway truth arrives on two untrusted async paths:
// the signed webhook and the client-driven verify/status poll. Both funnel
// into applyState, whose conditional updates make them commutative and
// idempotent: duplicate or racing deliveries converge on the same terminal
// state and the Completed side effects fire exactly once, on whichever call
// actually won the conditional write.

const (
	eventOrderCompleted = "checkout.order.completed"
	eventOrderFailed    = "checkout.order.failed"
)

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		OrderID         string `json:"orderId"`
		MerchantOrderID string `json:"merchantOrderId"`
		State           string `json:"state"`
		MetaInfo        struct {
			BookingCode string `json:"udf1"`
		} `json:"metaInfo"`
		PaymentDetails []struct {
			TransactionID string `json:"transactionId"`
			PaymentMode   string `json:"paymentMode"`
		} `json:"paymentDetails"`
	} `json:"payload"`
}

// WebhookResult reports what a webhook delivery did. Transitioned is true
// only when this delivery moved the booking into Completed; idempotent
// redeliveries return the booking with Transitioned false.
type WebhookResult struct {
	Booking      *models.Booking
	Transitioned bool
	Handled      bool
	EventType    string
}

func (s *bookingService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	if !s.verifySignature(rawBody, signature) {
		s.recordWebhookEvent(ctx, "unknown", rawBody, false, "", "invalid signature")
		return nil, ErrInvalidSignature
	}

	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		s.recordWebhookEvent(ctx, "unknown", rawBody, true, "", "malformed payload")
		return nil, fmt.Errorf("%w: malformed webhook payload", ErrValidation)
	}

	state, recognized := claimedState(env)
	if !recognized {
		s.recordWebhookEvent(ctx, env.Event, rawBody, true, "", "")
		return &WebhookResult{Handled: false, EventType: env.Event}, nil
	}

	booking, err := s.findByReferences(ctx,
		lookupRef{"merchant_order_id", env.Payload.MerchantOrderID, s.bookingRepo.FindByMerchantOrderID},
		lookupRef{"gateway_order_id", env.Payload.OrderID, s.bookingRepo.FindByGatewayOrderID},
		lookupRef{"booking_code", env.Payload.MetaInfo.BookingCode, s.bookingRepo.FindByCode},
	)
	if err != nil {
		s.recordWebhookEvent(ctx, env.Event, rawBody, true, "", err.Error())
		return nil, err
	}

	txnID, mode := "", ""
	if len(env.Payload.PaymentDetails) > 0 {
		txnID = env.Payload.PaymentDetails[0].TransactionID
		mode = env.Payload.PaymentDetails[0].PaymentMode
	}

	booking, transitioned, err := s.applyState(ctx, booking, state, txnID, mode)
	if err != nil {
		s.recordWebhookEvent(ctx, env.Event, rawBody, true, bookingCodeOf(booking), err.Error())
		return nil, err
	}

	s.recordWebhookEvent(ctx, env.Event, rawBody, true, booking.BookingCode, "")
	return &WebhookResult{Booking: booking, Transitioned: transitioned, Handled: true, EventType: env.Event}, nil
}

func (s *bookingService) VerifyPayment(ctx context.Context, orderRef string) (*models.Booking, error) {
	ref := strings.TrimSpace(orderRef)
	if ref == "" {
		return nil, fmt.Errorf("%w: order reference is required", ErrValidation)
	}

	status, err := s.gateway.GetOrderStatus(ctx, ref)
	if errors.Is(err, gateway.ErrOrderNotFound) {
		// References sometimes arrive with a redirect attempt suffix
		// appended after a dash; try once with the base form.
		if base, ok := truncateRef(ref); ok {
			ref = base
			status, err = s.gateway.GetOrderStatus(ctx, ref)
		}
	}
	if err != nil {
		return nil, s.translateGatewayError(err)
	}

	booking, err := s.findByReferences(ctx,
		lookupRef{"merchant_order_id", ref, s.bookingRepo.FindByMerchantOrderID},
		lookupRef{"gateway_order_id", status.OrderID, s.bookingRepo.FindByGatewayOrderID},
		lookupRef{"booking_code", ref, s.bookingRepo.FindByCode},
	)
	if err != nil {
		return nil, err
	}

	booking, _, err = s.applyState(ctx, booking, status.State, status.TransactionID, status.PaymentMode)
	return booking, err
}

// CheckStatus reconciles a booking by code before reporting it: bookings
// still awaiting payer action are re-checked against the gateway.
func (s *bookingService) CheckStatus(ctx context.Context, code string) (*models.Booking, error) {
	booking, err := s.findByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if booking.PaymentStatus == models.StatusInitiated && booking.MerchantOrderID != "" {
		return s.VerifyPayment(ctx, booking.MerchantOrderID)
	}
	return booking, nil
}

// applyState moves the booking toward the gateway's claimed state under the
// transition rules: Completed is absorbing, Failed never overwrites
// Completed but may be superseded by a late Completed, Pending writes
// nothing. The returned bool is true only for a fresh Completed transition,
// which is also the trigger for the one-shot side effects.
func (s *bookingService) applyState(ctx context.Context, booking *models.Booking, state gateway.State, txnID, mode string) (*models.Booking, bool, error) {
	switch state {
	case gateway.StateCompleted:
		if booking.PaymentStatus == models.StatusCompleted {
			return booking, false, nil
		}
		method := booking.PaymentMethod
		if mode != "" {
			method = models.PaymentMethod(strings.ToLower(mode))
		}
		transitioned, err := s.bookingRepo.MarkCompleted(ctx, booking.ID, txnID, method)
		if err != nil {
			return nil, false, fmt.Errorf("complete booking %s: %w", booking.BookingCode, err)
		}
		updated, err := s.bookingRepo.FindByID(ctx, booking.ID)
		if err != nil {
			return nil, false, fmt.Errorf("reload booking %s: %w", booking.BookingCode, err)
		}
		if transitioned {
			s.fireSideEffects(updated, true)
		}
		return updated, transitioned, nil

	case gateway.StateFailed:
		// A cash booking can never correlate to a gateway order; a failure
		// claim against one is a miscorrelation, not a state change.
		if booking.PaymentMethod == models.MethodCash && booking.GatewayOrderID == "" {
			return nil, false, ErrBookingNotFound
		}
		if _, err := s.bookingRepo.MarkFailed(ctx, booking.ID); err != nil {
			return nil, false, fmt.Errorf("fail booking %s: %w", booking.BookingCode, err)
		}
		updated, err := s.bookingRepo.FindByID(ctx, booking.ID)
		if err != nil {
			return nil, false, fmt.Errorf("reload booking %s: %w", booking.BookingCode, err)
		}
		return updated, false, nil

	default:
		return booking, false, nil
	}
}

type lookupRef struct {
	field string
	ref   string
	find  func(ctx context.Context, ref string) (*models.Booking, error)
}

// findByReferences tries each correlation key in priority order, skipping
// blank ones, and stops at the first hit.
func (s *bookingService) findByReferences(ctx context.Context, refs ...lookupRef) (*models.Booking, error) {
	for _, r := range refs {
		if r.ref == "" {
			continue
		}
		booking, err := r.find(ctx, r.ref)
		if err == nil {
			return booking, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("lookup booking by %s: %w", r.field, err)
		}
	}
	return nil, ErrBookingNotFound
}

func (s *bookingService) verifySignature(rawBody []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || len(s.webhookSecret) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, s.webhookSecret)
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// recordWebhookEvent keeps the delivery audit trail. Best effort only.
func (s *bookingService) recordWebhookEvent(ctx context.Context, eventType string, rawBody []byte, valid bool, bookingCode, procErr string) {
	if s.webhookRepo == nil {
		return
	}
	err := s.webhookRepo.Record(ctx, &models.WebhookEvent{
		EventType:       eventType,
		Payload:         string(rawBody),
		SignatureValid:  valid,
		BookingCode:     bookingCode,
		ProcessingError: procErr,
	})
	if err != nil {
		log.Printf("[Webhook] failed to record event %q: %v", eventType, err)
	}
}

func claimedState(env webhookEnvelope) (gateway.State, bool) {
	switch env.Event {
	case eventOrderCompleted:
		return gateway.StateCompleted, true
	case eventOrderFailed:
		return gateway.StateFailed, true
	}
	switch strings.ToUpper(env.Payload.State) {
	case string(gateway.StateCompleted):
		return gateway.StateCompleted, true
	case string(gateway.StateFailed):
		return gateway.StateFailed, true
	case string(gateway.StatePending):
		return gateway.StatePending, true
	}
	return "", false
}

func truncateRef(ref string) (string, bool) {
	i := strings.LastIndex(ref, "-")
	if i <= 0 {
		return "", false
	}
	return ref[:i], true
}

func bookingCodeOf(b *models.Booking) string {
	if b == nil {
		return ""
	}
	return b.BookingCode
}
