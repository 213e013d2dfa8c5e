package service

import (
	"context"
	"sync"
	"time"

	"github.com/aquaparkhq/booking-backend/internal/gateway"
	"github.com/aquaparkhq/booking-backend/internal/models"
	"gorm.io/gorm"
)

// fakeBookingRepo mirrors the store's semantics in memory: every
// conditional update checks its status guard under one lock, so racing
// callers see the same exactly-once behavior the SQL guard provides.
type fakeBookingRepo struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*models.Booking
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{byID: map[uint]*models.Booking{}}
}

func (r *fakeBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if b.BookingCode == booking.BookingCode ||
			(booking.MerchantOrderID != "" && b.MerchantOrderID == booking.MerchantOrderID) {
			return gorm.ErrDuplicatedKey
		}
	}
	r.nextID++
	booking.ID = r.nextID
	booking.CreatedAt = time.Now()
	clone := *booking
	r.byID[booking.ID] = &clone
	return nil
}

func (r *fakeBookingRepo) FindByID(ctx context.Context, id uint) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		clone := *b
		return &clone, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeBookingRepo) FindByCode(ctx context.Context, code string) (*models.Booking, error) {
	return r.findWhere(func(b *models.Booking) bool { return b.BookingCode == code })
}

func (r *fakeBookingRepo) FindByMerchantOrderID(ctx context.Context, ref string) (*models.Booking, error) {
	return r.findWhere(func(b *models.Booking) bool { return b.MerchantOrderID != "" && b.MerchantOrderID == ref })
}

func (r *fakeBookingRepo) FindByGatewayOrderID(ctx context.Context, ref string) (*models.Booking, error) {
	return r.findWhere(func(b *models.Booking) bool { return b.GatewayOrderID != "" && b.GatewayOrderID == ref })
}

func (r *fakeBookingRepo) findWhere(match func(*models.Booking) bool) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.byID {
		if match(b) {
			clone := *b
			return &clone, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeBookingRepo) MarkCompleted(ctx context.Context, id uint, paymentID string, method models.PaymentMethod) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok || b.PaymentStatus == models.StatusCompleted {
		return false, nil
	}
	b.PaymentStatus = models.StatusCompleted
	b.PaymentID = paymentID
	b.PaymentMethod = method
	return true, nil
}

func (r *fakeBookingRepo) MarkFailed(ctx context.Context, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok || b.PaymentStatus == models.StatusCompleted || b.PaymentStatus == models.StatusFailed {
		return false, nil
	}
	b.PaymentStatus = models.StatusFailed
	return true, nil
}

func (r *fakeBookingRepo) UpdateDetails(ctx context.Context, id uint, fields map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	if !ok || b.PaymentStatus == models.StatusCompleted {
		return false, nil
	}
	for field, value := range fields {
		switch field {
		case "customer_name":
			b.CustomerName = value.(string)
		case "email":
			b.Email = value.(string)
		case "phone":
			b.Phone = value.(string)
		case "visit_date":
			b.VisitDate = value.(time.Time)
		case "adults":
			b.Adults = value.(int)
		case "children":
			b.Children = value.(int)
		case "gateway_order_id":
			b.GatewayOrderID = value.(string)
		case "payment_status":
			b.PaymentStatus = value.(models.PaymentStatus)
		}
	}
	return true, nil
}

func (r *fakeBookingRepo) UpdateTicketURL(ctx context.Context, id uint, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.byID[id]; ok {
		b.TicketURL = &url
	}
	return nil
}

func (r *fakeBookingRepo) ListByPark(ctx context.Context, parkID uint, status *models.PaymentStatus) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Booking
	for _, b := range r.byID {
		if b.ParkID != parkID {
			continue
		}
		if status != nil && b.PaymentStatus != *status {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

// fakeSequenceRepo hands out consecutive values under a lock, matching the
// atomic upsert's contract.
type fakeSequenceRepo struct {
	mu     sync.Mutex
	values map[string]int64
	err    error
}

func newFakeSequenceRepo() *fakeSequenceRepo {
	return &fakeSequenceRepo{values: map[string]int64{}}
}

func (r *fakeSequenceRepo) NextValue(ctx context.Context, namespace string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	v, ok := r.values[namespace]
	if !ok {
		v = 1000
	}
	v++
	r.values[namespace] = v
	return v, nil
}

type fakeWebhookRepo struct {
	mu     sync.Mutex
	events []models.WebhookEvent
}

func (r *fakeWebhookRepo) Record(ctx context.Context, event *models.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

type fakeGateway struct {
	mu        sync.Mutex
	statuses  map[string]*gateway.OrderStatus
	errs      map[string]error
	orders    []gateway.CreateOrderRequest
	createErr error
	calls     int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses: map[string]*gateway.OrderStatus{},
		errs:     map[string]error{},
	}
}

func (g *fakeGateway) CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (*gateway.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.orders = append(g.orders, req)
	return &gateway.Order{
		OrderID:     "OMO-" + req.MerchantOrderID,
		RedirectURL: "https://pay.example.test/" + req.MerchantOrderID,
		State:       gateway.StatePending,
	}, nil
}

func (g *fakeGateway) GetOrderStatus(ctx context.Context, merchantOrderID string) (*gateway.OrderStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if err, ok := g.errs[merchantOrderID]; ok {
		return nil, err
	}
	if status, ok := g.statuses[merchantOrderID]; ok {
		clone := *status
		return &clone, nil
	}
	return nil, gateway.ErrOrderNotFound
}

// recordingDispatcher counts hand-offs; dispatch happens on a detached
// goroutine so tests poll via waitConfirmations.
type recordingDispatcher struct {
	mu            sync.Mutex
	confirmations []string
	commissions   []string
	panics        bool
}

func (d *recordingDispatcher) DispatchConfirmation(b models.Booking) {
	if d.panics {
		panic("dispatcher exploded")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmations = append(d.confirmations, b.BookingCode)
}

func (d *recordingDispatcher) DispatchCommission(b models.Booking) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commissions = append(d.commissions, b.BookingCode)
}

func (d *recordingDispatcher) confirmationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.confirmations)
}

func (d *recordingDispatcher) commissionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.commissions)
}

// waitConfirmations blocks until at least n confirmations arrived or the
// deadline passes, then lets a short settle window catch any extras.
func (d *recordingDispatcher) waitConfirmations(n int) int {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d.confirmationCount() >= n {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	return d.confirmationCount()
}
