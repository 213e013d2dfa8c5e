package repository

import (
	"context"

	"github.com/aquaparkhq/booking-backend/internal/models"
	"gorm.io/gorm"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uint) (*models.Booking, error)
	FindByCode(ctx context.Context, code string) (*models.Booking, error)
	FindByMerchantOrderID(ctx context.Context, ref string) (*models.Booking, error)
	FindByGatewayOrderID(ctx context.Context, ref string) (*models.Booking, error)
	MarkCompleted(ctx context.Context, id uint, paymentID string, method models.PaymentMethod) (bool, error)
	MarkFailed(ctx context.Context, id uint) (bool, error)
	UpdateDetails(ctx context.Context, id uint, fields map[string]any) (bool, error)
	UpdateTicketURL(ctx context.Context, id uint, url string) error
	ListByPark(ctx context.Context, parkID uint, status *models.PaymentStatus) ([]models.Booking, error)
}

type bookingRepository struct {
	db *gorm.DB
}

func NewBookingRepository(db *gorm.DB) BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *bookingRepository) FindByID(ctx context.Context, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).First(&booking, id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *bookingRepository) FindByCode(ctx context.Context, code string) (*models.Booking, error) {
	return r.findOne(ctx, "booking_code = ?", code)
}

func (r *bookingRepository) FindByMerchantOrderID(ctx context.Context, ref string) (*models.Booking, error) {
	return r.findOne(ctx, "merchant_order_id = ?", ref)
}

func (r *bookingRepository) FindByGatewayOrderID(ctx context.Context, ref string) (*models.Booking, error) {
	return r.findOne(ctx, "gateway_order_id = ?", ref)
}

func (r *bookingRepository) findOne(ctx context.Context, query string, arg string) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).Where(query, arg).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// MarkCompleted flips the booking into Completed with a single conditional
// update. The status guard in the WHERE clause is the serialization point:
// under concurrent webhook and poll deliveries exactly one caller observes
// a row affected and owns the side effects.
func (r *bookingRepository) MarkCompleted(ctx context.Context, id uint, paymentID string, method models.PaymentMethod) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND payment_status <> ?", id, models.StatusCompleted).
		Updates(map[string]any{
			"payment_status": models.StatusCompleted,
			"payment_id":     paymentID,
			"payment_method": method,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed records a terminal failure. A failure signal never overwrites
// a Completed booking.
func (r *bookingRepository) MarkFailed(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND payment_status NOT IN ?", id, []models.PaymentStatus{models.StatusCompleted, models.StatusFailed}).
		Update("payment_status", models.StatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateDetails rewrites core booking fields, guarded so a Completed
// booking is never touched. Returns false when the guard rejected the write.
func (r *bookingRepository) UpdateDetails(ctx context.Context, id uint, fields map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND payment_status <> ?", id, models.StatusCompleted).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *bookingRepository) UpdateTicketURL(ctx context.Context, id uint, url string) error {
	return r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ?", id).
		Update("ticket_url", url).Error
}

func (r *bookingRepository) ListByPark(ctx context.Context, parkID uint, status *models.PaymentStatus) ([]models.Booking, error) {
	var bookings []models.Booking
	q := r.db.WithContext(ctx).Where("park_id = ?", parkID)
	if status != nil {
		q = q.Where("payment_status = ?", *status)
	}
	if err := q.Order("id ASC").Find(&bookings).Error; err != nil {
		return nil, err
	}
	return bookings, nil
}
