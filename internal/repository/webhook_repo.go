package repository

import (
	"context"

	"github.com/aquaparkhq/booking-backend/internal/models"
	"gorm.io/gorm"
)

type WebhookEventRepository interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
}

type webhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Record(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}
