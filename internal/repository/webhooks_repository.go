package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"ingestion-service/internal/models"
)

// ErrWebhookNotFound is returned when a webhook lookup matches nothing
var ErrWebhookNotFound = errors.New("webhook not found")

// WebhooksRepository handles database operations for webhook subscriptions
type WebhooksRepository struct {
	db *gorm.DB
}

// NewWebhooksRepository creates a new webhooks repository
func NewWebhooksRepository(db *gorm.DB) *WebhooksRepository {
	return &WebhooksRepository{db: db}
}

// Create registers a new webhook subscription
func (r *WebhooksRepository) Create(ctx context.Context, webhook *models.Webhook) error {
	if webhook.ID == uuid.Nil {
		webhook.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(webhook).Error
}

// GetByID retrieves a webhook by ID
func (r *WebhooksRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Webhook, error) {
	var webhook models.Webhook
	err := r.db.WithContext(ctx).First(&webhook, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrWebhookNotFound
	}
	if err != nil {
		return nil, err
	}
	return &webhook, nil
}

// List returns all webhook subscriptions, newest first
func (r *WebhooksRepository) List(ctx context.Context) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&webhooks).Error
	return webhooks, err
}

// ListEnabledForEvent returns the enabled subscriptions listening for the
// given event type
func (r *WebhooksRepository) ListEnabledForEvent(ctx context.Context, eventType string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND ? = ANY(event_types)", true, eventType).
		Find(&webhooks).Error
	return webhooks, err
}

// Update persists changes to a webhook subscription
func (r *WebhooksRepository) Update(ctx context.Context, webhook *models.Webhook) error {
	return r.db.WithContext(ctx).Save(webhook).Error
}

// Delete removes a webhook subscription
func (r *WebhooksRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Webhook{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWebhookNotFound
	}
	return nil
}
