package models

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Lifecycle event types that webhook subscriptions can listen for
const (
	EventImportCompleted = "import.completed"
	EventImportFailed    = "import.failed"
	EventImportCancelled = "import.cancelled"
	EventProductCreated  = "product.created"
	EventProductUpdated  = "product.updated"
	EventProductDeleted  = "product.deleted"
)

// ValidEventTypes is the set of event types accepted by webhook registration
var ValidEventTypes = map[string]bool{
	EventImportCompleted: true,
	EventImportFailed:    true,
	EventImportCancelled: true,
	EventProductCreated:  true,
	EventProductUpdated:  true,
	EventProductDeleted:  true,
}

// Webhook represents a registered outbound webhook subscription
type Webhook struct {
	ID         uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	URL        string          `json:"url" gorm:"not null"`
	EventTypes pq.StringArray  `json:"eventTypes" gorm:"type:text[];not null"`
	Enabled    bool            `json:"enabled" gorm:"not null;default:true"`
	Secret     string          `json:"-" gorm:"not null"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	DeletedAt  *gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the table name for the Webhook model
func (Webhook) TableName() string {
	return "webhooks"
}

// ListensFor reports whether the subscription includes the given event type
func (w *Webhook) ListensFor(eventType string) bool {
	for _, t := range w.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// CreateWebhookRequest represents a request to register a webhook
type CreateWebhookRequest struct {
	URL        string   `json:"url" binding:"required"`
	EventTypes []string `json:"eventTypes" binding:"required"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// UpdateWebhookRequest represents a request to update a webhook
type UpdateWebhookRequest struct {
	URL        *string  `json:"url,omitempty"`
	EventTypes []string `json:"eventTypes,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

// WebhookResponse is the read shape of a webhook; the signing secret is only
// included on create so the subscriber can record it once.
type WebhookResponse struct {
	ID         uuid.UUID `json:"id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"eventTypes"`
	Enabled    bool      `json:"enabled"`
	Secret     string    `json:"secret,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ToResponse converts a webhook to its read shape, omitting the secret
func (w *Webhook) ToResponse() WebhookResponse {
	return WebhookResponse{
		ID:         w.ID,
		URL:        w.URL,
		EventTypes: []string(w.EventTypes),
		Enabled:    w.Enabled,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

// WebhookTestResult is the outcome of a synchronous test delivery
type WebhookTestResult struct {
	Success        bool   `json:"success"`
	StatusCode     int    `json:"status_code,omitempty"`
	ResponseTimeMs int64  `json:"response_time_ms"`
	Error          string `json:"error,omitempty"`
}

// DeliveryAttempt records one HTTP POST try to a subscriber for one event
type DeliveryAttempt struct {
	WebhookID     uuid.UUID
	EventType     string
	AttemptNumber int
	StatusCode    int
	Err           error
	Duration      time.Duration
}

// ValidateWebhookURL checks that the URL is absolute http(s)
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}
	return nil
}

// ValidateEventTypes checks that the list is non-empty and every entry is known
func ValidateEventTypes(types []string) error {
	if len(types) == 0 {
		return fmt.Errorf("eventTypes cannot be empty")
	}
	for _, t := range types {
		if !ValidEventTypes[t] {
			return fmt.Errorf("invalid event type: %s", t)
		}
	}
	return nil
}
