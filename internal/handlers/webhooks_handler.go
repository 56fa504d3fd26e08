package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"ingestion-service/internal/models"
	"ingestion-service/internal/repository"
	"ingestion-service/internal/webhooks"
)

type WebhooksHandler struct {
	repo       *repository.WebhooksRepository
	dispatcher *webhooks.Dispatcher
}

func NewWebhooksHandler(repo *repository.WebhooksRepository, dispatcher *webhooks.Dispatcher) *WebhooksHandler {
	return &WebhooksHandler{repo: repo, dispatcher: dispatcher}
}

// ListWebhooks lists all webhook subscriptions
// GET /api/v1/webhooks
func (h *WebhooksHandler) ListWebhooks(c *gin.Context) {
	hooks, err := h.repo.List(c.Request.Context())
	if err != nil {
		internalError(c, "LIST_FAILED", err)
		return
	}

	responses := make([]models.WebhookResponse, 0, len(hooks))
	for i := range hooks {
		responses = append(responses, hooks[i].ToResponse())
	}
	c.JSON(http.StatusOK, responses)
}

// GetWebhook retrieves a single webhook
// GET /api/v1/webhooks/:id
func (h *WebhooksHandler) GetWebhook(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	webhook, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrWebhookNotFound) {
		notFound(c, "WEBHOOK_NOT_FOUND", "Webhook not found")
		return
	}
	if err != nil {
		internalError(c, "GET_FAILED", err)
		return
	}
	c.JSON(http.StatusOK, webhook.ToResponse())
}

// CreateWebhook registers a new webhook subscription. The generated signing
// secret is returned once in this response and never again.
// POST /api/v1/webhooks
func (h *WebhooksHandler) CreateWebhook(c *gin.Context) {
	var req models.CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return
	}
	if err := models.ValidateWebhookURL(req.URL); err != nil {
		badRequest(c, "INVALID_URL", err.Error())
		return
	}
	if err := models.ValidateEventTypes(req.EventTypes); err != nil {
		badRequest(c, "INVALID_EVENT_TYPES", err.Error())
		return
	}

	webhook := &models.Webhook{
		URL:        req.URL,
		EventTypes: pq.StringArray(req.EventTypes),
		Enabled:    true,
		Secret:     generateSecret(),
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := h.repo.Create(c.Request.Context(), webhook); err != nil {
		internalError(c, "CREATE_FAILED", err)
		return
	}

	response := webhook.ToResponse()
	response.Secret = webhook.Secret
	c.JSON(http.StatusCreated, response)
}

// UpdateWebhook updates an existing webhook subscription
// PUT /api/v1/webhooks/:id
func (h *WebhooksHandler) UpdateWebhook(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	webhook, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrWebhookNotFound) {
		notFound(c, "WEBHOOK_NOT_FOUND", "Webhook not found")
		return
	}
	if err != nil {
		internalError(c, "GET_FAILED", err)
		return
	}

	if req.URL != nil {
		if err := models.ValidateWebhookURL(*req.URL); err != nil {
			badRequest(c, "INVALID_URL", err.Error())
			return
		}
		webhook.URL = *req.URL
	}
	if req.EventTypes != nil {
		if err := models.ValidateEventTypes(req.EventTypes); err != nil {
			badRequest(c, "INVALID_EVENT_TYPES", err.Error())
			return
		}
		webhook.EventTypes = pq.StringArray(req.EventTypes)
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := h.repo.Update(c.Request.Context(), webhook); err != nil {
		internalError(c, "UPDATE_FAILED", err)
		return
	}
	c.JSON(http.StatusOK, webhook.ToResponse())
}

// DeleteWebhook removes a webhook subscription
// DELETE /api/v1/webhooks/:id
func (h *WebhooksHandler) DeleteWebhook(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	err := h.repo.Delete(c.Request.Context(), id)
	if errors.Is(err, repository.ErrWebhookNotFound) {
		notFound(c, "WEBHOOK_NOT_FOUND", "Webhook not found")
		return
	}
	if err != nil {
		internalError(c, "DELETE_FAILED", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TestWebhook performs one synchronous test delivery and reports the outcome
// POST /api/v1/webhooks/:id/test
func (h *WebhooksHandler) TestWebhook(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	webhook, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrWebhookNotFound) {
		notFound(c, "WEBHOOK_NOT_FOUND", "Webhook not found")
		return
	}
	if err != nil {
		internalError(c, "GET_FAILED", err)
		return
	}
	if !webhook.Enabled {
		badRequest(c, "WEBHOOK_DISABLED", "Webhook is disabled")
		return
	}

	result := h.dispatcher.Test(c.Request.Context(), *webhook)
	c.JSON(http.StatusOK, result)
}

func generateSecret() string {
	buf := make([]byte, 32)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
