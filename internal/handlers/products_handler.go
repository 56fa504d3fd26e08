package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"ingestion-service/internal/events"
	"ingestion-service/internal/models"
	"ingestion-service/internal/repository"
)

type ProductsHandler struct {
	repo        *repository.ProductsRepository
	bus         *events.Bus
	maxPageSize int
}

func NewProductsHandler(repo *repository.ProductsRepository, bus *events.Bus, maxPageSize int) *ProductsHandler {
	if maxPageSize <= 0 {
		maxPageSize = 100
	}
	return &ProductsHandler{repo: repo, bus: bus, maxPageSize: maxPageSize}
}

// GetProducts lists products with filtering and pagination
// GET /api/v1/products
func (h *ProductsHandler) GetProducts(c *gin.Context) {
	var filter models.ProductFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "INVALID_QUERY", err.Error())
		return
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > h.maxPageSize {
		filter.PageSize = h.maxPageSize
	}

	products, total, err := h.repo.List(c.Request.Context(), &filter)
	if err != nil {
		internalError(c, "LIST_FAILED", err)
		return
	}

	totalPages := int((total + int64(filter.PageSize) - 1) / int64(filter.PageSize))
	c.JSON(http.StatusOK, models.ProductListResponse{
		Items:      products,
		Total:      total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalPages: totalPages,
	})
}

// GetProduct retrieves a single product
// GET /api/v1/products/:id
func (h *ProductsHandler) GetProduct(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	product, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrProductNotFound) {
		notFound(c, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}
	if err != nil {
		internalError(c, "GET_FAILED", err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// CreateProduct creates a new product
// POST /api/v1/products
func (h *ProductsHandler) CreateProduct(c *gin.Context) {
	var req models.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	product := &models.Product{
		Name:        req.Name,
		SKU:         req.SKU,
		Description: req.Description,
		Active:      true,
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	err := h.repo.Create(c.Request.Context(), product)
	if errors.Is(err, repository.ErrDuplicateSKU) {
		conflict(c, "DUPLICATE_SKU", err.Error())
		return
	}
	if err != nil {
		internalError(c, "CREATE_FAILED", err)
		return
	}

	h.publishProductEvent(models.EventProductCreated, product)
	c.JSON(http.StatusCreated, product)
}

// UpdateProduct updates an existing product
// PUT /api/v1/products/:id
func (h *ProductsHandler) UpdateProduct(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req models.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "INVALID_BODY", err.Error())
		return
	}

	product, err := h.repo.Update(c.Request.Context(), id, &req)
	switch {
	case errors.Is(err, repository.ErrProductNotFound):
		notFound(c, "PRODUCT_NOT_FOUND", "Product not found")
		return
	case errors.Is(err, repository.ErrDuplicateSKU):
		conflict(c, "DUPLICATE_SKU", err.Error())
		return
	case err != nil:
		internalError(c, "UPDATE_FAILED", err)
		return
	}

	h.publishProductEvent(models.EventProductUpdated, product)
	c.JSON(http.StatusOK, product)
}

// DeleteProduct deletes a product
// DELETE /api/v1/products/:id
func (h *ProductsHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	product, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrProductNotFound) {
		notFound(c, "PRODUCT_NOT_FOUND", "Product not found")
		return
	}
	if err != nil {
		internalError(c, "DELETE_FAILED", err)
		return
	}

	if err := h.repo.Delete(c.Request.Context(), id); err != nil {
		internalError(c, "DELETE_FAILED", err)
		return
	}

	h.publishProductEvent(models.EventProductDeleted, product)
	c.Status(http.StatusNoContent)
}

func (h *ProductsHandler) publishProductEvent(eventType string, product *models.Product) {
	if h.bus == nil {
		return
	}
	h.bus.Publish(events.NewEvent(eventType, map[string]interface{}{
		"id":     product.ID.String(),
		"name":   product.Name,
		"sku":    product.SKU,
		"active": product.Active,
	}))
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "INVALID_ID", "Invalid UUID: "+c.Param(name))
		return uuid.Nil, false
	}
	return id, true
}
