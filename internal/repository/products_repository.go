package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"ingestion-service/internal/models"
)

// Cache TTL constants
const (
	ProductCacheTTL     = 5 * time.Minute
	ProductListCacheTTL = 2 * time.Minute

	productCachePrefix     = "ingestion:products:id:"
	productListCacheBucket = "ingestion:products:lists"
)

// ErrProductNotFound is returned when a product lookup matches nothing
var ErrProductNotFound = errors.New("product not found")

// ErrDuplicateSKU is returned when a write would violate case-insensitive
// SKU uniqueness
var ErrDuplicateSKU = errors.New("a product with this SKU already exists")

// ProductsRepository is the catalog store. Conflicting upserts on the same
// SKU are serialized by the unique index on normalized_sku plus row-level
// transactions; callers never coordinate beyond this.
type ProductsRepository struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewProductsRepository creates a products repository. redis may be nil;
// caching is then disabled.
func NewProductsRepository(db *gorm.DB, redis *redis.Client) *ProductsRepository {
	return &ProductsRepository{db: db, redis: redis}
}

// Create inserts a new product, enforcing case-insensitive SKU uniqueness
func (r *ProductsRepository) Create(ctx context.Context, product *models.Product) error {
	product.NormalizedSKU = models.NormalizeSKU(product.SKU)

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("normalized_sku = ?", product.NormalizedSKU).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateSKU
	}

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return err
	}
	r.invalidateListCaches(ctx)
	return nil
}

// GetByID retrieves a product, serving from cache when possible
func (r *ProductsRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	if cached := r.cacheGet(ctx, productCachePrefix+id.String()); cached != nil {
		return cached, nil
	}

	var product models.Product
	err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	r.cacheSet(ctx, productCachePrefix+id.String(), &product, ProductCacheTTL)
	return &product, nil
}

// FindBySKU resolves a product by case-insensitive SKU match
func (r *ProductsRepository) FindBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("normalized_sku = ?", models.NormalizeSKU(sku)).
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// Upsert resolves the product by normalized SKU inside a transaction and
// either inserts it or updates the mutable fields of the existing row,
// preserving the stored row's identity and creation time. Returns whether a
// new row was created.
func (r *ProductsRepository) Upsert(ctx context.Context, product *models.Product) (bool, error) {
	product.NormalizedSKU = models.NormalizeSKU(product.SKU)

	var created bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		err := tx.Unscoped().
			Where("normalized_sku = ?", product.NormalizedSKU).
			First(&existing).Error

		switch {
		case err == nil:
			product.ID = existing.ID
			product.CreatedAt = existing.CreatedAt
			return tx.Unscoped().Model(&models.Product{}).
				Where("id = ?", existing.ID).
				Updates(map[string]interface{}{
					"name":        product.Name,
					"sku":         product.SKU,
					"description": product.Description,
					"active":      product.Active,
					"updated_at":  time.Now(),
					"deleted_at":  nil, // restore if soft-deleted
				}).Error

		case errors.Is(err, gorm.ErrRecordNotFound):
			created = true
			if product.ID == uuid.Nil {
				product.ID = uuid.New()
			}
			return tx.Create(product).Error

		default:
			return err
		}
	})
	if err != nil {
		return false, err
	}

	r.cacheDelete(ctx, productCachePrefix+product.ID.String())
	r.invalidateListCaches(ctx)
	return created, nil
}

// Update applies a partial update to a product
func (r *ProductsRepository) Update(ctx context.Context, id uuid.UUID, req *models.UpdateProductRequest) (*models.Product, error) {
	updates := map[string]interface{}{"updated_at": time.Now()}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.SKU != nil {
		normalized := models.NormalizeSKU(*req.SKU)
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Product{}).
			Where("normalized_sku = ? AND id <> ?", normalized, id).
			Count(&count).Error; err != nil {
			return nil, err
		}
		if count > 0 {
			return nil, ErrDuplicateSKU
		}
		updates["sku"] = *req.SKU
		updates["normalized_sku"] = normalized
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	result := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrProductNotFound
	}

	r.cacheDelete(ctx, productCachePrefix+id.String())
	r.invalidateListCaches(ctx)
	return r.GetByID(ctx, id)
}

// Delete soft-deletes a product
func (r *ProductsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProductNotFound
	}
	r.cacheDelete(ctx, productCachePrefix+id.String())
	r.invalidateListCaches(ctx)
	return nil
}

// List returns a filtered, paginated page of products
func (r *ProductsRepository) List(ctx context.Context, filter *models.ProductFilter) ([]models.Product, int64, error) {
	if cached, total, ok := r.cacheGetList(ctx, filter); ok {
		return cached, total, nil
	}

	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("name ILIKE ? OR sku ILIKE ?", pattern, pattern)
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var products []models.Product
	offset := (filter.Page - 1) * filter.PageSize
	err := query.Order("created_at DESC").Limit(filter.PageSize).Offset(offset).Find(&products).Error
	if err != nil {
		return nil, 0, err
	}

	r.cacheSetList(ctx, filter, products, total)
	return products, total, nil
}

// --- cache helpers ---

func (r *ProductsRepository) cacheGet(ctx context.Context, key string) *models.Product {
	if r.redis == nil {
		return nil
	}
	data, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil
	}
	return &product
}

func (r *ProductsRepository) cacheSet(ctx context.Context, key string, product *models.Product, ttl time.Duration) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(product); err == nil {
		r.redis.Set(ctx, key, data, ttl)
	}
}

func (r *ProductsRepository) cacheDelete(ctx context.Context, key string) {
	if r.redis != nil {
		r.redis.Del(ctx, key)
	}
}

type cachedList struct {
	Items []models.Product `json:"items"`
	Total int64            `json:"total"`
}

func listCacheKey(filter *models.ProductFilter) string {
	data, _ := json.Marshal(filter)
	return fmt.Sprintf("%s:%x", productListCacheBucket, data)
}

func (r *ProductsRepository) cacheGetList(ctx context.Context, filter *models.ProductFilter) ([]models.Product, int64, bool) {
	if r.redis == nil {
		return nil, 0, false
	}
	data, err := r.redis.Get(ctx, listCacheKey(filter)).Bytes()
	if err != nil {
		return nil, 0, false
	}
	var cached cachedList
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, 0, false
	}
	return cached.Items, cached.Total, true
}

func (r *ProductsRepository) cacheSetList(ctx context.Context, filter *models.ProductFilter, items []models.Product, total int64) {
	if r.redis == nil {
		return
	}
	if data, err := json.Marshal(cachedList{Items: items, Total: total}); err == nil {
		r.redis.Set(ctx, listCacheKey(filter), data, ProductListCacheTTL)
		r.redis.SAdd(ctx, productListCacheBucket+":keys", listCacheKey(filter))
	}
}

// invalidateListCaches drops all cached list pages after any write
func (r *ProductsRepository) invalidateListCaches(ctx context.Context) {
	if r.redis == nil {
		return
	}
	keys, err := r.redis.SMembers(ctx, productListCacheBucket+":keys").Result()
	if err != nil || len(keys) == 0 {
		return
	}
	r.redis.Del(ctx, keys...)
	r.redis.Del(ctx, productListCacheBucket+":keys")
}
