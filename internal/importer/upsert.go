package importer

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"ingestion-service/internal/events"
	"ingestion-service/internal/models"
)

// CatalogStore is the external catalog collaborator. Upsert resolves the
// product by its normalized SKU and either inserts or updates; conflicting
// upserts on the same SKU are serialized by the store's own locking.
type CatalogStore interface {
	Upsert(ctx context.Context, product *models.Product) (created bool, err error)
}

// UpsertResult partitions a processed batch into independent outcomes
type UpsertResult struct {
	Inserted int
	Updated  int
	Failed   int
	Failures []RowError
}

// Processed returns the number of rows the engine accounted for
func (r *UpsertResult) Processed() int {
	return r.Inserted + r.Updated + r.Failed
}

// Engine applies validated rows against the catalog with insert-or-update
// semantics keyed on the case-insensitive SKU. Each row succeeds or fails
// independently; nothing is rolled back across rows.
type Engine struct {
	store         CatalogStore
	bus           *events.Bus
	emitRowEvents bool
	logger        *logrus.Entry
}

// NewEngine creates an upsert engine. When emitRowEvents is set, every
// successful insert or update publishes a product.created/product.updated
// lifecycle event; large imports typically run with it disabled and rely on
// the single terminal import event.
func NewEngine(store CatalogStore, bus *events.Bus, emitRowEvents bool, logger *logrus.Logger) *Engine {
	return &Engine{
		store:         store,
		bus:           bus,
		emitRowEvents: emitRowEvents,
		logger:        logger.WithField("component", "upsert-engine"),
	}
}

// ProcessBatch upserts a batch of rows. Duplicate SKUs within the batch are
// resolved last-occurrence-wins: earlier occurrences are recorded as row
// failures and never reach the store.
func (e *Engine) ProcessBatch(ctx context.Context, rows []Row) *UpsertResult {
	result := &UpsertResult{}

	winners := make(map[string]int, len(rows))
	for i, row := range rows {
		key := models.NormalizeSKU(row.SKU)
		if prev, ok := winners[key]; ok {
			result.Failed++
			result.Failures = append(result.Failures, RowError{
				Line:   rows[prev].Line,
				Reason: fmt.Sprintf("duplicate SKU %q in file", rows[prev].SKU),
			})
		}
		winners[key] = i
	}

	for i, row := range rows {
		if winners[models.NormalizeSKU(row.SKU)] != i {
			continue
		}

		created, err := e.upsertRow(ctx, row)
		if err != nil {
			result.Failed++
			result.Failures = append(result.Failures, RowError{
				Line:   row.Line,
				Reason: err.Error(),
			})
			continue
		}
		if created {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	return result
}

// upsertRow applies a single row; store failures are returned, never panicked
func (e *Engine) upsertRow(ctx context.Context, row Row) (created bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			created = false
			err = fmt.Errorf("row processing panic: %v", r)
			e.logger.WithField("line", row.Line).Errorf("Recovered from row panic: %v", r)
		}
	}()

	product := &models.Product{
		Name:          row.Name,
		SKU:           row.SKU,
		NormalizedSKU: models.NormalizeSKU(row.SKU),
		Description:   row.Description,
		Active:        row.Active,
	}

	created, err = e.store.Upsert(ctx, product)
	if err != nil {
		return false, fmt.Errorf("failed to upsert SKU %q: %w", row.SKU, err)
	}

	if e.emitRowEvents && e.bus != nil {
		eventType := models.EventProductUpdated
		if created {
			eventType = models.EventProductCreated
		}
		e.bus.Publish(events.NewEvent(eventType, map[string]interface{}{
			"id":     product.ID.String(),
			"name":   product.Name,
			"sku":    product.SKU,
			"active": product.Active,
		}))
	}
	return created, nil
}
