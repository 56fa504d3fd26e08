package importer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"ingestion-service/internal/events"
	"ingestion-service/internal/models"
)

// MockCatalogStore is a mock implementation of CatalogStore
type MockCatalogStore struct {
	mock.Mock
}

// Ensure MockCatalogStore implements the interface
var _ CatalogStore = (*MockCatalogStore)(nil)

func (m *MockCatalogStore) Upsert(ctx context.Context, product *models.Product) (bool, error) {
	args := m.Called(ctx, product)
	return args.Bool(0), args.Error(1)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func matchSKU(normalized string) interface{} {
	return mock.MatchedBy(func(p *models.Product) bool {
		return p.NormalizedSKU == normalized
	})
}

func TestProcessBatch_InsertAndUpdateCounts(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	engine := NewEngine(store, nil, false, testLogger())

	store.On("Upsert", ctx, matchSKU("w-1")).Return(true, nil)
	store.On("Upsert", ctx, matchSKU("w-2")).Return(false, nil)

	result := engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "Widget", SKU: "W-1", Active: true},
		{Line: 3, Name: "Gadget", SKU: "W-2", Active: true},
	})

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Processed())
	store.AssertExpectations(t)
}

func TestProcessBatch_DuplicateSKULastOccurrenceWins(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	engine := NewEngine(store, nil, false, testLogger())

	// Only the last occurrence reaches the store, carrying its values
	store.On("Upsert", ctx, mock.MatchedBy(func(p *models.Product) bool {
		return p.NormalizedSKU == "a1" && p.Name == "Third"
	})).Return(true, nil).Once()

	result := engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "First", SKU: "A1", Active: true},
		{Line: 3, Name: "Second", SKU: "a1", Active: true},
		{Line: 4, Name: "Third", SKU: "A1", Active: true},
	})

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Failures, 2)
	assert.Equal(t, 2, result.Failures[0].Line)
	assert.Contains(t, result.Failures[0].Reason, "duplicate SKU")
	assert.Equal(t, 3, result.Failures[1].Line)
	store.AssertExpectations(t)
}

func TestProcessBatch_CaseInsensitiveSKUMatching(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	engine := NewEngine(store, nil, false, testLogger())

	var seen *models.Product
	store.On("Upsert", ctx, mock.Anything).Run(func(args mock.Arguments) {
		seen = args.Get(1).(*models.Product)
	}).Return(false, nil)

	engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "Widget", SKU: "  AbC-99  ", Active: true},
	})

	assert.NotNil(t, seen)
	assert.Equal(t, "abc-99", seen.NormalizedSKU)
}

func TestProcessBatch_RowFailuresAreIndependent(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	engine := NewEngine(store, nil, false, testLogger())

	store.On("Upsert", ctx, matchSKU("w-1")).Return(false, errors.New("connection reset"))
	store.On("Upsert", ctx, matchSKU("w-2")).Return(true, nil)

	result := engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "Widget", SKU: "W-1", Active: true},
		{Line: 3, Name: "Gadget", SKU: "W-2", Active: true},
	})

	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Failed)
	assert.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Line)
	assert.Contains(t, result.Failures[0].Reason, "connection reset")
	store.AssertExpectations(t)
}

func TestProcessBatch_PanicBecomesRowFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	engine := NewEngine(store, nil, false, testLogger())

	store.On("Upsert", ctx, matchSKU("w-1")).Run(func(mock.Arguments) {
		panic("boom")
	}).Return(false, nil)
	store.On("Upsert", ctx, matchSKU("w-2")).Return(true, nil)

	result := engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "Widget", SKU: "W-1", Active: true},
		{Line: 3, Name: "Gadget", SKU: "W-2", Active: true},
	})

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Inserted)
	assert.Contains(t, result.Failures[0].Reason, "panic")
}

func TestProcessBatch_RowEventsWhenEnabled(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	bus := events.NewBus(8, testLogger())
	engine := NewEngine(store, bus, true, testLogger())

	store.On("Upsert", ctx, matchSKU("w-1")).Return(true, nil)
	store.On("Upsert", ctx, matchSKU("w-2")).Return(false, nil)

	engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "Widget", SKU: "W-1", Active: true},
		{Line: 3, Name: "Gadget", SKU: "W-2", Active: true},
	})
	bus.Close()

	types := []string{}
	for event := range bus.Events() {
		types = append(types, event.Type)
	}
	assert.Equal(t, []string{models.EventProductCreated, models.EventProductUpdated}, types)
}

func TestProcessBatch_NoRowEventsByDefault(t *testing.T) {
	ctx := context.Background()
	store := new(MockCatalogStore)
	bus := events.NewBus(8, testLogger())
	engine := NewEngine(store, bus, false, testLogger())

	store.On("Upsert", ctx, mock.Anything).Return(true, nil)

	engine.ProcessBatch(ctx, []Row{
		{Line: 2, Name: "Widget", SKU: "W-1", Active: true},
	})
	bus.Close()

	count := 0
	for range bus.Events() {
		count++
	}
	assert.Equal(t, 0, count)
}
