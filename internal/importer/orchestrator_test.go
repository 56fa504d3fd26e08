package importer

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"ingestion-service/internal/events"
	"ingestion-service/internal/models"
)

// fakeCatalog is an in-memory CatalogStore keyed by normalized SKU
type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]*models.Product
	blocked  chan struct{} // when set, Upsert waits for it to close
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: make(map[string]*models.Product)}
}

func (f *fakeCatalog) Upsert(ctx context.Context, product *models.Product) (bool, error) {
	if f.blocked != nil {
		<-f.blocked
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing, ok := f.products[product.NormalizedSKU]; ok {
		existing.Name = product.Name
		existing.SKU = product.SKU
		existing.Description = product.Description
		existing.Active = product.Active
		return false, nil
	}
	stored := *product
	f.products[product.NormalizedSKU] = &stored
	return true, nil
}

func (f *fakeCatalog) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.products)
}

// MockTaskRecorder is a mock implementation of TaskRecorder
type MockTaskRecorder struct {
	mock.Mock
}

var _ TaskRecorder = (*MockTaskRecorder)(nil)

func (m *MockTaskRecorder) Create(ctx context.Context, record *models.ImportTaskRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockTaskRecorder) SaveSnapshot(ctx context.Context, task *models.ImportTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.csv")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func newTestOrchestrator(store CatalogStore, bus *events.Bus, batchSize int) (*Orchestrator, *Tracker) {
	logger := testLogger()
	tracker := NewTracker(50)
	engine := NewEngine(store, bus, false, logger)
	orchestrator := NewOrchestrator(tracker, engine, nil, bus, Config{BatchSize: batchSize}, logger)
	return orchestrator, tracker
}

func waitForTerminal(t *testing.T, tracker *Tracker, taskID string) models.ImportTask {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if snapshot, ok := tracker.Read(taskID); ok && snapshot.Status.IsTerminal() {
			return snapshot
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal state", taskID)
	return models.ImportTask{}
}

func TestOrchestrator_CompletesWithMixedOutcomes(t *testing.T) {
	catalog := newFakeCatalog()
	orchestrator, tracker := newTestOrchestrator(catalog, nil, 100)

	// A1 and a1 are the same SKU; the earlier occurrence fails as a duplicate.
	// The row missing a name fails validation.
	path := writeTempCSV(t, "name,sku\n"+
		"First,A1\n"+
		"Second,a1\n"+
		"Third,B2\n"+
		",C3\n")

	task := orchestrator.Accept("task-1", "upload.csv", path)
	assert.Equal(t, models.ImportStatusPending, task.Status)

	snapshot := waitForTerminal(t, tracker, "task-1")
	assert.Equal(t, models.ImportStatusCompleted, snapshot.Status)
	assert.NotNil(t, snapshot.TotalRows)
	assert.Equal(t, 4, *snapshot.TotalRows)
	assert.Equal(t, 4, snapshot.ProcessedRows)
	assert.Equal(t, 2, snapshot.SuccessfulRows)
	assert.Equal(t, 2, snapshot.FailedRows)
	assert.Equal(t, 2, snapshot.InsertedRows)
	assert.Equal(t, 0, snapshot.UpdatedRows)
	assert.Equal(t, snapshot.ProcessedRows, snapshot.SuccessfulRows+snapshot.FailedRows)
	assert.Len(t, snapshot.Errors, 2)
	assert.NotNil(t, snapshot.CompletedAt)

	// the catalog holds one product per distinct SKU, with the later values
	assert.Equal(t, 2, catalog.count())
	assert.Equal(t, "Second", catalog.products["a1"].Name)
}

func TestOrchestrator_ReimportUpdatesInsteadOfInserting(t *testing.T) {
	catalog := newFakeCatalog()
	orchestrator, tracker := newTestOrchestrator(catalog, nil, 100)

	content := "name,sku\nWidget,W-1\nGadget,W-2\n"

	orchestrator.Accept("task-1", "upload.csv", writeTempCSV(t, content))
	first := waitForTerminal(t, tracker, "task-1")
	assert.Equal(t, 2, first.InsertedRows)
	assert.Equal(t, 0, first.UpdatedRows)

	orchestrator.Accept("task-2", "upload.csv", writeTempCSV(t, content))
	second := waitForTerminal(t, tracker, "task-2")
	assert.Equal(t, 0, second.InsertedRows)
	assert.Equal(t, 2, second.UpdatedRows)
	assert.Equal(t, 2, catalog.count())
}

func TestOrchestrator_HeaderOnlyFileFails(t *testing.T) {
	orchestrator, tracker := newTestOrchestrator(newFakeCatalog(), nil, 100)

	orchestrator.Accept("task-1", "upload.csv", writeTempCSV(t, "name,sku\n"))

	snapshot := waitForTerminal(t, tracker, "task-1")
	assert.Equal(t, models.ImportStatusFailed, snapshot.Status)
	assert.Equal(t, "No data rows found in CSV file", snapshot.Message)
}

func TestOrchestrator_MissingColumnFails(t *testing.T) {
	orchestrator, tracker := newTestOrchestrator(newFakeCatalog(), nil, 100)

	orchestrator.Accept("task-1", "upload.csv", writeTempCSV(t, "name,description\nWidget,blue\n"))

	snapshot := waitForTerminal(t, tracker, "task-1")
	assert.Equal(t, models.ImportStatusFailed, snapshot.Status)
	assert.Contains(t, snapshot.Message, `required column "sku"`)
	assert.NotEmpty(t, snapshot.Errors)
}

func TestOrchestrator_CancellationBetweenBatches(t *testing.T) {
	catalog := newFakeCatalog()
	catalog.blocked = make(chan struct{})
	orchestrator, tracker := newTestOrchestrator(catalog, nil, 1)

	path := writeTempCSV(t, "name,sku\nA,S-1\nB,S-2\nC,S-3\n")
	orchestrator.Accept("task-1", "upload.csv", path)

	// wait until the worker is inside the first batch, then cancel and unblock
	deadline := time.Now().Add(5 * time.Second)
	for {
		if snapshot, _ := tracker.Read("task-1"); snapshot.Status == models.ImportStatusProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("task never started processing")
		}
		time.Sleep(5 * time.Millisecond)
	}
	tracker.RequestCancel("task-1")
	close(catalog.blocked)

	snapshot := waitForTerminal(t, tracker, "task-1")
	assert.Equal(t, models.ImportStatusCancelled, snapshot.Status)
	assert.Equal(t, "Import cancelled by user", snapshot.Message)
	// rows committed before cancellation stay committed
	assert.Equal(t, snapshot.SuccessfulRows, catalog.count())
	assert.Less(t, snapshot.ProcessedRows, 3)
}

func TestOrchestrator_PublishesSingleTerminalEvent(t *testing.T) {
	bus := events.NewBus(8, testLogger())
	orchestrator, tracker := newTestOrchestrator(newFakeCatalog(), bus, 100)

	orchestrator.Accept("task-1", "upload.csv", writeTempCSV(t, "name,sku\nWidget,W-1\n"))
	waitForTerminal(t, tracker, "task-1")
	bus.Close()

	received := []events.Event{}
	for event := range bus.Events() {
		received = append(received, event)
	}
	assert.Len(t, received, 1)
	assert.Equal(t, models.EventImportCompleted, received[0].Type)
	assert.Equal(t, "task-1", received[0].Data["task_id"])
	assert.Equal(t, 1, received[0].Data["processed_rows"])
	assert.Equal(t, 1, received[0].Data["successful_rows"])
}

func TestOrchestrator_RemovesSpooledFile(t *testing.T) {
	orchestrator, tracker := newTestOrchestrator(newFakeCatalog(), nil, 100)

	path := writeTempCSV(t, "name,sku\nWidget,W-1\n")
	orchestrator.Accept("task-1", "upload.csv", path)
	waitForTerminal(t, tracker, "task-1")

	deadline := time.Now().Add(time.Second)
	for {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("spooled file was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOrchestrator_PersistsTaskRecord(t *testing.T) {
	logger := testLogger()
	tracker := NewTracker(50)
	engine := NewEngine(newFakeCatalog(), nil, false, logger)

	recorder := new(MockTaskRecorder)
	recorder.On("Create", mock.Anything, mock.MatchedBy(func(r *models.ImportTaskRecord) bool {
		return r.ID == "task-1" && r.Status == models.ImportStatusPending && r.Filename == "upload.csv"
	})).Return(nil)
	recorder.On("SaveSnapshot", mock.Anything, mock.MatchedBy(func(task *models.ImportTask) bool {
		return task.ID == "task-1" && task.Status == models.ImportStatusCompleted
	})).Return(nil)

	orchestrator := NewOrchestrator(tracker, engine, recorder, nil, Config{BatchSize: 100}, logger)
	orchestrator.Accept("task-1", "upload.csv", writeTempCSV(t, "name,sku\nWidget,W-1\n"))

	waitForTerminal(t, tracker, "task-1")
	recorder.AssertExpectations(t)
}
