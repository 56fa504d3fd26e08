package importer

import (
	"sync"
	"time"

	"ingestion-service/internal/models"
)

// DefaultMaxTaskErrors caps the per-task error list; errors beyond the cap
// are counted, not stored.
const DefaultMaxTaskErrors = 50

// Tracker is the concurrency-safe task_id -> ImportTask snapshot store.
// Each task has exactly one writer (its orchestrator goroutine); any number
// of pollers may read concurrently. Reads return deep value copies so a
// snapshot can never observe a half-applied batch update.
type Tracker struct {
	mu        sync.RWMutex
	tasks     map[string]*models.ImportTask
	maxErrors int
}

// NewTracker creates a tracker keeping at most maxErrors error strings per task
func NewTracker(maxErrors int) *Tracker {
	if maxErrors <= 0 {
		maxErrors = DefaultMaxTaskErrors
	}
	return &Tracker{
		tasks:     make(map[string]*models.ImportTask),
		maxErrors: maxErrors,
	}
}

// Create registers a new pending task and returns its initial snapshot
func (t *Tracker) Create(taskID string) models.ImportTask {
	t.mu.Lock()
	defer t.mu.Unlock()

	task := &models.ImportTask{
		ID:        taskID,
		Status:    models.ImportStatusPending,
		Errors:    []string{},
		CreatedAt: time.Now().UTC(),
	}
	t.tasks[taskID] = task
	return copyTask(task)
}

// Read returns a consistent snapshot of the task
func (t *Tracker) Read(taskID string) (models.ImportTask, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return models.ImportTask{}, false
	}
	return copyTask(task), true
}

// Update applies a mutation to the task under the write lock. Terminal tasks
// are immutable: updates against them are silently ignored. When the mutation
// moves the task into a terminal state, CompletedAt is stamped and the error
// list is capped.
func (t *Tracker) Update(taskID string, apply func(task *models.ImportTask)) (models.ImportTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return models.ImportTask{}, false
	}
	if task.Status.IsTerminal() {
		return copyTask(task), true
	}

	apply(task)
	t.capErrors(task)
	if task.Status.IsTerminal() && task.CompletedAt == nil {
		now := time.Now().UTC()
		task.CompletedAt = &now
	}
	return copyTask(task), true
}

// AppendErrors adds row error messages to the task, respecting the cap
func (t *Tracker) AppendErrors(taskID string, messages []string) {
	if len(messages) == 0 {
		return
	}
	t.Update(taskID, func(task *models.ImportTask) {
		task.Errors = append(task.Errors, messages...)
	})
}

// RequestCancel sets the cooperative cancellation flag. It is idempotent and
// has no effect once the task is terminal; both cases report success so that
// cancel never races with completion into an error.
func (t *Tracker) RequestCancel(taskID string) (models.ImportTask, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	task, ok := t.tasks[taskID]
	if !ok {
		return models.ImportTask{}, false
	}
	if !task.Status.IsTerminal() {
		task.CancelRequested = true
	}
	return copyTask(task), true
}

// CancelRequested reports whether cancellation has been requested for the task
func (t *Tracker) CancelRequested(taskID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	task, ok := t.tasks[taskID]
	return ok && task.CancelRequested
}

// Delete removes a task from the tracker
func (t *Tracker) Delete(taskID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.tasks, taskID)
}

// capErrors keeps the first maxErrors messages and counts the rest
func (t *Tracker) capErrors(task *models.ImportTask) {
	if len(task.Errors) > t.maxErrors {
		task.OmittedErrors += len(task.Errors) - t.maxErrors
		task.Errors = task.Errors[:t.maxErrors]
	}
}

func copyTask(task *models.ImportTask) models.ImportTask {
	snapshot := *task
	snapshot.Errors = append([]string(nil), task.Errors...)
	if task.TotalRows != nil {
		total := *task.TotalRows
		snapshot.TotalRows = &total
	}
	if task.CompletedAt != nil {
		completed := *task.CompletedAt
		snapshot.CompletedAt = &completed
	}
	return snapshot
}
