package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"ingestion-service/internal/models"
)

// ErrTaskNotFound is returned when a task record lookup matches nothing
var ErrTaskNotFound = errors.New("import task not found")

// TasksRepository persists import task history. Live progress is served from
// the in-memory tracker; these records exist so completed imports survive
// restarts and can be listed later.
type TasksRepository struct {
	db *gorm.DB
}

// NewTasksRepository creates a new tasks repository
func NewTasksRepository(db *gorm.DB) *TasksRepository {
	return &TasksRepository{db: db}
}

// Create inserts the initial pending record for an accepted upload
func (r *TasksRepository) Create(ctx context.Context, record *models.ImportTaskRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// SaveSnapshot writes a task snapshot over the stored record
func (r *TasksRepository) SaveSnapshot(ctx context.Context, task *models.ImportTask) error {
	errorsJSON, err := json.Marshal(task.Errors)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.ImportTaskRecord{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"status":          task.Status,
			"total_rows":      task.TotalRows,
			"processed_rows":  task.ProcessedRows,
			"successful_rows": task.SuccessfulRows,
			"failed_rows":     task.FailedRows,
			"errors":          datatypes.JSON(errorsJSON),
			"message":         task.Message,
			"completed_at":    task.CompletedAt,
		}).Error
}

// GetByID retrieves a persisted task record
func (r *TasksRepository) GetByID(ctx context.Context, id string) (*models.ImportTaskRecord, error) {
	var record models.ImportTaskRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRecent returns the most recent task records
func (r *TasksRepository) ListRecent(ctx context.Context, limit int) ([]models.ImportTaskRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []models.ImportTaskRecord
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
