package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"ingestion-service/internal/importer"
	"ingestion-service/internal/models"
	"ingestion-service/internal/repository"
)

type TasksHandler struct {
	tracker *importer.Tracker
	records *repository.TasksRepository
}

func NewTasksHandler(tracker *importer.Tracker, records *repository.TasksRepository) *TasksHandler {
	return &TasksHandler{tracker: tracker, records: records}
}

// GetTaskProgress returns the live progress snapshot of an import task.
// Tasks that predate the current process are served from persisted history.
// GET /api/v1/tasks/:id/progress
func (h *TasksHandler) GetTaskProgress(c *gin.Context) {
	taskID := c.Param("id")

	if task, ok := h.tracker.Read(taskID); ok {
		c.JSON(http.StatusOK, task.ToProgressResponse())
		return
	}

	if h.records != nil {
		record, err := h.records.GetByID(c.Request.Context(), taskID)
		if err == nil {
			c.JSON(http.StatusOK, recordToProgressResponse(record))
			return
		}
		if !errors.Is(err, repository.ErrTaskNotFound) {
			internalError(c, "PROGRESS_FAILED", err)
			return
		}
	}

	notFound(c, "TASK_NOT_FOUND", "Task not found")
}

// CancelTask requests cooperative cancellation of an import task. The call is
// idempotent; cancelling a terminal task is a no-op, not an error.
// POST /api/v1/tasks/:id/cancel
func (h *TasksHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("id")

	task, ok := h.tracker.RequestCancel(taskID)
	if !ok {
		notFound(c, "TASK_NOT_FOUND", "Task not found")
		return
	}

	message := "Cancellation requested"
	if task.Status.IsTerminal() {
		message = "Task already " + string(task.Status)
	}
	c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Data:    task.ToProgressResponse(),
		Message: &message,
	})
}

// ListTasks returns recent import task history
// GET /api/v1/tasks
func (h *TasksHandler) ListTasks(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: []models.ImportTaskRecord{}})
		return
	}

	records, err := h.records.ListRecent(c.Request.Context(), 50)
	if err != nil {
		internalError(c, "LIST_FAILED", err)
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Data: records})
}

func recordToProgressResponse(record *models.ImportTaskRecord) models.TaskProgressResponse {
	var taskErrors []string
	if len(record.Errors) > 0 {
		json.Unmarshal(record.Errors, &taskErrors)
	}
	task := models.ImportTask{
		ID:             record.ID,
		Status:         record.Status,
		TotalRows:      record.TotalRows,
		ProcessedRows:  record.ProcessedRows,
		SuccessfulRows: record.SuccessfulRows,
		FailedRows:     record.FailedRows,
		Errors:         taskErrors,
		Message:        record.Message,
		CreatedAt:      record.CreatedAt,
		CompletedAt:    record.CompletedAt,
	}
	return task.ToProgressResponse()
}
