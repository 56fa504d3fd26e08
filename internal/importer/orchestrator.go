package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"ingestion-service/internal/events"
	"ingestion-service/internal/models"
)

// TaskRecorder persists task history; the in-memory tracker remains the
// source of truth for live polling.
type TaskRecorder interface {
	Create(ctx context.Context, record *models.ImportTaskRecord) error
	SaveSnapshot(ctx context.Context, task *models.ImportTask) error
}

// Config carries the orchestrator tunables
type Config struct {
	BatchSize int
}

// Orchestrator drives the parser -> upsert loop for ingest tasks. Each task
// runs on its own goroutine, independent of the request that accepted the
// upload; the HTTP layer only creates the task and returns its handle.
type Orchestrator struct {
	tracker *Tracker
	engine  *Engine
	records TaskRecorder
	bus     *events.Bus
	cfg     Config
	logger  *logrus.Entry
}

// NewOrchestrator creates an orchestrator. records may be nil when task
// history persistence is disabled.
func NewOrchestrator(tracker *Tracker, engine *Engine, records TaskRecorder, bus *events.Bus, cfg Config, logger *logrus.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Orchestrator{
		tracker: tracker,
		engine:  engine,
		records: records,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.WithField("component", "orchestrator"),
	}
}

// Accept registers a pending task for an uploaded file and starts its worker.
// filePath must point at a spooled copy of the upload that outlives the
// request; the worker removes it when done.
func (o *Orchestrator) Accept(taskID, filename, filePath string) models.ImportTask {
	task := o.tracker.Create(taskID)

	if o.records != nil {
		record := &models.ImportTaskRecord{
			ID:        taskID,
			Filename:  filename,
			Status:    models.ImportStatusPending,
			CreatedAt: task.CreatedAt,
		}
		if err := o.records.Create(context.Background(), record); err != nil {
			o.logger.WithField("taskId", taskID).WithError(err).Warn("Failed to persist task record")
		}
	}

	go o.run(taskID, filePath)
	return task
}

// run is the per-task worker loop
func (o *Orchestrator) run(taskID, filePath string) {
	logger := o.logger.WithField("taskId", taskID)
	defer os.Remove(filePath)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Recovered from task panic: %v", r)
			o.fail(taskID, fmt.Sprintf("Import failed: internal error: %v", r))
		}
	}()

	ctx := context.Background()

	// Total rows strategy: the upload is already spooled to disk, so a cheap
	// line-count pre-scan makes progress determinate from the first batch.
	total, err := o.countRows(filePath)
	if err != nil {
		o.fail(taskID, fmt.Sprintf("Import failed: %v", err))
		return
	}

	file, err := os.Open(filePath)
	if err != nil {
		o.fail(taskID, fmt.Sprintf("Import failed: could not read upload: %v", err))
		return
	}
	defer file.Close()

	parser, err := NewParser(file, o.cfg.BatchSize)
	if err != nil {
		o.fail(taskID, fmt.Sprintf("Import failed: %v", err))
		return
	}

	o.tracker.Update(taskID, func(task *models.ImportTask) {
		task.Status = models.ImportStatusProcessing
		task.TotalRows = &total
		task.Message = fmt.Sprintf("Processing %d rows...", total)
	})
	logger.WithField("totalRows", total).Info("Import started")

	for {
		// Cancellation is cooperative and checked at batch boundaries only;
		// rows committed by earlier batches stay committed.
		if o.tracker.CancelRequested(taskID) {
			o.finish(taskID, models.ImportStatusCancelled, "Import cancelled by user")
			return
		}

		batch, err := parser.Next()
		if err != nil {
			o.fail(taskID, fmt.Sprintf("Import failed: %v", err))
			return
		}
		if batch == nil {
			break
		}

		result := o.engine.ProcessBatch(ctx, batch.Rows)

		messages := make([]string, 0, len(batch.Invalid)+len(result.Failures))
		for _, invalid := range batch.Invalid {
			messages = append(messages, invalid.String())
		}
		for _, failure := range result.Failures {
			messages = append(messages, failure.String())
		}

		o.tracker.Update(taskID, func(task *models.ImportTask) {
			task.ProcessedRows += batch.Size()
			task.SuccessfulRows += result.Inserted + result.Updated
			task.FailedRows += len(batch.Invalid) + result.Failed
			task.InsertedRows += result.Inserted
			task.UpdatedRows += result.Updated
			task.Errors = append(task.Errors, messages...)
			task.Message = fmt.Sprintf("Processed %d/%d rows...", task.ProcessedRows, total)
		})
	}

	snapshot, _ := o.tracker.Read(taskID)
	if snapshot.ProcessedRows == 0 {
		o.fail(taskID, "No data rows found in CSV file")
		return
	}
	o.finish(taskID, models.ImportStatusCompleted, fmt.Sprintf(
		"Import completed. %d successful, %d failed.", snapshot.SuccessfulRows, snapshot.FailedRows))
}

// countRows opens the file independently of the parse stream for the pre-scan
func (o *Orchestrator) countRows(filePath string) (int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("could not read upload: %w", err)
	}
	defer file.Close()
	return CountDataRows(file)
}

// fail transitions the task to its failed terminal state with a user-facing message
func (o *Orchestrator) fail(taskID, message string) {
	o.tracker.Update(taskID, func(task *models.ImportTask) {
		task.Errors = append(task.Errors, message)
	})
	o.finish(taskID, models.ImportStatusFailed, message)
}

// finish applies the terminal transition, persists the final snapshot, and
// publishes exactly one lifecycle event summarizing the task. The tracker
// ignores the update if another terminal transition already won.
func (o *Orchestrator) finish(taskID string, status models.ImportStatus, message string) {
	before, ok := o.tracker.Read(taskID)
	if !ok || before.Status.IsTerminal() {
		return
	}

	snapshot, _ := o.tracker.Update(taskID, func(task *models.ImportTask) {
		task.Status = status
		task.Message = message
	})

	logger := o.logger.WithFields(logrus.Fields{
		"taskId": taskID,
		"status": status,
	})
	logger.Info("Import finished")

	if o.records != nil {
		if err := o.records.SaveSnapshot(context.Background(), &snapshot); err != nil {
			logger.WithError(err).Warn("Failed to persist terminal task snapshot")
		}
	}

	if o.bus != nil {
		o.bus.Publish(events.NewEvent(terminalEventType(status), map[string]interface{}{
			"task_id":         snapshot.ID,
			"status":          string(snapshot.Status),
			"total_rows":      snapshot.TotalRows,
			"processed_rows":  snapshot.ProcessedRows,
			"successful_rows": snapshot.SuccessfulRows,
			"failed_rows":     snapshot.FailedRows,
			"inserted_rows":   snapshot.InsertedRows,
			"updated_rows":    snapshot.UpdatedRows,
			"message":         snapshot.Message,
		}))
	}
}

func terminalEventType(status models.ImportStatus) string {
	switch status {
	case models.ImportStatusCompleted:
		return models.EventImportCompleted
	case models.ImportStatusCancelled:
		return models.EventImportCancelled
	default:
		return models.EventImportFailed
	}
}
