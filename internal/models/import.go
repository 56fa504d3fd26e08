package models

import (
	"time"

	"gorm.io/datatypes"
)

// ImportFormat represents the file format for import
type ImportFormat string

const (
	ImportFormatCSV ImportFormat = "csv"
)

// ImportStatus represents the lifecycle status of an import task
type ImportStatus string

const (
	ImportStatusPending    ImportStatus = "pending"
	ImportStatusProcessing ImportStatus = "processing"
	ImportStatusCompleted  ImportStatus = "completed"
	ImportStatusFailed     ImportStatus = "failed"
	ImportStatusCancelled  ImportStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions
func (s ImportStatus) IsTerminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusCancelled
}

// ImportTask is the progress snapshot of a CSV import.
// Written by exactly one orchestrator goroutine per task and read by any
// number of pollers; readers always receive a value copy, never a shared
// pointer, so a snapshot can never mix fields from two batch updates.
type ImportTask struct {
	ID              string       `json:"task_id"`
	Status          ImportStatus `json:"status"`
	TotalRows       *int         `json:"total_rows"`
	ProcessedRows   int          `json:"processed_rows"`
	SuccessfulRows  int          `json:"successful_rows"`
	FailedRows      int          `json:"failed_rows"`
	InsertedRows    int          `json:"inserted_rows"`
	UpdatedRows     int          `json:"updated_rows"`
	Errors          []string     `json:"errors"`
	OmittedErrors   int          `json:"omitted_errors,omitempty"`
	Message         string       `json:"message,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	CreatedAt       time.Time    `json:"created_at"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
}

// Progress returns the completion percentage, or nil while the total is unknown
func (t *ImportTask) Progress() *float64 {
	if t.TotalRows == nil || *t.TotalRows <= 0 {
		if t.Status.IsTerminal() {
			done := 100.0
			return &done
		}
		return nil
	}
	pct := float64(t.ProcessedRows) / float64(*t.TotalRows) * 100.0
	if pct > 100.0 {
		pct = 100.0
	}
	return &pct
}

// TaskProgressResponse is the polling payload for GET /tasks/:id/progress
type TaskProgressResponse struct {
	TaskID         string       `json:"task_id"`
	Status         ImportStatus `json:"status"`
	Progress       *float64     `json:"progress"`
	TotalRows      *int         `json:"total_rows"`
	ProcessedRows  int          `json:"processed_rows"`
	SuccessfulRows int          `json:"successful_rows"`
	FailedRows     int          `json:"failed_rows"`
	Message        string       `json:"message,omitempty"`
	Errors         []string     `json:"errors"`
	OmittedErrors  int          `json:"omitted_errors,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
}

// ToProgressResponse builds the polling payload from a task snapshot
func (t *ImportTask) ToProgressResponse() TaskProgressResponse {
	errs := t.Errors
	if errs == nil {
		errs = []string{}
	}
	return TaskProgressResponse{
		TaskID:         t.ID,
		Status:         t.Status,
		Progress:       t.Progress(),
		TotalRows:      t.TotalRows,
		ProcessedRows:  t.ProcessedRows,
		SuccessfulRows: t.SuccessfulRows,
		FailedRows:     t.FailedRows,
		Message:        t.Message,
		Errors:         errs,
		OmittedErrors:  t.OmittedErrors,
		CreatedAt:      t.CreatedAt,
		CompletedAt:    t.CompletedAt,
	}
}

// ImportTaskRecord is the persisted form of an import task, written when a
// task is accepted and again when it reaches a terminal state so that import
// history survives restarts.
type ImportTaskRecord struct {
	ID             string         `json:"id" gorm:"type:uuid;primary_key"`
	Filename       string         `json:"filename"`
	Status         ImportStatus   `json:"status" gorm:"not null;index"`
	TotalRows      *int           `json:"totalRows"`
	ProcessedRows  int            `json:"processedRows"`
	SuccessfulRows int            `json:"successfulRows"`
	FailedRows     int            `json:"failedRows"`
	Errors         datatypes.JSON `json:"errors,omitempty"`
	Message        string         `json:"message,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// TableName returns the table name for the ImportTaskRecord model
func (ImportTaskRecord) TableName() string {
	return "import_tasks"
}

// UploadResponse is returned when an upload is accepted for processing
type UploadResponse struct {
	TaskID   string `json:"task_id"`
	Filename string `json:"filename"`
	Message  string `json:"message"`
}

// ImportTemplateColumn defines a column in the import template
type ImportTemplateColumn struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
	Example     string `json:"example"`
}

// ImportTemplate defines the structure of an import template
type ImportTemplate struct {
	Entity  string                 `json:"entity"`
	Version string                 `json:"version"`
	Columns []ImportTemplateColumn `json:"columns"`
}

// ProductImportTemplate returns the template definition for product imports
func ProductImportTemplate() ImportTemplate {
	return ImportTemplate{
		Entity:  "products",
		Version: "1.0",
		Columns: []ImportTemplateColumn{
			{Name: "name", Description: "Product name", Required: true, Type: "string", Example: "Blue Cotton T-Shirt"},
			{Name: "sku", Description: "Unique product SKU (case-insensitive)", Required: true, Type: "string", Example: "TSH-BLU-001"},
			{Name: "description", Description: "Product description", Required: false, Type: "string", Example: ""},
			{Name: "active", Description: "Whether the product is active", Required: false, Type: "boolean", Example: "true"},
		},
	}
}
