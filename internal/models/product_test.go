package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSKU(t *testing.T) {
	assert.Equal(t, "abc-123", NormalizeSKU("ABC-123"))
	assert.Equal(t, "abc-123", NormalizeSKU("  abc-123  "))
	assert.Equal(t, "abc-123", NormalizeSKU("AbC-123"))
	assert.Equal(t, "", NormalizeSKU("   "))
}

func TestImportTask_Progress(t *testing.T) {
	task := ImportTask{Status: ImportStatusProcessing}
	assert.Nil(t, task.Progress())

	total := 200
	task.TotalRows = &total
	task.ProcessedRows = 50
	assert.InDelta(t, 25.0, *task.Progress(), 0.01)

	task.ProcessedRows = 250 // never reports past 100
	assert.InDelta(t, 100.0, *task.Progress(), 0.01)

	terminal := ImportTask{Status: ImportStatusFailed}
	assert.InDelta(t, 100.0, *terminal.Progress(), 0.01)
}

func TestImportStatus_IsTerminal(t *testing.T) {
	assert.False(t, ImportStatusPending.IsTerminal())
	assert.False(t, ImportStatusProcessing.IsTerminal())
	assert.True(t, ImportStatusCompleted.IsTerminal())
	assert.True(t, ImportStatusFailed.IsTerminal())
	assert.True(t, ImportStatusCancelled.IsTerminal())
}

func TestValidateWebhookURL(t *testing.T) {
	assert.NoError(t, ValidateWebhookURL("https://example.com/hook"))
	assert.NoError(t, ValidateWebhookURL("http://localhost:9000/hook"))

	assert.Error(t, ValidateWebhookURL("ftp://example.com/hook"))
	assert.Error(t, ValidateWebhookURL("not a url"))
	assert.Error(t, ValidateWebhookURL("/relative/path"))
}

func TestValidateEventTypes(t *testing.T) {
	assert.NoError(t, ValidateEventTypes([]string{EventImportCompleted, EventProductCreated}))

	assert.Error(t, ValidateEventTypes(nil))
	assert.Error(t, ValidateEventTypes([]string{}))
	assert.Error(t, ValidateEventTypes([]string{"import.finished"}))
}

func TestWebhook_ToResponseOmitsSecret(t *testing.T) {
	webhook := Webhook{URL: "https://example.com/hook", Secret: "s3cret"}
	response := webhook.ToResponse()
	assert.Empty(t, response.Secret)
}
