package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"ingestion-service/internal/models"
)

func errorJSON(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    code,
			Message: message,
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func badRequest(c *gin.Context, code, message string) {
	errorJSON(c, http.StatusBadRequest, code, message)
}

func notFound(c *gin.Context, code, message string) {
	errorJSON(c, http.StatusNotFound, code, message)
}

func conflict(c *gin.Context, code, message string) {
	errorJSON(c, http.StatusConflict, code, message)
}

func internalError(c *gin.Context, code string, err error) {
	errorJSON(c, http.StatusInternalServerError, code, err.Error())
}

// HealthCheck reports service liveness
// GET /health
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
