package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/diagramq/diagramq/internal/scheduler"
	"github.com/diagramq/diagramq/internal/services"
	"github.com/diagramq/diagramq/pkg/persistence"
)

// writeError maps service errors onto HTTP statuses. Unmapped errors become
// a 500 with a generic message so internals never leak to clients.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, persistence.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
	case errors.Is(err, services.ErrUnknownKind):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown result kind"})
	case errors.Is(err, services.ErrNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "result not ready"})
	case errors.Is(err, services.ErrUnsupportedType),
		errors.Is(err, services.ErrEmptyInput),
		errors.Is(err, services.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, scheduler.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "task queue full, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
