package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/event-scheduler/internal/domain"
)

// writeError maps the error taxonomy onto HTTP status codes. Validation,
// uniqueness and quota failures are the caller's problem; everything else
// is reported generically and logged with the precise cause.
func (h *EventHandler) writeError(c *gin.Context, err error) {
	if reason, ok := domain.IsLimitExceeded(err); ok {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": reason})
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidTransition):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "job already exists"})
	case errors.Is(err, domain.ErrConcurrentRun):
		c.JSON(http.StatusConflict, gin.H{"error": "another run is already active"})
	default:
		h.logger.Error("Request failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
