package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightfeed/brightfeed-backend/internal/services"
)

// respondError maps the service error taxonomy to HTTP statuses: validation
// to 400, exhausted provider chains and paused intake to 503, anything else
// to 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrProviderUnavailable), errors.Is(err, services.ErrIntakePaused):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
