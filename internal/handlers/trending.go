package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brightfeed/brightfeed-backend/internal/services"
)

type TrendingHandler struct {
	trending services.TrendingService
}

func NewTrendingHandler(trending services.TrendingService) *TrendingHandler {
	return &TrendingHandler{trending: trending}
}

// Trending returns the merged multi-window report, or a single window when
// ?window=6h is given.
func (h *TrendingHandler) Trending(c *gin.Context) {
	if raw := c.Query("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
			return
		}
		topics, err := h.trending.DetectWindow(c.Request.Context(), window)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"window": raw, "topics": topics})
		return
	}
	report, err := h.trending.Detect(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}
