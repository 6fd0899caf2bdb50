package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brightfeed/brightfeed-backend/internal/jobs/orchestrator"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

type FeedHandler struct {
	orch      *orchestrator.Orchestrator
	recommend services.RecommendationService
}

func NewFeedHandler(orch *orchestrator.Orchestrator, recommend services.RecommendationService) *FeedHandler {
	return &FeedHandler{orch: orch, recommend: recommend}
}

func (h *FeedHandler) Feed(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req struct {
		Limit             int           `form:"limit"`
		ExcludeRead       bool          `form:"exclude_read"`
		ExcludeCategories []string      `form:"exclude_categories"`
		ContentTypes      []string      `form:"content_types"`
		MinQuality        float64       `form:"min_quality"`
		MaxAge            time.Duration `form:"max_age"`
		DiversityFactor   float64       `form:"diversity_factor"`
		Refresh           bool          `form:"refresh"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}
	resp, err := h.orch.PersonalizedFeed(c.Request.Context(), orchestrator.FeedRequest{
		UserID:            userID,
		Limit:             req.Limit,
		ExcludeRead:       req.ExcludeRead,
		ExcludeCategories: req.ExcludeCategories,
		ContentTypes:      req.ContentTypes,
		MinQuality:        req.MinQuality,
		MaxAge:            req.MaxAge,
		DiversityFactor:   req.DiversityFactor,
		Refresh:           req.Refresh,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RecordReading appends a reading event used by profile building and
// collaborative filtering.
func (h *FeedHandler) RecordReading(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	var req struct {
		ContentID       string `json:"content_id"`
		Rating          *int   `json:"rating"`
		ReadTimeSeconds *int   `json:"read_time_seconds"`
		Category        string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	contentID, err := uuid.Parse(req.ContentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content id"})
		return
	}
	event := &types.ReadingEvent{
		UserID:          userID,
		ContentID:       contentID,
		Rating:          req.Rating,
		ReadTimeSeconds: req.ReadTimeSeconds,
		Category:        req.Category,
	}
	if err := h.recommend.RecordReading(c.Request.Context(), event); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"recorded": true})
}
