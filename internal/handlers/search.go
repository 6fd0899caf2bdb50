package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
)

type SearchHandler struct {
	search services.SearchService
}

func NewSearchHandler(search services.SearchService) *SearchHandler {
	return &SearchHandler{search: search}
}

func (h *SearchHandler) Search(c *gin.Context) {
	var req struct {
		Query        string   `json:"query"`
		Type         string   `json:"type"`
		Limit        int      `json:"limit"`
		Offset       int      `json:"offset"`
		Categories   []string `json:"categories"`
		Sources      []string `json:"sources"`
		Authors      []string `json:"authors"`
		Tags         []string `json:"tags"`
		ContentType  string   `json:"content_type"`
		MinQuality   float64  `json:"min_quality"`
		MaxAgeHours  int      `json:"max_age_hours"`
		Aggregations []string `json:"aggregations"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	opts := services.SearchOptions{
		Type:   req.Type,
		Limit:  req.Limit,
		Offset: req.Offset,
		Filters: repos.ContentFilters{
			Categories:  req.Categories,
			Sources:     req.Sources,
			Authors:     req.Authors,
			Tags:        req.Tags,
			ContentType: req.ContentType,
			MinQuality:  req.MinQuality,
			MaxAge:      time.Duration(req.MaxAgeHours) * time.Hour,
		},
		Aggregations: req.Aggregations,
	}
	result, err := h.search.Search(c.Request.Context(), req.Query, opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SearchHandler) Suggest(c *gin.Context) {
	prefix := c.Query("q")
	out, err := h.search.Suggest(c.Request.Context(), prefix, 5)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": out})
}
