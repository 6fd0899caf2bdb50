package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brightfeed/brightfeed-backend/internal/jobs/orchestrator"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
)

type ContentHandler struct {
	content    repos.ContentRepo
	similarity repos.SimilarityRepo
	orch       *orchestrator.Orchestrator
	embedding  services.EmbeddingService
}

func NewContentHandler(content repos.ContentRepo, similarity repos.SimilarityRepo, orch *orchestrator.Orchestrator, embedding services.EmbeddingService) *ContentHandler {
	return &ContentHandler{content: content, similarity: similarity, orch: orch, embedding: embedding}
}

// Ingest admits one item into the pipeline: the row plus its first jobs are
// created transactionally, processing happens asynchronously.
func (h *ContentHandler) Ingest(c *gin.Context) {
	var req struct {
		ContentType string     `json:"content_type"`
		Title       string     `json:"title"`
		Body        string     `json:"body"`
		Summary     string     `json:"summary"`
		Source      string     `json:"source"`
		Author      string     `json:"author"`
		URL         string     `json:"url"`
		PublishedAt *time.Time `json:"published_at"`
		Priority    int        `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	input := orchestrator.NewContentInput{
		ContentType: req.ContentType,
		Title:       req.Title,
		Body:        req.Body,
		Summary:     req.Summary,
		Source:      req.Source,
		Author:      req.Author,
		URL:         req.URL,
		Priority:    req.Priority,
	}
	if req.PublishedAt != nil {
		input.PublishedAt = *req.PublishedAt
	}
	result, err := h.orch.ProcessNewContent(c.Request.Context(), input)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *ContentHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content id"})
		return
	}
	item, err := h.content.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "content not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

// Similar returns nearest neighbors of one item. The precomputed similarity
// matrix answers unfiltered requests without touching the vector index; a
// live query covers filtered requests and items the nightly refresh has not
// reached yet.
func (h *ContentHandler) Similar(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid content id"})
		return
	}
	var req struct {
		Limit      int      `form:"limit"`
		Threshold  float64  `form:"threshold"`
		Categories []string `form:"categories"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}

	if len(req.Categories) == 0 && req.Threshold == 0 {
		precomputed, err := h.similarity.TopSimilarContent(c.Request.Context(), nil, id, req.Limit)
		if err == nil && len(precomputed) > 0 {
			rows := make([]repos.SimilarContent, 0, len(precomputed))
			for _, p := range precomputed {
				rows = append(rows, repos.SimilarContent{ContentID: p.OtherID, Similarity: p.Similarity})
			}
			c.JSON(http.StatusOK, gin.H{"content_id": id, "similar": rows, "precomputed": true})
			return
		}
	}

	rows, err := h.embedding.FindSimilarContent(c.Request.Context(), id, services.SimilarContentOptions{
		Limit:      req.Limit,
		Threshold:  req.Threshold,
		Categories: req.Categories,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content_id": id, "similar": rows})
}
