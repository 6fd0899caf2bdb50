package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/brightfeed/brightfeed-backend/internal/jobs/orchestrator"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

type JobsHandler struct {
	jobs services.JobService
	orch *orchestrator.Orchestrator
}

func NewJobsHandler(jobs services.JobService, orch *orchestrator.Orchestrator) *JobsHandler {
	return &JobsHandler{jobs: jobs, orch: orch}
}

func (h *JobsHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// EnqueueBatch accepts a batch_process request: one parent job that fans
// out into per-item jobs.
func (h *JobsHandler) EnqueueBatch(c *gin.Context) {
	var req struct {
		JobType    string   `json:"job_type"`
		ContentIDs []string `json:"content_ids"`
		Priority   int      `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	ids := make([]any, 0, len(req.ContentIDs))
	for _, s := range req.ContentIDs {
		ids = append(ids, s)
	}
	job, err := h.jobs.Enqueue(c.Request.Context(), nil, services.EnqueueInput{
		JobType:  types.JobTypeBatchProcess,
		Priority: req.Priority,
		Payload: map[string]any{
			"job_type":    req.JobType,
			"content_ids": ids,
		},
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

func (h *JobsHandler) Metrics(c *gin.Context) {
	m, err := h.orch.GetMetrics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Resume reopens job intake after an emergency stop.
func (h *JobsHandler) Resume(c *gin.Context) {
	if err := h.orch.Resume(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resumed": true})
}

// EmergencyStop halts intake and drains the queued backlog; running jobs
// finish.
func (h *JobsHandler) EmergencyStop(c *gin.Context) {
	var req struct {
		JobType string `json:"job_type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cleared, err := h.orch.EmergencyStop(c.Request.Context(), req.JobType)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}
