package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/brightfeed/brightfeed-backend/internal/jobs/orchestrator"
)

type HealthHandler struct {
	orch *orchestrator.Orchestrator
}

func NewHealthHandler(orch *orchestrator.Orchestrator) *HealthHandler {
	return &HealthHandler{orch: orch}
}

func (h *HealthHandler) Healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Queues reports backlog depth against the high-water mark; 503 when
// degraded so load balancers can shed ingest traffic.
func (h *HealthHandler) Queues(c *gin.Context) {
	health, err := h.orch.QueueHealth(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}
