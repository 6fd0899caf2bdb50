package app

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
)

func wireRouter(log *logger.Logger, h Handlers, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	router.GET("/healthz", h.Health.Healthcheck)
	router.GET("/healthz/queues", h.Health.Queues)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	{
		v1.POST("/content", h.Content.Ingest)
		v1.GET("/content/:id", h.Content.Get)
		v1.GET("/content/:id/similar", h.Content.Similar)

		v1.POST("/search", h.Search.Search)
		v1.GET("/search/suggest", h.Search.Suggest)

		v1.GET("/users/:user_id/feed", h.Feed.Feed)
		v1.POST("/users/:user_id/readings", h.Feed.RecordReading)

		v1.GET("/trending", h.Trending.Trending)

		v1.GET("/jobs/:id", h.Jobs.Get)
		v1.POST("/jobs/batch", h.Jobs.EnqueueBatch)
		v1.GET("/jobs/metrics", h.Jobs.Metrics)
		v1.POST("/jobs/emergency-stop", h.Jobs.EmergencyStop)
		v1.POST("/jobs/resume", h.Jobs.Resume)
	}
	return router
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	l := log.With("component", "HTTP")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info("Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
