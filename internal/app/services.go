package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/cache"
	"github.com/brightfeed/brightfeed-backend/internal/clients/openai"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/orchestrator"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/analyze_content"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/batch_process"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/categorize_content"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/duplicate_check"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/embed_content"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/feed_build"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/pipeline/trending_detect"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/jobs/worker"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/scheduler"
	"github.com/brightfeed/brightfeed-backend/internal/services"
)

type Services struct {
	Cache   cache.Cache
	Metrics *metrics.Metrics

	Embedding      services.EmbeddingService
	Categorization services.CategorizationService
	Analysis       services.AnalysisService
	Search         services.SearchService
	Recommendation services.RecommendationService
	Trending       services.TrendingService
	Jobs           services.JobService

	Orchestrator *orchestrator.Orchestrator
	JobWorker    *worker.Worker
	Scheduler    *scheduler.Scheduler
}

// wireClients builds the embedding/LLM provider fallback chain: the primary
// provider always, plus a fallback when FALLBACK_OPENAI_API_KEY is set.
func wireClients(log *logger.Logger) ([]openai.Client, error) {
	primary, err := openai.NewClient(openai.ConfigFromEnv("", log), log)
	if err != nil {
		return nil, fmt.Errorf("init primary provider: %w", err)
	}
	clients := []openai.Client{primary}

	if os.Getenv("FALLBACK_OPENAI_API_KEY") != "" {
		fallback, err := openai.NewClient(openai.ConfigFromEnv("FALLBACK_", log), log)
		if err != nil {
			return nil, fmt.Errorf("init fallback provider: %w", err)
		}
		clients = append(clients, fallback)
	}
	return clients, nil
}

func wireCache(cfg Config, log *logger.Logger) (cache.Cache, error) {
	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemory(), nil
	case "redis":
		return cache.NewRedis(log)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos) (Services, error) {
	m := metrics.New()

	c, err := wireCache(cfg, log)
	if err != nil {
		return Services{}, fmt.Errorf("init cache: %w", err)
	}

	clients, err := wireClients(log)
	if err != nil {
		return Services{}, err
	}
	llm := clients[0]

	embedding, err := services.NewEmbeddingService(db, log, cfg.Embedding, c, m, r.Content, clients)
	if err != nil {
		return Services{}, fmt.Errorf("init embedding service: %w", err)
	}
	categorization, err := services.NewCategorizationService(db, log, cfg.Categorization, m, embedding, r.Content, llm)
	if err != nil {
		return Services{}, fmt.Errorf("init categorization service: %w", err)
	}
	analysis, err := services.NewAnalysisService(log, cfg.Analysis, m, llm)
	if err != nil {
		return Services{}, fmt.Errorf("init analysis service: %w", err)
	}
	search, err := services.NewSearchService(log, cfg.Search, c, m, r.Content, embedding)
	if err != nil {
		return Services{}, fmt.Errorf("init search service: %w", err)
	}
	recommendation, err := services.NewRecommendationService(db, log, cfg.Recommendation, c, m, r.Content, r.UserProfiles, r.Similarity, embedding)
	if err != nil {
		return Services{}, fmt.Errorf("init recommendation service: %w", err)
	}
	trending, err := services.NewTrendingService(db, log, cfg.Trending, m, r.Content, r.TopicHistory)
	if err != nil {
		return Services{}, fmt.Errorf("init trending service: %w", err)
	}
	jobs := services.NewJobService(db, log, m, r.JobRuns)

	orch := orchestrator.New(db, log, m, r.Content, jobs, recommendation, cfg.QueueHighWater)

	registry := runtime.NewRegistry()
	pipelines := []runtime.Handler{
		embed_content.New(db, log, r.Content, embedding, jobs),
		categorize_content.New(db, log, r.Content, categorization),
		analyze_content.New(db, log, r.Content, analysis),
		duplicate_check.New(db, log, r.Content, embedding),
		feed_build.New(db, log, recommendation),
		trending_detect.New(db, log, trending),
		batch_process.New(db, log, jobs),
	}
	for _, p := range pipelines {
		if err := registry.Register(p); err != nil {
			return Services{}, fmt.Errorf("register pipeline: %w", err)
		}
	}
	jobWorker := worker.NewWorker(db, log, m, r.JobRuns, registry, worker.DefaultPools())

	sched := scheduler.New(log, cfg.Scheduler, m, r.UserProfiles, recommendation, trending, jobs, orch)

	return Services{
		Cache:          c,
		Metrics:        m,
		Embedding:      embedding,
		Categorization: categorization,
		Analysis:       analysis,
		Search:         search,
		Recommendation: recommendation,
		Trending:       trending,
		Jobs:           jobs,
		Orchestrator:   orch,
		JobWorker:      jobWorker,
		Scheduler:      sched,
	}, nil
}
