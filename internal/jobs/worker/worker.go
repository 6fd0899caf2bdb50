package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// PoolConfig sizes one per-type worker pool. Each job type gets its own
// concurrency, retry budget and backoff so a slow pipeline never starves
// the cheap ones.
type PoolConfig struct {
	Concurrency int
	MaxAttempts int
	// RetryDelay is the base of the exponential backoff: a job that has
	// failed n times waits RetryDelay * 2^(n-1) before its next claim.
	RetryDelay   time.Duration
	StaleRunning time.Duration
	PollInterval time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 30 * time.Second
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = 10 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	return c
}

// DefaultPools maps every job type to a pool sized for its cost profile:
// provider-bound pipelines get more retries and longer backoff, cheap local
// pipelines get more concurrency.
func DefaultPools() map[string]PoolConfig {
	return map[string]PoolConfig{
		types.JobTypeEmbedContent:   {Concurrency: 4, MaxAttempts: 5, RetryDelay: time.Minute},
		types.JobTypeCategorize:     {Concurrency: 4, MaxAttempts: 4, RetryDelay: 30 * time.Second},
		types.JobTypeAnalyzeContent: {Concurrency: 4, MaxAttempts: 3, RetryDelay: 30 * time.Second},
		types.JobTypeDuplicateCheck: {Concurrency: 2, MaxAttempts: 3, RetryDelay: 15 * time.Second},
		types.JobTypeFeedBuild:      {Concurrency: 2, MaxAttempts: 2, RetryDelay: 15 * time.Second},
		types.JobTypeTrendingDetect: {Concurrency: 1, MaxAttempts: 2, RetryDelay: time.Minute, StaleRunning: 30 * time.Minute},
		types.JobTypeBatchProcess:   {Concurrency: 1, MaxAttempts: 2, RetryDelay: time.Minute, StaleRunning: 30 * time.Minute},
	}
}

type Worker struct {
	db       *gorm.DB
	log      *logger.Logger
	metrics  *metrics.Metrics
	repo     repos.JobRunRepo
	registry *runtime.Registry
	pools    map[string]PoolConfig
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, m *metrics.Metrics, repo repos.JobRunRepo, registry *runtime.Registry, pools map[string]PoolConfig) *Worker {
	if pools == nil {
		pools = DefaultPools()
	}
	return &Worker{
		db:       db,
		log:      baseLog.With("component", "JobWorker"),
		metrics:  m,
		repo:     repo,
		registry: registry,
		pools:    pools,
	}
}

// Start launches one pool per registered job type plus the dead-letter
// sweeper, all bound to ctx.
func (w *Worker) Start(ctx context.Context) {
	for _, jobType := range w.registry.Types() {
		cfg := w.pools[jobType].withDefaults()
		w.log.Info("Starting worker pool",
			"job_type", jobType,
			"concurrency", cfg.Concurrency,
			"max_attempts", cfg.MaxAttempts,
		)
		for i := 0; i < cfg.Concurrency; i++ {
			go w.runLoop(ctx, jobType, cfg, i+1)
		}
	}
	go w.sweepLoop(ctx)
}

func (w *Worker) runLoop(ctx context.Context, jobType string, cfg PoolConfig, workerID int) {
	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				claimed := w.claimAndRun(ctx, jobType, cfg, workerID)
				if !claimed || ctx.Err() != nil {
					break
				}
			}
		}
	}
}

func (w *Worker) claimAndRun(ctx context.Context, jobType string, cfg PoolConfig, workerID int) bool {
	job, err := w.repo.ClaimNextRunnable(ctx, nil, jobType, cfg.MaxAttempts, cfg.StaleRunning)
	if err != nil {
		w.log.Warn("ClaimNextRunnable failed", "job_type", jobType, "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	h, ok := w.registry.Get(job.JobType)
	jc := runtime.NewContext(ctx, w.db, job, w.repo, cfg.RetryDelay)
	if !ok {
		jc.Dead("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return true
	}

	start := time.Now()
	w.execute(jc, h, cfg, workerID)
	w.metrics.Observe("jobs", job.JobType, time.Since(start))
	return true
}

func (w *Worker) execute(jc *runtime.Context, h runtime.Handler, cfg PoolConfig, workerID int) {
	job := jc.Job
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("Job handler panic",
				"worker_id", workerID,
				"job_id", job.ID,
				"job_type", job.JobType,
				"panic", r,
			)
			w.metrics.Inc("jobs", "panic")
			jc.Fail("panic", fmt.Errorf("panic: %v", r))
		}
	}()

	runErr := h.Run(jc)
	switch {
	case runErr == nil:
		if job.Status == types.JobStatusRunning {
			// Handler returned clean without a terminal transition.
			jc.Succeed("done", nil)
		}
		w.metrics.Inc("jobs", "succeeded_"+job.JobType)
	case errors.Is(runErr, services.ErrValidation):
		// A retry can never fix bad input: straight to the dead letter.
		jc.Dead("validate", runErr)
		w.metrics.Inc("jobs", "dead_"+job.JobType)
	case job.Attempts >= cfg.MaxAttempts:
		jc.Dead("exhausted", runErr)
		w.metrics.Inc("jobs", "dead_"+job.JobType)
		w.log.Error("Job exhausted retries",
			"job_id", job.ID,
			"job_type", job.JobType,
			"attempts", job.Attempts,
			"error", runErr,
		)
	default:
		jc.Fail("run", runErr)
		w.metrics.Inc("jobs", "failed_"+job.JobType)
	}
}

// sweepLoop periodically promotes exhausted failures to dead so the claim
// query stops reconsidering them. Catches jobs that failed on a worker that
// died before the terminal write.
func (w *Worker) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for jobType, cfg := range w.pools {
				n, err := w.repo.MarkDeadExhausted(ctx, nil, jobType, cfg.withDefaults().MaxAttempts)
				if err != nil {
					w.log.Warn("Dead-letter sweep failed", "job_type", jobType, "error", err)
					continue
				}
				if n > 0 {
					w.log.Warn("Moved exhausted jobs to dead letter", "job_type", jobType, "count", n)
				}
			}
		}
	}
}
