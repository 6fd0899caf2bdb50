package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/brightfeed/brightfeed-backend/internal/jobs/orchestrator"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Config holds the cron expressions for the periodic maintenance work.
// Defaults cover a single-node deployment; multi-node installs should pin
// the scheduler to one instance.
type Config struct {
	TrendingSpec        string
	SimilaritySpec      string
	ProfileRefreshSpec  string
	TopicPruneSpec      string
	BacklogCheckSpec    string
	ProfileActiveWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		TrendingSpec:        "*/15 * * * *",
		SimilaritySpec:      "0 3 * * *",
		ProfileRefreshSpec:  "10 * * * *",
		TopicPruneSpec:      "30 4 * * *",
		BacklogCheckSpec:    "*/5 * * * *",
		ProfileActiveWindow: 24 * time.Hour,
	}
}

type Scheduler struct {
	cron      *cron.Cron
	log       *logger.Logger
	cfg       Config
	metrics   *metrics.Metrics
	profiles  repos.UserProfileRepo
	recommend services.RecommendationService
	trending  services.TrendingService
	jobs      services.JobService
	orch      *orchestrator.Orchestrator
}

func New(
	baseLog *logger.Logger,
	cfg Config,
	m *metrics.Metrics,
	profiles repos.UserProfileRepo,
	recommend services.RecommendationService,
	trending services.TrendingService,
	jobs services.JobService,
	orch *orchestrator.Orchestrator,
) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		log:       baseLog.With("component", "Scheduler"),
		cfg:       cfg,
		metrics:   m,
		profiles:  profiles,
		recommend: recommend,
		trending:  trending,
		jobs:      jobs,
		orch:      orch,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	entries := []struct {
		spec string
		name string
		fn   func(context.Context)
	}{
		{s.cfg.TrendingSpec, "trending_detect", s.enqueueTrending},
		{s.cfg.SimilaritySpec, "similarity_refresh", s.refreshSimilarities},
		{s.cfg.ProfileRefreshSpec, "profile_refresh", s.refreshActiveProfiles},
		{s.cfg.TopicPruneSpec, "topic_prune", s.pruneTopics},
		{s.cfg.BacklogCheckSpec, "backlog_check", s.checkBacklog},
	}
	for _, e := range entries {
		e := e
		if _, err := s.cron.AddFunc(e.spec, func() {
			start := time.Now()
			e.fn(ctx)
			s.metrics.Observe("scheduler", e.name, time.Since(start))
		}); err != nil {
			return err
		}
		s.log.Info("Registered scheduled task", "task", e.name, "spec", e.spec)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running entries to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) enqueueTrending(ctx context.Context) {
	if _, err := s.jobs.Enqueue(ctx, nil, services.EnqueueInput{
		JobType: types.JobTypeTrendingDetect,
	}); err != nil {
		s.log.Warn("Failed to enqueue trending detection", "error", err)
	}
}

func (s *Scheduler) refreshSimilarities(ctx context.Context) {
	users, err := s.recommend.RefreshUserSimilarities(ctx)
	if err != nil {
		s.log.Error("User similarity refresh failed", "error", err)
	}
	items, err := s.recommend.RefreshContentSimilarities(ctx, 500)
	if err != nil {
		s.log.Error("Content similarity refresh failed", "error", err)
	}
	s.log.Info("Refreshed similarity matrices", "users", users, "items", items)
}

// refreshActiveProfiles recomputes behavior metrics for users active inside
// the configured window. Inactive profiles keep their last snapshot.
func (s *Scheduler) refreshActiveProfiles(ctx context.Context) {
	since := time.Now().Add(-s.cfg.ProfileActiveWindow)
	profiles, err := s.profiles.ListActiveSince(ctx, nil, since, 1000)
	if err != nil {
		s.log.Error("Failed to list active profiles", "error", err)
		return
	}
	refreshed := 0
	for _, p := range profiles {
		if ctx.Err() != nil {
			return
		}
		if err := s.recommend.RefreshUserProfile(ctx, p.UserID); err != nil {
			s.log.Warn("Profile refresh failed", "user_id", p.UserID, "error", err)
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		s.log.Info("Refreshed active user profiles", "count", refreshed)
	}
}

func (s *Scheduler) pruneTopics(ctx context.Context) {
	if _, err := s.trending.PruneHistory(ctx); err != nil {
		s.log.Error("Topic history prune failed", "error", err)
	}
}

func (s *Scheduler) checkBacklog(ctx context.Context) {
	health, err := s.orch.QueueHealth(ctx)
	if err != nil {
		s.log.Error("Backlog check failed", "error", err)
		return
	}
	if !health.Healthy {
		s.log.Warn("Job backlog above high-water mark", "backlogs", health.Backlogs)
		s.metrics.Inc("scheduler", "backlog_high_water")
	}
	for jobType, n := range health.Dead {
		s.log.Warn("Dead-letter jobs present", "job_type", jobType, "count", n)
	}
}
