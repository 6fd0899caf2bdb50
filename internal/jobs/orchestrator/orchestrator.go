package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Orchestrator is the entry point of the content pipeline. It admits new
// content, kicks off the processing chain (embed, then categorize and
// duplicate check, with analysis in parallel) and exposes queue-level
// controls.
type Orchestrator struct {
	db        *gorm.DB
	log       *logger.Logger
	metrics   *metrics.Metrics
	content   repos.ContentRepo
	jobs      services.JobService
	recommend services.RecommendationService
	// QueueHighWater marks the backlog size past which health reporting
	// flips to degraded.
	queueHighWater int64
}

func New(db *gorm.DB, baseLog *logger.Logger, m *metrics.Metrics, content repos.ContentRepo, jobs services.JobService, recommend services.RecommendationService, queueHighWater int64) *Orchestrator {
	if queueHighWater <= 0 {
		queueHighWater = 1000
	}
	return &Orchestrator{
		db:             db,
		log:            baseLog.With("component", "Orchestrator"),
		metrics:        m,
		content:        content,
		jobs:           jobs,
		recommend:      recommend,
		queueHighWater: queueHighWater,
	}
}

type NewContentInput struct {
	ContentType string
	Title       string
	Body        string
	Summary     string
	Source      string
	Author      string
	URL         string
	PublishedAt time.Time
	OwnerUserID uuid.UUID
	Priority    int
}

type NewContentResult struct {
	Item *types.ContentItem `json:"item"`
	Jobs []*types.JobRun    `json:"jobs"`
}

// ProcessNewContent persists the item and enqueues the first pipeline
// stages in a single transaction: either the item exists with its jobs
// queued, or nothing was written.
func (o *Orchestrator) ProcessNewContent(ctx context.Context, input NewContentInput) (*NewContentResult, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, services.ErrValidationf("content title must not be empty")
	}
	if strings.TrimSpace(input.Body) == "" {
		return nil, services.ErrValidationf("content body must not be empty")
	}
	switch input.ContentType {
	case types.ContentTypeArticle, types.ContentTypePaper:
	default:
		return nil, services.ErrValidationf("unknown content type %q", input.ContentType)
	}
	publishedAt := input.PublishedAt
	if publishedAt.IsZero() {
		publishedAt = time.Now()
	}
	if input.Priority == 0 {
		input.Priority = types.PriorityInteractive
	}

	item := &types.ContentItem{
		ContentType: input.ContentType,
		Title:       strings.TrimSpace(input.Title),
		Body:        input.Body,
		Summary:     input.Summary,
		Source:      input.Source,
		Author:      input.Author,
		URL:         input.URL,
		PublishedAt: publishedAt,
		Status:      types.ContentStatusPublished,
		ContentHash: contentHash(input.Body),
	}

	var jobs []*types.JobRun
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, cErr := o.content.Create(ctx, tx, []*types.ContentItem{item})
		if cErr != nil {
			return cErr
		}
		item = created[0]
		id := item.ID
		payload := map[string]any{"content_id": id.String()}
		enqueued, jErr := o.jobs.EnqueueBatch(ctx, tx, []services.EnqueueInput{
			{
				JobType:     types.JobTypeEmbedContent,
				OwnerUserID: input.OwnerUserID,
				EntityType:  "content_item",
				EntityID:    &id,
				Priority:    input.Priority,
				Payload:     payload,
			},
			{
				JobType:     types.JobTypeAnalyzeContent,
				OwnerUserID: input.OwnerUserID,
				EntityType:  "content_item",
				EntityID:    &id,
				Priority:    input.Priority,
				Payload:     payload,
			},
		})
		if jErr != nil {
			return jErr
		}
		jobs = enqueued
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.metrics.Inc("orchestrator", "content_admitted")
	o.log.Info("Admitted new content",
		"content_id", item.ID,
		"content_type", item.ContentType,
		"jobs", len(jobs),
	)
	return &NewContentResult{Item: item, Jobs: jobs}, nil
}

type FeedRequest struct {
	UserID            uuid.UUID
	Limit             int
	ExcludeRead       bool
	ExcludeCategories []string
	ContentTypes      []string
	MinQuality        float64
	MaxAge            time.Duration
	DiversityFactor   float64
	Refresh           bool
}

type FeedResponse struct {
	Feed *services.FeedResult `json:"feed"`
	// RefreshJob is set when a forced refresh enqueued a rebuild; the feed
	// returned alongside it is the current snapshot.
	RefreshJob *types.JobRun `json:"refresh_job,omitempty"`
}

// PersonalizedFeed composes the cached fast path with the feed_build queue.
// A plain request serves from cache, building synchronously on a miss. A
// forced refresh enqueues a rebuild at interactive priority and still
// answers immediately with the current snapshot, so the caller never waits
// on the queue.
func (o *Orchestrator) PersonalizedFeed(ctx context.Context, req FeedRequest) (*FeedResponse, error) {
	if req.UserID == uuid.Nil {
		return nil, services.ErrValidationf("feed requires a user id")
	}
	resp := &FeedResponse{}

	if req.Refresh {
		id := req.UserID
		run, err := o.jobs.Enqueue(ctx, nil, services.EnqueueInput{
			JobType:     types.JobTypeFeedBuild,
			OwnerUserID: req.UserID,
			EntityType:  "user_profile",
			EntityID:    &id,
			Priority:    types.PriorityInteractive,
			Payload:     map[string]any{"user_id": req.UserID.String(), "limit": req.Limit},
		})
		if err != nil {
			return nil, err
		}
		resp.RefreshJob = run
		o.metrics.Inc("orchestrator", "feed_refresh_enqueued")
	}

	feed, err := o.recommend.Recommend(ctx, req.UserID, services.RecommendOptions{
		Limit:             req.Limit,
		ExcludeRead:       req.ExcludeRead,
		ExcludeCategories: req.ExcludeCategories,
		ContentTypes:      req.ContentTypes,
		MinQuality:        req.MinQuality,
		MaxAge:            req.MaxAge,
		DiversityFactor:   req.DiversityFactor,
	})
	if err != nil {
		return nil, err
	}
	resp.Feed = feed
	return resp, nil
}

// contentHash is sha256 over the whitespace-normalized lowercased body, so
// trivial formatting differences still collide for exact-duplicate lookup.
func contentHash(body string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(body)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// PipelineMetrics combines queue state with in-process engine counters.
type PipelineMetrics struct {
	Queues   map[string]map[string]int64 `json:"queues"`
	Counters map[string]map[string]int64 `json:"counters"`
}

func (o *Orchestrator) GetMetrics(ctx context.Context) (*PipelineMetrics, error) {
	queues, err := o.jobs.QueueCounts(ctx)
	if err != nil {
		return nil, err
	}
	return &PipelineMetrics{
		Queues:   queues,
		Counters: o.metrics.Snapshot(),
	}, nil
}

// QueueHealth reports backlog depth per job type against the high-water
// mark. Used by the health endpoint and the scheduler's backlog check.
type QueueHealth struct {
	Healthy      bool             `json:"healthy"`
	IntakePaused bool             `json:"intake_paused"`
	Backlogs     map[string]int64 `json:"backlogs"`
	Dead         map[string]int64 `json:"dead"`
}

func (o *Orchestrator) QueueHealth(ctx context.Context) (*QueueHealth, error) {
	queues, err := o.jobs.QueueCounts(ctx)
	if err != nil {
		return nil, err
	}
	health := &QueueHealth{
		Healthy:      true,
		IntakePaused: o.jobs.IntakePaused(),
		Backlogs:     map[string]int64{},
		Dead:         map[string]int64{},
	}
	for jobType, byStatus := range queues {
		backlog := byStatus[types.JobStatusQueued] + byStatus[types.JobStatusFailed]
		health.Backlogs[jobType] = backlog
		if n := byStatus[types.JobStatusDead]; n > 0 {
			health.Dead[jobType] = n
		}
		if backlog > o.queueHighWater {
			health.Healthy = false
		}
	}
	return health, nil
}

// EmergencyStop clears the queued backlog, optionally for one type, and
// halts intake until Resume.
func (o *Orchestrator) EmergencyStop(ctx context.Context, jobType string) (int64, error) {
	return o.jobs.EmergencyStop(ctx, jobType)
}

// Resume reopens intake after an emergency stop.
func (o *Orchestrator) Resume(ctx context.Context) error {
	return o.jobs.Resume(ctx)
}
