package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

var knownJobTypes = map[string]bool{
	types.JobTypeEmbedContent:   true,
	types.JobTypeCategorize:     true,
	types.JobTypeAnalyzeContent: true,
	types.JobTypeDuplicateCheck: true,
	types.JobTypeFeedBuild:      true,
	types.JobTypeTrendingDetect: true,
	types.JobTypeBatchProcess:   true,
}

// EnqueueInput describes one job to enqueue. Payload is serialized to jsonb
// as-is; pipelines validate required fields on claim.
type EnqueueInput struct {
	JobType     string
	OwnerUserID uuid.UUID
	EntityType  string
	EntityID    *uuid.UUID
	Priority    int
	Payload     map[string]any
}

type JobService interface {
	Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) (*types.JobRun, error)
	EnqueueBatch(ctx context.Context, tx *gorm.DB, inputs []EnqueueInput) ([]*types.JobRun, error)
	Get(ctx context.Context, id uuid.UUID) (*types.JobRun, error)
	QueueCounts(ctx context.Context) (map[string]map[string]int64, error)

	// EmergencyStop drops all queued jobs of one type, or every type when
	// jobType is empty, and halts intake. Running jobs finish; enqueue
	// attempts fail with ErrIntakePaused until Resume.
	EmergencyStop(ctx context.Context, jobType string) (int64, error)
	Resume(ctx context.Context) error
	IntakePaused() bool
}

type jobService struct {
	db      *gorm.DB
	log     *logger.Logger
	metrics *metrics.Metrics
	runs    repos.JobRunRepo
	// paused gates intake after an emergency stop. Process-local: each
	// instance pauses its own intake, the shared queue is cleared once.
	paused atomic.Bool
}

func NewJobService(db *gorm.DB, baseLog *logger.Logger, m *metrics.Metrics, runs repos.JobRunRepo) JobService {
	return &jobService{
		db:      db,
		log:     baseLog.With("service", "JobService"),
		metrics: m,
		runs:    runs,
	}
}

func (s *jobService) buildRun(input EnqueueInput) (*types.JobRun, error) {
	if !knownJobTypes[input.JobType] {
		return nil, validationErrorf("unknown job type %q", input.JobType)
	}
	var payload datatypes.JSON
	if input.Payload != nil {
		b, err := json.Marshal(input.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal job payload: %w", err)
		}
		payload = datatypes.JSON(b)
	}
	return &types.JobRun{
		OwnerUserID: input.OwnerUserID,
		JobType:     input.JobType,
		EntityType:  input.EntityType,
		EntityID:    input.EntityID,
		Priority:    input.Priority,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Payload:     payload,
	}, nil
}

func (s *jobService) Enqueue(ctx context.Context, tx *gorm.DB, input EnqueueInput) (*types.JobRun, error) {
	runs, err := s.EnqueueBatch(ctx, tx, []EnqueueInput{input})
	if err != nil {
		return nil, err
	}
	return runs[0], nil
}

func (s *jobService) EnqueueBatch(ctx context.Context, tx *gorm.DB, inputs []EnqueueInput) ([]*types.JobRun, error) {
	if s.paused.Load() {
		s.metrics.Inc("jobs", "rejected_paused")
		return nil, ErrIntakePaused
	}
	if len(inputs) == 0 {
		return []*types.JobRun{}, nil
	}
	runs := make([]*types.JobRun, 0, len(inputs))
	for _, input := range inputs {
		run, err := s.buildRun(input)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	created, err := s.runs.Create(ctx, tx, runs)
	if err != nil {
		return nil, fmt.Errorf("enqueue jobs: %w", err)
	}
	for _, run := range created {
		s.metrics.Inc("jobs", "enqueued_"+run.JobType)
	}
	return created, nil
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*types.JobRun, error) {
	return s.runs.GetByID(ctx, nil, id)
}

func (s *jobService) QueueCounts(ctx context.Context) (map[string]map[string]int64, error) {
	return s.runs.CountByTypeAndStatus(ctx, nil)
}

func (s *jobService) EmergencyStop(ctx context.Context, jobType string) (int64, error) {
	if jobType != "" && !knownJobTypes[jobType] {
		return 0, validationErrorf("unknown job type %q", jobType)
	}
	// Halt intake before draining so nothing refills the queue behind the
	// delete. In-flight jobs are left to finish.
	s.paused.Store(true)
	start := time.Now()
	n, err := s.runs.ClearQueued(ctx, nil, jobType)
	if err != nil {
		return 0, err
	}
	s.log.Warn("Emergency stop: intake paused, queued jobs cleared", "job_type", jobType, "cleared", n, "took", time.Since(start))
	s.metrics.Inc("jobs", "emergency_stop")
	return n, nil
}

func (s *jobService) Resume(ctx context.Context) error {
	if !s.paused.Swap(false) {
		return nil
	}
	s.log.Warn("Job intake resumed")
	s.metrics.Inc("jobs", "intake_resumed")
	return nil
}

func (s *jobService) IntakePaused() bool {
	return s.paused.Load()
}
