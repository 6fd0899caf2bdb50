package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// stubJobRunRepo accepts every write; enough to exercise the service's own
// gating logic without a database.
type stubJobRunRepo struct {
	created int
	cleared int64
}

func (r *stubJobRunRepo) Create(_ context.Context, _ *gorm.DB, jobs []*types.JobRun) ([]*types.JobRun, error) {
	r.created += len(jobs)
	return jobs, nil
}

func (r *stubJobRunRepo) GetByID(context.Context, *gorm.DB, uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (r *stubJobRunRepo) ClaimNextRunnable(context.Context, *gorm.DB, string, int, time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (r *stubJobRunRepo) UpdateFields(context.Context, *gorm.DB, uuid.UUID, map[string]interface{}) error {
	return nil
}

func (r *stubJobRunRepo) UpdateFieldsUnlessStatus(context.Context, *gorm.DB, uuid.UUID, []string, map[string]interface{}) (bool, error) {
	return true, nil
}

func (r *stubJobRunRepo) CountByTypeAndStatus(context.Context, *gorm.DB) (map[string]map[string]int64, error) {
	return map[string]map[string]int64{}, nil
}

func (r *stubJobRunRepo) ClearQueued(context.Context, *gorm.DB, string) (int64, error) {
	r.cleared++
	return 0, nil
}

func (r *stubJobRunRepo) MarkDeadExhausted(context.Context, *gorm.DB, string, int) (int64, error) {
	return 0, nil
}

func TestEmergencyStop_PausesIntakeUntilResume(t *testing.T) {
	repo := &stubJobRunRepo{}
	s := NewJobService(nil, logger.NewNop(), metrics.New(), repo)
	ctx := context.Background()
	input := EnqueueInput{JobType: types.JobTypeEmbedContent}

	if _, err := s.Enqueue(ctx, nil, input); err != nil {
		t.Fatalf("enqueue before stop: %v", err)
	}

	if _, err := s.EmergencyStop(ctx, ""); err != nil {
		t.Fatalf("emergency stop: %v", err)
	}
	if !s.IntakePaused() {
		t.Fatal("emergency stop must pause intake")
	}
	if _, err := s.Enqueue(ctx, nil, input); !errors.Is(err, ErrIntakePaused) {
		t.Fatalf("enqueue while paused = %v, want ErrIntakePaused", err)
	}
	if repo.created != 1 {
		t.Fatalf("paused enqueue must not reach the repo, created=%d", repo.created)
	}

	if err := s.Resume(ctx); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.IntakePaused() {
		t.Fatal("resume must reopen intake")
	}
	if _, err := s.Enqueue(ctx, nil, input); err != nil {
		t.Fatalf("enqueue after resume: %v", err)
	}
	if repo.created != 2 {
		t.Fatalf("post-resume enqueue must reach the repo, created=%d", repo.created)
	}
}

func TestBuildRun_KnownType(t *testing.T) {
	s := &jobService{}
	run, err := s.buildRun(EnqueueInput{
		JobType:  types.JobTypeEmbedContent,
		Priority: 5,
		Payload:  map[string]any{"content_id": "abc"},
	})
	if err != nil {
		t.Fatalf("buildRun failed: %v", err)
	}
	if run.Status != types.JobStatusQueued || run.Stage != "queued" {
		t.Fatalf("new run must start queued, got status=%q stage=%q", run.Status, run.Stage)
	}
	if run.Priority != 5 {
		t.Fatalf("priority not carried: %d", run.Priority)
	}
	var payload map[string]any
	if err := json.Unmarshal(run.Payload, &payload); err != nil {
		t.Fatalf("payload not valid json: %v", err)
	}
	if payload["content_id"] != "abc" {
		t.Fatalf("payload not preserved: %v", payload)
	}
}

func TestBuildRun_UnknownTypeIsValidationError(t *testing.T) {
	s := &jobService{}
	_, err := s.buildRun(EnqueueInput{JobType: "mine_bitcoin"})
	if err == nil {
		t.Fatal("expected error for unknown job type")
	}
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown type must be a validation error, got %v", err)
	}
}

func TestBuildRun_NilPayload(t *testing.T) {
	s := &jobService{}
	run, err := s.buildRun(EnqueueInput{JobType: types.JobTypeTrendingDetect})
	if err != nil {
		t.Fatalf("buildRun failed: %v", err)
	}
	if len(run.Payload) != 0 {
		t.Fatalf("nil payload should stay empty, got %s", run.Payload)
	}
}

func TestKnownJobTypes_CoverAllDeclaredTypes(t *testing.T) {
	for _, jt := range []string{
		types.JobTypeEmbedContent,
		types.JobTypeCategorize,
		types.JobTypeAnalyzeContent,
		types.JobTypeDuplicateCheck,
		types.JobTypeFeedBuild,
		types.JobTypeTrendingDetect,
		types.JobTypeBatchProcess,
	} {
		if !knownJobTypes[jt] {
			t.Fatalf("job type %q not registered as known", jt)
		}
	}
}
