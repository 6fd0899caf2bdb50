package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// recordingRepo captures the update maps written through the context.
type recordingRepo struct {
	updates []map[string]interface{}
}

func (r *recordingRepo) Create(_ context.Context, _ *gorm.DB, jobs []*types.JobRun) ([]*types.JobRun, error) {
	return jobs, nil
}

func (r *recordingRepo) GetByID(context.Context, *gorm.DB, uuid.UUID) (*types.JobRun, error) {
	return nil, nil
}

func (r *recordingRepo) ClaimNextRunnable(context.Context, *gorm.DB, string, int, time.Duration) (*types.JobRun, error) {
	return nil, nil
}

func (r *recordingRepo) UpdateFields(_ context.Context, _ *gorm.DB, _ uuid.UUID, updates map[string]interface{}) error {
	r.updates = append(r.updates, updates)
	return nil
}

func (r *recordingRepo) UpdateFieldsUnlessStatus(_ context.Context, _ *gorm.DB, _ uuid.UUID, _ []string, updates map[string]interface{}) (bool, error) {
	r.updates = append(r.updates, updates)
	return true, nil
}

func (r *recordingRepo) CountByTypeAndStatus(context.Context, *gorm.DB) (map[string]map[string]int64, error) {
	return nil, nil
}

func (r *recordingRepo) ClearQueued(context.Context, *gorm.DB, string) (int64, error) {
	return 0, nil
}

func (r *recordingRepo) MarkDeadExhausted(context.Context, *gorm.DB, string, int) (int64, error) {
	return 0, nil
}

func TestBackoffDelay(t *testing.T) {
	base := 30 * time.Second
	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 30 * time.Second},
		{2, time.Minute},
		{3, 2 * time.Minute},
		{4, 4 * time.Minute},
		{0, 30 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(base, tc.attempts); got != tc.want {
			t.Fatalf("backoffDelay(%v, %d) = %v, want %v", base, tc.attempts, got, tc.want)
		}
	}
	if got := backoffDelay(base, 20); got != maxRetryDelay {
		t.Fatalf("backoff must cap at %v, got %v", maxRetryDelay, got)
	}
	if got := backoffDelay(0, 1); got != 30*time.Second {
		t.Fatalf("zero base must fall back to 30s, got %v", got)
	}
}

func TestFail_WritesScaledRetryCutoff(t *testing.T) {
	repo := &recordingRepo{}
	job := &types.JobRun{ID: uuid.New(), Status: types.JobStatusRunning, Attempts: 3}
	jc := NewContext(context.Background(), nil, job, repo, 30*time.Second)

	before := time.Now()
	jc.Fail("run", errors.New("provider down"))

	if len(repo.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(repo.updates))
	}
	v, ok := repo.updates[0]["next_retry_at"]
	if !ok {
		t.Fatal("failed run must carry a retry cutoff")
	}
	cutoff, ok := v.(time.Time)
	if !ok {
		t.Fatalf("next_retry_at has type %T, want time.Time", v)
	}
	// Third failure: 30s * 2^2 = 2m out.
	wantDelay := 2 * time.Minute
	got := cutoff.Sub(before)
	if got < wantDelay-time.Second || got > wantDelay+time.Second {
		t.Fatalf("retry cutoff %v out from now, want ~%v", got, wantDelay)
	}
	if job.NextRetryAt == nil {
		t.Fatal("in-memory job must mirror the cutoff")
	}
}

func TestDead_DoesNotScheduleRetry(t *testing.T) {
	repo := &recordingRepo{}
	job := &types.JobRun{ID: uuid.New(), Status: types.JobStatusRunning, Attempts: 1}
	jc := NewContext(context.Background(), nil, job, repo, 30*time.Second)

	jc.Dead("validate", errors.New("bad payload"))

	if len(repo.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(repo.updates))
	}
	if _, ok := repo.updates[0]["next_retry_at"]; ok {
		t.Fatal("dead runs must not schedule a retry")
	}
	if job.NextRetryAt != nil {
		t.Fatal("dead run must not carry a retry cutoff")
	}
}
