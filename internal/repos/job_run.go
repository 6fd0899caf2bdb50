package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

type JobRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error)

	// ClaimNextRunnable atomically claims the next runnable job of the
	// given type under FOR UPDATE SKIP LOCKED. Runnable means queued,
	// failed-and-retryable past its next_retry_at backoff cutoff, or
	// running with a heartbeat older than staleRunning. Claims order by
	// priority descending, then enqueue order.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobType string, maxAttempts int, staleRunning time.Duration) (*types.JobRun, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatuses []string, updates map[string]interface{}) (bool, error)

	CountByTypeAndStatus(ctx context.Context, tx *gorm.DB) (map[string]map[string]int64, error)

	// ClearQueued deletes all queued jobs, optionally restricted to one
	// type. Used by emergency stop; running jobs are left to finish.
	ClearQueued(ctx context.Context, tx *gorm.DB, jobType string) (int64, error)

	// MarkDeadExhausted moves failed jobs that exhausted their attempts to
	// the terminal dead state so the claim query stops considering them.
	MarkDeadExhausted(ctx context.Context, tx *gorm.DB, jobType string, maxAttempts int) (int64, error)
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{
		db:  db,
		log: baseLog.With("repo", "JobRunRepo"),
	}
}

func (r *jobRunRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRunRepo) Create(ctx context.Context, tx *gorm.DB, jobs []*types.JobRun) ([]*types.JobRun, error) {
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.JobRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := r.conn(tx).WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, jobType string, maxAttempts int, staleRunning time.Duration) (*types.JobRun, error) {
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.JobRun
	err := r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job types.JobRun
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("job_type = ?", jobType).
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND (next_retry_at IS NULL OR next_retry_at <= ?)
					)
					OR (
						status = ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, types.JobStatusQueued, types.JobStatusFailed, maxAttempts, now, types.JobStatusRunning, staleCutoff).
			Order("priority DESC, created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.JobRun{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.JobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.JobStatusRunning
		job.Attempts++
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := r.conn(tx).WithContext(ctx).
		Model(&types.JobRun{}).
		Where("id = ?", id)
	if len(excludedStatuses) > 0 {
		q = q.Where("status NOT IN ?", excludedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *jobRunRepo) CountByTypeAndStatus(ctx context.Context, tx *gorm.DB) (map[string]map[string]int64, error) {
	type row struct {
		JobType string
		Status  string
		Count   int64
	}
	var rows []row
	err := r.conn(tx).WithContext(ctx).
		Model(&types.JobRun{}).
		Select("job_type, status, count(*) AS count").
		Group("job_type, status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]int64)
	for _, rr := range rows {
		byStatus, ok := out[rr.JobType]
		if !ok {
			byStatus = make(map[string]int64)
			out[rr.JobType] = byStatus
		}
		byStatus[rr.Status] = rr.Count
	}
	return out, nil
}

func (r *jobRunRepo) ClearQueued(ctx context.Context, tx *gorm.DB, jobType string) (int64, error) {
	q := r.conn(tx).WithContext(ctx).
		Where("status = ?", types.JobStatusQueued)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	res := q.Delete(&types.JobRun{})
	return res.RowsAffected, res.Error
}

func (r *jobRunRepo) MarkDeadExhausted(ctx context.Context, tx *gorm.DB, jobType string, maxAttempts int) (int64, error) {
	now := time.Now()
	q := r.conn(tx).WithContext(ctx).
		Model(&types.JobRun{}).
		Where("status = ? AND attempts >= ?", types.JobStatusFailed, maxAttempts)
	if jobType != "" {
		q = q.Where("job_type = ?", jobType)
	}
	res := q.Updates(map[string]interface{}{
		"status":     types.JobStatusDead,
		"updated_at": now,
	})
	return res.RowsAffected, res.Error
}
