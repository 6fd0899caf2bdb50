package batch_process

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Pipeline fans one batch request out into per-item jobs. Invalid ids are
// counted and skipped rather than failing the batch; the result records both
// sides.
type Pipeline struct {
	db   *gorm.DB
	log  *logger.Logger
	jobs services.JobService
}

func New(db *gorm.DB, baseLog *logger.Logger, jobs services.JobService) *Pipeline {
	return &Pipeline{
		db:   db,
		log:  baseLog.With("pipeline", types.JobTypeBatchProcess),
		jobs: jobs,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeBatchProcess }

var batchableJobTypes = map[string]bool{
	types.JobTypeEmbedContent:   true,
	types.JobTypeCategorize:     true,
	types.JobTypeAnalyzeContent: true,
	types.JobTypeDuplicateCheck: true,
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	jobType := jc.PayloadString("job_type")
	if jobType == "" {
		jobType = types.JobTypeEmbedContent
	}
	if !batchableJobTypes[jobType] {
		return fmt.Errorf("%w: job type %q cannot be batched", services.ErrValidation, jobType)
	}

	rawIDs, ok := jc.Payload()["content_ids"].([]any)
	if !ok || len(rawIDs) == 0 {
		return fmt.Errorf("%w: missing content_ids", services.ErrValidation)
	}

	jc.Progress("fan_out", 20)
	var inputs []services.EnqueueInput
	skipped := 0
	for _, raw := range rawIDs {
		s, _ := raw.(string)
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			skipped++
			continue
		}
		entityID := id
		inputs = append(inputs, services.EnqueueInput{
			JobType:     jobType,
			OwnerUserID: jc.Job.OwnerUserID,
			EntityType:  "content_item",
			EntityID:    &entityID,
			Priority:    jc.Job.Priority,
			Payload:     map[string]any{"content_id": id.String()},
		})
	}
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no valid content ids in batch", services.ErrValidation)
	}

	created, err := p.jobs.EnqueueBatch(jc.Ctx, nil, inputs)
	if err != nil {
		return fmt.Errorf("enqueue batch: %w", err)
	}
	if skipped > 0 {
		p.log.Warn("Skipped invalid ids in batch", "skipped", skipped, "job_id", jc.Job.ID)
	}

	jc.Succeed("done", map[string]any{
		"job_type": jobType,
		"enqueued": len(created),
		"skipped":  skipped,
	})
	return nil
}
