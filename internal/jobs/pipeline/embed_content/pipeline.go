package embed_content

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Pipeline embeds a content item's title and body and, on success, enqueues
// the stages that depend on embeddings (categorize, duplicate check).
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	content   repos.ContentRepo
	embedding services.EmbeddingService
	jobs      services.JobService
}

func New(db *gorm.DB, baseLog *logger.Logger, content repos.ContentRepo, embedding services.EmbeddingService, jobs services.JobService) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("pipeline", types.JobTypeEmbedContent),
		content:   content,
		embedding: embedding,
		jobs:      jobs,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeEmbedContent }

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	contentID, ok := jc.PayloadUUID("content_id")
	if !ok || contentID == uuid.Nil {
		return fmt.Errorf("%w: missing content_id", services.ErrValidation)
	}

	jc.Progress("load", 5)
	item, err := p.content.GetByID(jc.Ctx, nil, contentID)
	if err != nil {
		return fmt.Errorf("load content item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%w: content item %s not found", services.ErrValidation, contentID)
	}

	jc.Progress("embed_title", 20)
	titleRes, err := p.embedding.Embed(jc.Ctx, item.Title)
	if err != nil {
		return fmt.Errorf("embed title: %w", err)
	}

	jc.Progress("embed_body", 55)
	bodyRes, err := p.embedding.Embed(jc.Ctx, item.Title+"\n\n"+item.Body)
	if err != nil {
		return fmt.Errorf("embed body: %w", err)
	}

	jc.Progress("store", 85)
	titleVec := pgvector.NewVector(titleRes.Vector)
	bodyVec := pgvector.NewVector(bodyRes.Vector)
	if err := p.content.UpdateFields(jc.Ctx, nil, item.ID, map[string]interface{}{
		"title_embedding":   &titleVec,
		"content_embedding": &bodyVec,
	}); err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}

	id := item.ID
	if _, err := p.jobs.EnqueueBatch(jc.Ctx, nil, []services.EnqueueInput{
		{
			JobType:     types.JobTypeCategorize,
			OwnerUserID: jc.Job.OwnerUserID,
			EntityType:  "content_item",
			EntityID:    &id,
			Priority:    jc.Job.Priority,
			Payload:     map[string]any{"content_id": id.String()},
		},
		{
			JobType:     types.JobTypeDuplicateCheck,
			OwnerUserID: jc.Job.OwnerUserID,
			EntityType:  "content_item",
			EntityID:    &id,
			Priority:    jc.Job.Priority,
			Payload:     map[string]any{"content_id": id.String()},
		},
	}); err != nil {
		return fmt.Errorf("enqueue follow-up jobs: %w", err)
	}

	jc.Succeed("done", map[string]any{
		"content_id":     id.String(),
		"title_provider": titleRes.Provider,
		"body_provider":  bodyRes.Provider,
		"title_cached":   titleRes.Cached,
		"body_cached":    bodyRes.Cached,
	})
	return nil
}
