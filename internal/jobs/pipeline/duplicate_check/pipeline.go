package duplicate_check

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// nearDuplicateThreshold is the cosine similarity above which two items are
// treated as the same story even when their hashes differ.
const nearDuplicateThreshold = 0.9

// Pipeline flags duplicates in two passes: exact match on the content hash,
// then near-duplicate detection against the vector index. A flagged item is
// marked with duplicate_of and never deleted.
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	content   repos.ContentRepo
	embedding services.EmbeddingService
}

func New(db *gorm.DB, baseLog *logger.Logger, content repos.ContentRepo, embedding services.EmbeddingService) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("pipeline", types.JobTypeDuplicateCheck),
		content:   content,
		embedding: embedding,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeDuplicateCheck }

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	contentID, ok := jc.PayloadUUID("content_id")
	if !ok || contentID == uuid.Nil {
		return fmt.Errorf("%w: missing content_id", services.ErrValidation)
	}

	jc.Progress("load", 10)
	item, err := p.content.GetByID(jc.Ctx, nil, contentID)
	if err != nil {
		return fmt.Errorf("load content item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%w: content item %s not found", services.ErrValidation, contentID)
	}

	jc.Progress("hash_check", 30)
	exact, err := p.content.FindByContentHash(jc.Ctx, nil, item.ContentHash, item.ID)
	if err != nil {
		return fmt.Errorf("hash lookup: %w", err)
	}
	if exact != nil && exact.CreatedAt.Before(item.CreatedAt) {
		return p.flag(jc, item.ID, exact.ID, "exact", 1.0)
	}

	if item.ContentEmbedding == nil {
		// Embedding job has not landed yet; without a vector the semantic
		// pass is impossible, so report clean on the hash pass alone.
		jc.Succeed("done", map[string]any{
			"content_id": item.ID.String(),
			"duplicate":  false,
			"pass":       "hash_only",
		})
		return nil
	}

	jc.Progress("semantic_check", 60)
	neighbors, err := p.embedding.FindSimilarContent(jc.Ctx, item.ID, services.SimilarContentOptions{
		Limit:     5,
		Threshold: nearDuplicateThreshold,
	})
	if err != nil {
		return fmt.Errorf("semantic duplicate query: %w", err)
	}
	for _, n := range neighbors {
		other, getErr := p.content.GetByID(jc.Ctx, nil, n.ContentID)
		if getErr != nil {
			return fmt.Errorf("load duplicate candidate: %w", getErr)
		}
		// Only the later arrival gets flagged; the original stays canonical.
		if other != nil && other.CreatedAt.Before(item.CreatedAt) {
			return p.flag(jc, item.ID, other.ID, "semantic", n.Similarity)
		}
	}

	jc.Succeed("done", map[string]any{
		"content_id": item.ID.String(),
		"duplicate":  false,
		"pass":       "full",
	})
	return nil
}

func (p *Pipeline) flag(jc *jobrt.Context, itemID, originalID uuid.UUID, method string, similarity float64) error {
	jc.Progress("flag", 90)
	if err := p.content.UpdateFields(jc.Ctx, nil, itemID, map[string]interface{}{
		"duplicate_of": originalID,
	}); err != nil {
		return fmt.Errorf("flag duplicate: %w", err)
	}
	p.log.Info("Flagged duplicate content",
		"content_id", itemID,
		"duplicate_of", originalID,
		"method", method,
	)
	jc.Succeed("done", map[string]any{
		"content_id":   itemID.String(),
		"duplicate":    true,
		"duplicate_of": originalID.String(),
		"method":       method,
		"similarity":   similarity,
	})
	return nil
}
