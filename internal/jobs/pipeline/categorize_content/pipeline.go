package categorize_content

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Pipeline assigns a category and tags to one content item.
type Pipeline struct {
	db         *gorm.DB
	log        *logger.Logger
	content    repos.ContentRepo
	categorize services.CategorizationService
}

func New(db *gorm.DB, baseLog *logger.Logger, content repos.ContentRepo, categorize services.CategorizationService) *Pipeline {
	return &Pipeline{
		db:         db,
		log:        baseLog.With("pipeline", types.JobTypeCategorize),
		content:    content,
		categorize: categorize,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeCategorize }

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

	jc.Progress("categorize", 40)
	result, err := p.categorize.Categorize(jc.Ctx, item.Body, item.Title, services.CategorizeOptions{
		Method:           jc.PayloadString("method"),
		ExistingCategory: item.Category,
	})
	if err != nil {
		return fmt.Errorf("categorize: %w", err)
	}

	jc.Progress("store", 80)
	updates := map[string]interface{}{
		"category": result.PrimaryCategory,
	}
	if len(result.Tags) > 0 {
		if b, mErr := json.Marshal(result.Tags); mErr == nil {
			updates["tags"] = b
		}
	}
	if err := p.content.UpdateFields(jc.Ctx, nil, item.ID, updates); err != nil {
		return fmt.Errorf("store category: %w", err)
	}

	jc.Succeed("done", map[string]any{
		"content_id": item.ID.String(),
		"category":   result.PrimaryCategory,
		"confidence": result.Confidence,
		"method":     result.Method,
	})
	return nil
}
