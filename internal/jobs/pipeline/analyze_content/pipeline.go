package analyze_content

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

// Pipeline runs summary, sentiment and quality analysis on one item and
// stores the derived columns.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	content  repos.ContentRepo
	analysis services.AnalysisService
}

func New(db *gorm.DB, baseLog *logger.Logger, content repos.ContentRepo, analysis services.AnalysisService) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("pipeline", types.JobTypeAnalyzeContent),
		content:  content,
		analysis: analysis,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeAnalyzeContent }

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

	depth := jc.PayloadString("depth")
	if depth == "" {
		depth = services.AnalysisDepthStandard
	}

	jc.Progress("analyze", 35)
	result, err := p.analysis.Analyze(jc.Ctx, item.ID, item.ContentType, item.Title, item.Body, services.AnalyzeOptions{
		Summary:   true,
		Sentiment: true,
		Quality:   true,
		Depth:     depth,
	})
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	jc.Progress("store", 80)
	updates := map[string]interface{}{}
	if result.Summary != nil && item.Summary == "" && result.Summary.Medium != "" {
		updates["summary"] = result.Summary.Medium
	}
	if result.Sentiment != nil {
		updates["sentiment_score"] = result.Sentiment.Polarity
	}
	if result.Quality != nil {
		updates["quality_score"] = result.Quality.Overall
	}
	if len(updates) > 0 {
		if err := p.content.UpdateFields(jc.Ctx, nil, item.ID, updates); err != nil {
			return fmt.Errorf("store analysis: %w", err)
		}
	}

	out := map[string]any{
		"content_id": item.ID.String(),
		"depth":      depth,
		"degraded":   result.Degraded,
	}
	if result.Quality != nil {
		out["quality_score"] = result.Quality.Overall
	}
	if result.Sentiment != nil {
		out["sentiment"] = result.Sentiment.Polarity
	}
	jc.Succeed("done", out)
	return nil
}
