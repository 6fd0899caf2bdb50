package feed_build

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Pipeline precomputes a personalized feed for one user. The request path
// serves feeds synchronously; this job exists for bulk refreshes where
// latency does not matter but backlog isolation does.
type Pipeline struct {
	db        *gorm.DB
	log       *logger.Logger
	recommend services.RecommendationService
}

func New(db *gorm.DB, baseLog *logger.Logger, recommend services.RecommendationService) *Pipeline {
	return &Pipeline{
		db:        db,
		log:       baseLog.With("pipeline", types.JobTypeFeedBuild),
		recommend: recommend,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeFeedBuild }

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	userID, ok := jc.PayloadUUID("user_id")
	if !ok || userID == uuid.Nil {
		return fmt.Errorf("%w: missing user_id", services.ErrValidation)
	}

	limit := 20
	if v, ok := jc.Payload()["limit"].(float64); ok && int(v) > 0 {
		limit = int(v)
	}

	jc.Progress("refresh_profile", 20)
	if err := p.recommend.RefreshUserProfile(jc.Ctx, userID); err != nil {
		return fmt.Errorf("refresh profile: %w", err)
	}

	jc.Progress("build_feed", 60)
	feed, err := p.recommend.Recommend(jc.Ctx, userID, services.RecommendOptions{
		Limit:       limit,
		ExcludeRead: true,
		Refresh:     true,
	})
	if err != nil {
		return fmt.Errorf("build feed: %w", err)
	}

	jc.Succeed("done", map[string]any{
		"user_id":         userID.String(),
		"recommendations": len(feed.Recommendations),
		"fallback":        feed.Fallback,
		"cold_start":      feed.Profile.ColdStart,
	})
	return nil
}
