package trending_detect

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	jobrt "github.com/brightfeed/brightfeed-backend/internal/jobs/runtime"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// Pipeline runs trending detection: either one window when the payload
// names one, or the full multi-window report.
type Pipeline struct {
	db       *gorm.DB
	log      *logger.Logger
	trending services.TrendingService
}

func New(db *gorm.DB, baseLog *logger.Logger, trending services.TrendingService) *Pipeline {
	return &Pipeline{
		db:       db,
		log:      baseLog.With("pipeline", types.JobTypeTrendingDetect),
		trending: trending,
	}
}

func (p *Pipeline) Type() string { return types.JobTypeTrendingDetect }

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}

	if raw := jc.PayloadString("window"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			return fmt.Errorf("%w: invalid window %q", services.ErrValidation, raw)
		}
		jc.Progress("detect_window", 30)
		topics, err := p.trending.DetectWindow(jc.Ctx, window)
		if err != nil {
			return fmt.Errorf("detect window: %w", err)
		}
		jc.Succeed("done", map[string]any{
			"window": raw,
			"topics": len(topics),
		})
		return nil
	}

	jc.Progress("detect_all", 30)
	report, err := p.trending.Detect(jc.Ctx)
	if err != nil {
		return fmt.Errorf("detect trending: %w", err)
	}
	jc.Succeed("done", map[string]any{
		"windows": report.Windows,
		"topics":  len(report.Topics),
	})
	return nil
}
