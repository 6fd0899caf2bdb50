package app

import (
	"github.com/brightfeed/brightfeed-backend/internal/handlers"
)

type Handlers struct {
	Content  *handlers.ContentHandler
	Search   *handlers.SearchHandler
	Feed     *handlers.FeedHandler
	Trending *handlers.TrendingHandler
	Jobs     *handlers.JobsHandler
	Health   *handlers.HealthHandler
}

func wireHandlers(r Repos, s Services) Handlers {
	return Handlers{
		Content:  handlers.NewContentHandler(r.Content, r.Similarity, s.Orchestrator, s.Embedding),
		Search:   handlers.NewSearchHandler(s.Search),
		Feed:     handlers.NewFeedHandler(s.Orchestrator, s.Recommendation),
		Trending: handlers.NewTrendingHandler(s.Trending),
		Jobs:     handlers.NewJobsHandler(s.Jobs, s.Orchestrator),
		Health:   handlers.NewHealthHandler(s.Orchestrator),
	}
}
