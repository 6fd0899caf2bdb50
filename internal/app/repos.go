package app

import (
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
)

type Repos struct {
	Content      repos.ContentRepo
	UserProfiles repos.UserProfileRepo
	JobRuns      repos.JobRunRepo
	TopicHistory repos.TopicHistoryRepo
	Similarity   repos.SimilarityRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		Content:      repos.NewContentRepo(db, log),
		UserProfiles: repos.NewUserProfileRepo(db, log),
		JobRuns:      repos.NewJobRunRepo(db, log),
		TopicHistory: repos.NewTopicHistoryRepo(db, log),
		Similarity:   repos.NewSimilarityRepo(db, log),
	}
}
