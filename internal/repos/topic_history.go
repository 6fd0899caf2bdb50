package repos

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

type TopicHistoryRepo interface {
	Append(ctx context.Context, tx *gorm.DB, entries []*types.TopicHistory) error
	ListSince(ctx context.Context, tx *gorm.DB, topic string, since time.Time) ([]*types.TopicHistory, error)
	PruneOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type topicHistoryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTopicHistoryRepo(db *gorm.DB, baseLog *logger.Logger) TopicHistoryRepo {
	return &topicHistoryRepo{
		db:  db,
		log: baseLog.With("repo", "TopicHistoryRepo"),
	}
}

func (r *topicHistoryRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *topicHistoryRepo) Append(ctx context.Context, tx *gorm.DB, entries []*types.TopicHistory) error {
	if len(entries) == 0 {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(&entries).Error
}

func (r *topicHistoryRepo) ListSince(ctx context.Context, tx *gorm.DB, topic string, since time.Time) ([]*types.TopicHistory, error) {
	var out []*types.TopicHistory
	err := r.conn(tx).WithContext(ctx).
		Where("topic = ? AND created_at >= ?", topic, since).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (r *topicHistoryRepo) PruneOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := r.conn(tx).WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&types.TopicHistory{})
	return res.RowsAffected, res.Error
}

