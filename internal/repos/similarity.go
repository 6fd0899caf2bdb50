package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// SimilarityRepo stores the precomputed user-user and item-item similarity
// matrices. Refreshes replace a subject's rows in one transaction so request
// paths always read a complete snapshot.
type SimilarityRepo interface {
	ReplaceUserSimilarities(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rows []*types.UserSimilarity) error
	TopSimilarUsers(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.UserSimilarity, error)

	ReplaceContentSimilarities(ctx context.Context, tx *gorm.DB, contentID uuid.UUID, rows []*types.ContentSimilarity) error
	TopSimilarContent(ctx context.Context, tx *gorm.DB, contentID uuid.UUID, limit int) ([]*types.ContentSimilarity, error)
}

type similarityRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSimilarityRepo(db *gorm.DB, baseLog *logger.Logger) SimilarityRepo {
	return &similarityRepo{
		db:  db,
		log: baseLog.With("repo", "SimilarityRepo"),
	}
}

func (r *similarityRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *similarityRepo) ReplaceUserSimilarities(ctx context.Context, tx *gorm.DB, userID uuid.UUID, rows []*types.UserSimilarity) error {
	if userID == uuid.Nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("user_id = ?", userID).Delete(&types.UserSimilarity{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return txx.Create(&rows).Error
	})
}

func (r *similarityRepo) TopSimilarUsers(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.UserSimilarity, error) {
	var out []*types.UserSimilarity
	if userID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 10
	}
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("similarity DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *similarityRepo) ReplaceContentSimilarities(ctx context.Context, tx *gorm.DB, contentID uuid.UUID, rows []*types.ContentSimilarity) error {
	if contentID == uuid.Nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Where("content_id = ?", contentID).Delete(&types.ContentSimilarity{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return txx.Create(&rows).Error
	})
}

func (r *similarityRepo) TopSimilarContent(ctx context.Context, tx *gorm.DB, contentID uuid.UUID, limit int) ([]*types.ContentSimilarity, error) {
	var out []*types.ContentSimilarity
	if contentID == uuid.Nil {
		return out, nil
	}
	if limit <= 0 {
		limit = 10
	}
	err := r.conn(tx).WithContext(ctx).
		Where("content_id = ?", contentID).
		Order("similarity DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
