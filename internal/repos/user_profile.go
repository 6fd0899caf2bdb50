package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

type UserProfileRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserProfile, error)
	Create(ctx context.Context, tx *gorm.DB, profile *types.UserProfile) (*types.UserProfile, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ListActiveSince(ctx context.Context, tx *gorm.DB, since time.Time, limit int) ([]*types.UserProfile, error)
	ListAll(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UserProfile, error)

	RecordReadingEvent(ctx context.Context, tx *gorm.DB, event *types.ReadingEvent) error
	ListReadingHistory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.ReadingEvent, error)
	ListHighlyRated(ctx context.Context, tx *gorm.DB, userID uuid.UUID, minRating int, limit int) ([]*types.ReadingEvent, error)
}

type userProfileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserProfileRepo(db *gorm.DB, baseLog *logger.Logger) UserProfileRepo {
	return &userProfileRepo{
		db:  db,
		log: baseLog.With("repo", "UserProfileRepo"),
	}
}

func (r *userProfileRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *userProfileRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.UserProfile, error) {
	if userID == uuid.Nil {
		return nil, nil
	}
	var profile types.UserProfile
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Limit(1).
		Find(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == uuid.Nil {
		return nil, nil
	}
	return &profile, nil
}

func (r *userProfileRepo) Create(ctx context.Context, tx *gorm.DB, profile *types.UserProfile) (*types.UserProfile, error) {
	if profile == nil {
		return nil, nil
	}
	if err := r.conn(tx).WithContext(ctx).Create(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

func (r *userProfileRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.UserProfile{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *userProfileRepo) ListActiveSince(ctx context.Context, tx *gorm.DB, since time.Time, limit int) ([]*types.UserProfile, error) {
	var out []*types.UserProfile
	err := r.conn(tx).WithContext(ctx).
		Where("last_active_at IS NOT NULL AND last_active_at >= ?", since).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *userProfileRepo) ListAll(ctx context.Context, tx *gorm.DB, limit int) ([]*types.UserProfile, error) {
	var out []*types.UserProfile
	err := r.conn(tx).WithContext(ctx).
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *userProfileRepo) RecordReadingEvent(ctx context.Context, tx *gorm.DB, event *types.ReadingEvent) error {
	if event == nil {
		return nil
	}
	return r.conn(tx).WithContext(ctx).Create(event).Error
}

func (r *userProfileRepo) ListReadingHistory(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.ReadingEvent, error) {
	var out []*types.ReadingEvent
	if userID == uuid.Nil {
		return out, nil
	}
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *userProfileRepo) ListHighlyRated(ctx context.Context, tx *gorm.DB, userID uuid.UUID, minRating int, limit int) ([]*types.ReadingEvent, error) {
	var out []*types.ReadingEvent
	if userID == uuid.Nil {
		return out, nil
	}
	err := r.conn(tx).WithContext(ctx).
		Where("user_id = ? AND rating IS NOT NULL AND rating >= ?", userID, minRating).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
