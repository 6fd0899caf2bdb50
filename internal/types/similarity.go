package types

import (
	"time"

	"github.com/google/uuid"
)

// UserSimilarity and ContentSimilarity are precomputed pair scores refreshed
// periodically by the scheduler. Request paths only read them; the refresh
// replaces rows wholesale so readers always see the last complete snapshot.

type UserSimilarity struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index:idx_user_similarity_pair" json:"user_id"`
	OtherID    uuid.UUID `gorm:"type:uuid;not null;index:idx_user_similarity_pair" json:"other_id"`
	Similarity float64   `gorm:"column:similarity;not null" json:"similarity"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (UserSimilarity) TableName() string { return "user_similarity" }

type ContentSimilarity struct {
	ID         uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContentID  uuid.UUID `gorm:"type:uuid;not null;index:idx_content_similarity_pair" json:"content_id"`
	OtherID    uuid.UUID `gorm:"type:uuid;not null;index:idx_content_similarity_pair" json:"other_id"`
	Similarity float64   `gorm:"column:similarity;not null" json:"similarity"`
	CreatedAt  time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (ContentSimilarity) TableName() string { return "content_similarity" }
