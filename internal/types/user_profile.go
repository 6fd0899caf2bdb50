package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserProfile holds explicit preferences plus behavior metrics derived from
// reading history. Created lazily on the first recommendation request.
// Behavior metrics are recomputed by the scheduler for users active within
// the last 24h; the preference embedding is regenerated on demand.
type UserProfile struct {
	ID     uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`

	PreferredCategories datatypes.JSON `gorm:"column:preferred_categories;type:jsonb" json:"preferred_categories,omitempty"`
	PreferredTags       datatypes.JSON `gorm:"column:preferred_tags;type:jsonb" json:"preferred_tags,omitempty"`
	PreferredSources    datatypes.JSON `gorm:"column:preferred_sources;type:jsonb" json:"preferred_sources,omitempty"`
	Interests           datatypes.JSON `gorm:"column:interests;type:jsonb" json:"interests,omitempty"`

	AvgReadTimeSeconds  float64        `gorm:"column:avg_read_time_seconds;not null;default:0" json:"avg_read_time_seconds"`
	PreferredLengthWords int           `gorm:"column:preferred_length_words;not null;default:0" json:"preferred_length_words"`
	ActiveHours         datatypes.JSON `gorm:"column:active_hours;type:jsonb" json:"active_hours,omitempty"`
	EngagementScore     float64        `gorm:"column:engagement_score;not null;default:0" json:"engagement_score"`

	PreferenceEmbedding *pgvector.Vector `gorm:"column:preference_embedding;type:vector(1536)" json:"-"`

	LastActiveAt *time.Time     `gorm:"column:last_active_at;index" json:"last_active_at,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (UserProfile) TableName() string { return "user_profile" }

// ReadingEvent is one row of a user's ordered reading history.
type ReadingEvent struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_reading_event_user_time" json:"user_id"`
	ContentID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"content_id"`
	Rating          *int           `gorm:"column:rating" json:"rating,omitempty"`
	ReadTimeSeconds *int           `gorm:"column:read_time_seconds" json:"read_time_seconds,omitempty"`
	Category        string         `gorm:"column:category" json:"category,omitempty"`
	Tags            datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now();index:idx_reading_event_user_time" json:"created_at"`
}

func (ReadingEvent) TableName() string { return "reading_event" }
