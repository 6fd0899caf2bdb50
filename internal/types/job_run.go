package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job lifecycle: queued -> running -> succeeded, or running -> failed ->
// (requeue while attempts < max) -> dead. "dead" is terminal; the payload
// of a dead job is kept for inspection. Validation failures skip retries
// and go straight to dead.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
	JobStatusDead      = "dead"
)

const (
	JobTypeEmbedContent    = "embed_content"
	JobTypeCategorize      = "categorize_content"
	JobTypeAnalyzeContent  = "analyze_content"
	JobTypeDuplicateCheck  = "duplicate_check"
	JobTypeFeedBuild       = "feed_build"
	JobTypeTrendingDetect  = "trending_detect"
	JobTypeBatchProcess    = "batch_process"
)

// PriorityInteractive marks jobs enqueued from a request path so they claim
// ahead of scheduled background work, which enqueues at the zero default.
const PriorityInteractive = 10

type JobRun struct {
	ID          uuid.UUID  `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	OwnerUserID uuid.UUID  `gorm:"type:uuid;index" json:"owner_user_id,omitempty"`
	JobType     string     `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType  string     `gorm:"column:entity_type;index" json:"entity_type,omitempty"`
	EntityID    *uuid.UUID `gorm:"type:uuid;column:entity_id;index" json:"entity_id,omitempty"`

	// Priority orders claims within a job type: higher first, ties broken
	// by enqueue order.
	Priority int `gorm:"column:priority;not null;default:0;index" json:"priority"`

	Status      string         `gorm:"column:status;not null;index" json:"status"`
	Stage       string         `gorm:"column:stage;not null" json:"stage"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	LockedAt    *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	// NextRetryAt is the exponential-backoff cutoff written on failure; a
	// failed run is not reclaimed before it.
	NextRetryAt *time.Time     `gorm:"column:next_retry_at;index" json:"next_retry_at,omitempty"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result"`
	CreatedAt   time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (JobRun) TableName() string { return "job_run" }
