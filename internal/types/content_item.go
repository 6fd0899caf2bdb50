package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ContentTypeArticle = "article"
	ContentTypePaper   = "paper"

	ContentStatusPublished = "published"
	ContentStatusPending   = "pending"
)

// ContentItem is the system of record for one ingested article or paper.
// Body is immutable after creation; category, embeddings, quality and
// sentiment are filled in asynchronously by pipeline jobs, each of which
// owns its own columns.
type ContentItem struct {
	ID          uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	ContentType string    `gorm:"column:content_type;not null;index" json:"content_type"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Body        string    `gorm:"column:body;not null" json:"body"`
	Summary     string    `gorm:"column:summary" json:"summary,omitempty"`
	Source      string    `gorm:"column:source;index" json:"source,omitempty"`
	Author      string    `gorm:"column:author" json:"author,omitempty"`
	URL         string    `gorm:"column:url" json:"url,omitempty"`
	PublishedAt time.Time `gorm:"column:published_at;not null;index" json:"published_at"`

	Status   string         `gorm:"column:status;not null;default:published;index" json:"status"`
	Category string         `gorm:"column:category;index" json:"category,omitempty"`
	Tags     datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`

	TitleEmbedding   *pgvector.Vector `gorm:"column:title_embedding;type:vector(1536)" json:"-"`
	ContentEmbedding *pgvector.Vector `gorm:"column:content_embedding;type:vector(1536)" json:"-"`

	QualityScore   *float64 `gorm:"column:quality_score;index" json:"quality_score,omitempty"`
	SentimentScore *float64 `gorm:"column:sentiment_score" json:"sentiment_score,omitempty"`

	ViewCount    int64 `gorm:"column:view_count;not null;default:0" json:"view_count"`
	ShareCount   int64 `gorm:"column:share_count;not null;default:0" json:"share_count"`
	CommentCount int64 `gorm:"column:comment_count;not null;default:0" json:"comment_count"`

	// ContentHash is sha256 of the normalized body, used for exact
	// duplicate lookup. DuplicateOf is set by the duplicate_check job and
	// never causes deletion.
	ContentHash string     `gorm:"column:content_hash;index" json:"content_hash,omitempty"`
	DuplicateOf *uuid.UUID `gorm:"type:uuid;column:duplicate_of" json:"duplicate_of,omitempty"`

	CreatedAt time.Time      `gorm:"not null;default:now();index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ContentItem) TableName() string { return "content_item" }

// Engagement is the weighted interaction count used by trending scoring.
func (c *ContentItem) Engagement() float64 {
	return float64(c.ViewCount) + 5*float64(c.ShareCount)
}
