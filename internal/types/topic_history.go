package types

import (
	"time"

	"github.com/google/uuid"
)

// TopicHistory is an append-only time series of topic observations written
// after every trending detection run and pruned past the retention window.
type TopicHistory struct {
	ID       uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Topic    string    `gorm:"column:topic;not null;index:idx_topic_history_topic_time" json:"topic"`
	Window   string    `gorm:"column:window;not null" json:"window"`
	Mentions int       `gorm:"column:mentions;not null;default:0" json:"mentions"`
	Score    float64   `gorm:"column:score;not null;default:0" json:"score"`
	CreatedAt time.Time `gorm:"not null;default:now();index:idx_topic_history_topic_time" json:"created_at"`
}

func (TopicHistory) TableName() string { return "topic_history" }
