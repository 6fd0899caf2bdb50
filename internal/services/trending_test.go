package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/brightfeed/brightfeed-backend/internal/types"
)

func TestExtractTopics(t *testing.T) {
	item := &types.ContentItem{
		Title:   "Federal Reserve Signals Rate Cut as Markets Rally",
		Summary: "The central bank hinted at a rate cut. Markets rallied on the rate news.",
		Tags:    datatypes.JSON([]byte(`["interest rates","economy"]`)),
	}
	topics := extractTopics(item)
	require.NotEmpty(t, topics)

	assert.Contains(t, topics, "federal reserve signals rate")
	assert.Contains(t, topics, "interest rates")
	assert.Contains(t, topics, "economy")

	seen := map[string]bool{}
	for _, topic := range topics {
		assert.False(t, seen[topic], "topic %q duplicated", topic)
		seen[topic] = true
		assert.Equal(t, normalizeTopic(topic), topic, "topics must be normalized")
	}
}

func TestMergeTopic_Commutative(t *testing.T) {
	a := TrendingTopic{
		Name: "rate cut", Mentions: 5, Engagement: 40, Score: 0.7,
		Direction: TrendStable, Sentiment: -0.4, Windows: []string{"1h"},
		SampleIDs: []uuid.UUID{uuid.New()},
	}
	b := TrendingTopic{
		Name: "rate cut", Mentions: 12, Engagement: 90, Score: 0.5,
		Direction: TrendRising, Sentiment: 0.3, Windows: []string{"6h"},
		SampleIDs: []uuid.UUID{uuid.New()},
	}

	ab := map[string]*TrendingTopic{}
	mergeTopic(ab, a)
	mergeTopic(ab, b)
	ba := map[string]*TrendingTopic{}
	mergeTopic(ba, b)
	mergeTopic(ba, a)

	require.Len(t, ab, 1)
	got, rev := ab["rate cut"], ba["rate cut"]
	assert.Equal(t, 17, got.Mentions)
	assert.Equal(t, got.Mentions, rev.Mentions)
	assert.InDelta(t, 130, got.Engagement, 1e-9)
	assert.InDelta(t, got.Engagement, rev.Engagement, 1e-9)
	assert.InDelta(t, 0.7, got.Score, 1e-9, "merge keeps the max window score")
	assert.InDelta(t, got.Score, rev.Score, 1e-9)
	assert.Equal(t, TrendRising, got.Direction)
	assert.Equal(t, got.Direction, rev.Direction)
	wantSentiment := (-0.4*5 + 0.3*12) / 17
	assert.InDelta(t, wantSentiment, got.Sentiment, 1e-9, "sentiment is mention-weighted")
	assert.InDelta(t, got.Sentiment, rev.Sentiment, 1e-9)
	assert.ElementsMatch(t, got.Windows, rev.Windows)
	assert.ElementsMatch(t, []string{"1h", "6h"}, got.Windows)
}

func TestMergeTopic_DoesNotAliasInput(t *testing.T) {
	src := TrendingTopic{Name: "x", Windows: []string{"1h"}}
	merged := map[string]*TrendingTopic{}
	mergeTopic(merged, src)
	merged["x"].Windows[0] = "24h"
	assert.Equal(t, "1h", src.Windows[0])
}

func TestMergeDirection(t *testing.T) {
	assert.Equal(t, TrendRising, mergeDirection(TrendRising, TrendDeclining))
	assert.Equal(t, TrendRising, mergeDirection(TrendStable, TrendRising))
	assert.Equal(t, TrendDeclining, mergeDirection(TrendDeclining, TrendStable))
	assert.Equal(t, TrendStable, mergeDirection(TrendStable, TrendStable))
	// Commutativity
	assert.Equal(t, mergeDirection(TrendRising, TrendStable), mergeDirection(TrendStable, TrendRising))
}

func TestWindowLabel(t *testing.T) {
	assert.Equal(t, "1h", windowLabel(time.Hour))
	assert.Equal(t, "6h", windowLabel(6*time.Hour))
	assert.Equal(t, "1d", windowLabel(24*time.Hour))
	assert.Equal(t, "7d", windowLabel(7*24*time.Hour))
	assert.Equal(t, "30m", windowLabel(30*time.Minute))
}

func TestTrendingConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultTrendingConfig().Validate())

	bad := DefaultTrendingConfig()
	bad.GrowthWeight = 0.9
	assert.Error(t, bad.Validate())

	noWindows := DefaultTrendingConfig()
	noWindows.Windows = nil
	assert.Error(t, noWindows.Validate())

	noMentions := DefaultTrendingConfig()
	noMentions.MinMentions = 0
	assert.Error(t, noMentions.Validate())
}
