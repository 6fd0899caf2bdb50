package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordCategoryScores_NormalizedAndInVocabulary(t *testing.T) {
	text := "The startup raised venture capital after strong quarterly earnings and a planned ipo"
	scores := keywordCategoryScores(text)
	require.NotEmpty(t, scores)

	sum := 0.0
	for category, score := range scores {
		assert.True(t, isKnownCategory(category), "category %q not in vocabulary", category)
		assert.GreaterOrEqual(t, score, 0.0)
		sum += score
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "scores must be normalized")

	primary, confidence, _ := rankCategories(scores)
	assert.Equal(t, "business", primary)
	assert.GreaterOrEqual(t, confidence, 0.0)
	assert.LessOrEqual(t, confidence, 1.0)
}

func TestKeywordCategoryScores_MultiWordRulesMatchAsPhrases(t *testing.T) {
	scores := keywordCategoryScores("New machine learning model ships with open source weights")
	require.NotEmpty(t, scores)
	primary, _, _ := rankCategories(scores)
	assert.Equal(t, "technology", primary)

	// "machine" and "learning" apart must not trip the phrase rule.
	apart := keywordCategoryScores("machine operators learning on the job")
	assert.Less(t, apart["technology"], scores["technology"])
}

func TestKeywordCategoryScores_NoMatchYieldsEmpty(t *testing.T) {
	scores := keywordCategoryScores("lorem ipsum dolor sit amet")
	assert.Empty(t, scores)
}

func TestRankCategories(t *testing.T) {
	primary, confidence, additional := rankCategories(map[string]float64{
		"technology": 0.6,
		"science":    0.35,
		"business":   0.05,
	})
	assert.Equal(t, "technology", primary)
	assert.InDelta(t, 0.6, confidence, 1e-9)
	// Runner-up needs at least half the winner's score.
	assert.Equal(t, []string{"science"}, additional)

	primary, confidence, additional = rankCategories(nil)
	assert.Equal(t, "", primary)
	assert.Zero(t, confidence)
	assert.Nil(t, additional)
}

func TestRankCategories_TieBreaksAlphabetically(t *testing.T) {
	primary, _, _ := rankCategories(map[string]float64{"science": 0.5, "health": 0.5})
	assert.Equal(t, "health", primary)
}

func TestSelectCategorizeMethod(t *testing.T) {
	cfg := DefaultCategorizationConfig()

	assert.Equal(t, CategorizeMethodKeyword,
		selectCategorizeMethod("Late results from the election are in", cfg.LongTextWords))

	long := ""
	for i := 0; i < cfg.LongTextWords; i++ {
		long += "word "
	}
	assert.Equal(t, CategorizeMethodModel, selectCategorizeMethod(long, cfg.LongTextWords))

	assert.Equal(t, CategorizeMethodHybrid,
		selectCategorizeMethod("short ambiguous note", cfg.LongTextWords))
}

func TestCategorizationConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultCategorizationConfig().Validate())

	bad := DefaultCategorizationConfig()
	bad.KeywordWeight = 0.9
	assert.Error(t, bad.Validate(), "weights no longer sum to 1")

	inverted := DefaultCategorizationConfig()
	inverted.KeywordWeight, inverted.ModelWeight = inverted.ModelWeight, inverted.KeywordWeight
	assert.Error(t, inverted.Validate(), "reliability ordering must hold")

	zeroK := DefaultCategorizationConfig()
	zeroK.EmbeddingVoteK = 0
	assert.Error(t, zeroK.Validate())
}

func TestFallbackConfidenceIsBelowDefaultStrongSignal(t *testing.T) {
	// The degraded label must never look more confident than a real match.
	assert.True(t, fallbackConfidence <= 0.5)
	assert.False(t, math.IsNaN(fallbackConfidence))
}
