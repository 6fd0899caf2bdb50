package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfeed/brightfeed-backend/internal/scheduler"
	"github.com/brightfeed/brightfeed-backend/internal/services"
)

func defaultTestConfig() Config {
	return Config{
		Embedding:      services.DefaultEmbeddingConfig(),
		Categorization: services.DefaultCategorizationConfig(),
		Analysis:       services.DefaultAnalysisConfig(),
		Search:         services.DefaultSearchConfig(),
		Recommendation: services.DefaultRecommendationConfig(),
		Trending:       services.DefaultTrendingConfig(),
		Scheduler:      scheduler.DefaultConfig(),
	}
}

func TestValidateEngines_DefaultsPass(t *testing.T) {
	require.NoError(t, validateEngines(defaultTestConfig()))
}

func TestValidateEngines_BadWeightsAbortBoot(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.Search.SemanticWeight = 0.9
	err := validateEngines(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search config")
}

func TestApplyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engines.yaml")
	yaml := `
search:
  semantic_weight: 0.6
  lexical_weight: 0.25
  recency_weight: 0.15
trending:
  min_mentions: 5
recommendation:
  max_per_category: 2
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg := defaultTestConfig()
	require.NoError(t, applyOverrides(&cfg, path))

	assert.InDelta(t, 0.6, cfg.Search.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.25, cfg.Search.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.15, cfg.Search.RecencyWeight, 1e-9)
	assert.Equal(t, 5, cfg.Trending.MinMentions)
	assert.Equal(t, 2, cfg.Recommendation.MaxPerCategory)

	// Untouched engines keep their defaults.
	assert.Equal(t, services.DefaultAnalysisConfig(), cfg.Analysis)
	require.NoError(t, validateEngines(cfg))
}

func TestApplyOverrides_MissingFile(t *testing.T) {
	cfg := defaultTestConfig()
	assert.Error(t, applyOverrides(&cfg, filepath.Join(t.TempDir(), "absent.yaml")))
}

func TestApplyOverrides_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search: ["), 0o600))
	cfg := defaultTestConfig()
	assert.Error(t, applyOverrides(&cfg, path))
}
