package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/scheduler"
	"github.com/brightfeed/brightfeed-backend/internal/services"
	"github.com/brightfeed/brightfeed-backend/internal/utils"
)

// Config is the process configuration: env vars for deployment concerns,
// an optional YAML file (ENGINE_CONFIG_FILE) for engine weight overrides.
// Every engine config is validated at startup; a bad weight set aborts boot
// instead of producing skewed scores at runtime.
type Config struct {
	HTTPAddr       string
	CacheBackend   string
	QueueHighWater int64

	Embedding      services.EmbeddingConfig
	Categorization services.CategorizationConfig
	Analysis       services.AnalysisConfig
	Search         services.SearchConfig
	Recommendation services.RecommendationConfig
	Trending       services.TrendingConfig
	Scheduler      scheduler.Config
}

// engineOverrides mirrors the YAML override file. Pointer fields so an
// absent key keeps the default.
type engineOverrides struct {
	Categorization struct {
		KeywordWeight   *float64 `yaml:"keyword_weight"`
		EmbeddingWeight *float64 `yaml:"embedding_weight"`
		ModelWeight     *float64 `yaml:"model_weight"`
		MinConfidence   *float64 `yaml:"min_confidence"`
	} `yaml:"categorization"`
	Analysis struct {
		ReadabilityWeight *float64 `yaml:"readability_weight"`
		GrammarWeight     *float64 `yaml:"grammar_weight"`
		FactualityWeight  *float64 `yaml:"factuality_weight"`
		BiasWeight        *float64 `yaml:"bias_weight"`
		CoherenceWeight   *float64 `yaml:"coherence_weight"`
	} `yaml:"analysis"`
	Search struct {
		SemanticWeight      *float64 `yaml:"semantic_weight"`
		LexicalWeight       *float64 `yaml:"lexical_weight"`
		RecencyWeight       *float64 `yaml:"recency_weight"`
		RecencyHalfLifeDays *float64 `yaml:"recency_half_life_days"`
	} `yaml:"search"`
	Recommendation struct {
		ContentWeight       *float64 `yaml:"content_weight"`
		CollaborativeWeight *float64 `yaml:"collaborative_weight"`
		TrendingWeight      *float64 `yaml:"trending_weight"`
		MaxPerCategory      *int     `yaml:"max_per_category"`
		DiversityFactor     *float64 `yaml:"diversity_factor"`
	} `yaml:"recommendation"`
	Trending struct {
		MentionWeight    *float64 `yaml:"mention_weight"`
		GrowthWeight     *float64 `yaml:"growth_weight"`
		EngagementWeight *float64 `yaml:"engagement_weight"`
		RecencyWeight    *float64 `yaml:"recency_weight"`
		MinMentions      *int     `yaml:"min_mentions"`
	} `yaml:"trending"`
}

func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := Config{
		HTTPAddr:       utils.GetEnv("HTTP_ADDR", ":8080", log),
		CacheBackend:   utils.GetEnv("CACHE_BACKEND", "redis", log),
		QueueHighWater: int64(utils.GetEnvAsInt("QUEUE_HIGH_WATER", 1000, log)),

		Embedding:      services.DefaultEmbeddingConfig(),
		Categorization: services.DefaultCategorizationConfig(),
		Analysis:       services.DefaultAnalysisConfig(),
		Search:         services.DefaultSearchConfig(),
		Recommendation: services.DefaultRecommendationConfig(),
		Trending:       services.DefaultTrendingConfig(),
		Scheduler:      scheduler.DefaultConfig(),
	}

	cfg.Embedding.CacheTTL = time.Duration(utils.GetEnvAsInt("EMBED_CACHE_TTL_SECONDS", int(cfg.Embedding.CacheTTL.Seconds()), log)) * time.Second
	cfg.Embedding.BatchConcurrency = utils.GetEnvAsInt("EMBED_BATCH_CONCURRENCY", cfg.Embedding.BatchConcurrency, log)
	cfg.Recommendation.FeedCacheTTL = time.Duration(utils.GetEnvAsInt("FEED_CACHE_TTL_SECONDS", int(cfg.Recommendation.FeedCacheTTL.Seconds()), log)) * time.Second

	if path := os.Getenv("ENGINE_CONFIG_FILE"); path != "" {
		if err := applyOverrides(&cfg, path); err != nil {
			return cfg, fmt.Errorf("engine config file %s: %w", path, err)
		}
		log.Info("Applied engine config overrides", "path", path)
	}

	if err := validateEngines(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyOverrides(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var ov engineOverrides
	if err := yaml.Unmarshal(raw, &ov); err != nil {
		return err
	}

	setF := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setI := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setF(&cfg.Categorization.KeywordWeight, ov.Categorization.KeywordWeight)
	setF(&cfg.Categorization.EmbeddingWeight, ov.Categorization.EmbeddingWeight)
	setF(&cfg.Categorization.ModelWeight, ov.Categorization.ModelWeight)
	setF(&cfg.Categorization.MinConfidence, ov.Categorization.MinConfidence)

	setF(&cfg.Analysis.ReadabilityWeight, ov.Analysis.ReadabilityWeight)
	setF(&cfg.Analysis.GrammarWeight, ov.Analysis.GrammarWeight)
	setF(&cfg.Analysis.FactualityWeight, ov.Analysis.FactualityWeight)
	setF(&cfg.Analysis.BiasWeight, ov.Analysis.BiasWeight)
	setF(&cfg.Analysis.CoherenceWeight, ov.Analysis.CoherenceWeight)

	setF(&cfg.Search.SemanticWeight, ov.Search.SemanticWeight)
	setF(&cfg.Search.LexicalWeight, ov.Search.LexicalWeight)
	setF(&cfg.Search.RecencyWeight, ov.Search.RecencyWeight)
	setF(&cfg.Search.RecencyHalfLifeDays, ov.Search.RecencyHalfLifeDays)

	setF(&cfg.Recommendation.ContentWeight, ov.Recommendation.ContentWeight)
	setF(&cfg.Recommendation.CollaborativeWeight, ov.Recommendation.CollaborativeWeight)
	setF(&cfg.Recommendation.TrendingWeight, ov.Recommendation.TrendingWeight)
	setI(&cfg.Recommendation.MaxPerCategory, ov.Recommendation.MaxPerCategory)
	setF(&cfg.Recommendation.DiversityFactor, ov.Recommendation.DiversityFactor)

	setF(&cfg.Trending.MentionWeight, ov.Trending.MentionWeight)
	setF(&cfg.Trending.GrowthWeight, ov.Trending.GrowthWeight)
	setF(&cfg.Trending.EngagementWeight, ov.Trending.EngagementWeight)
	setF(&cfg.Trending.RecencyWeight, ov.Trending.RecencyWeight)
	setI(&cfg.Trending.MinMentions, ov.Trending.MinMentions)

	return nil
}

func validateEngines(cfg Config) error {
	checks := []struct {
		name string
		err  error
	}{
		{"embedding", cfg.Embedding.Validate()},
		{"categorization", cfg.Categorization.Validate()},
		{"analysis", cfg.Analysis.Validate()},
		{"search", cfg.Search.Validate()},
		{"recommendation", cfg.Recommendation.Validate()},
		{"trending", cfg.Trending.Validate()},
	}
	for _, c := range checks {
		if c.err != nil {
			return fmt.Errorf("%s config: %w", c.name, c.err)
		}
	}
	return nil
}
