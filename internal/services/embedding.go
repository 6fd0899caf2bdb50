package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/cache"
	"github.com/brightfeed/brightfeed-backend/internal/clients/openai"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
)

type EmbeddingConfig struct {
	CacheTTL         time.Duration
	BatchSize        int
	BatchConcurrency int
	// MaxAttempts and BaseBackoff govern retries against a single provider
	// before the chain falls through to the next one.
	MaxAttempts int
	BaseBackoff time.Duration
	// DefaultThreshold is the minimum cosine similarity for
	// FindSimilarContent when the caller does not pass one.
	DefaultThreshold float64
}

func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		CacheTTL:         24 * time.Hour,
		BatchSize:        16,
		BatchConcurrency: 4,
		MaxAttempts:      3,
		BaseBackoff:      500 * time.Millisecond,
		DefaultThreshold: 0.5,
	}
}

func (c EmbeddingConfig) Validate() error {
	if c.BatchSize <= 0 {
		return configErrorf("embedding batch size must be positive, got %d", c.BatchSize)
	}
	if c.BatchConcurrency <= 0 {
		return configErrorf("embedding batch concurrency must be positive, got %d", c.BatchConcurrency)
	}
	if c.MaxAttempts <= 0 {
		return configErrorf("embedding max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.DefaultThreshold < 0 || c.DefaultThreshold > 1 {
		return configErrorf("embedding similarity threshold must be in [0,1], got %f", c.DefaultThreshold)
	}
	return nil
}

// EmbeddingResult is the outcome of embedding a single text.
type EmbeddingResult struct {
	Vector     []float32 `json:"vector"`
	TokenCount int       `json:"token_count"`
	Provider   string    `json:"provider"`
	Cached     bool      `json:"cached"`
}

// BatchEmbeddingResult preserves per-item success/failure; one failed item
// never fails the batch.
type BatchEmbeddingResult struct {
	Results      []*EmbeddingResult `json:"results"`
	Errors       []string           `json:"errors"`
	SuccessCount int                `json:"success_count"`
	FailureCount int                `json:"failure_count"`
}

// SimilarContentOptions restrict a nearest-neighbor query.
type SimilarContentOptions struct {
	Limit      int
	Threshold  float64
	Categories []string
	MaxAge     time.Duration
	MinQuality float64
}

type EmbeddingService interface {
	Embed(ctx context.Context, text string) (*EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) (*BatchEmbeddingResult, error)
	FindSimilarContent(ctx context.Context, itemID uuid.UUID, opts SimilarContentOptions) ([]repos.SimilarContent, error)
	FindSimilarByVector(ctx context.Context, vec []float32, opts SimilarContentOptions) ([]repos.SimilarContent, error)
}

type embeddingService struct {
	db        *gorm.DB
	log       *logger.Logger
	cfg       EmbeddingConfig
	cache     cache.Cache
	metrics   *metrics.Metrics
	content   repos.ContentRepo
	providers []embeddingProvider
}

type embeddingProvider struct {
	client  openai.Client
	breaker *gobreaker.CircuitBreaker[[][]float32]
}

// NewEmbeddingService builds the provider fallback chain in the order the
// clients are passed. Each provider gets its own circuit breaker so a
// flapping primary stops eating its retry budget.
func NewEmbeddingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg EmbeddingConfig,
	c cache.Cache,
	m *metrics.Metrics,
	content repos.ContentRepo,
	clients []openai.Client,
) (EmbeddingService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, configErrorf("embedding service requires at least one provider")
	}
	log := baseLog.With("service", "EmbeddingService")
	providers := make([]embeddingProvider, 0, len(clients))
	for _, cl := range clients {
		name := cl.Name()
		providers = append(providers, embeddingProvider{
			client: cl,
			breaker: gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
				Name:    "embed-" + name,
				Timeout: 30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(n string, from, to gobreaker.State) {
					log.Warn("Embedding provider breaker state change", "breaker", n, "from", from.String(), "to", to.String())
				},
			}),
		})
	}
	return &embeddingService{
		db:        db,
		log:       log,
		cfg:       cfg,
		cache:     c,
		metrics:   m,
		content:   content,
		providers: providers,
	}, nil
}

func (s *embeddingService) cacheKey(cleaned, model string) string {
	return "embed:" + hashKey(cleaned, model)
}

func (s *embeddingService) Embed(ctx context.Context, text string) (*EmbeddingResult, error) {
	cleaned := cleanText(text)
	if cleaned == "" {
		return nil, validationErrorf("cannot embed empty text")
	}

	// The cache is keyed per primary model; a hit never contacts a provider.
	primaryModel := s.providers[0].client.EmbedModel()
	key := s.cacheKey(cleaned, primaryModel)
	if b, err := s.cache.Get(ctx, key); err == nil {
		var cached EmbeddingResult
		if jErr := json.Unmarshal(b, &cached); jErr == nil && len(cached.Vector) > 0 {
			cached.Cached = true
			s.metrics.Inc("embedding", "cache_hit")
			return &cached, nil
		}
	}
	s.metrics.Inc("embedding", "cache_miss")

	result, err := s.embedUncached(ctx, cleaned)
	if err != nil {
		return nil, err
	}

	if b, jErr := json.Marshal(result); jErr == nil {
		if cErr := s.cache.Set(ctx, key, b, s.cfg.CacheTTL); cErr != nil {
			s.log.Warn("Failed to write embedding cache", "error", cErr)
		}
	}
	return result, nil
}

// embedUncached walks the provider chain: per-provider retries with
// exponential backoff, then fall through. Exhausting every provider yields
// ErrProviderUnavailable.
func (s *embeddingService) embedUncached(ctx context.Context, cleaned string) (*EmbeddingResult, error) {
	var lastErr error
	for _, p := range s.providers {
		truncated := truncateText(cleaned, p.client.MaxInputChars())
		backoff := s.cfg.BaseBackoff
		for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.metrics.Inc("embedding", "provider_call")
			var tokens int
			vectors, err := p.breaker.Execute(func() ([][]float32, error) {
				vecs, n, embedErr := p.client.Embed(ctx, []string{truncated})
				tokens = n
				return vecs, embedErr
			})
			if err == nil && len(vectors) == 1 {
				return &EmbeddingResult{
					Vector:     vectors[0],
					TokenCount: tokens,
					Provider:   p.client.Name(),
				}, nil
			}
			if err == nil {
				err = fmt.Errorf("provider %s returned %d vectors for 1 input", p.client.Name(), len(vectors))
			}
			lastErr = err
			s.metrics.Inc("embedding", "provider_error")
			if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
				break // breaker open, move on to the next provider
			}
			if attempt < s.cfg.MaxAttempts {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
			}
		}
		s.log.Warn("Embedding provider exhausted, falling through",
			"provider", p.client.Name(),
			"error", fmt.Sprint(lastErr),
		)
	}
	return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, lastErr)
}

func (s *embeddingService) EmbedBatch(ctx context.Context, texts []string) (*BatchEmbeddingResult, error) {
	out := &BatchEmbeddingResult{
		Results: make([]*EmbeddingResult, len(texts)),
		Errors:  make([]string, len(texts)),
	}
	if len(texts) == 0 {
		return out, nil
	}

	sem := semaphore.NewWeighted(int64(s.cfg.BatchConcurrency))
	// Partition into fixed-size groups; each group embeds its items
	// individually so one failure stays contained to its slot.
	type group struct{ start, end int }
	var groups []group
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		groups = append(groups, group{start, end})
	}

	done := make(chan struct{}, len(groups))
	remaining := len(groups)
	for _, g := range groups {
		g := g
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func() {
			defer sem.Release(1)
			for i := g.start; i < g.end; i++ {
				res, err := s.Embed(ctx, texts[i])
				if err != nil {
					out.Errors[i] = err.Error()
					continue
				}
				out.Results[i] = res
			}
			done <- struct{}{}
		}()
	}
	for remaining > 0 {
		select {
		case <-done:
			remaining--
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	for i := range texts {
		if out.Results[i] != nil {
			out.SuccessCount++
		} else {
			out.FailureCount++
		}
	}
	return out, nil
}

func (s *embeddingService) FindSimilarContent(ctx context.Context, itemID uuid.UUID, opts SimilarContentOptions) ([]repos.SimilarContent, error) {
	item, err := s.content.GetByID(ctx, nil, itemID)
	if err != nil {
		return nil, fmt.Errorf("load content item: %w", err)
	}
	if item == nil {
		return nil, validationErrorf("content item %s not found", itemID)
	}
	if item.ContentEmbedding == nil {
		return nil, validationErrorf("content item %s has no embedding yet", itemID)
	}
	vec := item.ContentEmbedding.Slice()
	return s.findSimilar(ctx, vec, opts, []uuid.UUID{itemID})
}

func (s *embeddingService) FindSimilarByVector(ctx context.Context, vec []float32, opts SimilarContentOptions) ([]repos.SimilarContent, error) {
	return s.findSimilar(ctx, vec, opts, nil)
}

func (s *embeddingService) findSimilar(ctx context.Context, vec []float32, opts SimilarContentOptions, exclude []uuid.UUID) ([]repos.SimilarContent, error) {
	if len(vec) == 0 {
		return nil, validationErrorf("empty query vector")
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = s.cfg.DefaultThreshold
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	filters := repos.ContentFilters{
		Categories: opts.Categories,
		MaxAge:     opts.MaxAge,
		MinQuality: opts.MinQuality,
	}
	start := time.Now()
	rows, err := s.content.FindSimilarByVector(ctx, nil, pgvector.NewVector(vec), threshold, limit, exclude, filters)
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}
	s.metrics.Observe("embedding", "find_similar", time.Since(start))
	return rows, nil
}
