package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/brightfeed/brightfeed-backend/internal/cache"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
)

const (
	SearchTypeAuto     = "auto"
	SearchTypeFulltext = "fulltext"
	SearchTypeSemantic = "semantic"
	SearchTypeHybrid   = "hybrid"
)

// SearchConfig weights the hybrid blend. The three weights must sum to 1.0.
type SearchConfig struct {
	SemanticWeight float64
	LexicalWeight  float64
	RecencyWeight  float64

	// RecencyHalfLifeDays controls recency decay: exp(-age_days/halfLife).
	RecencyHalfLifeDays float64
	// VectorThreshold is the minimum cosine similarity for the semantic
	// branch; below it a match is noise, not a result.
	VectorThreshold float64
	// OverFetch multiplies the requested limit on each branch before the
	// merge so pagination happens on the merged, re-scored set.
	OverFetch int
	MaxLimit  int
	CacheTTL  time.Duration
}

func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		SemanticWeight:      0.5,
		LexicalWeight:       0.3,
		RecencyWeight:       0.2,
		RecencyHalfLifeDays: 30,
		VectorThreshold:     0.35,
		OverFetch:           2,
		MaxLimit:            100,
		CacheTTL:            15 * time.Minute,
	}
}

func (c SearchConfig) Validate() error {
	sum := c.SemanticWeight + c.LexicalWeight + c.RecencyWeight
	if c.SemanticWeight < 0 || c.LexicalWeight < 0 || c.RecencyWeight < 0 {
		return configErrorf("search weights must be non-negative")
	}
	if sum < 0.99 || sum > 1.01 {
		return configErrorf("search weights must sum to 1.0, got %f", sum)
	}
	if c.RecencyHalfLifeDays <= 0 {
		return configErrorf("search recency half-life must be positive")
	}
	if c.OverFetch < 1 {
		return configErrorf("search over-fetch factor must be at least 1")
	}
	return nil
}

type SearchOptions struct {
	Type         string
	Filters      repos.ContentFilters
	Limit        int
	Offset       int
	Aggregations []string
}

type SearchHit struct {
	ContentID      uuid.UUID `json:"content_id"`
	Score          float64   `json:"score"`
	SemanticScore  float64   `json:"semantic_score"`
	LexicalScore   float64   `json:"lexical_score"`
	RecencyScore   float64   `json:"recency_score"`
	TitleHighlight string    `json:"title_highlight,omitempty"`
	Snippet        string    `json:"snippet,omitempty"`
}

type SearchResult struct {
	Query        string                           `json:"query"`
	Type         string                           `json:"type"`
	Hits         []SearchHit                      `json:"hits"`
	Total        int                              `json:"total"`
	Aggregations map[string][]repos.CategoryCount `json:"aggregations,omitempty"`
	Took         time.Duration                    `json:"took"`
	Cached       bool                             `json:"cached"`
}

type SearchService interface {
	Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error)
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)
}

type searchService struct {
	log       *logger.Logger
	cfg       SearchConfig
	cache     cache.Cache
	metrics   *metrics.Metrics
	content   repos.ContentRepo
	embedding EmbeddingService
}

func NewSearchService(
	baseLog *logger.Logger,
	cfg SearchConfig,
	c cache.Cache,
	m *metrics.Metrics,
	content repos.ContentRepo,
	embedding EmbeddingService,
) (SearchService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &searchService{
		log:       baseLog.With("service", "SearchService"),
		cfg:       cfg,
		cache:     c,
		metrics:   m,
		content:   content,
		embedding: embedding,
	}, nil
}

// conceptualConnectives signal a meaning-oriented query ("articles about X",
// "papers similar to Y") rather than a keyword lookup.
var conceptualConnectives = []string{"similar to", "about"}

// selectSearchType picks the branch for "auto": exact-match syntax (quoted
// phrases, boolean operators, exclusions) and one-or-two-word lookups go
// lexical; long queries and conceptual connectives go semantic; mid-length
// keyword queries get the hybrid blend.
func selectSearchType(query string) string {
	trimmed := strings.TrimSpace(query)
	if strings.Contains(trimmed, "\"") {
		return SearchTypeFulltext
	}
	tokens := strings.Fields(trimmed)
	for _, t := range tokens {
		if t == "AND" || t == "OR" || t == "NOT" || strings.HasPrefix(t, "-") {
			return SearchTypeFulltext
		}
	}
	if len(tokens) <= 2 {
		return SearchTypeFulltext
	}
	if len(tokens) > 5 {
		return SearchTypeSemantic
	}
	lower := " " + strings.ToLower(trimmed) + " "
	for _, conn := range conceptualConnectives {
		if strings.Contains(lower, " "+conn+" ") {
			return SearchTypeSemantic
		}
	}
	return SearchTypeHybrid
}

func (s *searchService) Search(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, validationErrorf("search query must not be empty")
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	searchType := opts.Type
	if searchType == "" || searchType == SearchTypeAuto {
		searchType = selectSearchType(query)
	}
	switch searchType {
	case SearchTypeFulltext, SearchTypeSemantic, SearchTypeHybrid:
	default:
		return nil, validationErrorf("unknown search type %q", searchType)
	}

	key := s.cacheKey(query, searchType, opts, limit)
	if b, err := s.cache.Get(ctx, key); err == nil {
		var cached SearchResult
		if jErr := json.Unmarshal(b, &cached); jErr == nil {
			cached.Cached = true
			cached.Took = time.Since(start)
			s.metrics.Inc("search", "cache_hit")
			return &cached, nil
		}
	}
	s.metrics.Inc("search", "cache_miss")

	var (
		hits  []SearchHit
		total int
		err   error
	)
	switch searchType {
	case SearchTypeFulltext:
		hits, total, err = s.fulltextSearch(ctx, query, opts, limit)
	case SearchTypeSemantic:
		hits, total, err = s.semanticSearch(ctx, query, opts, limit)
	case SearchTypeHybrid:
		hits, total, err = s.hybridSearch(ctx, query, opts, limit)
	}
	if err != nil {
		return nil, err
	}

	result := &SearchResult{
		Query: query,
		Type:  searchType,
		Hits:  hits,
		Total: total,
	}

	if len(opts.Aggregations) > 0 {
		result.Aggregations = map[string][]repos.CategoryCount{}
		for _, field := range opts.Aggregations {
			counts, aggErr := s.content.CountByField(ctx, nil, field, opts.Filters)
			if aggErr != nil {
				return nil, fmt.Errorf("aggregate %s: %w", field, aggErr)
			}
			result.Aggregations[field] = counts
		}
	}

	result.Took = time.Since(start)
	s.metrics.Inc("search", "type_"+searchType)
	s.metrics.Observe("search", "search", result.Took)

	if b, jErr := json.Marshal(result); jErr == nil {
		if cErr := s.cache.Set(ctx, key, b, s.cfg.CacheTTL); cErr != nil {
			s.log.Warn("Failed to write search cache", "error", cErr)
		}
	}
	return result, nil
}

func (s *searchService) cacheKey(query, searchType string, opts SearchOptions, limit int) string {
	f, _ := json.Marshal(opts.Filters)
	a := strings.Join(opts.Aggregations, ",")
	return "search:" + hashKey(query, searchType, string(f), a, fmt.Sprint(limit), fmt.Sprint(opts.Offset))
}

func (s *searchService) fulltextSearch(ctx context.Context, query string, opts SearchOptions, limit int) ([]SearchHit, int, error) {
	rows, total, err := s.content.SearchFulltext(ctx, nil, query, opts.Filters, limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("fulltext search: %w", err)
	}
	maxRank := 0.0
	for _, r := range rows {
		if r.Rank > maxRank {
			maxRank = r.Rank
		}
	}
	hits := make([]SearchHit, 0, len(rows))
	for _, r := range rows {
		lexical := 0.0
		if maxRank > 0 {
			lexical = r.Rank / maxRank
		}
		hits = append(hits, SearchHit{
			ContentID:      r.ContentID,
			Score:          lexical,
			LexicalScore:   lexical,
			TitleHighlight: r.TitleHighlight,
			Snippet:        r.Snippet,
		})
	}
	return hits, int(total), nil
}

func (s *searchService) semanticSearch(ctx context.Context, query string, opts SearchOptions, limit int) ([]SearchHit, int, error) {
	emb, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}
	fetch := (limit + opts.Offset) * s.cfg.OverFetch
	rows, err := s.content.FindSimilarByVector(ctx, nil, pgvector.NewVector(emb.Vector), s.cfg.VectorThreshold, fetch, nil, opts.Filters)
	if err != nil {
		return nil, 0, fmt.Errorf("semantic search: %w", err)
	}
	hits := make([]SearchHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, SearchHit{
			ContentID:     r.ContentID,
			Score:         r.Similarity,
			SemanticScore: r.Similarity,
		})
	}
	total := len(hits)
	return paginate(hits, opts.Offset, limit), total, nil
}

// hybridSearch over-fetches both branches, merges candidates by id and
// re-scores each with the weighted blend before paginating the merged set.
func (s *searchService) hybridSearch(ctx context.Context, query string, opts SearchOptions, limit int) ([]SearchHit, int, error) {
	fetch := (limit + opts.Offset) * s.cfg.OverFetch

	lexRows, _, err := s.content.SearchFulltext(ctx, nil, query, opts.Filters, fetch, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("hybrid lexical branch: %w", err)
	}

	emb, err := s.embedding.Embed(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("embed query: %w", err)
	}
	vecRows, err := s.content.FindSimilarByVector(ctx, nil, pgvector.NewVector(emb.Vector), s.cfg.VectorThreshold, fetch, nil, opts.Filters)
	if err != nil {
		return nil, 0, fmt.Errorf("hybrid semantic branch: %w", err)
	}

	merged := map[uuid.UUID]*SearchHit{}
	maxRank := 0.0
	for _, r := range lexRows {
		if r.Rank > maxRank {
			maxRank = r.Rank
		}
	}
	for _, r := range lexRows {
		lexical := 0.0
		if maxRank > 0 {
			lexical = r.Rank / maxRank
		}
		merged[r.ContentID] = &SearchHit{
			ContentID:      r.ContentID,
			LexicalScore:   lexical,
			TitleHighlight: r.TitleHighlight,
			Snippet:        r.Snippet,
		}
	}
	for _, r := range vecRows {
		if h, ok := merged[r.ContentID]; ok {
			h.SemanticScore = r.Similarity
			continue
		}
		merged[r.ContentID] = &SearchHit{
			ContentID:     r.ContentID,
			SemanticScore: r.Similarity,
		}
	}

	recency, err := s.recencyScores(ctx, merged)
	if err != nil {
		return nil, 0, err
	}

	hits := make([]SearchHit, 0, len(merged))
	for id, h := range merged {
		h.RecencyScore = recency[id]
		h.Score = h.SemanticScore*s.cfg.SemanticWeight +
			h.LexicalScore*s.cfg.LexicalWeight +
			h.RecencyScore*s.cfg.RecencyWeight
		hits = append(hits, *h)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ContentID.String() < hits[j].ContentID.String()
	})
	total := len(hits)
	return paginate(hits, opts.Offset, limit), total, nil
}

// recencyScores loads publish timestamps for the merged candidates and maps
// age onto exponential decay with the configured half-life.
func (s *searchService) recencyScores(ctx context.Context, merged map[uuid.UUID]*SearchHit) (map[uuid.UUID]float64, error) {
	ids := make([]uuid.UUID, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	items, err := s.content.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("load merged candidates: %w", err)
	}
	out := make(map[uuid.UUID]float64, len(items))
	now := time.Now()
	for _, item := range items {
		if item.PublishedAt.IsZero() {
			out[item.ID] = 0
			continue
		}
		ageDays := now.Sub(item.PublishedAt).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		out[item.ID] = math.Exp(-ageDays / s.cfg.RecencyHalfLifeDays)
	}
	return out, nil
}

func paginate(hits []SearchHit, offset, limit int) []SearchHit {
	if offset >= len(hits) {
		return []SearchHit{}
	}
	end := offset + limit
	if end > len(hits) {
		end = len(hits)
	}
	return hits[offset:end]
}

func (s *searchService) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if len(prefix) < 2 {
		return nil, nil
	}
	if limit <= 0 || limit > 10 {
		limit = 5
	}
	return s.content.SuggestTitles(ctx, nil, prefix, limit)
}
