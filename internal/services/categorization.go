package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/clients/openai"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
)

const (
	CategorizeMethodKeyword   = "keyword"
	CategorizeMethodEmbedding = "embedding"
	CategorizeMethodModel     = "model"
	CategorizeMethodHybrid    = "hybrid"
	CategorizeMethodAuto      = "auto"
)

type CategorizationConfig struct {
	MinConfidence float64
	// Method reliability weights for hybrid blending. Model-assisted
	// results are trusted most, then embedding votes, then keyword rules.
	KeywordWeight   float64
	EmbeddingWeight float64
	ModelWeight     float64
	// HybridModelCutoff: hybrid only pays for an LLM call when the blended
	// keyword+embedding confidence is below this.
	HybridModelCutoff float64
	// EmbeddingVoteK: how many similar categorized items vote.
	EmbeddingVoteK   int
	BatchConcurrency int
	// LongTextWords: auto-selection treats text beyond this as long enough
	// to justify a model call when no strong keyword signal exists.
	LongTextWords int
}

func DefaultCategorizationConfig() CategorizationConfig {
	return CategorizationConfig{
		MinConfidence:     0.4,
		KeywordWeight:     0.25,
		EmbeddingWeight:   0.35,
		ModelWeight:       0.4,
		HybridModelCutoff: 0.7,
		EmbeddingVoteK:    8,
		BatchConcurrency:  4,
		LongTextWords:     600,
	}
}

func (c CategorizationConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return configErrorf("categorization min confidence must be in [0,1], got %f", c.MinConfidence)
	}
	if c.KeywordWeight < 0 || c.EmbeddingWeight < 0 || c.ModelWeight < 0 {
		return configErrorf("categorization method weights must be non-negative")
	}
	sum := c.KeywordWeight + c.EmbeddingWeight + c.ModelWeight
	if sum < 0.99 || sum > 1.01 {
		return configErrorf("categorization method weights must sum to 1.0, got %f", sum)
	}
	if c.ModelWeight < c.EmbeddingWeight || c.EmbeddingWeight < c.KeywordWeight {
		return configErrorf("categorization method weights must respect model >= embedding >= keyword reliability ordering")
	}
	if c.EmbeddingVoteK <= 0 {
		return configErrorf("categorization embedding vote k must be positive")
	}
	if c.BatchConcurrency <= 0 {
		return configErrorf("categorization batch concurrency must be positive")
	}
	return nil
}

type CategorizeOptions struct {
	Method           string
	MinConfidence    float64
	ExistingCategory string
}

type CategorizationResult struct {
	PrimaryCategory      string        `json:"primary_category"`
	AdditionalCategories []string      `json:"additional_categories"`
	Confidence           float64       `json:"confidence"`
	Method               string        `json:"method"`
	Tags                 []string      `json:"tags"`
	Keywords             []string      `json:"keywords"`
	ProcessingTime       time.Duration `json:"processing_time"`
	Timestamp            time.Time     `json:"timestamp"`
}

type BatchCategorizationResult struct {
	Results      map[int]*CategorizationResult `json:"results"`
	SuccessCount int                           `json:"success_count"`
	FailureCount int                           `json:"failure_count"`
}

type CategorizationService interface {
	Categorize(ctx context.Context, text, title string, opts CategorizeOptions) (*CategorizationResult, error)
	CategorizeBatch(ctx context.Context, texts []string, opts CategorizeOptions) (*BatchCategorizationResult, error)
}

type categorizationService struct {
	db        *gorm.DB
	log       *logger.Logger
	cfg       CategorizationConfig
	metrics   *metrics.Metrics
	embedding EmbeddingService
	content   repos.ContentRepo
	llm       openai.Client
}

func NewCategorizationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg CategorizationConfig,
	m *metrics.Metrics,
	embedding EmbeddingService,
	content repos.ContentRepo,
	llm openai.Client,
) (CategorizationService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &categorizationService{
		db:        db,
		log:       baseLog.With("service", "CategorizationService"),
		cfg:       cfg,
		metrics:   m,
		embedding: embedding,
		content:   content,
		llm:       llm,
	}, nil
}

// selectCategorizeMethod is a pure function of declared input features so
// auto dispatch stays unit-testable without the engines.
func selectCategorizeMethod(text string, longTextWords int) string {
	lowered := strings.ToLower(text)
	for _, term := range strongSignalTerms {
		if strings.Contains(lowered, term) {
			return CategorizeMethodKeyword
		}
	}
	if wordCount(text) >= longTextWords {
		return CategorizeMethodModel
	}
	return CategorizeMethodHybrid
}

func (s *categorizationService) Categorize(ctx context.Context, text, title string, opts CategorizeOptions) (*CategorizationResult, error) {
	start := time.Now()
	combined := strings.TrimSpace(title + "\n" + text)
	if cleanText(combined) == "" {
		return nil, validationErrorf("cannot categorize empty text")
	}

	method := opts.Method
	if method == "" || method == CategorizeMethodAuto {
		method = selectCategorizeMethod(combined, s.cfg.LongTextWords)
	}
	minConfidence := opts.MinConfidence
	if minConfidence <= 0 {
		minConfidence = s.cfg.MinConfidence
	}

	var (
		scores map[string]float64
		err    error
	)
	switch method {
	case CategorizeMethodKeyword:
		scores = keywordCategoryScores(combined)
	case CategorizeMethodEmbedding:
		scores, err = s.embeddingCategoryScores(ctx, combined)
	case CategorizeMethodModel:
		scores, err = s.modelCategoryScores(ctx, combined)
	case CategorizeMethodHybrid:
		scores, err = s.hybridCategoryScores(ctx, combined)
	default:
		return nil, validationErrorf("unknown categorization method %q", opts.Method)
	}
	if err != nil {
		return nil, err
	}

	primary, confidence, additional := rankCategories(scores)

	// Below the floor we degrade to the existing category or "general"
	// instead of failing: a wrong-but-present label is recoverable, a
	// failed write-path job is not.
	if confidence < minConfidence || primary == "" {
		primary = opts.ExistingCategory
		if !isKnownCategory(primary) {
			primary = CategoryGeneral
		}
		confidence = fallbackConfidence
		additional = nil
	}

	s.metrics.Inc("categorization", "categorized")
	s.metrics.Observe("categorization", "categorize", time.Since(start))

	return &CategorizationResult{
		PrimaryCategory:      primary,
		AdditionalCategories: additional,
		Confidence:           clamp(confidence, 0, 1),
		Method:               method,
		Tags:                 topKeywords(combined, 5),
		Keywords:             topKeywords(combined, 10),
		ProcessingTime:       time.Since(start),
		Timestamp:            time.Now(),
	}, nil
}

// keywordCategoryScores scores each category by its matched rule weights and
// normalizes by the total so scores sum to 1 across categories.
func keywordCategoryScores(text string) map[string]float64 {
	lowered := strings.ToLower(text)
	tokens := map[string]bool{}
	for _, t := range strings.Fields(nonWordRe.ReplaceAllString(lowered, " ")) {
		tokens[t] = true
	}

	raw := map[string]float64{}
	total := 0.0
	for category, rules := range categoryRules {
		score := 0.0
		for _, rule := range rules {
			if strings.Contains(rule.keyword, " ") {
				if strings.Contains(lowered, rule.keyword) {
					score += rule.weight
				}
			} else if tokens[rule.keyword] {
				score += rule.weight
			}
		}
		if score > 0 {
			raw[category] = score
			total += score
		}
	}
	if total == 0 {
		return map[string]float64{}
	}
	for k := range raw {
		raw[k] /= total
	}
	return raw
}

// embeddingCategoryScores embeds the text and lets the K most similar
// already-categorized items vote, weighted by their similarity.
func (s *categorizationService) embeddingCategoryScores(ctx context.Context, text string) (map[string]float64, error) {
	res, err := s.embedding.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding vote: %w", err)
	}
	neighbors, err := s.embedding.FindSimilarByVector(ctx, res.Vector, SimilarContentOptions{
		Limit:     s.cfg.EmbeddingVoteK,
		Threshold: 0.3,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding vote neighbors: %w", err)
	}
	if len(neighbors) == 0 {
		return map[string]float64{}, nil
	}
	ids := make([]uuid.UUID, 0, len(neighbors))
	simByID := make(map[uuid.UUID]float64, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.ContentID)
		simByID[n.ContentID] = n.Similarity
	}
	items, err := s.content.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, fmt.Errorf("embedding vote load items: %w", err)
	}
	scores := map[string]float64{}
	total := 0.0
	for _, item := range items {
		if item.Category == "" || !isKnownCategory(item.Category) {
			continue
		}
		w := simByID[item.ID]
		scores[item.Category] += w
		total += w
	}
	if total == 0 {
		return map[string]float64{}, nil
	}
	for k := range scores {
		scores[k] /= total
	}
	return scores, nil
}

var categorizeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"category": map[string]any{
			"type": "string",
			"enum": CategoryVocabulary,
		},
		"confidence": map[string]any{"type": "number"},
		"secondary": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string", "enum": CategoryVocabulary},
		},
	},
	"required":             []string{"category", "confidence"},
	"additionalProperties": false,
}

func (s *categorizationService) modelCategoryScores(ctx context.Context, text string) (map[string]float64, error) {
	s.metrics.Inc("categorization", "model_call")
	system := "You classify news and research content into exactly one primary category from a fixed vocabulary: " +
		strings.Join(CategoryVocabulary, ", ") + ". Respond with the category, a confidence in [0,1], and up to two secondary categories."
	user := truncateText(text, 12000)
	out, err := s.llm.GenerateJSON(ctx, system, user, "categorization", categorizeSchema)
	if err != nil {
		return nil, fmt.Errorf("model categorization: %w", err)
	}
	category, _ := out["category"].(string)
	if !isKnownCategory(category) {
		return nil, fmt.Errorf("model returned unknown category %q", category)
	}
	confidence := 0.5
	if c, ok := out["confidence"].(float64); ok {
		confidence = clamp(c, 0, 1)
	}
	scores := map[string]float64{category: confidence}
	if secondary, ok := out["secondary"].([]any); ok {
		for i, sc := range secondary {
			name, _ := sc.(string)
			if isKnownCategory(name) && name != category {
				scores[name] = confidence * (0.5 - 0.1*float64(i))
			}
		}
	}
	return scores, nil
}

// hybridCategoryScores runs keyword and embedding in parallel, blends by
// method reliability, and only calls the model when the blend is not
// confident enough on its own.
func (s *categorizationService) hybridCategoryScores(ctx context.Context, text string) (map[string]float64, error) {
	var (
		keywordScores   map[string]float64
		embeddingScores map[string]float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		keywordScores = keywordCategoryScores(text)
		return nil
	})
	g.Go(func() error {
		var err error
		embeddingScores, err = s.embeddingCategoryScores(gctx, text)
		if err != nil {
			// The keyword branch can carry the result by itself.
			s.log.Warn("Hybrid categorization embedding branch failed", "error", err)
			embeddingScores = map[string]float64{}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	blended := map[string]float64{}
	for k, v := range keywordScores {
		blended[k] += v * s.cfg.KeywordWeight
	}
	for k, v := range embeddingScores {
		blended[k] += v * s.cfg.EmbeddingWeight
	}

	_, confidence, _ := rankCategories(blended)
	if confidence >= s.cfg.HybridModelCutoff {
		return blended, nil
	}

	modelScores, err := s.modelCategoryScores(ctx, text)
	if err != nil {
		s.log.Warn("Hybrid categorization model branch failed", "error", err)
		return blended, nil
	}
	for k, v := range modelScores {
		blended[k] += v * s.cfg.ModelWeight
	}
	return blended, nil
}

// rankCategories picks the argmax and returns runner-up categories whose
// score is at least half the winner's.
func rankCategories(scores map[string]float64) (string, float64, []string) {
	if len(scores) == 0 {
		return "", 0, nil
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if scores[keys[i]] != scores[keys[j]] {
			return scores[keys[i]] > scores[keys[j]]
		}
		return keys[i] < keys[j]
	})
	primary := keys[0]
	confidence := clamp(scores[primary], 0, 1)
	var additional []string
	for _, k := range keys[1:] {
		if scores[k] >= scores[primary]/2 && len(additional) < 2 {
			additional = append(additional, k)
		}
	}
	return primary, confidence, additional
}

// CategorizeBatch is best-effort: failed items are omitted from Results and
// only counted.
func (s *categorizationService) CategorizeBatch(ctx context.Context, texts []string, opts CategorizeOptions) (*BatchCategorizationResult, error) {
	out := &BatchCategorizationResult{Results: make(map[int]*CategorizationResult)}
	if len(texts) == 0 {
		return out, nil
	}
	sem := semaphore.NewWeighted(int64(s.cfg.BatchConcurrency))
	type indexed struct {
		i   int
		res *CategorizationResult
	}
	results := make(chan indexed, len(texts))
	for i, text := range texts {
		i, text := i, text
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		go func() {
			defer sem.Release(1)
			res, err := s.Categorize(ctx, text, "", opts)
			if err != nil {
				s.log.Warn("Batch categorization item failed", "index", i, "error", err)
				results <- indexed{i: i}
				return
			}
			results <- indexed{i: i, res: res}
		}()
	}
	for range texts {
		select {
		case r := <-results:
			if r.res != nil {
				out.Results[r.i] = r.res
				out.SuccessCount++
			} else {
				out.FailureCount++
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return out, nil
}
