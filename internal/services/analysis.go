package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brightfeed/brightfeed-backend/internal/clients/openai"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
)

const (
	AnalysisDepthBasic         = "basic"
	AnalysisDepthStandard      = "standard"
	AnalysisDepthComprehensive = "comprehensive"
)

// AnalysisConfig holds the quality blend weights. They must sum to 1.0 so
// the overall score stays in [0,100].
type AnalysisConfig struct {
	ReadabilityWeight float64
	GrammarWeight     float64
	FactualityWeight  float64
	BiasWeight        float64
	CoherenceWeight   float64

	SummarySentences  int
	AllowModelSummary bool
}

func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		ReadabilityWeight: 0.2,
		GrammarWeight:     0.15,
		FactualityWeight:  0.3,
		BiasWeight:        0.15,
		CoherenceWeight:   0.2,
		SummarySentences:  3,
		AllowModelSummary: true,
	}
}

func (c AnalysisConfig) Validate() error {
	weights := []float64{c.ReadabilityWeight, c.GrammarWeight, c.FactualityWeight, c.BiasWeight, c.CoherenceWeight}
	sum := 0.0
	for _, w := range weights {
		if w < 0 {
			return configErrorf("analysis quality weights must be non-negative")
		}
		sum += w
	}
	if sum < 0.99 || sum > 1.01 {
		return configErrorf("analysis quality weights must sum to 1.0, got %f", sum)
	}
	if c.SummarySentences <= 0 {
		return configErrorf("analysis summary sentence count must be positive")
	}
	return nil
}

type AnalyzeOptions struct {
	Summary   bool
	Sentiment bool
	Quality   bool
	Depth     string
}

type SummaryResult struct {
	Short     string   `json:"short"`
	Medium    string   `json:"medium"`
	Long      string   `json:"long"`
	KeyPoints []string `json:"key_points,omitempty"`
	Method    string   `json:"method"`
}

type SentimentResult struct {
	Polarity     float64            `json:"polarity"`
	Subjectivity float64            `json:"subjectivity"`
	Emotions     map[string]float64 `json:"emotions,omitempty"`
}

type QualityResult struct {
	Overall     float64           `json:"overall"`
	Readability ReadabilityResult `json:"readability"`
	Grammar     GrammarResult     `json:"grammar"`
	Factuality  FactualityResult  `json:"factuality"`
	Bias        BiasResult        `json:"bias"`
	Coherence   CoherenceResult   `json:"coherence"`
}

type AnalysisResult struct {
	ContentID      uuid.UUID        `json:"content_id"`
	ContentType    string           `json:"content_type"`
	Summary        *SummaryResult   `json:"summary,omitempty"`
	Sentiment      *SentimentResult `json:"sentiment,omitempty"`
	Quality        *QualityResult   `json:"quality,omitempty"`
	Degraded       []string         `json:"degraded,omitempty"`
	ProcessingTime time.Duration    `json:"processing_time"`
	Timestamp      time.Time        `json:"timestamp"`
}

type AnalysisService interface {
	Analyze(ctx context.Context, id uuid.UUID, contentType, title, body string, opts AnalyzeOptions) (*AnalysisResult, error)
}

type analysisService struct {
	log     *logger.Logger
	cfg     AnalysisConfig
	metrics *metrics.Metrics
	llm     openai.Client
}

func NewAnalysisService(baseLog *logger.Logger, cfg AnalysisConfig, m *metrics.Metrics, llm openai.Client) (AnalysisService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &analysisService{
		log:     baseLog.With("service", "AnalysisService"),
		cfg:     cfg,
		metrics: m,
		llm:     llm,
	}, nil
}

// Analyze runs the requested sub-analyses concurrently. Each sub-step is
// isolated: a failure degrades that field to its documented default and is
// recorded in Degraded rather than aborting the whole analysis.
func (s *analysisService) Analyze(ctx context.Context, id uuid.UUID, contentType, title, body string, opts AnalyzeOptions) (*AnalysisResult, error) {
	start := time.Now()
	if cleanText(body) == "" {
		return nil, validationErrorf("cannot analyze empty body")
	}
	depth := opts.Depth
	if depth == "" {
		depth = AnalysisDepthStandard
	}

	result := &AnalysisResult{
		ContentID:   id,
		ContentType: contentType,
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		degraded []string
	)
	degrade := func(field string, err error) {
		mu.Lock()
		degraded = append(degraded, field)
		mu.Unlock()
		s.log.Warn("Analysis sub-step degraded to default", "field", field, "content_id", id, "error", err)
	}

	if opts.Summary {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summary, err := s.summarize(ctx, title, body, depth)
			if err != nil {
				degrade("summary", err)
				summary = s.extractiveSummary(title, body)
			}
			mu.Lock()
			result.Summary = summary
			mu.Unlock()
		}()
	}

	if opts.Sentiment {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			result.Sentiment = s.sentiment(body, depth)
			mu.Unlock()
		}()
	}

	if opts.Quality {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mu.Lock()
			result.Quality = s.quality(body)
			mu.Unlock()
		}()
	}

	wg.Wait()

	result.Degraded = degraded
	result.ProcessingTime = time.Since(start)
	result.Timestamp = time.Now()
	s.metrics.Inc("analysis", "analyzed")
	s.metrics.Observe("analysis", "analyze", result.ProcessingTime)
	return result, nil
}

var summarySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"short":      map[string]any{"type": "string"},
		"medium":     map[string]any{"type": "string"},
		"long":       map[string]any{"type": "string"},
		"key_points": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required":             []string{"short", "medium", "long", "key_points"},
	"additionalProperties": false,
}

// summarize prefers the model-assisted abstractive path; basic depth and
// disallowed model use go straight to extractive.
func (s *analysisService) summarize(ctx context.Context, title, body, depth string) (*SummaryResult, error) {
	if !s.cfg.AllowModelSummary || depth == AnalysisDepthBasic {
		return s.extractiveSummary(title, body), nil
	}
	s.metrics.Inc("analysis", "model_summary_call")
	system := "Summarize the article in three lengths: short (one sentence), medium (2-3 sentences), long (a paragraph). Also extract 3-5 key points."
	user := "Title: " + title + "\n\n" + truncateText(body, 16000)
	out, err := s.llm.GenerateJSON(ctx, system, user, "summary", summarySchema)
	if err != nil {
		return nil, fmt.Errorf("model summary: %w", err)
	}
	res := &SummaryResult{Method: "abstractive"}
	res.Short, _ = out["short"].(string)
	res.Medium, _ = out["medium"].(string)
	res.Long, _ = out["long"].(string)
	if points, ok := out["key_points"].([]any); ok {
		for _, p := range points {
			if str, ok := p.(string); ok && str != "" {
				res.KeyPoints = append(res.KeyPoints, str)
			}
		}
	}
	if res.Short == "" && res.Medium == "" {
		return nil, fmt.Errorf("model summary returned empty result")
	}
	return res, nil
}

// extractiveSummary scores sentences by normalized word frequency, weighted
// toward earlier positions, with a penalty away from an ideal sentence
// length, and selects the top N in document order.
func (s *analysisService) extractiveSummary(title, body string) *SummaryResult {
	sentences := splitSentences(body)
	if len(sentences) == 0 {
		return &SummaryResult{Method: "extractive"}
	}

	freq := map[string]float64{}
	maxFreq := 0.0
	for _, tok := range tokenize(body) {
		freq[tok]++
		if freq[tok] > maxFreq {
			maxFreq = freq[tok]
		}
	}
	if maxFreq == 0 {
		maxFreq = 1
	}

	const idealLen = 20.0
	type scored struct {
		index int
		score float64
	}
	scoredSentences := make([]scored, len(sentences))
	for i, sentence := range sentences {
		tokens := tokenize(sentence)
		sum := 0.0
		for _, t := range tokens {
			sum += freq[t] / maxFreq
		}
		var base float64
		if len(tokens) > 0 {
			base = sum / float64(len(tokens))
		}
		position := 1.0 - 0.5*float64(i)/float64(len(sentences))
		lengthPenalty := 1.0 / (1.0 + math.Abs(float64(wordCount(sentence))-idealLen)/idealLen)
		scoredSentences[i] = scored{index: i, score: base * position * lengthPenalty}
	}

	pick := func(n int) string {
		if n > len(scoredSentences) {
			n = len(scoredSentences)
		}
		top := make([]scored, len(scoredSentences))
		copy(top, scoredSentences)
		sort.Slice(top, func(i, j int) bool { return top[i].score > top[j].score })
		top = top[:n]
		sort.Slice(top, func(i, j int) bool { return top[i].index < top[j].index })
		parts := make([]string, 0, n)
		for _, t := range top {
			parts = append(parts, strings.TrimSpace(sentences[t.index])+".")
		}
		return strings.Join(parts, " ")
	}

	return &SummaryResult{
		Short:     pick(1),
		Medium:    pick(s.cfg.SummarySentences),
		Long:      pick(s.cfg.SummarySentences * 2),
		KeyPoints: topKeywords(title+" "+body, 5),
		Method:    "extractive",
	}
}

// sentiment: basic depth scores the whole text at once; deeper passes
// average sentence scores weighted by sentence length and estimate
// subjectivity from emotional-word density. Comprehensive adds the emotion
// vector.
func (s *analysisService) sentiment(body, depth string) *SentimentResult {
	tokens := tokenize(body)
	base, _ := sentimentOfTokens(tokens)
	res := &SentimentResult{Polarity: base}

	if depth == AnalysisDepthBasic {
		return res
	}

	sentences := splitSentences(body)
	weightedSum := 0.0
	totalWeight := 0.0
	for _, sentence := range sentences {
		st := tokenize(sentence)
		score, matched := sentimentOfTokens(st)
		if matched == 0 {
			continue
		}
		w := float64(len(st))
		weightedSum += score * w
		totalWeight += w
	}
	if totalWeight > 0 {
		res.Polarity = clamp(weightedSum/totalWeight, -1, 1)
	}
	res.Subjectivity = emotionalWordDensity(tokens)

	if depth == AnalysisDepthComprehensive {
		res.Emotions = emotionVector(body)
	}
	return res
}

func (s *analysisService) quality(body string) *QualityResult {
	q := &QualityResult{
		Readability: readability(body),
		Grammar:     grammarScore(body),
		Factuality:  factualityScore(body),
		Bias:        biasScore(body),
		Coherence:   coherenceScore(body),
	}
	q.Overall = clamp(
		q.Readability.Score*s.cfg.ReadabilityWeight+
			q.Grammar.Score*s.cfg.GrammarWeight+
			q.Factuality.Score*s.cfg.FactualityWeight+
			q.Bias.Score*s.cfg.BiasWeight+
			q.Coherence.Score*s.cfg.CoherenceWeight,
		0, 100)
	return q
}
