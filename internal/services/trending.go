package services

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

const (
	TrendRising    = "rising"
	TrendStable    = "stable"
	TrendDeclining = "declining"
)

// TrendingConfig weights the per-window topic score. The four weights must
// sum to 1.0.
type TrendingConfig struct {
	MentionWeight    float64
	GrowthWeight     float64
	EngagementWeight float64
	RecencyWeight    float64

	Windows []time.Duration
	// MinMentions filters noise: a topic below it never trends.
	MinMentions int
	TopN        int
	// HistoryLookback bounds the growth/direction comparison window;
	// Retention bounds the append-only history table.
	HistoryLookback time.Duration
	Retention       time.Duration
	MaxWindowItems  int
}

func DefaultTrendingConfig() TrendingConfig {
	return TrendingConfig{
		MentionWeight:    0.35,
		GrowthWeight:     0.3,
		EngagementWeight: 0.2,
		RecencyWeight:    0.15,
		Windows:          []time.Duration{time.Hour, 6 * time.Hour, 24 * time.Hour},
		MinMentions:      3,
		TopN:             20,
		HistoryLookback:  7 * 24 * time.Hour,
		Retention:        30 * 24 * time.Hour,
		MaxWindowItems:   1000,
	}
}

func (c TrendingConfig) Validate() error {
	if c.MentionWeight < 0 || c.GrowthWeight < 0 || c.EngagementWeight < 0 || c.RecencyWeight < 0 {
		return configErrorf("trending weights must be non-negative")
	}
	sum := c.MentionWeight + c.GrowthWeight + c.EngagementWeight + c.RecencyWeight
	if sum < 0.99 || sum > 1.01 {
		return configErrorf("trending weights must sum to 1.0, got %f", sum)
	}
	if len(c.Windows) == 0 {
		return configErrorf("trending requires at least one window")
	}
	if c.MinMentions < 1 {
		return configErrorf("trending min mentions must be at least 1")
	}
	return nil
}

// TrendingTopic is one detected topic, either for a single window or merged
// across windows.
type TrendingTopic struct {
	Name       string  `json:"name"`
	Mentions   int     `json:"mentions"`
	Engagement float64 `json:"engagement"`
	Score      float64 `json:"score"`
	Direction  string  `json:"direction"`
	// Sentiment is the mention-weighted average polarity of the items
	// mentioning the topic, in [-1, 1].
	Sentiment float64     `json:"sentiment"`
	Windows   []string    `json:"windows"`
	SampleIDs []uuid.UUID `json:"sample_ids,omitempty"`
}

type TrendingResult struct {
	Topics      []TrendingTopic `json:"topics"`
	Windows     []string        `json:"windows"`
	GeneratedAt time.Time       `json:"generated_at"`
}

type TrendingService interface {
	DetectWindow(ctx context.Context, window time.Duration) ([]TrendingTopic, error)
	Detect(ctx context.Context) (*TrendingResult, error)
	PruneHistory(ctx context.Context) (int64, error)
}

type trendingService struct {
	db      *gorm.DB
	log     *logger.Logger
	cfg     TrendingConfig
	metrics *metrics.Metrics
	content repos.ContentRepo
	history repos.TopicHistoryRepo
}

func NewTrendingService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg TrendingConfig,
	m *metrics.Metrics,
	content repos.ContentRepo,
	history repos.TopicHistoryRepo,
) (TrendingService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &trendingService{
		db:      db,
		log:     baseLog.With("service", "TrendingService"),
		cfg:     cfg,
		metrics: m,
		content: content,
		history: history,
	}, nil
}

// properPhraseRe matches runs of capitalized words in titles, the cheapest
// useful proxy for named entities.
var properPhraseRe = regexp.MustCompile(`\b[A-Z][a-zA-Z0-9]+(?:\s+[A-Z][a-zA-Z0-9]+){0,3}\b`)

// extractTopics pulls topic candidates from one item: capitalized phrases
// from the title plus frequent keywords from title and summary. Results are
// normalized so the same topic merges across items and windows.
func extractTopics(item *types.ContentItem) []string {
	seen := map[string]bool{}
	var out []string
	add := func(raw string) {
		norm := normalizeTopic(raw)
		if norm == "" || len(norm) < 3 || stopwords[norm] || seen[norm] {
			return
		}
		seen[norm] = true
		out = append(out, norm)
	}
	for _, phrase := range properPhraseRe.FindAllString(item.Title, -1) {
		if wordCount(phrase) >= 2 {
			add(phrase)
		}
	}
	for _, kw := range topKeywords(item.Title+" "+item.Summary, 5) {
		add(kw)
	}
	for _, tag := range jsonStrings(item.Tags) {
		add(tag)
	}
	return out
}

type topicAccumulator struct {
	mentions     int
	engagement   float64
	recencySum   float64
	sentimentSum float64
	samples      []uuid.UUID
}

// DetectWindow runs topic extraction over one window, scores each topic
// against its history and appends the observations for future growth
// comparisons.
func (s *trendingService) DetectWindow(ctx context.Context, window time.Duration) ([]TrendingTopic, error) {
	topics, entries, err := s.detectWindowTopics(ctx, window)
	if err != nil {
		return nil, err
	}
	if err := s.history.Append(ctx, nil, entries); err != nil {
		return nil, fmt.Errorf("append topic history: %w", err)
	}
	s.metrics.Inc("trending", "window_detected")
	return topics, nil
}

// detectWindowTopics computes a window's topics without touching history,
// so a multi-window run can score every window against the same baseline
// and persist once at the end.
func (s *trendingService) detectWindowTopics(ctx context.Context, window time.Duration) ([]TrendingTopic, []*types.TopicHistory, error) {
	if window <= 0 {
		return nil, nil, validationErrorf("trending window must be positive")
	}
	now := time.Now()
	items, err := s.content.FindRecent(ctx, nil, now.Add(-window), s.cfg.MaxWindowItems)
	if err != nil {
		return nil, nil, fmt.Errorf("load window items: %w", err)
	}

	acc := map[string]*topicAccumulator{}
	maxEngagement := 0.0
	for _, item := range items {
		recency := 1.0 - clamp(now.Sub(item.PublishedAt).Seconds()/window.Seconds(), 0, 1)
		engagement := item.Engagement()
		if engagement > maxEngagement {
			maxEngagement = engagement
		}
		polarity, _ := sentimentOfTokens(tokenize(item.Title + " " + item.Summary))
		for _, topic := range extractTopics(item) {
			a, ok := acc[topic]
			if !ok {
				a = &topicAccumulator{}
				acc[topic] = a
			}
			a.mentions++
			a.engagement += engagement
			a.recencySum += recency
			a.sentimentSum += polarity
			if len(a.samples) < 5 {
				a.samples = append(a.samples, item.ID)
			}
		}
	}

	maxMentions := 0
	for _, a := range acc {
		if a.mentions > maxMentions {
			maxMentions = a.mentions
		}
	}

	label := windowLabel(window)
	var topics []TrendingTopic
	var entries []*types.TopicHistory
	for name, a := range acc {
		if a.mentions < s.cfg.MinMentions {
			continue
		}
		growth, direction, histErr := s.growthAndDirection(ctx, name, a.mentions)
		if histErr != nil {
			return nil, nil, histErr
		}
		mentionScore := 0.0
		if maxMentions > 0 {
			mentionScore = float64(a.mentions) / float64(maxMentions)
		}
		engagementScore := 0.0
		if maxEngagement > 0 {
			engagementScore = a.engagement / (maxEngagement * float64(a.mentions))
		}
		recencyScore := a.recencySum / float64(a.mentions)
		score := mentionScore*s.cfg.MentionWeight +
			growth*s.cfg.GrowthWeight +
			engagementScore*s.cfg.EngagementWeight +
			recencyScore*s.cfg.RecencyWeight

		topics = append(topics, TrendingTopic{
			Name:       name,
			Mentions:   a.mentions,
			Engagement: a.engagement,
			Score:      clamp(score, 0, 1),
			Direction:  direction,
			Sentiment:  a.sentimentSum / float64(a.mentions),
			Windows:    []string{label},
			SampleIDs:  a.samples,
		})
		entries = append(entries, &types.TopicHistory{
			Topic:    name,
			Window:   label,
			Mentions: a.mentions,
			Score:    clamp(score, 0, 1),
		})
	}

	sort.Slice(topics, func(i, j int) bool {
		if topics[i].Score != topics[j].Score {
			return topics[i].Score > topics[j].Score
		}
		return topics[i].Name < topics[j].Name
	})
	if len(topics) > s.cfg.TopN {
		topics = topics[:s.cfg.TopN]
	}
	return topics, entries, nil
}

// growthAndDirection compares current mentions against the topic's
// historical average. A topic with no history is rising by definition.
func (s *trendingService) growthAndDirection(ctx context.Context, topic string, mentions int) (float64, string, error) {
	rows, err := s.history.ListSince(ctx, nil, topic, time.Now().Add(-s.cfg.HistoryLookback))
	if err != nil {
		return 0, "", fmt.Errorf("load topic history: %w", err)
	}
	if len(rows) == 0 {
		return 1, TrendRising, nil
	}
	sum := 0
	for _, r := range rows {
		sum += r.Mentions
	}
	avg := float64(sum) / float64(len(rows))
	if avg == 0 {
		return 1, TrendRising, nil
	}
	ratio := float64(mentions) / avg
	growth := clamp(math.Log2(ratio+1)/2, 0, 1)
	switch {
	case ratio >= 1.2:
		return growth, TrendRising, nil
	case ratio <= 0.8:
		return growth, TrendDeclining, nil
	default:
		return growth, TrendStable, nil
	}
}

// Detect runs every configured window and merges topics by normalized name.
// Merge operations are commutative (sum mentions and engagement, keep max
// score, mention-weighted sentiment, union windows) and history is written
// once after all windows are scored, so window ordering never changes the
// result.
func (s *trendingService) Detect(ctx context.Context) (*TrendingResult, error) {
	merged := map[string]*TrendingTopic{}
	labels := make([]string, 0, len(s.cfg.Windows))
	var entries []*types.TopicHistory
	for _, window := range s.cfg.Windows {
		labels = append(labels, windowLabel(window))
		topics, windowEntries, err := s.detectWindowTopics(ctx, window)
		if err != nil {
			return nil, err
		}
		entries = append(entries, windowEntries...)
		for _, t := range topics {
			mergeTopic(merged, t)
		}
	}
	if err := s.history.Append(ctx, nil, entries); err != nil {
		return nil, fmt.Errorf("append topic history: %w", err)
	}

	out := make([]TrendingTopic, 0, len(merged))
	for _, t := range merged {
		sort.Strings(t.Windows)
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > s.cfg.TopN {
		out = out[:s.cfg.TopN]
	}
	s.metrics.Inc("trending", "report_built")
	return &TrendingResult{
		Topics:      out,
		Windows:     labels,
		GeneratedAt: time.Now(),
	}, nil
}

func mergeTopic(merged map[string]*TrendingTopic, t TrendingTopic) {
	existing, ok := merged[t.Name]
	if !ok {
		cp := t
		cp.Windows = append([]string(nil), t.Windows...)
		cp.SampleIDs = append([]uuid.UUID(nil), t.SampleIDs...)
		merged[t.Name] = &cp
		return
	}
	if total := existing.Mentions + t.Mentions; total > 0 {
		existing.Sentiment = (existing.Sentiment*float64(existing.Mentions) +
			t.Sentiment*float64(t.Mentions)) / float64(total)
	}
	existing.Mentions += t.Mentions
	existing.Engagement += t.Engagement
	if t.Score > existing.Score {
		existing.Score = t.Score
	}
	existing.Direction = mergeDirection(existing.Direction, t.Direction)
	for _, w := range t.Windows {
		if !containsString(existing.Windows, w) {
			existing.Windows = append(existing.Windows, w)
		}
	}
	for _, id := range t.SampleIDs {
		if len(existing.SampleIDs) >= 5 {
			break
		}
		existing.SampleIDs = append(existing.SampleIDs, id)
	}
}

// mergeDirection is commutative: rising dominates, then declining, then
// stable.
func mergeDirection(a, b string) string {
	if a == TrendRising || b == TrendRising {
		return TrendRising
	}
	if a == TrendDeclining || b == TrendDeclining {
		return TrendDeclining
	}
	return TrendStable
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

func (s *trendingService) PruneHistory(ctx context.Context) (int64, error) {
	n, err := s.history.PruneOlderThan(ctx, nil, time.Now().Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("Pruned topic history", "rows", n)
	}
	return n, nil
}

func windowLabel(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		return fmt.Sprintf("%dd", int(d/(24*time.Hour)))
	}
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(d/time.Hour))
	}
	return strings.TrimSuffix(d.String(), "0s")
}
