package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/brightfeed/brightfeed-backend/internal/cache"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
	"github.com/brightfeed/brightfeed-backend/internal/repos"
	"github.com/brightfeed/brightfeed-backend/internal/types"
)

// RecommendationConfig weights the three feed generators. Weights must sum
// to 1.0.
type RecommendationConfig struct {
	ContentWeight       float64
	CollaborativeWeight float64
	TrendingWeight      float64

	// MaxPerCategory caps consecutive same-category items during
	// diversification. Overflow items are appended after the diverse head
	// rather than dropped, so diversification never shrinks the feed.
	MaxPerCategory int
	// DiversityFactor scales the repeat-category score penalty; requests
	// may override it per call.
	DiversityFactor float64
	// CandidateFactor multiplies the requested limit per generator.
	CandidateFactor int
	HistoryLimit    int
	HighRatingMin   int
	TrendingWindow  time.Duration
	SimilarUsers    int
	SimilarityTopK  int
	// FeedCacheTTL bounds feed staleness; zero disables the cache fast
	// path. There is no invalidation, the TTL is the freshness guarantee.
	FeedCacheTTL time.Duration
}

func DefaultRecommendationConfig() RecommendationConfig {
	return RecommendationConfig{
		ContentWeight:       0.5,
		CollaborativeWeight: 0.3,
		TrendingWeight:      0.2,
		MaxPerCategory:      3,
		DiversityFactor:     0.3,
		CandidateFactor:     3,
		HistoryLimit:        200,
		HighRatingMin:       4,
		TrendingWindow:      72 * time.Hour,
		SimilarUsers:        10,
		SimilarityTopK:      20,
		FeedCacheTTL:        10 * time.Minute,
	}
}

func (c RecommendationConfig) Validate() error {
	if c.ContentWeight < 0 || c.CollaborativeWeight < 0 || c.TrendingWeight < 0 {
		return configErrorf("recommendation weights must be non-negative")
	}
	sum := c.ContentWeight + c.CollaborativeWeight + c.TrendingWeight
	if sum < 0.99 || sum > 1.01 {
		return configErrorf("recommendation weights must sum to 1.0, got %f", sum)
	}
	if c.MaxPerCategory <= 0 {
		return configErrorf("recommendation max per category must be positive")
	}
	if c.DiversityFactor < 0 || c.DiversityFactor > 1 {
		return configErrorf("recommendation diversity factor must be in [0,1], got %f", c.DiversityFactor)
	}
	if c.CandidateFactor < 1 {
		return configErrorf("recommendation candidate factor must be at least 1")
	}
	return nil
}

type RecommendOptions struct {
	Limit             int
	ExcludeRead       bool
	ExcludeCategories []string
	ContentTypes      []string
	MinQuality        float64
	// MaxAge drops candidates published earlier than now-MaxAge.
	MaxAge time.Duration
	// DiversityFactor overrides the configured repeat-category penalty
	// when positive.
	DiversityFactor float64
	// Refresh skips the cache read but still writes the rebuilt feed, so a
	// background rebuild leaves a warm entry behind.
	Refresh bool
}

type Recommendation struct {
	ContentID uuid.UUID `json:"content_id"`
	Title     string    `json:"title"`
	Category  string    `json:"category,omitempty"`
	Score     float64   `json:"score"`
	Sources   []string  `json:"sources"`
}

// ProfileSummary characterizes the profile the feed was built from.
// Strength grades how much personalization signal was available, so a feed
// built from a sparse profile is distinguishable from a fully personalized
// one.
type ProfileSummary struct {
	TopCategories   []string `json:"top_categories,omitempty"`
	EngagementScore float64  `json:"engagement_score"`
	HistorySize     int      `json:"history_size"`
	Strength        float64  `json:"profile_strength"`
	ColdStart       bool     `json:"cold_start"`
}

type FeedResult struct {
	UserID          uuid.UUID        `json:"user_id"`
	Recommendations []Recommendation `json:"recommendations"`
	Profile         ProfileSummary   `json:"profile"`
	Fallback        bool             `json:"fallback"`
	Cached          bool             `json:"cached"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

type RecommendationService interface {
	Recommend(ctx context.Context, userID uuid.UUID, opts RecommendOptions) (*FeedResult, error)
	RecordReading(ctx context.Context, event *types.ReadingEvent) error
	RefreshUserProfile(ctx context.Context, userID uuid.UUID) error
	RefreshUserSimilarities(ctx context.Context) (int, error)
	RefreshContentSimilarities(ctx context.Context, limit int) (int, error)
}

type recommendationService struct {
	db         *gorm.DB
	log        *logger.Logger
	cfg        RecommendationConfig
	cache      cache.Cache
	metrics    *metrics.Metrics
	content    repos.ContentRepo
	profiles   repos.UserProfileRepo
	similarity repos.SimilarityRepo
	embedding  EmbeddingService
}

func NewRecommendationService(
	db *gorm.DB,
	baseLog *logger.Logger,
	cfg RecommendationConfig,
	c cache.Cache,
	m *metrics.Metrics,
	content repos.ContentRepo,
	profiles repos.UserProfileRepo,
	similarity repos.SimilarityRepo,
	embedding EmbeddingService,
) (RecommendationService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &recommendationService{
		db:         db,
		log:        baseLog.With("service", "RecommendationService"),
		cfg:        cfg,
		cache:      c,
		metrics:    m,
		content:    content,
		profiles:   profiles,
		similarity: similarity,
		embedding:  embedding,
	}, nil
}

type candidate struct {
	contentID uuid.UUID
	score     float64
}

// Recommend builds a personalized feed. The three generators run in
// parallel; a generator failure degrades that source to empty, and an empty
// merged set falls back to popular recent content. The feed itself never
// errors on provider or matrix problems, only on storage failures.
func (s *recommendationService) Recommend(ctx context.Context, userID uuid.UUID, opts RecommendOptions) (*FeedResult, error) {
	if userID == uuid.Nil {
		return nil, validationErrorf("recommendation requires a user id")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	key := s.feedCacheKey(userID, opts, limit)
	if s.cfg.FeedCacheTTL > 0 && !opts.Refresh {
		if b, cErr := s.cache.Get(ctx, key); cErr == nil {
			var cached FeedResult
			if jErr := json.Unmarshal(b, &cached); jErr == nil {
				cached.Cached = true
				s.metrics.Inc("recommendation", "cache_hit")
				return &cached, nil
			}
		}
		s.metrics.Inc("recommendation", "cache_miss")
	}

	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	history, err := s.profiles.ListReadingHistory(ctx, nil, userID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}

	read := map[uuid.UUID]bool{}
	for _, h := range history {
		read[h.ContentID] = true
	}

	fetch := limit * s.cfg.CandidateFactor
	coldStart := len(history) == 0 && profile.PreferenceEmbedding == nil

	var merged map[uuid.UUID]*Recommendation
	fallback := false
	if coldStart {
		// Nothing to personalize from yet: serve popular recent content,
		// tagged so the provenance is visible to the caller.
		popular, popErr := s.trendingCandidates(ctx, fetch)
		if popErr != nil {
			s.log.Warn("Popular cold-start feed degraded to empty", "user_id", userID, "error", popErr)
			popular = nil
		}
		merged = popularMerge(popular)
		fallback = true
	} else {
		var contentBased, collaborative, trending []candidate
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var genErr error
			contentBased, genErr = s.contentBasedCandidates(gctx, profile, history, fetch)
			if genErr != nil {
				s.log.Warn("Content-based generator degraded", "user_id", userID, "error", genErr)
				s.metrics.Inc("recommendation", "generator_degraded")
			}
			return nil
		})
		g.Go(func() error {
			var genErr error
			collaborative, genErr = s.collaborativeCandidates(gctx, userID, fetch)
			if genErr != nil {
				s.log.Warn("Collaborative generator degraded", "user_id", userID, "error", genErr)
				s.metrics.Inc("recommendation", "generator_degraded")
			}
			return nil
		})
		g.Go(func() error {
			var genErr error
			trending, genErr = s.trendingCandidates(gctx, fetch)
			if genErr != nil {
				s.log.Warn("Trending generator degraded", "error", genErr)
				s.metrics.Inc("recommendation", "generator_degraded")
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		merged = s.mergeCandidates(contentBased, collaborative, trending)
		if len(merged) == 0 {
			fallback = true
			popular, popErr := s.trendingCandidates(ctx, fetch)
			if popErr != nil {
				s.log.Warn("Popular fallback degraded to empty feed", "error", popErr)
				popular = nil
			}
			merged = popularMerge(popular)
		}
	}

	recs, err := s.applyFiltersAndDiversify(ctx, merged, read, opts, limit)
	if err != nil {
		return nil, err
	}

	result := &FeedResult{
		UserID:          userID,
		Recommendations: recs,
		Profile:         s.summarizeProfile(profile, history),
		Fallback:        fallback,
		GeneratedAt:     time.Now(),
	}
	s.metrics.Inc("recommendation", "feed_built")

	if s.cfg.FeedCacheTTL > 0 {
		if b, jErr := json.Marshal(result); jErr == nil {
			if cErr := s.cache.Set(ctx, key, b, s.cfg.FeedCacheTTL); cErr != nil {
				s.log.Warn("Failed to write feed cache", "user_id", userID, "error", cErr)
			}
		}
	}
	return result, nil
}

func (s *recommendationService) feedCacheKey(userID uuid.UUID, opts RecommendOptions, limit int) string {
	ex := strings.Join(opts.ExcludeCategories, ",")
	ct := strings.Join(opts.ContentTypes, ",")
	return "feed:" + hashKey(userID.String(), fmt.Sprint(limit), fmt.Sprint(opts.ExcludeRead), ex, ct,
		fmt.Sprint(opts.MinQuality), fmt.Sprint(opts.MaxAge), fmt.Sprint(opts.DiversityFactor))
}

func (s *recommendationService) ensureProfile(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	profile, err := s.profiles.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}
	return s.profiles.Create(ctx, nil, &types.UserProfile{UserID: userID})
}

// contentBasedCandidates queries the similarity index with the preference
// embedding, deriving one from highly-rated history when the profile has
// none yet. Users without any usable vector degrade to category-interest
// matching instead of contributing nothing.
func (s *recommendationService) contentBasedCandidates(ctx context.Context, profile *types.UserProfile, history []*types.ReadingEvent, limit int) ([]candidate, error) {
	var vec []float32
	if profile.PreferenceEmbedding != nil {
		vec = profile.PreferenceEmbedding.Slice()
	} else {
		derived, err := s.derivePreferenceVector(ctx, history)
		if err != nil {
			return nil, err
		}
		vec = derived
	}
	if len(vec) == 0 {
		return s.categoryCandidates(ctx, profile, history, limit)
	}
	rows, err := s.content.FindSimilarByVector(ctx, nil, pgvector.NewVector(vec), 0.3, limit, nil, repos.ContentFilters{})
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(rows))
	for _, r := range rows {
		out = append(out, candidate{contentID: r.ContentID, score: r.Similarity})
	}
	return out, nil
}

// categoryCandidates is the vector-free fallback: recent items in the
// user's interest categories, scored by normalized category weight.
func (s *recommendationService) categoryCandidates(ctx context.Context, profile *types.UserProfile, history []*types.ReadingEvent, limit int) ([]candidate, error) {
	weights := categoryInterests(profile, history)
	if len(weights) == 0 {
		return nil, nil
	}
	categories := make([]string, 0, len(weights))
	for c := range weights {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if weights[categories[i]] != weights[categories[j]] {
			return weights[categories[i]] > weights[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > 5 {
		categories = categories[:5]
	}
	items, err := s.content.FindRecentByCategories(ctx, nil, categories, time.Now().Add(-30*24*time.Hour), limit)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(items))
	for _, item := range items {
		out = append(out, candidate{contentID: item.ID, score: weights[item.Category]})
	}
	return out, nil
}

// categoryInterests blends explicit preferred categories with read-history
// counts into weights normalized so the strongest interest is 1.0.
func categoryInterests(profile *types.UserProfile, history []*types.ReadingEvent) map[string]float64 {
	raw := map[string]float64{}
	for _, h := range history {
		if h.Category != "" {
			raw[h.Category]++
		}
	}
	// An explicit preference outweighs any single read.
	for _, c := range jsonStrings(profile.PreferredCategories) {
		raw[c] += 3
	}
	max := 0.0
	for _, w := range raw {
		if w > max {
			max = w
		}
	}
	if max == 0 {
		return nil
	}
	for c := range raw {
		raw[c] /= max
	}
	return raw
}

func (s *recommendationService) derivePreferenceVector(ctx context.Context, history []*types.ReadingEvent) ([]float32, error) {
	ids := make([]uuid.UUID, 0, 10)
	for _, h := range history {
		if h.Rating != nil && *h.Rating >= s.cfg.HighRatingMin {
			ids = append(ids, h.ContentID)
		}
		if len(ids) >= 10 {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	items, err := s.content.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	var vecs [][]float32
	for _, item := range items {
		if item.ContentEmbedding != nil {
			vecs = append(vecs, item.ContentEmbedding.Slice())
		}
	}
	return averageVectors(vecs, nil), nil
}

// collaborativeCandidates walks the precomputed user similarity matrix and
// collects items highly rated by the nearest neighbors, weighted by the
// neighbor's similarity.
func (s *recommendationService) collaborativeCandidates(ctx context.Context, userID uuid.UUID, limit int) ([]candidate, error) {
	neighbors, err := s.similarity.TopSimilarUsers(ctx, nil, userID, s.cfg.SimilarUsers)
	if err != nil {
		return nil, err
	}
	scores := map[uuid.UUID]float64{}
	for _, n := range neighbors {
		rated, err := s.profiles.ListHighlyRated(ctx, nil, n.OtherID, s.cfg.HighRatingMin, 20)
		if err != nil {
			return nil, err
		}
		for _, ev := range rated {
			rating := float64(s.cfg.HighRatingMin)
			if ev.Rating != nil {
				rating = float64(*ev.Rating)
			}
			scores[ev.ContentID] += n.Similarity * rating / 5.0
		}
	}
	out := make([]candidate, 0, len(scores))
	maxScore := 0.0
	for _, sc := range scores {
		if sc > maxScore {
			maxScore = sc
		}
	}
	for id, sc := range scores {
		if maxScore > 0 {
			sc /= maxScore
		}
		out = append(out, candidate{contentID: id, score: sc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].score > out[j].score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *recommendationService) trendingCandidates(ctx context.Context, limit int) ([]candidate, error) {
	items, err := s.content.FindPopularRecent(ctx, nil, time.Now().Add(-s.cfg.TrendingWindow), limit)
	if err != nil {
		return nil, err
	}
	maxEngagement := 0.0
	for _, item := range items {
		if e := item.Engagement(); e > maxEngagement {
			maxEngagement = e
		}
	}
	out := make([]candidate, 0, len(items))
	for _, item := range items {
		score := 0.0
		if maxEngagement > 0 {
			score = item.Engagement() / maxEngagement
		}
		out = append(out, candidate{contentID: item.ID, score: score})
	}
	return out, nil
}

func (s *recommendationService) mergeCandidates(contentBased, collaborative, trending []candidate) map[uuid.UUID]*Recommendation {
	merged := map[uuid.UUID]*Recommendation{}
	add := func(cands []candidate, weight float64, source string) {
		for _, c := range cands {
			r, ok := merged[c.contentID]
			if !ok {
				r = &Recommendation{ContentID: c.contentID}
				merged[c.contentID] = r
			}
			r.Score += c.score * weight
			r.Sources = append(r.Sources, source)
		}
	}
	add(contentBased, s.cfg.ContentWeight, "content")
	add(collaborative, s.cfg.CollaborativeWeight, "collaborative")
	add(trending, s.cfg.TrendingWeight, "trending")
	return merged
}

// popularMerge tags popularity-served items so a fallback or cold-start
// feed is distinguishable from a personalized one.
func popularMerge(cands []candidate) map[uuid.UUID]*Recommendation {
	merged := make(map[uuid.UUID]*Recommendation, len(cands))
	for _, c := range cands {
		merged[c.contentID] = &Recommendation{ContentID: c.contentID, Score: c.score, Sources: []string{"popular_recent"}}
	}
	return merged
}

// applyFiltersAndDiversify loads the candidate items, drops anything the
// hard filters exclude, sorts by blended score and caps same-category runs.
func (s *recommendationService) applyFiltersAndDiversify(ctx context.Context, merged map[uuid.UUID]*Recommendation, read map[uuid.UUID]bool, opts RecommendOptions, limit int) ([]Recommendation, error) {
	ids := make([]uuid.UUID, 0, len(merged))
	for id := range merged {
		ids = append(ids, id)
	}
	items, err := s.content.GetByIDs(ctx, nil, ids)
	if err != nil {
		return nil, err
	}
	excluded := map[string]bool{}
	for _, c := range opts.ExcludeCategories {
		excluded[c] = true
	}
	allowedTypes := map[string]bool{}
	for _, t := range opts.ContentTypes {
		allowedTypes[t] = true
	}
	var publishedAfter time.Time
	if opts.MaxAge > 0 {
		publishedAfter = time.Now().Add(-opts.MaxAge)
	}

	filtered := make([]Recommendation, 0, len(items))
	for _, item := range items {
		if opts.ExcludeRead && read[item.ID] {
			continue
		}
		if item.Status != types.ContentStatusPublished || item.DuplicateOf != nil {
			continue
		}
		if excluded[item.Category] {
			continue
		}
		if len(allowedTypes) > 0 && !allowedTypes[item.ContentType] {
			continue
		}
		if !publishedAfter.IsZero() && item.PublishedAt.Before(publishedAfter) {
			continue
		}
		if opts.MinQuality > 0 && (item.QualityScore == nil || *item.QualityScore < opts.MinQuality) {
			continue
		}
		r := merged[item.ID]
		r.Title = item.Title
		r.Category = item.Category
		filtered = append(filtered, *r)
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].ContentID.String() < filtered[j].ContentID.String()
	})
	factor := opts.DiversityFactor
	if factor <= 0 {
		factor = s.cfg.DiversityFactor
	}
	return diversify(filtered, s.cfg.MaxPerCategory, limit, factor), nil
}

// diversify rescores repeat categories by (1 - diversityFactor*penalty),
// re-sorts, then caps items per category in the head of the feed. Items
// pushed out by the cap are appended after the diverse selection in score
// order, so the result is never smaller than the plain top-N cut.
func diversify(recs []Recommendation, maxPerCategory, limit int, diversityFactor float64) []Recommendation {
	if len(recs) == 0 {
		return []Recommendation{}
	}
	if diversityFactor > 0 {
		rescored := make([]Recommendation, len(recs))
		copy(rescored, recs)
		seen := map[string]int{}
		for i := range rescored {
			repeats := seen[rescored[i].Category]
			if repeats > 0 {
				penalty := clamp(0.2*float64(repeats), 0, 1)
				rescored[i].Score *= 1 - diversityFactor*penalty
			}
			seen[rescored[i].Category]++
		}
		sort.SliceStable(rescored, func(i, j int) bool {
			return rescored[i].Score > rescored[j].Score
		})
		recs = rescored
	}
	perCategory := map[string]int{}
	head := make([]Recommendation, 0, limit)
	var overflow []Recommendation
	for _, r := range recs {
		if len(head) >= limit {
			break
		}
		if perCategory[r.Category] >= maxPerCategory {
			overflow = append(overflow, r)
			continue
		}
		perCategory[r.Category]++
		head = append(head, r)
	}
	for _, r := range overflow {
		if len(head) >= limit {
			break
		}
		head = append(head, r)
	}
	return head
}

func (s *recommendationService) summarizeProfile(profile *types.UserProfile, history []*types.ReadingEvent) ProfileSummary {
	counts := map[string]int{}
	for _, h := range history {
		if h.Category != "" {
			counts[h.Category]++
		}
	}
	categories := make([]string, 0, len(counts))
	for c := range counts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool {
		if counts[categories[i]] != counts[categories[j]] {
			return counts[categories[i]] > counts[categories[j]]
		}
		return categories[i] < categories[j]
	})
	if len(categories) > 5 {
		categories = categories[:5]
	}
	return ProfileSummary{
		TopCategories:   categories,
		EngagementScore: profile.EngagementScore,
		HistorySize:     len(history),
		Strength:        profileStrength(len(history), len(counts), profile.PreferenceEmbedding != nil),
		ColdStart:       len(history) == 0 && profile.PreferenceEmbedding == nil,
	}
}

// profileStrength maps history depth, category spread and embedding
// presence to [0,1]. Fifty reads across five categories with a preference
// embedding counts as a fully characterized profile.
func profileStrength(historySize, categorySpread int, hasEmbedding bool) float64 {
	strength := 0.6*clamp(float64(historySize)/50, 0, 1) +
		0.25*clamp(float64(categorySpread)/5, 0, 1)
	if hasEmbedding {
		strength += 0.15
	}
	return clamp(strength, 0, 1)
}

// RecordReading appends a reading event and touches the profile's activity
// timestamp. Behavior metrics are recomputed by the scheduled refresh, not
// on every event.
func (s *recommendationService) RecordReading(ctx context.Context, event *types.ReadingEvent) error {
	if event == nil || event.UserID == uuid.Nil || event.ContentID == uuid.Nil {
		return validationErrorf("reading event requires user and content ids")
	}
	if event.Rating != nil && (*event.Rating < 1 || *event.Rating > 5) {
		return validationErrorf("rating must be in [1,5], got %d", *event.Rating)
	}
	profile, err := s.ensureProfile(ctx, event.UserID)
	if err != nil {
		return err
	}
	if err := s.profiles.RecordReadingEvent(ctx, nil, event); err != nil {
		return err
	}
	now := time.Now()
	if err := s.profiles.UpdateFields(ctx, nil, profile.ID, map[string]interface{}{
		"last_active_at": now,
	}); err != nil {
		return err
	}
	if err := s.content.IncrementCounter(ctx, nil, event.ContentID, "view_count"); err != nil {
		s.log.Warn("Failed to bump view count", "content_id", event.ContentID, "error", err)
	}
	s.metrics.Inc("recommendation", "reading_recorded")
	return nil
}

// RefreshUserProfile recomputes behavior metrics and the preference
// embedding from the full reading history.
func (s *recommendationService) RefreshUserProfile(ctx context.Context, userID uuid.UUID) error {
	profile, err := s.ensureProfile(ctx, userID)
	if err != nil {
		return err
	}
	history, err := s.profiles.ListReadingHistory(ctx, nil, userID, s.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return nil
	}

	totalRead := 0
	readCount := 0
	hourCounts := map[int]int{}
	categoryCounts := map[string]int{}
	rated := 0
	ratingSum := 0
	for _, h := range history {
		if h.ReadTimeSeconds != nil {
			totalRead += *h.ReadTimeSeconds
			readCount++
		}
		if h.Rating != nil {
			rated++
			ratingSum += *h.Rating
		}
		hourCounts[h.CreatedAt.Hour()]++
		if h.Category != "" {
			categoryCounts[h.Category]++
		}
	}

	updates := map[string]interface{}{}
	if readCount > 0 {
		updates["avg_read_time_seconds"] = float64(totalRead) / float64(readCount)
	}
	engagement := float64(len(history))
	if rated > 0 {
		engagement *= float64(ratingSum) / float64(rated) / 5.0
	}
	updates["engagement_score"] = clamp(engagement/float64(s.cfg.HistoryLimit), 0, 1)

	hours := make([]int, 0, len(hourCounts))
	for h, n := range hourCounts {
		if n >= 2 {
			hours = append(hours, h)
		}
	}
	sort.Ints(hours)
	if b, mErr := json.Marshal(hours); mErr == nil {
		updates["active_hours"] = b
	}

	categories := make([]string, 0, len(categoryCounts))
	for c := range categoryCounts {
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categoryCounts[categories[i]] > categoryCounts[categories[j]] })
	if len(categories) > 5 {
		categories = categories[:5]
	}
	if b, mErr := json.Marshal(categories); mErr == nil {
		updates["preferred_categories"] = b
	}

	if vec, dErr := s.derivePreferenceVector(ctx, history); dErr == nil && len(vec) > 0 {
		v := pgvector.NewVector(vec)
		updates["preference_embedding"] = &v
	}

	if err := s.profiles.UpdateFields(ctx, nil, profile.ID, updates); err != nil {
		return err
	}
	s.metrics.Inc("recommendation", "profile_refreshed")
	return nil
}

// RefreshUserSimilarities recomputes the user-user matrix from preference
// embeddings. Returns the number of users refreshed.
func (s *recommendationService) RefreshUserSimilarities(ctx context.Context) (int, error) {
	profiles, err := s.profiles.ListAll(ctx, nil, 5000)
	if err != nil {
		return 0, err
	}
	type userVec struct {
		userID uuid.UUID
		vec    []float32
	}
	var vecs []userVec
	for _, p := range profiles {
		if p.PreferenceEmbedding == nil {
			continue
		}
		vecs = append(vecs, userVec{userID: p.UserID, vec: p.PreferenceEmbedding.Slice()})
	}

	refreshed := 0
	for _, u := range vecs {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		var rows []*types.UserSimilarity
		for _, other := range vecs {
			if other.userID == u.userID {
				continue
			}
			sim := cosineSimilarity(u.vec, other.vec)
			if sim <= 0 {
				continue
			}
			rows = append(rows, &types.UserSimilarity{
				UserID:     u.userID,
				OtherID:    other.userID,
				Similarity: sim,
			})
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Similarity > rows[j].Similarity })
		if len(rows) > s.cfg.SimilarityTopK {
			rows = rows[:s.cfg.SimilarityTopK]
		}
		if err := s.similarity.ReplaceUserSimilarities(ctx, nil, u.userID, rows); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	s.metrics.Inc("recommendation", "user_matrix_refreshed")
	return refreshed, nil
}

// RefreshContentSimilarities recomputes top-K neighbors for recently
// embedded items using the vector index.
func (s *recommendationService) RefreshContentSimilarities(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	items, err := s.content.FindEmbedded(ctx, nil, limit)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, item := range items {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}
		neighbors, err := s.content.FindSimilarByVector(ctx, nil, *item.ContentEmbedding, 0.3, s.cfg.SimilarityTopK, []uuid.UUID{item.ID}, repos.ContentFilters{})
		if err != nil {
			return refreshed, err
		}
		rows := make([]*types.ContentSimilarity, 0, len(neighbors))
		for _, n := range neighbors {
			rows = append(rows, &types.ContentSimilarity{
				ContentID:  item.ID,
				OtherID:    n.ContentID,
				Similarity: n.Similarity,
			})
		}
		if err := s.similarity.ReplaceContentSimilarities(ctx, nil, item.ID, rows); err != nil {
			return refreshed, err
		}
		refreshed++
	}
	s.metrics.Inc("recommendation", "content_matrix_refreshed")
	return refreshed, nil
}
