package services

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/brightfeed/brightfeed-backend/internal/types"
)

func makeRecs(categories ...string) []Recommendation {
	recs := make([]Recommendation, len(categories))
	for i, c := range categories {
		recs[i] = Recommendation{
			ContentID: uuid.New(),
			Category:  c,
			Score:     1.0 - float64(i)*0.01,
		}
	}
	return recs
}

func TestDiversify_CapsCategoryRuns(t *testing.T) {
	recs := makeRecs("tech", "tech", "tech", "tech", "tech", "science")
	got := diversify(recs, 3, 4, 0)
	if len(got) != 4 {
		t.Fatalf("expected 4 items, got %d", len(got))
	}
	techInHead := 0
	for _, r := range got[:3] {
		if r.Category == "tech" {
			techInHead++
		}
	}
	if techInHead > 3 {
		t.Fatalf("category cap exceeded: %d tech items lead the feed", techInHead)
	}
	// The capped slot should go to the next category, not a fourth tech item.
	if got[3].Category != "science" {
		t.Fatalf("expected science in slot 3, got %q", got[3].Category)
	}
}

func TestDiversify_NeverShrinksBelowTopN(t *testing.T) {
	// All one category: the cap alone would cut the feed to maxPerCategory,
	// but overflow items must backfill up to the limit.
	recs := makeRecs("tech", "tech", "tech", "tech", "tech", "tech")
	got := diversify(recs, 2, 5, 0)
	if len(got) != 5 {
		t.Fatalf("diversification shrank the feed: got %d items, want 5", len(got))
	}
}

func TestDiversify_PreservesScoreOrderWithinHead(t *testing.T) {
	recs := makeRecs("a", "b", "c", "d")
	got := diversify(recs, 3, 4, 0)
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("feed not sorted by score at position %d", i)
		}
	}
}

func TestDiversify_Empty(t *testing.T) {
	if got := diversify(nil, 3, 10, 0); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestDiversify_PenaltyDemotesRepeatedCategory(t *testing.T) {
	// Four tech items barely outscore the science item. With no penalty the
	// science item lands last; with one it climbs past the later repeats.
	recs := []Recommendation{
		{ContentID: uuid.New(), Category: "tech", Score: 0.90},
		{ContentID: uuid.New(), Category: "tech", Score: 0.89},
		{ContentID: uuid.New(), Category: "tech", Score: 0.88},
		{ContentID: uuid.New(), Category: "tech", Score: 0.87},
		{ContentID: uuid.New(), Category: "science", Score: 0.85},
	}

	flat := diversify(recs, 10, 5, 0)
	if flat[4].Category != "science" {
		t.Fatalf("without penalty science should rank last, got %q", flat[4].Category)
	}

	spread := diversify(recs, 10, 5, 0.8)
	if len(spread) != 5 {
		t.Fatalf("penalty must not shrink the feed: got %d items", len(spread))
	}
	sciencePos := -1
	for i, r := range spread {
		if r.Category == "science" {
			sciencePos = i
		}
	}
	if sciencePos < 0 || sciencePos >= 4 {
		t.Fatalf("penalty should promote science above later tech repeats, got position %d", sciencePos)
	}
	if spread[0].Category != "tech" {
		t.Fatalf("top item pays no penalty and must stay first, got %q", spread[0].Category)
	}
}

func TestCategoryInterests(t *testing.T) {
	profile := &types.UserProfile{
		PreferredCategories: datatypes.JSON([]byte(`["science"]`)),
	}
	history := []*types.ReadingEvent{
		{Category: "tech"},
		{Category: "tech"},
		{Category: "science"},
		{Category: ""},
	}

	weights := categoryInterests(profile, history)
	if len(weights) != 2 {
		t.Fatalf("expected 2 weighted categories, got %v", weights)
	}
	// science: 1 read + explicit preference boost; tech: 2 reads.
	if weights["science"] != 1.0 {
		t.Fatalf("top category must normalize to 1.0, got %f", weights["science"])
	}
	if weights["tech"] >= weights["science"] {
		t.Fatalf("explicit preference must outweigh read count: tech=%f science=%f",
			weights["tech"], weights["science"])
	}

	if got := categoryInterests(&types.UserProfile{}, nil); got != nil {
		t.Fatalf("no signal must yield nil, got %v", got)
	}
}

func TestPopularMerge_TagsProvenance(t *testing.T) {
	merged := popularMerge([]candidate{
		{contentID: uuid.New(), score: 0.8},
		{contentID: uuid.New(), score: 0.6},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(merged))
	}
	for _, rec := range merged {
		if len(rec.Sources) != 1 || rec.Sources[0] != "popular_recent" {
			t.Fatalf("fallback items must carry popular_recent provenance, got %v", rec.Sources)
		}
	}
}

func TestProfileStrength(t *testing.T) {
	if got := profileStrength(0, 0, false); got != 0 {
		t.Fatalf("empty profile must score 0, got %f", got)
	}
	sparse := profileStrength(3, 1, false)
	rich := profileStrength(40, 4, false)
	if sparse >= rich {
		t.Fatalf("strength must grow with history: sparse=%f rich=%f", sparse, rich)
	}
	if withVec := profileStrength(40, 4, true); withVec <= rich {
		t.Fatal("preference embedding must add strength")
	}
	if got := profileStrength(1000, 50, true); got != 1.0 {
		t.Fatalf("strength must cap at 1.0, got %f", got)
	}
}

func TestRecommendationConfig_Validate(t *testing.T) {
	if err := DefaultRecommendationConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	bad := DefaultRecommendationConfig()
	bad.TrendingWeight = 0.5
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error when weights exceed 1.0")
	}

	noCap := DefaultRecommendationConfig()
	noCap.MaxPerCategory = 0
	if err := noCap.Validate(); err == nil {
		t.Fatal("expected error for zero max-per-category")
	}
}

func TestMergeCandidates_BlendsSourceWeights(t *testing.T) {
	s := &recommendationService{cfg: DefaultRecommendationConfig()}
	shared := uuid.New()
	only := uuid.New()

	merged := s.mergeCandidates(
		[]candidate{{contentID: shared, score: 1.0}, {contentID: only, score: 1.0}},
		[]candidate{{contentID: shared, score: 1.0}},
		nil,
	)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged candidates, got %d", len(merged))
	}
	sharedRec, onlyRec := merged[shared], merged[only]
	if sharedRec.Score <= onlyRec.Score {
		t.Fatalf("candidate from two sources must outrank one-source candidate: %f vs %f",
			sharedRec.Score, onlyRec.Score)
	}
	if len(sharedRec.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %v", sharedRec.Sources)
	}
	want := DefaultRecommendationConfig().ContentWeight + DefaultRecommendationConfig().CollaborativeWeight
	if diff := sharedRec.Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("blended score = %f, want %f", sharedRec.Score, want)
	}
}

func TestFeedCacheKey(t *testing.T) {
	s := &recommendationService{cfg: DefaultRecommendationConfig()}
	userID := uuid.New()
	opts := RecommendOptions{ExcludeRead: true}

	a := s.feedCacheKey(userID, opts, 20)
	if a != s.feedCacheKey(userID, opts, 20) {
		t.Fatal("key must be stable for identical inputs")
	}
	if a[:5] != "feed:" {
		t.Fatalf("key %q missing feed: prefix", a)
	}
	if a == s.feedCacheKey(uuid.New(), opts, 20) {
		t.Fatal("key must vary by user")
	}
	if a == s.feedCacheKey(userID, opts, 10) {
		t.Fatal("key must vary by limit")
	}
	if a == s.feedCacheKey(userID, RecommendOptions{}, 20) {
		t.Fatal("key must vary by options")
	}
	// Refresh changes read behavior, not identity.
	if a != s.feedCacheKey(userID, RecommendOptions{ExcludeRead: true, Refresh: true}, 20) {
		t.Fatal("refresh must not change the key")
	}
}
