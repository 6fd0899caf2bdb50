package services

import (
	"strings"
	"testing"
)

const analysisFixture = `Researchers announced a breakthrough in battery storage this week. ` +
	`The new design stores twice the energy of existing cells at a similar cost. ` +
	`Early tests show strong results across hundreds of charge cycles. ` +
	`According to the study, production could scale within five years. ` +
	`Critics warn that manufacturing remains a risk at industrial volumes.`

func newTestAnalysisService() *analysisService {
	return &analysisService{cfg: DefaultAnalysisConfig()}
}

func TestExtractiveSummary_PicksFromDocumentInOrder(t *testing.T) {
	s := newTestAnalysisService()
	res := s.extractiveSummary("Battery breakthrough", analysisFixture)

	if res.Method != "extractive" {
		t.Fatalf("method = %q, want extractive", res.Method)
	}
	if res.Short == "" || res.Medium == "" || res.Long == "" {
		t.Fatal("all summary lengths must be populated for non-empty input")
	}
	if len(splitSentences(res.Short)) != 1 {
		t.Fatalf("short summary should be one sentence: %q", res.Short)
	}
	if len(res.Medium) > len(res.Long) {
		t.Fatal("medium summary must not exceed the long one")
	}
	// Every extracted sentence must come from the source text.
	for _, sentence := range splitSentences(res.Medium) {
		if !strings.Contains(analysisFixture, sentence) {
			t.Fatalf("summary sentence not found in source: %q", sentence)
		}
	}
	if len(res.KeyPoints) == 0 || len(res.KeyPoints) > 5 {
		t.Fatalf("expected 1-5 key points, got %v", res.KeyPoints)
	}
}

func TestExtractiveSummary_EmptyBody(t *testing.T) {
	s := newTestAnalysisService()
	res := s.extractiveSummary("title", "")
	if res.Short != "" || res.Medium != "" || res.Long != "" {
		t.Fatalf("empty body should yield empty summaries: %+v", res)
	}
}

func TestSentiment_PolarityBounds(t *testing.T) {
	s := newTestAnalysisService()

	positive := s.sentiment("A great success and remarkable breakthrough. Excellent progress and strong growth.", AnalysisDepthStandard)
	if positive.Polarity <= 0 {
		t.Fatalf("positive text scored %f", positive.Polarity)
	}
	negative := s.sentiment("A terrible disaster. The crisis caused damage, fear and collapse.", AnalysisDepthStandard)
	if negative.Polarity >= 0 {
		t.Fatalf("negative text scored %f", negative.Polarity)
	}
	for _, r := range []*SentimentResult{positive, negative} {
		if r.Polarity < -1 || r.Polarity > 1 {
			t.Fatalf("polarity out of range: %f", r.Polarity)
		}
		if r.Subjectivity < 0 || r.Subjectivity > 1 {
			t.Fatalf("subjectivity out of range: %f", r.Subjectivity)
		}
	}

	neutral := s.sentiment("The committee will meet on Tuesday to review the agenda.", AnalysisDepthBasic)
	if neutral.Polarity != 0 {
		t.Fatalf("text without polarity words scored %f", neutral.Polarity)
	}
}

func TestSentiment_DepthControlsEmotions(t *testing.T) {
	s := newTestAnalysisService()
	text := "Fans were thrilled and excited, though some expressed fear about the sudden change."

	if got := s.sentiment(text, AnalysisDepthStandard); got.Emotions != nil {
		t.Fatal("standard depth must not emit the emotion vector")
	}
	got := s.sentiment(text, AnalysisDepthComprehensive)
	if got.Emotions == nil {
		t.Fatal("comprehensive depth must emit the emotion vector")
	}
	if len(got.Emotions) != len(emotionCategories) {
		t.Fatalf("expected %d emotion dimensions, got %d", len(emotionCategories), len(got.Emotions))
	}
	for name, v := range got.Emotions {
		if v < 0 || v > 1 {
			t.Fatalf("emotion %q out of range: %f", name, v)
		}
	}
	if got.Emotions["joy"] == 0 {
		t.Fatal("thrilled/excited text should register joy")
	}
}

func TestQuality_OverallWithinBounds(t *testing.T) {
	s := newTestAnalysisService()
	q := s.quality(analysisFixture)
	if q.Overall < 0 || q.Overall > 100 {
		t.Fatalf("overall quality out of range: %f", q.Overall)
	}
	for name, score := range map[string]float64{
		"readability": q.Readability.Score,
		"grammar":     q.Grammar.Score,
		"factuality":  q.Factuality.Score,
		"bias":        q.Bias.Score,
		"coherence":   q.Coherence.Score,
	} {
		if score < 0 || score > 100 {
			t.Fatalf("%s score out of range: %f", name, score)
		}
	}
}

func TestAnalysisConfig_Validate(t *testing.T) {
	if err := DefaultAnalysisConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	bad := DefaultAnalysisConfig()
	bad.FactualityWeight = 0.9
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error when weights exceed 1.0")
	}
	noSentences := DefaultAnalysisConfig()
	noSentences.SummarySentences = 0
	if err := noSentences.Validate(); err == nil {
		t.Fatal("expected error for zero summary sentences")
	}
}
