package services

import (
	"math"
	"testing"
)

func TestTokenize_DropsStopwordsAndShortTokens(t *testing.T) {
	tokens := tokenize("The quick brown fox is on a hill")
	for _, tok := range tokens {
		if stopwords[tok] {
			t.Fatalf("stopword %q survived tokenization", tok)
		}
		if len(tok) < 2 {
			t.Fatalf("short token %q survived tokenization", tok)
		}
	}
	want := []string{"quick", "brown", "fox", "hill"}
	if len(tokens) != len(want) {
		t.Fatalf("got tokens %v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("got tokens %v, want %v", tokens, want)
		}
	}
}

func TestTopKeywords_DeterministicOrdering(t *testing.T) {
	text := "solar panels solar energy wind energy solar"
	a := topKeywords(text, 3)
	b := topKeywords(text, 3)
	if len(a) != 3 {
		t.Fatalf("expected 3 keywords, got %v", a)
	}
	if a[0] != "solar" {
		t.Fatalf("most frequent keyword should rank first, got %v", a)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("keyword ordering not deterministic: %v vs %v", a, b)
		}
	}
	// energy(2) beats the singletons; ties break alphabetically.
	if a[1] != "energy" || a[2] != "panels" {
		t.Fatalf("unexpected keyword order: %v", a)
	}
}

func TestNormalizeTopic(t *testing.T) {
	cases := map[string]string{
		"Climate Change":     "climate change",
		"  AI,  Regulation ": "ai regulation",
		"U.S. Economy":       "u s economy",
	}
	for in, want := range cases {
		if got := normalizeTopic(in); got != want {
			t.Fatalf("normalizeTopic(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First sentence. Second one! Third? ")
	if len(got) != 3 {
		t.Fatalf("expected 3 sentences, got %v", got)
	}
	if got := splitSentences(""); len(got) != 0 {
		t.Fatalf("empty input should yield no sentences, got %v", got)
	}
}

func TestHashKey_SeparatorPreventsCollisions(t *testing.T) {
	if hashKey("ab", "c") == hashKey("a", "bc") {
		t.Fatal("hashKey must separate parts")
	}
	if hashKey("x", "y") != hashKey("x", "y") {
		t.Fatal("hashKey must be deterministic")
	}
}

func TestTruncateText_BacksUpToWordBoundary(t *testing.T) {
	text := "alpha beta gamma delta epsilon"
	got := truncateText(text, 13)
	if len(got) > 13 {
		t.Fatalf("truncated text too long: %q", got)
	}
	if got != "alpha beta" {
		t.Fatalf("expected cut at word boundary, got %q", got)
	}
	if truncateText("short", 100) != "short" {
		t.Fatal("text under the limit must pass through unchanged")
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	if got := cosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Fatalf("self-similarity = %f, want 1", got)
	}
	if got := cosineSimilarity(a, []float32{0, 1, 0}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal similarity = %f, want 0", got)
	}
	if got := cosineSimilarity(a, []float32{0, 1}); got != 0 {
		t.Fatalf("mismatched dims should score 0, got %f", got)
	}
	if got := cosineSimilarity(nil, nil); got != 0 {
		t.Fatalf("empty vectors should score 0, got %f", got)
	}
}

func TestAverageVectors(t *testing.T) {
	avg := averageVectors([][]float32{{0, 2}, {2, 0}}, nil)
	if avg[0] != 1 || avg[1] != 1 {
		t.Fatalf("unweighted average = %v, want [1 1]", avg)
	}
	weighted := averageVectors([][]float32{{0, 0}, {4, 4}}, []float64{1, 3})
	if weighted[0] != 3 || weighted[1] != 3 {
		t.Fatalf("weighted average = %v, want [3 3]", weighted)
	}
	if averageVectors(nil, nil) != nil {
		t.Fatal("no vectors should yield nil")
	}
}

func TestJaccard(t *testing.T) {
	if got := jaccard([]string{"a", "b"}, []string{"b", "c"}); math.Abs(got-1.0/3.0) > 1e-9 {
		t.Fatalf("jaccard = %f, want 1/3", got)
	}
	if got := jaccard(nil, nil); got != 0 {
		t.Fatalf("empty sets should score 0, got %f", got)
	}
	if got := jaccard([]string{"a"}, []string{"a", "a"}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("duplicate elements must not inflate the union, got %f", got)
	}
}

func TestCountSyllables(t *testing.T) {
	cases := map[string]int{
		"cat":      1,
		"window":   2,
		"syllable": 2,
		"":         0,
		"rhythm":   1,
	}
	for word, want := range cases {
		if got := countSyllables(word); got != want {
			t.Fatalf("countSyllables(%q) = %d, want %d", word, got, want)
		}
	}
}

func TestJSONStrings(t *testing.T) {
	if got := jsonStrings([]byte(`["a","b"]`)); len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected decode: %v", got)
	}
	if jsonStrings(nil) != nil {
		t.Fatal("nil input should yield nil")
	}
	if jsonStrings([]byte(`{"not":"an array"}`)) != nil {
		t.Fatal("malformed input should yield nil, not error")
	}
}
