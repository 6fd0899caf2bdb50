package orchestrator

import "testing"

func TestContentHash_NormalizesWhitespaceAndCase(t *testing.T) {
	a := contentHash("Breaking News: markets rally")
	b := contentHash("  breaking   news:\tMARKETS\nrally ")
	if a != b {
		t.Fatal("formatting differences must hash to the same value")
	}
	if a == contentHash("breaking news: markets fall") {
		t.Fatal("different bodies must not collide")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %d chars", len(a))
	}
}

func TestContentHash_Deterministic(t *testing.T) {
	body := "the same article body"
	if contentHash(body) != contentHash(body) {
		t.Fatal("hash must be deterministic")
	}
}
