package services

import (
	"context"
	"strings"
	"testing"

	"github.com/brightfeed/brightfeed-backend/internal/cache"
	"github.com/brightfeed/brightfeed-backend/internal/clients/openai"
	"github.com/brightfeed/brightfeed-backend/internal/logger"
	"github.com/brightfeed/brightfeed-backend/internal/metrics"
)

func TestEmbeddingCacheKey_StableUnderCleaning(t *testing.T) {
	s := &embeddingService{}
	a := s.cacheKey(cleanText("Breaking  news:\tmarkets rally"), "text-embedding-3-small")
	b := s.cacheKey(cleanText("Breaking news: markets rally"), "text-embedding-3-small")
	if a != b {
		t.Fatal("whitespace variants must share a cache key")
	}
	if !strings.HasPrefix(a, "embed:") {
		t.Fatalf("cache key missing namespace prefix: %q", a)
	}
}

func TestEmbeddingCacheKey_VariesByModel(t *testing.T) {
	s := &embeddingService{}
	text := cleanText("same input")
	if s.cacheKey(text, "model-a") == s.cacheKey(text, "model-b") {
		t.Fatal("different models must not share cached vectors")
	}
}

func TestCleanText(t *testing.T) {
	got := cleanText("  hello\x00\x01 \n world\t ")
	if got != "hello world" {
		t.Fatalf("cleanText = %q, want %q", got, "hello world")
	}
	if cleanText("") != "" {
		t.Fatal("empty input must stay empty")
	}
}

// stubEmbedClient returns a fixed vector and token count for every input.
type stubEmbedClient struct {
	tokens int
	calls  int
}

func (c *stubEmbedClient) Embed(_ context.Context, inputs []string) ([][]float32, int, error) {
	c.calls++
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, c.tokens, nil
}

func (c *stubEmbedClient) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	return nil, nil
}

func (c *stubEmbedClient) GenerateText(context.Context, string, string) (string, error) {
	return "", nil
}

func (c *stubEmbedClient) Name() string       { return "stub" }
func (c *stubEmbedClient) EmbedModel() string { return "stub-embed" }
func (c *stubEmbedClient) MaxInputChars() int { return 1000 }

func TestEmbed_ReportsProviderTokenCount(t *testing.T) {
	client := &stubEmbedClient{tokens: 7}
	svc, err := NewEmbeddingService(
		nil, logger.NewNop(), DefaultEmbeddingConfig(),
		cache.NewMemory(), metrics.New(), nil,
		[]openai.Client{client},
	)
	if err != nil {
		t.Fatalf("NewEmbeddingService: %v", err)
	}

	res, err := svc.Embed(context.Background(), "markets rally on rate cut")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if res.TokenCount != 7 {
		t.Fatalf("TokenCount = %d, want 7", res.TokenCount)
	}
	if res.Cached {
		t.Fatal("first call must not be served from cache")
	}

	again, err := svc.Embed(context.Background(), "markets rally on rate cut")
	if err != nil {
		t.Fatalf("Embed (cached): %v", err)
	}
	if !again.Cached {
		t.Fatal("second call must hit the cache")
	}
	if again.TokenCount != 7 {
		t.Fatalf("cached TokenCount = %d, want 7", again.TokenCount)
	}
	if client.calls != 1 {
		t.Fatalf("provider called %d times, want 1", client.calls)
	}
}

func TestEmbeddingConfig_Validate(t *testing.T) {
	if err := DefaultEmbeddingConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	bad := DefaultEmbeddingConfig()
	bad.BatchSize = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for zero batch size")
	}
	threshold := DefaultEmbeddingConfig()
	threshold.DefaultThreshold = 1.5
	if err := threshold.Validate(); err == nil {
		t.Fatal("expected error for out-of-range threshold")
	}
}
