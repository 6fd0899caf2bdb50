package worker

import (
	"testing"
	"time"

	"github.com/brightfeed/brightfeed-backend/internal/types"
)

func TestPoolConfigWithDefaults(t *testing.T) {
	cfg := PoolConfig{}.withDefaults()
	if cfg.Concurrency < 1 {
		t.Fatalf("concurrency must default to at least 1, got %d", cfg.Concurrency)
	}
	if cfg.MaxAttempts < 1 {
		t.Fatalf("max attempts must default to at least 1, got %d", cfg.MaxAttempts)
	}
	if cfg.RetryDelay <= 0 || cfg.StaleRunning <= 0 || cfg.PollInterval <= 0 {
		t.Fatalf("durations must default to positive values: %+v", cfg)
	}
}

func TestPoolConfigWithDefaults_KeepsExplicitValues(t *testing.T) {
	in := PoolConfig{
		Concurrency:  7,
		MaxAttempts:  2,
		RetryDelay:   5 * time.Second,
		StaleRunning: time.Hour,
		PollInterval: 250 * time.Millisecond,
	}
	if got := in.withDefaults(); got != in {
		t.Fatalf("explicit config mutated: %+v -> %+v", in, got)
	}
}

func TestDefaultPools_CoverEveryJobType(t *testing.T) {
	pools := DefaultPools()
	for _, jt := range []string{
		types.JobTypeEmbedContent,
		types.JobTypeCategorize,
		types.JobTypeAnalyzeContent,
		types.JobTypeDuplicateCheck,
		types.JobTypeFeedBuild,
		types.JobTypeTrendingDetect,
		types.JobTypeBatchProcess,
	} {
		cfg, ok := pools[jt]
		if !ok {
			t.Fatalf("no pool for job type %q", jt)
		}
		if cfg.Concurrency < 1 {
			t.Fatalf("pool for %q has zero concurrency", jt)
		}
	}
	// Singleton pipelines must not run concurrently with themselves.
	if pools[types.JobTypeTrendingDetect].Concurrency != 1 {
		t.Fatal("trending detection must be a single-worker pool")
	}
	if pools[types.JobTypeBatchProcess].Concurrency != 1 {
		t.Fatal("batch processing must be a single-worker pool")
	}
}
