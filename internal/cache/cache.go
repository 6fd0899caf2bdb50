package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is the injected key/value cache used by the engines for embedding
// results, query results and feed snapshots. All values are opaque bytes;
// callers own serialization. Implementations must be safe for concurrent
// use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	IncrementCounter(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
