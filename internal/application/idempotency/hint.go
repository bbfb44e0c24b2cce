package idempotency

import (
	"context"
	"time"
)

// HintStore caches the payload hash committed under an idempotency key.
// It is advisory: a differing cached hash short-circuits to a conflict, while
// a matching or missing hint always goes to the database.
type HintStore interface {
	// Get returns the cached hash for key
	Get(ctx context.Context, key string) (hash string, ok bool, err error)
	// Put records hash for key with a TTL
	Put(ctx context.Context, key, hash string, ttl time.Duration) error
}
