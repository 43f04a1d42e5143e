package cache

import (
	"context"
	"time"
)

// Backend is the durable tier behind a [Cache]: a byte store with optional
// per-entry expiry. Implementations exist for badger (badgerstore), redis
// (redisstore), mongo (mongostore), plain files ([FileBackend]) and a no-op
// ([NullBackend]) for memory-only caches.
//
// Set must be atomic from a reader's point of view: a concurrent Get observes
// either the previous value or the complete new one. Get reports expired
// entries as misses. All methods are safe for concurrent use.
type Backend interface {
	// Get retrieves a value. Returns (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value. A ttl of zero stores without expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the backend.
	Close() error
}

// Clearer is implemented by backends that can drop every entry at once.
type Clearer interface {
	Clear(ctx context.Context) error
}
