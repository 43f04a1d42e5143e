package cache

import (
	"context"
	"time"
)

// NullBackend is a durable tier that never stores anything. A [Cache] over a
// NullBackend is a pure memory cache: entries evicted from memory are gone.
type NullBackend struct{}

// NewNullBackend creates a null backend.
func NewNullBackend() Backend {
	return NullBackend{}
}

// Get always returns a miss.
func (NullBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set does nothing.
func (NullBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return nil
}

// Delete does nothing.
func (NullBackend) Delete(ctx context.Context, key string) error {
	return nil
}

// Close does nothing.
func (NullBackend) Close() error {
	return nil
}

var _ Backend = NullBackend{}
