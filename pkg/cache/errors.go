package cache

import (
	"errors"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Sentinel errors for caching operations.
var (
	// ErrClosed is returned by operations on a closed cache.
	ErrClosed = errors.New("cache closed")

	// ErrTooLarge is returned by backends that refuse an oversized value.
	ErrTooLarge = errors.New("value too large")
)

// IntegrityError reports bytes that do not hash to the digest they were
// published or stored under. The bytes are never cached.
type IntegrityError struct {
	Expected digest.Digest // Digest the bytes were supposed to have
	Actual   digest.Digest // Digest of the bytes actually received, if computable
	Cause    error         // Set when Expected itself is malformed
}

func (e *IntegrityError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("integrity check failed for %q: %v", e.Expected, e.Cause)
	}
	return fmt.Sprintf("integrity check failed: expected %s, got %s", e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return e.Cause }

// IsIntegrityError reports whether err is or wraps an [*IntegrityError].
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}
