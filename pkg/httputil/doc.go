// Package httputil provides HTTP utilities for package registry clients.
//
// # Retry
//
// [Retry] wraps registry calls with automatic retry for transient failures:
//
//   - Network errors
//   - 5xx server errors
//   - 429 rate limit responses
//
// Wrap such failures with [Retryable] (or return an error carrying a
// transient code from pkg/errors); everything else fails immediately:
//
//	err := httputil.RetryWithBackoff(ctx, func() error {
//	    releases, err = upstream.FetchVersions(ctx, name)
//	    return err
//	})
//
// # Configuration
//
// [RetryWithBackoff] uses 3 attempts with a 1 second base delay that doubles
// after each failure. Use [Retry] directly for other policies.
//
// Response caching lives in pkg/cache, not here: registry clients go through
// the caching provider, which stores decoded metadata rather than raw HTTP
// bodies.
package httputil
