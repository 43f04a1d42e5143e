// Package errors provides structured error types for quiver.
//
// Every failure that crosses a package boundary in the resolver, cache or
// installer carries a machine-readable [Code], so callers can distinguish a
// conflict in the requested versions from a registry outage or a corrupted
// download without parsing messages.
//
// # Error Codes
//
// The resolution and caching core reports five kinds of failure:
//
//   - [ErrCodeParse]: malformed version or constraint text. Only the
//     offending requirement is rejected.
//   - [ErrCodeConflict]: the requirement set cannot be satisfied.
//   - [ErrCodeCycle]: the selected packages depend on each other in a loop.
//   - [ErrCodeProvider]: registry metadata could not be fetched after retries.
//   - [ErrCodeIntegrity]: artifact bytes did not match their digest.
//
// The remaining codes describe input validation, lookups and internal faults.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "invalid package name: %s", name)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle validation error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeProvider, origErr, "fetch %s", name)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Resolution and caching core
	ErrCodeParse       Code = "PARSE_ERROR"
	ErrCodeConflict    Code = "CONFLICT"
	ErrCodeCycle       Code = "CYCLE_DETECTED"
	ErrCodeProvider    Code = "PROVIDER_ERROR"
	ErrCodeIntegrity   Code = "INTEGRITY_ERROR"
	ErrCodeSearchLimit Code = "RESOLUTION_LIMIT"

	// Installation
	ErrCodeDependencyFailed Code = "DEPENDENCY_FAILED"
	ErrCodeExtract          Code = "EXTRACT_FAILED"

	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Resource not found errors
	ErrCodeNotFound        Code = "NOT_FOUND"
	ErrCodePackageNotFound Code = "PACKAGE_NOT_FOUND"
	ErrCodeFileNotFound    Code = "FILE_NOT_FOUND"

	// Network errors
	ErrCodeNetwork     Code = "NETWORK_ERROR"
	ErrCodeTimeout     Code = "TIMEOUT"
	ErrCodeRateLimited Code = "RATE_LIMITED"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether any *Error in err's chain carries the given code.
// A provider failure wrapping a network error therefore matches both
// [ErrCodeProvider] and [ErrCodeNetwork].
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// GetCode extracts the outermost error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Retryable reports whether err is worth retrying: network failures,
// timeouts and rate limiting. Conflicts, parse errors and integrity
// failures never become retryable by waiting.
func Retryable(err error) bool {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return true
	}
	return Is(err, ErrCodeNetwork) || Is(err, ErrCodeTimeout) || Is(err, ErrCodeRateLimited)
}

// RateLimitedError provides additional information for rate-limited responses.
type RateLimitedError struct {
	RetryAfter int // Seconds to wait before retrying
	Message    string
}

// Error implements the error interface.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited: retry after %d seconds", e.RetryAfter)
	}
	return "rate limited"
}

// Code returns the error code for this error type.
func (e *RateLimitedError) Code() Code {
	return ErrCodeRateLimited
}
