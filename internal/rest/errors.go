package rest

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited matches every RateLimitError via errors.Is.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoContent is returned when decoding a response that has no body.
	ErrNoContent = errors.New("response has no content")
)

// RateLimitError is returned when a request is blocked by a known limit or
// the server answered 429.
type RateLimitError struct {
	Bucket     string        // Bucket key; empty for global limits
	Global     bool          // True when the global limit applies
	RetryAfter time.Duration // Time until the limit resets
	Message    string        // Server message, when the server rejected the request
}

func (e *RateLimitError) Error() string {
	if e.Global {
		return fmt.Sprintf("global rate limit, retry after %s", e.RetryAfter)
	}
	return fmt.Sprintf("rate limited on %s, retry after %s", e.Bucket, e.RetryAfter)
}

// Is reports whether target is ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// APIError represents a non-2xx response other than 429.
type APIError struct {
	StatusCode int
	Code       int    // JSON error code from the body, 0 if absent
	Message    string // JSON message, or the status text
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for server errors. The client never retries on
// its own; this is a hint for callers.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500
}
