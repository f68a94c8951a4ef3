package saxo

import (
	"fmt"
	"time"
)

// AuthenticationError signals a 401 from the broker. The token lifecycle
// manager reacts to it by forcing a refresh.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "broker authentication failed"
	}
	return fmt.Sprintf("broker authentication failed: %s", e.Message)
}

// RateLimitError signals a 429 with the broker's Retry-After hint
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("broker rate limited, retry after %s", e.RetryAfter)
}

// APIError covers every other non-2xx response and transport failures.
// Message carries the broker's parsed error text or a truncated body.
type APIError struct {
	Message    string
	StatusCode int
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("broker api error: %s", e.Message)
	}
	return fmt.Sprintf("broker api error (status %d): %s", e.StatusCode, e.Message)
}
