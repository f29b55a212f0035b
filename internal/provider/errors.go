package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/courtside/mailer/internal/pkg/httpretry"
)

// ErrNotConfigured is returned when no API key is set. It is never retried.
var ErrNotConfigured = errors.New("email provider api key not configured")

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	// Wait is the parsed Retry-After header, zero when absent.
	Wait time.Duration
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is transient (429 or 5xx).
func (e *APIError) Retryable() bool { return httpretry.RetryableStatus(e.StatusCode) }

// RetryAfter returns the server's wait hint.
func (e *APIError) RetryAfter() time.Duration { return e.Wait }
