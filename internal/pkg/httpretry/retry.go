// Package httpretry runs outbound calls under an explicit retry loop with
// exponential backoff and Retry-After support.
package httpretry

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RetryableError is implemented by errors that know whether the failed call
// may succeed when repeated.
type RetryableError interface {
	error
	Retryable() bool
}

// RetryAfterError is implemented by errors that carry a server-provided wait
// hint. A zero duration means no hint.
type RetryAfterError interface {
	RetryAfter() time.Duration
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Policy describes how a call is retried. The zero value makes a single
// attempt.
type Policy struct {
	// MaxRetries is the number of attempts made after the first one.
	MaxRetries int
	// BaseDelay is multiplied by 2^retry for each backoff.
	BaseDelay time.Duration
	// MaxDelay caps every wait, including Retry-After hints. Zero means 30s.
	MaxDelay time.Duration
	// Sleep replaces the timer-based wait. Tests use it to avoid real delays.
	Sleep SleepFunc
	// OnRetry is called before each backoff.
	OnRetry func(retry int, delay time.Duration, err error)
}

// Outcome reports how many attempts a call took.
type Outcome struct {
	Attempts int
}

// Retried reports whether more than one attempt was made.
func (o Outcome) Retried() bool { return o.Attempts > 1 }

// Do runs op until it succeeds, fails terminally, or the retry budget is
// spent. The error of the last attempt is returned. Context cancellation
// stops the loop and returns the context error.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) (Outcome, error) {
	var out Outcome
	for retry := 0; ; retry++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		out.Attempts++
		err := op(ctx)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		if !IsRetryable(err) || retry >= p.MaxRetries {
			return out, err
		}

		delay := p.Delay(retry, err)
		if p.OnRetry != nil {
			p.OnRetry(retry+1, delay, err)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return out, err
		}
	}
}

// Delay returns the wait before the given retry (0-based). A Retry-After
// hint on err wins over exponential backoff.
func (p Policy) Delay(retry int, err error) time.Duration {
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}

	var hinted RetryAfterError
	if errors.As(err, &hinted) {
		if d := hinted.RetryAfter(); d > 0 {
			return min(d, maxDelay)
		}
	}

	delay := p.BaseDelay
	for i := 0; i < retry && delay < maxDelay; i++ {
		delay *= 2
	}
	return min(delay, maxDelay)
}

func (p Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRetryable classifies err. Errors implementing RetryableError decide for
// themselves; anything else, including a per-request client timeout, is
// treated as a transient network failure. Cancellation of the caller's
// context is handled by Do, not here.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var re RetryableError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return true
}

type permanentError struct{ err error }

func (e *permanentError) Error() string   { return e.err.Error() }
func (e *permanentError) Unwrap() error   { return e.err }
func (e *permanentError) Retryable() bool { return false }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryableStatus reports whether an HTTP status is transient: 429 and every
// 5xx.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// ParseRetryAfter parses a Retry-After header given either as delay seconds
// or as an HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
