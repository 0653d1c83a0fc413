package opensubtitles

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"subselect/internal/services"
)

// Rate limiting configuration for OpenSubtitles API calls.
const (
	MinInterval    = time.Second
	MaxRateRetries = 6
	InitialBackoff = 2 * time.Second
	MaxBackoff     = 60 * time.Second
)

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRetriable reports whether err represents a transient condition that
// warrants an automatic retry (rate limits, gateway errors, timeouts, dropped
// connections).
func IsRetriable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch StatusCode(err) {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	case 0:
	default:
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, services.ErrNetwork)
}

// Backoff returns the delay before retry number attempt (1-based).
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := InitialBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > MaxBackoff || backoff <= 0 {
		backoff = MaxBackoff
	}
	return backoff
}
