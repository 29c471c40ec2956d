package client

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"time"
)

// RetryPolicy bounds the transparent retry behavior of a client. Only
// responses whose status is on RetryStatuses and errors matching the
// connection-failure allow-list are retried; everything else propagates
// immediately without consuming an attempt.
type RetryPolicy struct {
	MaxAttempts   int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay     time.Duration `json:"base_delay" yaml:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`
	Multiplier    float64       `json:"multiplier" yaml:"multiplier"`
	Jitter        float64       `json:"jitter" yaml:"jitter"`
	RetryStatuses []int         `json:"retry_statuses" yaml:"retry_statuses"`
}

// DefaultRetryPolicy mirrors the marketplace defaults: ten attempts,
// exponential backoff from one second capped at thirty, 25% jitter, retrying
// only on 429 and 503.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   10,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2,
		Jitter:        0.25,
		RetryStatuses: []int{429, 503},
	}
}

// delay computes the backoff before attempt k (1-based retry count):
// base x multiplier^k with jitter, capped at MaxDelay.
func (p RetryPolicy) delay(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	d := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if p.Jitter > 0 {
		d *= 1 + p.Jitter*(2*rand.Float64()-1)
	}
	if max := float64(p.MaxDelay); max > 0 && d > max {
		d = max
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

func (p RetryPolicy) retryableStatus(code int) bool {
	for _, s := range p.RetryStatuses {
		if s == code {
			return true
		}
	}
	return false
}

// retryableError reports whether the transport failure is on the allow-list.
// Connection-level failures (refused, reset, timeout) surface as *url.Error.
func retryableError(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// HTTPError is a non-2xx response surfaced to the caller unchanged after
// retries are exhausted or when the status is not retryable.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.StatusCode, e.Body)
}
