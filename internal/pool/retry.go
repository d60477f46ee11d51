package pool

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// RetryPolicy decides whether a failed attempt is retried and how long to wait.
type RetryPolicy interface {
	ShouldRetry(err error, retries int) bool
	Backoff(retries int) time.Duration
}

// ExponentialRetryPolicy implements RetryPolicy with jittered backoff.
type ExponentialRetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewExponentialRetryPolicy builds a policy allowing maxRetries retries after the first attempt.
func NewExponentialRetryPolicy(maxRetries int, baseDelay time.Duration) *ExponentialRetryPolicy {
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	return &ExponentialRetryPolicy{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   10 * time.Second,
	}
}

// ShouldRetry decides whether the error is retryable. Extraction failures,
// missing adapters, pool shutdown and caller cancellation are final.
func (p *ExponentialRetryPolicy) ShouldRetry(err error, retries int) bool {
	if err == nil {
		return false
	}
	if retries >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, stock.ErrNoAdapter) {
		return false
	}
	switch stock.KindOf(err) {
	case stock.KindAdapter, stock.KindPoolSubmission, stock.KindNotification:
		return false
	}
	return true
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialRetryPolicy) Backoff(retries int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(retries))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialRetryPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
