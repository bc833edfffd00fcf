package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deusflow/technews/internal/logger"
)

// ErrExhausted is returned once the per-run request cap is used up.
var ErrExhausted = errors.New("summary request budget exhausted")

// Budget paces calls to the summarization API and caps how many are made
// per run. A max of zero means unlimited.
type Budget struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	used     int
	max      int
	failures int
	started  time.Time
}

// NewBudget allows rps requests per second (burst 1) and at most max per run.
func NewBudget(rps float64, max int) *Budget {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Budget{
		limiter: rate.NewLimiter(limit, 1),
		max:     max,
		started: time.Now(),
	}
}

// Allow reports whether another request fits in this run without waiting.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max <= 0 || b.used < b.max
}

// Wait reserves one request, blocking until the pacing limiter admits it.
func (b *Budget) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.max > 0 && b.used >= b.max {
		b.mu.Unlock()
		logger.Warn("summary budget reached", "used", b.used, "limit", b.max)
		return ErrExhausted
	}
	b.used++
	b.mu.Unlock()

	if err := b.limiter.Wait(ctx); err != nil {
		b.mu.Lock()
		b.used--
		b.mu.Unlock()
		return err
	}
	return nil
}

// RecordFailure counts a request that did not yield a summary.
func (b *Budget) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

// Reset starts a new run, logging the previous run's usage.
func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.used > 0 {
		logger.Debug("summary budget reset", "used", b.used, "limit", b.max, "failures", b.failures, "since", b.started)
	}
	b.used = 0
	b.failures = 0
	b.started = time.Now()
}

// GetStats returns current usage for the stats endpoint.
func (b *Budget) GetStats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"summary_used":     b.used,
		"summary_limit":    b.max,
		"summary_failures": b.failures,
		"run_started":      b.started,
	}
}
