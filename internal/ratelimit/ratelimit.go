package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter paces successive product-page requests so a batch run never bursts
// against the retailer from a single browser session.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Fixed enforces a delay between actions, with optional jitter between a
// minimum and maximum so request timing is not perfectly periodic.
type Fixed struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	jitter     bool
}

func NewFixed(minDelay, maxDelay time.Duration) *Fixed {
	return &Fixed{
		minDelay: minDelay,
		maxDelay: maxDelay,
		jitter:   minDelay != maxDelay,
	}
}

func (f *Fixed) Wait(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	elapsed := time.Since(f.lastAction)
	delay := f.currentDelay()

	if elapsed < delay {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay - elapsed):
		}
	}

	f.lastAction = time.Now()
	return nil
}

func (f *Fixed) currentDelay() time.Duration {
	if !f.jitter || f.maxDelay <= f.minDelay {
		return f.minDelay
	}
	return f.minDelay + time.Duration(rand.Int63n(int64(f.maxDelay-f.minDelay)))
}

// Backoff wraps Fixed and stretches the delay after anti-bot blocks.
// Sustained successes restore the original pace.
type Backoff struct {
	*Fixed
	baseMin      time.Duration
	baseMax      time.Duration
	blockCount   int
	successCount int
	factor       float64
	ceiling      time.Duration
}

func NewBackoff(minDelay, maxDelay time.Duration) *Backoff {
	return &Backoff{
		Fixed:   NewFixed(minDelay, maxDelay),
		baseMin: minDelay,
		baseMax: maxDelay,
		factor:  2.0,
		ceiling: 5 * time.Minute,
	}
}

// RecordBlock doubles the pacing window, up to a ceiling.
func (b *Backoff) RecordBlock() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.blockCount++
	b.successCount = 0

	newMin := time.Duration(float64(b.minDelay) * b.factor)
	newMax := time.Duration(float64(b.maxDelay) * b.factor)
	if newMin > b.ceiling {
		newMin = b.ceiling
	}
	if newMax > b.ceiling {
		newMax = b.ceiling
	}
	b.minDelay = newMin
	b.maxDelay = newMax
	b.jitter = b.minDelay != b.maxDelay
}

// RecordSuccess walks the window back toward the configured base after a run
// of clean extractions.
func (b *Backoff) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successCount++
	if b.successCount < 5 {
		return
	}
	b.successCount = 0
	b.blockCount = 0
	b.minDelay = b.baseMin
	b.maxDelay = b.baseMax
	b.jitter = b.minDelay != b.maxDelay
}
