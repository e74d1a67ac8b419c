package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/lucasvmx/amazon-price-watch/internal/models"
	"github.com/lucasvmx/amazon-price-watch/internal/ratelimit"
	"github.com/lucasvmx/amazon-price-watch/internal/scraper"
)

// ErrAlreadyRunning is returned when a batch refresh is requested while one
// is still in flight. Two concurrent runs would interleave extractions over
// the one shared browser context, so the second caller is rejected outright.
var ErrAlreadyRunning = errors.New("batch refresh already running")

// Extractor is the orchestrator contract the batch runner drives.
type Extractor interface {
	ExtractProduct(ctx context.Context, asin string) (*models.ScrapedProduct, error)
}

// Store persists one observation. It reports whether the observation was
// appended to the history; whether to append (price changed, first sighting)
// is the store's policy, not the extraction core's.
type Store interface {
	RecordObservation(ctx context.Context, product *models.ScrapedProduct) (bool, error)
}

// Progress is delivered to the optional callback after every item.
type Progress struct {
	ASIN  string
	Index int
	Total int
	Err   error
}

// Result tallies one batch run. Items fail in isolation: one bad product
// never aborts the rest of the run.
type Result struct {
	Updated  int
	Skipped  int
	Errors   int
	Failures map[string]string
}

// Limiters that accept block/success feedback get it; plain limiters do not.
type feedbackLimiter interface {
	RecordBlock()
	RecordSuccess()
}

// Runner iterates many ASINs sequentially with an inter-item delay, guarding
// against overlapping runs with a single-flight flag.
type Runner struct {
	extractor Extractor
	store     Store
	limiter   ratelimit.Limiter
	logger    *slog.Logger
	running   atomic.Bool
}

func NewRunner(extractor Extractor, store Store, limiter ratelimit.Limiter, logger *slog.Logger) *Runner {
	return &Runner{
		extractor: extractor,
		store:     store,
		limiter:   limiter,
		logger:    logger.With("component", "batch"),
	}
}

// Running reports whether a batch is currently in flight.
func (r *Runner) Running() bool {
	return r.running.Load()
}

// Run refreshes every ASIN in order. A second concurrent call fails fast with
// ErrAlreadyRunning. Context cancellation stops the run and returns the
// partial result alongside the context error.
func (r *Runner) Run(ctx context.Context, asins []string, onProgress func(Progress)) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	return r.run(ctx, asins, onProgress)
}

// Start acquires the single-flight guard before returning, then executes the
// run on a new goroutine and delivers the outcome to done. Callers that
// respond to a request before the run finishes use this so a losing second
// caller is rejected up front instead of silently discarded.
func (r *Runner) Start(ctx context.Context, asins []string, onProgress func(Progress), done func(*Result, error)) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	go func() {
		result, err := r.run(ctx, asins, onProgress)
		if done != nil {
			done(result, err)
		}
	}()
	return nil
}

// run assumes the guard is held and releases it on return.
func (r *Runner) run(ctx context.Context, asins []string, onProgress func(Progress)) (*Result, error) {
	defer r.running.Store(false)

	result := &Result{Failures: make(map[string]string)}
	feedback, _ := r.limiter.(feedbackLimiter)

	r.logger.Info("batch refresh started", "count", len(asins))

	for i, asin := range asins {
		if i > 0 {
			if err := r.limiter.Wait(ctx); err != nil {
				return result, err
			}
		}

		err := r.refreshOne(ctx, asin, result, feedback)
		if err != nil && ctx.Err() != nil {
			return result, ctx.Err()
		}

		if onProgress != nil {
			onProgress(Progress{ASIN: asin, Index: i + 1, Total: len(asins), Err: err})
		}
	}

	r.logger.Info("batch refresh finished",
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", result.Errors)

	return result, nil
}

func (r *Runner) refreshOne(ctx context.Context, asin string, result *Result, feedback feedbackLimiter) error {
	product, err := r.extractor.ExtractProduct(ctx, asin)
	if err != nil {
		result.Errors++
		result.Failures[asin] = err.Error()

		var blocked *scraper.BlockedError
		if errors.As(err, &blocked) && feedback != nil {
			feedback.RecordBlock()
		}

		r.logger.Warn("batch item failed", "asin", asin, "error", err)
		return err
	}

	if feedback != nil {
		feedback.RecordSuccess()
	}

	if r.store == nil {
		result.Updated++
		return nil
	}

	appended, err := r.store.RecordObservation(ctx, product)
	if err != nil {
		result.Errors++
		result.Failures[asin] = err.Error()
		r.logger.Warn("failed to record observation", "asin", asin, "error", err)
		return err
	}

	if appended {
		result.Updated++
	} else {
		result.Skipped++
	}
	return nil
}
