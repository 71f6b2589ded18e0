package collection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/logger"
)

// Metrics receives collection observations
type Metrics interface {
	RecordAttempt(ctx context.Context, platform market.Platform, outcome string)
	RecordItems(ctx context.Context, platform market.Platform, outcome string, n int)
	RecordFetchDuration(ctx context.Context, platform market.Platform, d time.Duration)
	RecordRun(ctx context.Context, status market.RunStatus, d time.Duration)
}

// Item outcomes reported to Metrics
const (
	OutcomePersisted = "persisted"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
	OutcomeSuccess   = "success"
)

// Options configures a Coordinator
type Options struct {
	// Categories lists the categories to collect per platform
	Categories map[market.Platform][]string
	// DefaultCategories is used for platforms without their own list
	DefaultCategories []string
	// Limit is the maximum number of items requested per category
	Limit int
	Retry RetryPolicy
}

// Coordinator runs one collection cycle across every registered adapter.
// Each platform is collected on its own goroutine so a failing platform
// never holds back or aborts the others.
type Coordinator struct {
	adapters   []market.SourceAdapter
	normalizer *Normalizer
	store      market.SnapshotRepository
	opts       Options
	clock      Clock
	sleeper    Sleeper
	metrics    Metrics
	logger     *zap.Logger
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithClock replaces the wall clock
func WithClock(c Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithSleeper replaces the timer used between retries
func WithSleeper(s Sleeper) Option {
	return func(co *Coordinator) { co.sleeper = s }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// NewCoordinator creates a coordinator over the given adapters
func NewCoordinator(
	adapters []market.SourceAdapter,
	normalizer *Normalizer,
	store market.SnapshotRepository,
	opts Options,
	log *zap.Logger,
	options ...Option,
) *Coordinator {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		adapters:   adapters,
		normalizer: normalizer,
		store:      store,
		opts:       opts,
		clock:      SystemClock{},
		sleeper:    TimerSleeper{},
		metrics:    noopMetrics{},
		logger:     log.Named("collection"),
	}
	for _, o := range options {
		o(c)
	}
	return c
}

// Run executes one collection cycle and returns the finalized run.
// Cancelling ctx stops every platform at its next item or retry boundary.
func (c *Coordinator) Run(ctx context.Context) *market.CollectionRun {
	run := c.Begin()
	c.Execute(ctx, run)
	return run
}

// Begin returns a new running record starting at the coordinator's clock
func (c *Coordinator) Begin() *market.CollectionRun {
	return market.NewCollectionRun(c.clock.Now())
}

// Execute collects every platform into run and finalizes it. run must come
// from Begin and must not be read until Execute returns.
func (c *Coordinator) Execute(ctx context.Context, run *market.CollectionRun) {
	ctx, log := logger.WithRunID(ctx, c.logger, run.ID.String())
	log.Info("Collection run started", zap.Int("platforms", len(c.adapters)))

	results := make([]*market.PlatformResult, len(c.adapters))
	var wg sync.WaitGroup
	for i, adapter := range c.adapters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.collectPlatform(ctx, run.ID, adapter)
		}()
	}
	wg.Wait()

	for _, res := range results {
		_ = run.AddResult(res)
	}
	finished := c.clock.Now()
	_ = run.Finalize(finished)
	c.metrics.RecordRun(ctx, run.Status, finished.Sub(run.StartedAt))

	log.Info("Collection run finished",
		zap.String("status", string(run.Status)),
		zap.Int("persisted", run.PersistedCount()),
		zap.Int("duplicates", run.DuplicateCount()),
		zap.Int("errors", len(run.ErrorSummary)),
		zap.Duration("duration", finished.Sub(run.StartedAt)),
	)
}

// collectPlatform runs every category of one platform in order
func (c *Coordinator) collectPlatform(ctx context.Context, runID uuid.UUID, adapter market.SourceAdapter) (res *market.PlatformResult) {
	platform := adapter.Platform()
	res = market.NewPlatformResult(platform)
	log := logger.FromContext(ctx).With(zap.String("platform", string(platform)))
	start := c.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Platform collection panicked", zap.Any("panic", r), zap.Stack("stacktrace"))
			res.Fail(market.StageFetch, fmt.Errorf("adapter panic: %v", r))
		}
		res.Settle()
		res.Duration = c.clock.Now().Sub(start)
		log.Info("Platform collection finished",
			zap.String("status", string(res.Status)),
			zap.Int("attempts", res.Attempts),
			zap.Int("fetched", res.Fetched),
			zap.Int("persisted", res.Persisted),
			zap.Int("duplicates", res.Duplicates),
			zap.Int("skipped", res.Skipped),
		)
	}()

	for _, category := range c.categoriesFor(platform) {
		batch, err := c.fetchWithRetry(ctx, adapter, category, res, log)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				res.Fail(market.StageCancelled, ctx.Err())
				return res
			case errors.Is(err, market.ErrAuth):
				log.Error("Platform disabled for this run", zap.Error(err))
				res.Fail(market.StageFetch, err)
				return res
			default:
				log.Warn("Category collection failed", zap.String("category", category), zap.Error(err))
				res.RecordCallError(market.StageFetch, fmt.Errorf("category %q: %w", category, err))
				continue
			}
		}

		collectedAt := c.clock.Now().UTC().Truncate(time.Millisecond)
		if !c.storeBatch(ctx, runID, batch, collectedAt, res, log) {
			res.Fail(market.StageCancelled, ctx.Err())
			return res
		}
	}
	return res
}

func (c *Coordinator) categoriesFor(p market.Platform) []string {
	if cats := c.opts.Categories[p]; len(cats) > 0 {
		return cats
	}
	if len(c.opts.DefaultCategories) > 0 {
		return c.opts.DefaultCategories
	}
	return []string{""}
}

// fetchWithRetry calls the adapter until it succeeds, fails permanently or
// the retry policy is used up. Waits grow linearly with the attempt number.
func (c *Coordinator) fetchWithRetry(
	ctx context.Context,
	adapter market.SourceAdapter,
	category string,
	res *market.PlatformResult,
	log *zap.Logger,
) (*market.FetchBatch, error) {
	platform := adapter.Platform()
	state := &RetryState{}

	for !state.Exhausted() {
		state.Begin()
		res.Attempts++

		started := c.clock.Now()
		batch, err := c.attempt(ctx, adapter, category)
		c.metrics.RecordFetchDuration(ctx, platform, c.clock.Now().Sub(started))

		if err == nil {
			state.Succeed()
			c.metrics.RecordAttempt(ctx, platform, OutcomeSuccess)
			return batch, nil
		}
		c.metrics.RecordAttempt(ctx, platform, OutcomeFailed)
		if ctx.Err() != nil {
			return nil, err
		}

		delay, retry := state.Fail(c.opts.Retry, err, c.clock.Now())
		if !retry {
			break
		}
		log.Warn("Fetch failed, retrying",
			zap.String("category", category),
			zap.Int("attempt", state.Attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleeper.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", state.Attempt, state.LastErr)
}

// attempt makes one adapter call bounded by the per-call timeout
func (c *Coordinator) attempt(ctx context.Context, adapter market.SourceAdapter, category string) (*market.FetchBatch, error) {
	callCtx := ctx
	if c.opts.Retry.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.Retry.Timeout)
		defer cancel()
	}

	batch, err := adapter.Fetch(callCtx, category, c.opts.Limit)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !market.IsRetryable(err) {
			err = fmt.Errorf("%w: call timed out after %s: %w", market.ErrNetwork, c.opts.Retry.Timeout, err)
		}
		return nil, err
	}
	if batch == nil {
		batch = &market.FetchBatch{}
	}
	return batch, nil
}

// storeBatch normalizes and persists items in fetch order. It returns false
// when ctx was cancelled before every item was handled.
func (c *Coordinator) storeBatch(
	ctx context.Context,
	runID uuid.UUID,
	batch *market.FetchBatch,
	collectedAt time.Time,
	res *market.PlatformResult,
	log *zap.Logger,
) bool {
	platform := res.Platform
	res.Fetched += len(batch.Items) + len(batch.ParseErrors)

	for _, pe := range batch.ParseErrors {
		log.Warn("Unparseable item skipped", zap.String("source_id", pe.SourceID), zap.Error(pe.Err))
		res.RecordItemError(market.StageParse, pe.SourceID, pe.Err)
	}
	c.metrics.RecordItems(ctx, platform, OutcomeInvalid, len(batch.ParseErrors))

	for _, item := range batch.Items {
		if ctx.Err() != nil {
			return false
		}

		record, err := c.normalizer.Normalize(item, collectedAt)
		if err != nil {
			log.Warn("Invalid item skipped",
				zap.String("source_id", item.SourceID),
				zap.ByteString("payload", item.Payload),
				zap.Error(err),
			)
			res.RecordItemError(market.StageValidate, item.SourceID, err)
			c.metrics.RecordItems(ctx, platform, OutcomeInvalid, 1)
			continue
		}

		inserted, err := c.store.Upsert(ctx, runID, record)
		if err != nil {
			if ctx.Err() != nil {
				return false
			}
			log.Error("Failed to persist item",
				zap.String("product_id", record.PlatformProductID),
				zap.Error(err),
			)
			res.RecordItemError(market.StagePersist, record.PlatformProductID, err)
			c.metrics.RecordItems(ctx, platform, OutcomeFailed, 1)
			continue
		}
		if !inserted {
			res.Duplicates++
			c.metrics.RecordItems(ctx, platform, OutcomeDuplicate, 1)
			continue
		}
		res.Persisted++
		c.metrics.RecordItems(ctx, platform, OutcomePersisted, 1)
	}
	return true
}

type noopMetrics struct{}

func (noopMetrics) RecordAttempt(context.Context, market.Platform, string) {}
func (noopMetrics) RecordItems(context.Context, market.Platform, string, int) {}
func (noopMetrics) RecordFetchDuration(context.Context, market.Platform, time.Duration) {}
func (noopMetrics) RecordRun(context.Context, market.RunStatus, time.Duration) {}
