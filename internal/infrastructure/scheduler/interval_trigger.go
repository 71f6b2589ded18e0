package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ticker delivers ticks on C until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop() { s.t.Stop() }

// NewStdTicker wraps time.NewTicker
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// IntervalTriggerConfig holds configuration for the interval trigger
type IntervalTriggerConfig struct {
	// Interval between job invocations
	Interval time.Duration

	// RunOnStart invokes the job once immediately after Start
	RunOnStart bool
}

// IntervalTrigger calls a job every Interval on its own goroutine.
// Invocations never overlap; ticks that arrive while the job runs are dropped.
type IntervalTrigger struct {
	config    IntervalTriggerConfig
	job       func(ctx context.Context)
	newTicker TickerFactory
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	runs      int
}

// IntervalTriggerOption configures an IntervalTrigger
type IntervalTriggerOption func(*IntervalTrigger)

// WithTickerFactory replaces the ticker used by the loop
func WithTickerFactory(f TickerFactory) IntervalTriggerOption {
	return func(t *IntervalTrigger) {
		t.newTicker = f
	}
}

// NewIntervalTrigger creates a new interval trigger
func NewIntervalTrigger(
	config IntervalTriggerConfig,
	job func(ctx context.Context),
	logger *zap.Logger,
	opts ...IntervalTriggerOption,
) (*IntervalTrigger, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if job == nil {
		return nil, fmt.Errorf("%w: job is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	t := &IntervalTrigger{
		config:    config,
		job:       job,
		newTicker: NewStdTicker,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Start starts the trigger loop. Starting a running trigger is a no-op.
func (t *IntervalTrigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	ticker := t.newTicker(t.config.Interval)

	t.wg.Add(1)
	go t.runLoop(ctx, ticker)

	t.logger.Info("Interval trigger started",
		zap.Duration("interval", t.config.Interval),
		zap.Bool("run_on_start", t.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight job, bounded by ctx
func (t *IntervalTrigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Interval trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Runs returns how many times the job has been invoked
func (t *IntervalTrigger) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func (t *IntervalTrigger) runLoop(ctx context.Context, ticker Ticker) {
	defer t.wg.Done()
	defer ticker.Stop()

	if t.config.RunOnStart {
		t.invoke(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			t.invoke(ctx)
		}
	}
}

func (t *IntervalTrigger) invoke(ctx context.Context) {
	t.mu.Lock()
	t.runs++
	run := t.runs
	t.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("Scheduled job panicked",
				zap.Int("run", run),
				zap.Any("panic", r),
			)
		}
	}()

	t.logger.Debug("Triggering scheduled job", zap.Int("run", run))
	t.job(ctx)
}
