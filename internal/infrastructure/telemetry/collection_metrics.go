package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/bestseller/tracker/internal/domain/market"
)

// ErrMeterNil is returned when a metrics constructor receives no meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// CollectionMetrics records collection activity:
//   - tracker_collection_runs_total{status}
//   - tracker_collection_attempts_total{platform,outcome}
//   - tracker_collection_items_total{platform,outcome}
//   - tracker_collection_fetch_duration_seconds{platform}
//   - tracker_collection_run_duration_seconds{status}
type CollectionMetrics struct {
	runsTotal     *Counter
	attemptsTotal *Counter
	itemsTotal    *Counter
	fetchDuration *Histogram
	runDuration   *Histogram
}

// NewCollectionMetrics registers the collection instruments on meter.
func NewCollectionMetrics(meter metric.Meter) (*CollectionMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	cm := &CollectionMetrics{}
	var err error

	cm.runsTotal, err = NewCounter(meter,
		"tracker_collection_runs_total",
		"Total number of finished collection runs",
		"{runs}",
	)
	if err != nil {
		return nil, err
	}

	cm.attemptsTotal, err = NewCounter(meter,
		"tracker_collection_attempts_total",
		"Total number of adapter calls, retries included",
		"{attempts}",
	)
	if err != nil {
		return nil, err
	}

	cm.itemsTotal, err = NewCounter(meter,
		"tracker_collection_items_total",
		"Total number of fetched items by outcome",
		"{items}",
	)
	if err != nil {
		return nil, err
	}

	cm.fetchDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "tracker_collection_fetch_duration_seconds",
		Description: "Duration of one adapter call",
		Unit:        "s",
		Boundaries:  FetchDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	cm.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "tracker_collection_run_duration_seconds",
		Description: "Duration of a collection run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	})
	if err != nil {
		return nil, err
	}

	return cm, nil
}

// RecordAttempt counts one adapter call
func (m *CollectionMetrics) RecordAttempt(ctx context.Context, platform market.Platform, outcome string) {
	m.attemptsTotal.Inc(ctx, AttrPlatform.String(string(platform)), AttrOutcome.String(outcome))
}

// RecordItems counts n items with the given outcome
func (m *CollectionMetrics) RecordItems(ctx context.Context, platform market.Platform, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.itemsTotal.Add(ctx, int64(n), AttrPlatform.String(string(platform)), AttrOutcome.String(outcome))
}

// RecordFetchDuration records the latency of one adapter call
func (m *CollectionMetrics) RecordFetchDuration(ctx context.Context, platform market.Platform, d time.Duration) {
	m.fetchDuration.RecordDuration(ctx, d, AttrPlatform.String(string(platform)))
}

// RecordRun counts a finished run and its duration
func (m *CollectionMetrics) RecordRun(ctx context.Context, status market.RunStatus, d time.Duration) {
	m.runsTotal.Inc(ctx, AttrStatus.String(string(status)))
	m.runDuration.RecordDuration(ctx, d, AttrStatus.String(string(status)))
}
