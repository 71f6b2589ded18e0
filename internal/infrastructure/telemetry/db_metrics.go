package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PoolStats is a snapshot of a database connection pool
type PoolStats struct {
	MaxOpen   int
	Open      int
	InUse     int
	Idle      int
	WaitCount int64
}

// PoolStatsFunc reads the current pool statistics
type PoolStatsFunc func() (PoolStats, error)

// DBPoolMetrics observes connection pool statistics on every collection
// cycle of the meter provider. Close unregisters the callback.
type DBPoolMetrics struct {
	registration metric.Registration
}

// NewDBPoolMetrics registers observable instruments reading from stats
func NewDBPoolMetrics(meter metric.Meter, stats PoolStatsFunc, logger *zap.Logger) (*DBPoolMetrics, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	connections, err := meter.Int64ObservableGauge(
		"tracker_db_pool_connections",
		metric.WithDescription("Number of connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool connections gauge: %w", err)
	}
	maxOpen, err := meter.Int64ObservableGauge(
		"tracker_db_pool_connections_max",
		metric.WithDescription("Maximum number of open connections"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool max gauge: %w", err)
	}
	waits, err := meter.Int64ObservableCounter(
		"tracker_db_pool_wait_total",
		metric.WithDescription("Total number of connections waited for"),
		metric.WithUnit("{wait}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool wait counter: %w", err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s, err := stats()
		if err != nil {
			logger.Debug("Skipping pool stats", zap.Error(err))
			return nil
		}
		o.ObserveInt64(connections, int64(s.Idle), metric.WithAttributes(AttrDBState.String("idle")))
		o.ObserveInt64(connections, int64(s.InUse), metric.WithAttributes(AttrDBState.String("in_use")))
		o.ObserveInt64(connections, int64(s.Open), metric.WithAttributes(AttrDBState.String("open")))
		o.ObserveInt64(maxOpen, int64(s.MaxOpen))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, connections, maxOpen, waits)
	if err != nil {
		return nil, fmt.Errorf("failed to register pool stats callback: %w", err)
	}
	return &DBPoolMetrics{registration: reg}, nil
}

// Close stops observing the pool
func (m *DBPoolMetrics) Close() error {
	return m.registration.Unregister()
}
