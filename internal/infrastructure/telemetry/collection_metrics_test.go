package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/telemetry"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	want := attribute.NewSet(attrs...)
	for _, dp := range sum.DataPoints {
		if dp.Attributes.Equals(&want) {
			return dp.Value
		}
	}
	return 0
}

func TestNewCollectionMetrics_NilMeter(t *testing.T) {
	cm, err := telemetry.NewCollectionMetrics(nil)
	assert.ErrorIs(t, err, telemetry.ErrMeterNil)
	assert.Nil(t, cm)
}

func TestCollectionMetrics_NoopMeter(t *testing.T) {
	cm, err := telemetry.NewCollectionMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	cm.RecordAttempt(ctx, market.PlatformTikTok, "success")
	cm.RecordItems(ctx, market.PlatformTikTok, "persisted", 3)
	cm.RecordFetchDuration(ctx, market.PlatformTikTok, time.Second)
	cm.RecordRun(ctx, market.RunStatusSuccess, time.Minute)
}

func TestCollectionMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	cm, err := telemetry.NewCollectionMetrics(provider.Meter("tracker"))
	require.NoError(t, err)

	ctx := context.Background()
	cm.RecordAttempt(ctx, market.PlatformAmazon, "failed")
	cm.RecordAttempt(ctx, market.PlatformAmazon, "failed")
	cm.RecordAttempt(ctx, market.PlatformAmazon, "success")
	cm.RecordItems(ctx, market.PlatformAmazon, "persisted", 3)
	cm.RecordItems(ctx, market.PlatformAmazon, "invalid", 2)
	cm.RecordItems(ctx, market.PlatformAmazon, "invalid", 0)
	cm.RecordFetchDuration(ctx, market.PlatformAmazon, 1500*time.Millisecond)
	cm.RecordRun(ctx, market.RunStatusPartial, 2*time.Minute)

	metrics := collect(t, reader)

	attempts := metrics["tracker_collection_attempts_total"]
	assert.Equal(t, int64(2), sumFor(t, attempts,
		telemetry.AttrPlatform.String("amazon"), telemetry.AttrOutcome.String("failed")))
	assert.Equal(t, int64(1), sumFor(t, attempts,
		telemetry.AttrPlatform.String("amazon"), telemetry.AttrOutcome.String("success")))

	items := metrics["tracker_collection_items_total"]
	assert.Equal(t, int64(3), sumFor(t, items,
		telemetry.AttrPlatform.String("amazon"), telemetry.AttrOutcome.String("persisted")))
	assert.Equal(t, int64(2), sumFor(t, items,
		telemetry.AttrPlatform.String("amazon"), telemetry.AttrOutcome.String("invalid")))

	runs := metrics["tracker_collection_runs_total"]
	assert.Equal(t, int64(1), sumFor(t, runs, telemetry.AttrStatus.String("partial")))

	fetch, ok := metrics["tracker_collection_fetch_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, fetch.DataPoints, 1)
	assert.Equal(t, uint64(1), fetch.DataPoints[0].Count)
	assert.InDelta(t, 1.5, fetch.DataPoints[0].Sum, 1e-9)
}
