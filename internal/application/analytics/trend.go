package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/domain/market"
)

// directionThreshold is the change, in percent, beyond which a series
// counts as rising or falling
const directionThreshold = 5.0

// Direction summarises a trend series
type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
)

// TrendQuery selects one product's metric series. A zero From or To leaves
// that end of the window open.
type TrendQuery struct {
	Platform  market.Platform
	ProductID string
	Metric    market.Metric
	From      time.Time
	To        time.Time
}

// TrendPoint is one observation of the metric
type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TrendResult is a product's metric series, oldest first
type TrendResult struct {
	Platform  market.Platform `json:"platform"`
	ProductID string          `json:"platform_product_id"`
	Title     string          `json:"title"`
	Metric    market.Metric   `json:"metric"`
	Points    []TrendPoint    `json:"points"`
	ChangePct float64         `json:"change_pct"`
	Direction Direction       `json:"direction"`
}

// ---------------------------------------------------------------------------
// TrendEngine
// ---------------------------------------------------------------------------

// TrendEngine builds time series from stored snapshots
type TrendEngine struct {
	store  market.SnapshotRepository
	logger *zap.Logger
}

// NewTrendEngine creates a TrendEngine reading from store
func NewTrendEngine(store market.SnapshotRepository, logger *zap.Logger) *TrendEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrendEngine{store: store, logger: logger}
}

// Trend returns one point per stored snapshot in range. Missing collection
// days produce no point; nothing is interpolated.
func (e *TrendEngine) Trend(ctx context.Context, q TrendQuery) (*TrendResult, error) {
	if !q.Platform.IsValid() {
		return nil, fmt.Errorf("%w: unknown platform %q", market.ErrInvalidQuery, q.Platform)
	}
	if q.ProductID == "" {
		return nil, fmt.Errorf("%w: product id is required", market.ErrInvalidQuery)
	}
	if q.Metric == "" {
		q.Metric = market.MetricPopularityScore
	}
	if !q.Metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric %q", market.ErrInvalidQuery, q.Metric)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return nil, fmt.Errorf("%w: to is before from", market.ErrInvalidQuery)
	}

	snapshots, err := e.store.History(ctx, q.Platform, q.ProductID, q.From, q.To)
	if err != nil {
		return nil, fmt.Errorf("trend %s/%s: %w", q.Platform, q.ProductID, err)
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: %s/%s has no snapshots in range", market.ErrNoData, q.Platform, q.ProductID)
	}

	points := make([]TrendPoint, 0, len(snapshots))
	for _, s := range snapshots {
		points = append(points, TrendPoint{Timestamp: s.CollectedAt, Value: q.Metric.ValueOf(s.ProductRecord)})
	}
	change := changePct(points[0].Value, points[len(points)-1].Value)

	e.logger.Debug("Built trend",
		zap.String("platform", string(q.Platform)),
		zap.String("product_id", q.ProductID),
		zap.String("metric", string(q.Metric)),
		zap.Int("points", len(points)),
	)

	return &TrendResult{
		Platform:  q.Platform,
		ProductID: q.ProductID,
		Title:     snapshots[len(snapshots)-1].Title,
		Metric:    q.Metric,
		Points:    points,
		ChangePct: change,
		Direction: directionOf(change),
	}, nil
}

func changePct(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return round2((last - first) / first * 100)
}

func directionOf(change float64) Direction {
	switch {
	case change > directionThreshold:
		return DirectionRising
	case change < -directionThreshold:
		return DirectionFalling
	default:
		return DirectionStable
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
