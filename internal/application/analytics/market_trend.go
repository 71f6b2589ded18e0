package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/domain/market"
)

const (
	defaultMarketDays = 30
	maxMarketDays     = 366
	topCategoryCount  = 5

	dayLayout = "2006-01-02"
)

// MarketGroup selects how a market trend is split into series
type MarketGroup string

const (
	GroupByPlatform MarketGroup = "platform"
	GroupByCategory MarketGroup = "category"
	GroupByNone     MarketGroup = "none"
)

// MarketTrendQuery selects the snapshots aggregated into daily market series.
// Metric is sales_count (daily sum) or price (daily mean). An empty GroupBy
// splits by category when a platform is given, by nothing when both platform
// and category are given, and by platform otherwise. A zero At means now.
type MarketTrendQuery struct {
	Platform market.Platform
	Category string
	Metric   market.Metric
	GroupBy  MarketGroup
	Days     int
	At       time.Time
}

// DailyValue is one UTC day of an aggregated series
type DailyValue struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// MarketSeries is the daily aggregate of one group
type MarketSeries struct {
	Group     string       `json:"group"`
	Points    []DailyValue `json:"points"`
	ChangePct float64      `json:"change_pct"`
}

// MarketTrend is a market-level metric aggregated per day. Days without
// snapshots are absent from every series.
type MarketTrend struct {
	Metric    market.Metric  `json:"metric"`
	GroupBy   MarketGroup    `json:"group_by"`
	From      time.Time      `json:"from"`
	To        time.Time      `json:"to"`
	Series    []MarketSeries `json:"series"`
	Overall   []DailyValue   `json:"overall"`
	ChangePct float64        `json:"change_pct"`
	Direction Direction      `json:"direction"`
}

// CategoryShare is one category's sales across the window
type CategoryShare struct {
	Category   string       `json:"category"`
	TotalSales int64        `json:"total_sales"`
	SharePct   float64      `json:"share_pct"`
	GrowthPct  float64      `json:"growth_pct"`
	Points     []DailyValue `json:"points"`
}

// CategoryTrend lists the best selling categories of the window
type CategoryTrend struct {
	From       time.Time       `json:"from"`
	To         time.Time       `json:"to"`
	Categories []CategoryShare `json:"categories"`
}

// MarketSummary condenses the sales, category and price trends of a window
type MarketSummary struct {
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	SalesGrowthPct float64        `json:"sales_growth_pct"`
	SalesDirection Direction      `json:"sales_direction"`
	PriceChangePct float64        `json:"price_change_pct"`
	PriceDirection Direction      `json:"price_direction"`
	TopCategory    *CategoryShare `json:"top_category,omitempty"`
	FastestGrowing *CategoryShare `json:"fastest_growing,omitempty"`
}

// ---------------------------------------------------------------------------
// Aggregation
// ---------------------------------------------------------------------------

// Aggregate builds daily market series from every snapshot in the window.
// A product collected several times in one day counts once, with its last
// snapshot of that day.
func (e *TrendEngine) Aggregate(ctx context.Context, q MarketTrendQuery) (*MarketTrend, error) {
	if q.Metric == "" {
		q.Metric = market.MetricSalesCount
	}
	if q.Metric != market.MetricSalesCount && q.Metric != market.MetricPrice {
		return nil, fmt.Errorf("%w: market trends support sales_count and price, got %q", market.ErrInvalidQuery, q.Metric)
	}
	if q.GroupBy == "" {
		q.GroupBy = defaultGroup(q.Platform, q.Category)
	}
	switch q.GroupBy {
	case GroupByPlatform, GroupByCategory, GroupByNone:
	default:
		return nil, fmt.Errorf("%w: unknown group %q", market.ErrInvalidQuery, q.GroupBy)
	}

	from, to, daily, err := e.dailySnapshots(ctx, q.Platform, q.Category, q.Days, q.At)
	if err != nil {
		return nil, err
	}

	groups := make(map[string]map[string][]float64)
	overall := make(map[string][]float64)
	for _, d := range daily {
		v := q.Metric.ValueOf(d.ProductRecord)
		g := groupOf(q.GroupBy, d.ProductRecord)
		if groups[g] == nil {
			groups[g] = make(map[string][]float64)
		}
		day := dayOf(d.CollectedAt)
		groups[g][day] = append(groups[g][day], v)
		overall[day] = append(overall[day], v)
	}

	reduce := sum
	if q.Metric == market.MetricPrice {
		reduce = mean
	}

	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	result := &MarketTrend{
		Metric:  q.Metric,
		GroupBy: q.GroupBy,
		From:    from,
		To:      to,
		Series:  make([]MarketSeries, 0, len(names)),
		Overall: toSeries(overall, reduce),
	}
	for _, g := range names {
		points := toSeries(groups[g], reduce)
		result.Series = append(result.Series, MarketSeries{Group: g, Points: points, ChangePct: seriesChange(points)})
	}
	result.ChangePct = seriesChange(result.Overall)
	result.Direction = directionOf(result.ChangePct)

	e.logger.Debug("Aggregated market trend",
		zap.String("metric", string(q.Metric)),
		zap.String("group_by", string(q.GroupBy)),
		zap.Int("series", len(result.Series)),
		zap.Int("days", len(result.Overall)),
	)
	return result, nil
}

// Categories returns the five best selling categories of the window with
// their share of all category sales and their first-to-last day growth.
func (e *TrendEngine) Categories(ctx context.Context, platform market.Platform, days int, at time.Time) (*CategoryTrend, error) {
	from, to, daily, err := e.dailySnapshots(ctx, platform, "", days, at)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]int64)
	perDay := make(map[string]map[string][]float64)
	var all int64
	for _, d := range daily {
		if d.Category == "" {
			continue
		}
		totals[d.Category] += d.SalesCount
		all += d.SalesCount
		if perDay[d.Category] == nil {
			perDay[d.Category] = make(map[string][]float64)
		}
		day := dayOf(d.CollectedAt)
		perDay[d.Category][day] = append(perDay[d.Category][day], float64(d.SalesCount))
	}

	shares := make([]CategoryShare, 0, len(totals))
	for name, total := range totals {
		points := toSeries(perDay[name], sum)
		share := CategoryShare{
			Category:   name,
			TotalSales: total,
			GrowthPct:  seriesChange(points),
			Points:     points,
		}
		if all > 0 {
			share.SharePct = round2(float64(total) / float64(all) * 100)
		}
		shares = append(shares, share)
	}
	sort.Slice(shares, func(i, j int) bool {
		if shares[i].TotalSales != shares[j].TotalSales {
			return shares[i].TotalSales > shares[j].TotalSales
		}
		return shares[i].Category < shares[j].Category
	})
	if len(shares) > topCategoryCount {
		shares = shares[:topCategoryCount]
	}
	return &CategoryTrend{From: from, To: to, Categories: shares}, nil
}

// Summary reports overall sales growth, price change, the best selling and
// the fastest growing category of the window
func (e *TrendEngine) Summary(ctx context.Context, platform market.Platform, days int, at time.Time) (*MarketSummary, error) {
	sales, err := e.Aggregate(ctx, MarketTrendQuery{Platform: platform, Metric: market.MetricSalesCount, GroupBy: GroupByNone, Days: days, At: at})
	if err != nil {
		return nil, err
	}
	prices, err := e.Aggregate(ctx, MarketTrendQuery{Platform: platform, Metric: market.MetricPrice, GroupBy: GroupByNone, Days: days, At: at})
	if err != nil {
		return nil, err
	}
	categories, err := e.Categories(ctx, platform, days, at)
	if err != nil {
		return nil, err
	}

	summary := &MarketSummary{
		From:           sales.From,
		To:             sales.To,
		SalesGrowthPct: sales.ChangePct,
		SalesDirection: sales.Direction,
		PriceChangePct: prices.ChangePct,
		PriceDirection: prices.Direction,
	}
	if len(categories.Categories) > 0 {
		top := categories.Categories[0]
		summary.TopCategory = &top
		fastest := categories.Categories[0]
		for _, c := range categories.Categories[1:] {
			if c.GrowthPct > fastest.GrowthPct {
				fastest = c
			}
		}
		summary.FastestGrowing = &fastest
	}
	return summary, nil
}

// dailySnapshots loads the window and keeps the last snapshot of each
// product per UTC day
func (e *TrendEngine) dailySnapshots(ctx context.Context, platform market.Platform, category string, days int, at time.Time) (time.Time, time.Time, []market.Snapshot, error) {
	if platform != "" && !platform.IsValid() {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("%w: unknown platform %q", market.ErrInvalidQuery, platform)
	}
	if days < 0 || days > maxMarketDays {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("%w: days must be between 1 and %d", market.ErrInvalidQuery, maxMarketDays)
	}
	if days == 0 {
		days = defaultMarketDays
	}
	to := at
	if to.IsZero() {
		to = time.Now().UTC()
	}
	from := to.Add(-time.Duration(days) * 24 * time.Hour)

	snapshots, err := e.store.HistoryFor(ctx, market.LatestFilter{
		Platform: platform,
		Category: market.CanonicalCategory(category),
	}, from, to)
	if err != nil {
		return time.Time{}, time.Time{}, nil, fmt.Errorf("market trend: %w", err)
	}

	type dayKey struct {
		market.SnapshotKey
		day string
	}
	last := make(map[dayKey]market.Snapshot, len(snapshots))
	for _, s := range snapshots {
		k := dayKey{
			SnapshotKey: market.SnapshotKey{Platform: s.Platform, PlatformProductID: s.PlatformProductID},
			day:         dayOf(s.CollectedAt),
		}
		if cur, ok := last[k]; !ok || s.CollectedAt.After(cur.CollectedAt) {
			last[k] = s
		}
	}
	daily := make([]market.Snapshot, 0, len(last))
	for _, s := range last {
		daily = append(daily, s)
	}
	return from, to, daily, nil
}

func defaultGroup(platform market.Platform, category string) MarketGroup {
	switch {
	case platform != "" && category != "":
		return GroupByNone
	case platform != "":
		return GroupByCategory
	default:
		return GroupByPlatform
	}
}

func groupOf(g MarketGroup, r market.ProductRecord) string {
	switch g {
	case GroupByPlatform:
		return string(r.Platform)
	case GroupByCategory:
		if r.Category == "" {
			return "uncategorized"
		}
		return r.Category
	default:
		return "all"
	}
}

func dayOf(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// toSeries reduces each day's values and orders the days; the layout sorts
// lexically in date order
func toSeries(byDay map[string][]float64, reduce func([]float64) float64) []DailyValue {
	out := make([]DailyValue, 0, len(byDay))
	for day, values := range byDay {
		out = append(out, DailyValue{Date: day, Value: round2(reduce(values))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func seriesChange(points []DailyValue) float64 {
	if len(points) == 0 {
		return 0
	}
	return changePct(points[0].Value, points[len(points)-1].Value)
}

func sum(values []float64) float64 {
	var total float64
	for _, v := range values {
		total += v
	}
	return total
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sum(values) / float64(len(values))
}
