package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bestseller/tracker/internal/domain/market"
)

// marketStore holds three days of snapshots with no collection on day 2
func marketStore() *fakeStore {
	day1 := baseTime.Add(-72 * time.Hour)
	day3 := baseTime.Add(-24 * time.Hour)
	return (&fakeStore{}).add(
		record(market.PlatformTikTok, "t1", "Lamp", "Home", 5, 100, "10.00", day1),
		// an earlier run the same day is superseded by the later one
		record(market.PlatformTikTok, "t1", "Lamp", "Home", 5, 90, "10.00", day1.Add(-time.Hour)),
		record(market.PlatformTikTok, "t2", "Shirt", "Apparel", 5, 50, "30.00", day1),
		record(market.PlatformAmazon, "a1", "Kettle", "Home", 5, 200, "20.00", day1),
		record(market.PlatformTikTok, "t1", "Lamp", "Home", 5, 150, "12.00", day3),
		record(market.PlatformTikTok, "t2", "Shirt", "Apparel", 5, 100, "30.00", day3),
		record(market.PlatformAmazon, "a1", "Kettle", "Home", 5, 250, "22.00", day3),
	)
}

func TestTrendEngine_Aggregate_SalesByPlatform(t *testing.T) {
	engine := NewTrendEngine(marketStore(), zaptest.NewLogger(t))

	got, err := engine.Aggregate(context.Background(), MarketTrendQuery{Days: 7, At: baseTime})
	require.NoError(t, err)

	assert.Equal(t, GroupByPlatform, got.GroupBy)
	assert.Equal(t, market.MetricSalesCount, got.Metric)
	require.Len(t, got.Series, 2)
	assert.Equal(t, "amazon", got.Series[0].Group)
	assert.Equal(t, "tiktok", got.Series[1].Group)

	// the empty day stays a gap
	require.Len(t, got.Overall, 2)
	assert.Equal(t, DailyValue{Date: "2026-02-26", Value: 350}, got.Overall[0])
	assert.Equal(t, DailyValue{Date: "2026-02-28", Value: 500}, got.Overall[1])
	assert.InDelta(t, 42.86, got.ChangePct, 0.001)
	assert.Equal(t, DirectionRising, got.Direction)

	assert.Equal(t, []DailyValue{{"2026-02-26", 150}, {"2026-02-28", 250}}, got.Series[1].Points)
	assert.InDelta(t, 66.67, got.Series[1].ChangePct, 0.001)
}

func TestTrendEngine_Aggregate_PriceByCategory(t *testing.T) {
	store := marketStore()
	engine := NewTrendEngine(store, nil)

	got, err := engine.Aggregate(context.Background(), MarketTrendQuery{
		Platform: market.PlatformTikTok,
		Metric:   market.MetricPrice,
		Days:     7,
		At:       baseTime,
	})
	require.NoError(t, err)
	assert.Equal(t, market.PlatformTikTok, store.lastFilter.Platform)

	assert.Equal(t, GroupByCategory, got.GroupBy)
	require.Len(t, got.Series, 2)
	assert.Equal(t, "Apparel", got.Series[0].Group)
	assert.Equal(t, 0.0, got.Series[0].ChangePct)
	assert.Equal(t, "Home", got.Series[1].Group)
	assert.Equal(t, 20.0, got.Series[1].ChangePct)

	require.Len(t, got.Overall, 2)
	assert.Equal(t, 20.0, got.Overall[0].Value)
	assert.Equal(t, 21.0, got.Overall[1].Value)
	assert.Equal(t, DirectionStable, got.Direction)
}

func TestTrendEngine_Aggregate_WindowAndValidation(t *testing.T) {
	engine := NewTrendEngine(marketStore(), nil)
	ctx := context.Background()

	got, err := engine.Aggregate(ctx, MarketTrendQuery{Days: 2, At: baseTime})
	require.NoError(t, err)
	require.Len(t, got.Overall, 1)
	assert.Equal(t, "2026-02-28", got.Overall[0].Date)
	assert.Equal(t, 0.0, got.ChangePct)

	empty, err := engine.Aggregate(ctx, MarketTrendQuery{Days: 1, At: baseTime.Add(-100 * time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, empty.Series)
	assert.Empty(t, empty.Overall)

	tests := []MarketTrendQuery{
		{Metric: market.MetricRating},
		{GroupBy: "brand"},
		{Platform: "ebay"},
		{Days: -1},
		{Days: maxMarketDays + 1},
	}
	for _, q := range tests {
		_, err := engine.Aggregate(ctx, q)
		assert.ErrorIs(t, err, market.ErrInvalidQuery, "%+v", q)
	}

	failing := NewTrendEngine(&fakeStore{err: errors.New("connection refused")}, nil)
	_, err = failing.Aggregate(ctx, MarketTrendQuery{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestTrendEngine_Categories(t *testing.T) {
	store := marketStore()
	day3 := baseTime.Add(-24 * time.Hour)
	for i, name := range []string{"Toys", "Garden", "Books", "Sports"} {
		store.add(record(market.PlatformAmazon, name, name, name, 1, int64(10+i), "5.00", day3))
	}
	engine := NewTrendEngine(store, nil)

	got, err := engine.Categories(context.Background(), "", 7, baseTime)
	require.NoError(t, err)

	require.Len(t, got.Categories, topCategoryCount)
	home := got.Categories[0]
	assert.Equal(t, "Home", home.Category)
	assert.Equal(t, int64(700), home.TotalSales)
	assert.InDelta(t, 700.0/896*100, home.SharePct, 0.01)
	assert.InDelta(t, 33.33, home.GrowthPct, 0.001)

	apparel := got.Categories[1]
	assert.Equal(t, "Apparel", apparel.Category)
	assert.Equal(t, 100.0, apparel.GrowthPct)

	names := make([]string, 0, len(got.Categories))
	for _, c := range got.Categories {
		names = append(names, c.Category)
	}
	assert.Equal(t, []string{"Home", "Apparel", "Sports", "Books", "Garden"}, names)
}

func TestTrendEngine_Summary(t *testing.T) {
	engine := NewTrendEngine(marketStore(), nil)

	got, err := engine.Summary(context.Background(), "", 7, baseTime)
	require.NoError(t, err)

	assert.InDelta(t, 42.86, got.SalesGrowthPct, 0.001)
	assert.Equal(t, DirectionRising, got.SalesDirection)
	// mean price moves from 20.00 to 21.33
	assert.InDelta(t, 6.65, got.PriceChangePct, 0.001)
	assert.Equal(t, DirectionRising, got.PriceDirection)
	require.NotNil(t, got.TopCategory)
	assert.Equal(t, "Home", got.TopCategory.Category)
	require.NotNil(t, got.FastestGrowing)
	assert.Equal(t, "Apparel", got.FastestGrowing.Category)

	none, err := engine.Summary(context.Background(), "", 1, baseTime.Add(-100*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, none.TopCategory)
	assert.Nil(t, none.FastestGrowing)
	assert.Equal(t, DirectionStable, none.SalesDirection)
}
