package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bestseller/tracker/internal/domain/market"
)

func ids(records []market.ProductRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.PlatformProductID)
	}
	return out
}

func TestRanker_Rank_TieBreaks(t *testing.T) {
	store := (&fakeStore{}).add(
		record(market.PlatformTikTok, "c", "C", "Home", 5, 10, "1", baseTime),
		record(market.PlatformTikTok, "b", "B", "Home", 5, 20, "1", baseTime),
		record(market.PlatformTikTok, "a", "A", "Home", 5, 10, "1", baseTime),
		record(market.PlatformTikTok, "d", "D", "Home", 9, 1, "1", baseTime),
	)
	ranker := NewRanker(store, fixedNow, zaptest.NewLogger(t))

	got, err := ranker.Rank(context.Background(), RankQuery{TopN: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "a", "c"}, ids(got))
}

func TestRanker_Rank_TopNAndFilters(t *testing.T) {
	store := (&fakeStore{}).add(
		record(market.PlatformTikTok, "t1", "T1", "Home", 3, 1, "1", baseTime.Add(-2*time.Hour)),
		record(market.PlatformTikTok, "t2", "T2", "Home", 2, 1, "1", baseTime.Add(-48*time.Hour)),
		record(market.PlatformAmazon, "a1", "A1", "Home", 9, 1, "1", baseTime),
		record(market.PlatformTikTok, "t3", "T3", "Toys", 8, 1, "1", baseTime),
	)
	ranker := NewRanker(store, fixedNow, zaptest.NewLogger(t))

	got, err := ranker.Rank(context.Background(), RankQuery{
		Platform:  market.PlatformTikTok,
		Category:  "home",
		TimeRange: market.TimeRangeDay,
		TopN:      5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, ids(got))
	assert.Equal(t, "Home", store.lastFilter.Category)
	assert.Equal(t, baseTime.Add(-24*time.Hour), store.lastFilter.Since)

	got, err = ranker.Rank(context.Background(), RankQuery{TopN: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "t3"}, ids(got))
	assert.True(t, store.lastFilter.Since.IsZero())
}

func TestRanker_Rank_EmptyIsNotAnError(t *testing.T) {
	ranker := NewRanker(&fakeStore{}, fixedNow, nil)

	got, err := ranker.Rank(context.Background(), RankQuery{TopN: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRanker_Rank_InvalidQuery(t *testing.T) {
	ranker := NewRanker(&fakeStore{}, fixedNow, nil)

	tests := []struct {
		name  string
		query RankQuery
	}{
		{"zero top n", RankQuery{TopN: 0}},
		{"top n too large", RankQuery{TopN: MaxTopN + 1}},
		{"unknown platform", RankQuery{TopN: 1, Platform: "ebay"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ranker.Rank(context.Background(), tt.query)
			assert.ErrorIs(t, err, market.ErrInvalidQuery)
		})
	}
}

func TestRanker_Rank_StoreError(t *testing.T) {
	ranker := NewRanker(&fakeStore{err: errors.New("connection refused")}, fixedNow, nil)

	_, err := ranker.Rank(context.Background(), RankQuery{TopN: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRanker_Rising(t *testing.T) {
	day := 24 * time.Hour
	store := (&fakeStore{}).add(
		record(market.PlatformTikTok, "grow", "Grow", "Home", 1, 100, "1", baseTime.Add(-3*day)),
		record(market.PlatformTikTok, "grow", "Grow", "Home", 1, 150, "1", baseTime.Add(-2*day)),
		record(market.PlatformTikTok, "grow", "Grow", "Home", 1, 300, "1", baseTime.Add(-day)),
		record(market.PlatformTikTok, "slow", "Slow", "Home", 1, 100, "1", baseTime.Add(-2*day)),
		record(market.PlatformTikTok, "slow", "Slow", "Home", 1, 110, "1", baseTime.Add(-day)),
		record(market.PlatformTikTok, "drop", "Drop", "Home", 1, 100, "1", baseTime.Add(-2*day)),
		record(market.PlatformTikTok, "drop", "Drop", "Home", 1, 50, "1", baseTime.Add(-day)),
		record(market.PlatformTikTok, "single", "Single", "Home", 1, 10, "1", baseTime.Add(-day)),
		record(market.PlatformTikTok, "zero", "Zero", "Home", 1, 0, "1", baseTime.Add(-2*day)),
		record(market.PlatformTikTok, "zero", "Zero", "Home", 1, 40, "1", baseTime.Add(-day)),
		record(market.PlatformTikTok, "old", "Old", "Home", 1, 1, "1", baseTime.Add(-30*day)),
		record(market.PlatformTikTok, "old", "Old", "Home", 1, 90, "1", baseTime.Add(-29*day)),
	)
	ranker := NewRanker(store, fixedNow, zaptest.NewLogger(t))

	got, err := ranker.Rising(context.Background(), RisingQuery{Days: 7, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "grow", got[0].PlatformProductID)
	assert.Equal(t, 200.0, got[0].GrowthPct)
	assert.Equal(t, int64(100), got[0].FirstSales)
	assert.Equal(t, int64(300), got[0].LastSales)
	assert.Equal(t, 3, got[0].Snapshots)
	assert.Equal(t, "slow", got[1].PlatformProductID)
	assert.Equal(t, 10.0, got[1].GrowthPct)
	assert.Equal(t, "drop", got[2].PlatformProductID)
	assert.Equal(t, -50.0, got[2].GrowthPct)

	got, err = ranker.Rising(context.Background(), RisingQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "grow", got[0].PlatformProductID)

	_, err = ranker.Rising(context.Background(), RisingQuery{Days: -1, Limit: 1})
	assert.ErrorIs(t, err, market.ErrInvalidQuery)
}

func TestRanker_ByCategory(t *testing.T) {
	store := (&fakeStore{}).add(
		record(market.PlatformTikTok, "h1", "H1", "Home", 3, 1, "1", baseTime),
		record(market.PlatformTikTok, "h2", "H2", "Home", 5, 1, "1", baseTime),
		record(market.PlatformTikTok, "h3", "H3", "Home", 1, 1, "1", baseTime),
		record(market.PlatformAmazon, "b1", "B1", "Books", 2, 1, "1", baseTime),
		record(market.PlatformAmazon, "x1", "X1", "", 9, 1, "1", baseTime),
	)
	ranker := NewRanker(store, fixedNow, nil)

	got, err := ranker.ByCategory(context.Background(), "", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Books", got[0].Category)
	assert.Equal(t, []string{"b1"}, ids(got[0].Products))
	assert.Equal(t, "Home", got[1].Category)
	assert.Equal(t, []string{"h2", "h1"}, ids(got[1].Products))

	got, err = ranker.ByCategory(context.Background(), market.PlatformAmazon, 2)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Books", got[0].Category)
}

func TestRanker_ByPriceRange(t *testing.T) {
	store := (&fakeStore{}).add(
		record(market.PlatformShopee, "cheap", "Cheap", "Home", 2, 1, "9.99", baseTime),
		record(market.PlatformShopee, "edge", "Edge", "Home", 1, 1, "50", baseTime),
		record(market.PlatformShopee, "mid", "Mid", "Home", 3, 1, "120", baseTime),
		record(market.PlatformShopee, "lux", "Lux", "Home", 4, 1, "2500", baseTime),
	)
	ranker := NewRanker(store, fixedNow, nil)

	got, err := ranker.ByPriceRange(context.Background(), "", nil, 5)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0-50", got[0].Range.Label)
	assert.Equal(t, []string{"cheap"}, ids(got[0].Products))
	assert.Equal(t, "50-200", got[1].Range.Label)
	assert.Equal(t, []string{"mid", "edge"}, ids(got[1].Products))
	assert.Equal(t, "1000+", got[2].Range.Label)
	assert.Equal(t, []string{"lux"}, ids(got[2].Products))

	got, err = ranker.ByPriceRange(context.Background(), "", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"mid"}, ids(got[1].Products))
}

func TestPriceRange_Contains(t *testing.T) {
	ranges := DefaultPriceRanges()
	require.Len(t, ranges, 4)

	assert.True(t, ranges[0].Contains(decimal.Zero))
	assert.False(t, ranges[0].Contains(decimal.NewFromInt(50)))
	assert.True(t, ranges[1].Contains(decimal.NewFromInt(50)))
	assert.True(t, ranges[3].Contains(decimal.NewFromInt(1000000)))
	assert.Nil(t, ranges[3].Max)
}
