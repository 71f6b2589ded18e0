package analytics

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/domain/market"
)

// DefaultComparisonLimit bounds the rows and per-platform lists of a comparison
const DefaultComparisonLimit = 20

// ComparisonQuery selects the products to compare. No platforms means all.
type ComparisonQuery struct {
	Category  string
	Metric    market.Metric
	Platforms []market.Platform
	Limit     int
}

// ComparisonRow aligns one product across platforms by its match key.
// Platforms without a matching product are absent from Entries.
type ComparisonRow struct {
	MatchKey  string                                   `json:"match_key"`
	Entries   map[market.Platform]market.ProductRecord `json:"entries"`
	BestValue float64                                  `json:"best_value"`
}

// ComparisonResult holds matched rows and each platform's own ranking
type ComparisonResult struct {
	Category   string                                     `json:"category"`
	Metric     market.Metric                              `json:"metric"`
	Platforms  []market.Platform                          `json:"platforms"`
	Rows       []ComparisonRow                            `json:"rows"`
	ByPlatform map[market.Platform][]market.ProductRecord `json:"by_platform"`
}

// ---------------------------------------------------------------------------
// Comparator
// ---------------------------------------------------------------------------

// Comparator lines up the latest products of several platforms.
//
// Products match when their titles are equal after lower-casing and
// collapsing whitespace. Listings that word the same item differently are
// not matched.
type Comparator struct {
	store  market.SnapshotRepository
	logger *zap.Logger
}

// NewComparator creates a Comparator reading from store
func NewComparator(store market.SnapshotRepository, logger *zap.Logger) *Comparator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Comparator{store: store, logger: logger}
}

// Compare returns rows of products found on at least two of the requested
// platforms, best metric value first, plus each platform's ranked list.
func (c *Comparator) Compare(ctx context.Context, q ComparisonQuery) (*ComparisonResult, error) {
	category := market.CanonicalCategory(q.Category)
	if category == "" {
		return nil, fmt.Errorf("%w: category is required", market.ErrInvalidQuery)
	}
	if q.Metric == "" {
		q.Metric = market.MetricPopularityScore
	}
	if !q.Metric.IsValid() {
		return nil, fmt.Errorf("%w: unknown metric %q", market.ErrInvalidQuery, q.Metric)
	}
	if len(q.Platforms) == 0 {
		q.Platforms = market.AllPlatforms()
	}
	if q.Limit == 0 {
		q.Limit = DefaultComparisonLimit
	}
	if err := validateLimit("limit", q.Limit); err != nil {
		return nil, err
	}

	result := &ComparisonResult{
		Category:   category,
		Metric:     q.Metric,
		Platforms:  q.Platforms,
		Rows:       []ComparisonRow{},
		ByPlatform: make(map[market.Platform][]market.ProductRecord, len(q.Platforms)),
	}

	rows := make(map[string]*ComparisonRow)
	var keys []string
	total := 0
	for _, p := range q.Platforms {
		if !p.IsValid() {
			return nil, fmt.Errorf("%w: unknown platform %q", market.ErrInvalidQuery, p)
		}
		records, err := c.store.Latest(ctx, market.LatestFilter{Platform: p, Category: category})
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", p, err)
		}
		total += len(records)
		sortByMetric(records, q.Metric)
		result.ByPlatform[p] = head(records, q.Limit)

		// records are best first, so the first product per key wins
		for _, rec := range records {
			key := rec.MatchKey()
			row, ok := rows[key]
			if !ok {
				row = &ComparisonRow{MatchKey: key, Entries: make(map[market.Platform]market.ProductRecord)}
				rows[key] = row
				keys = append(keys, key)
			}
			if _, seen := row.Entries[p]; !seen {
				row.Entries[p] = rec
			}
		}
	}

	if total == 0 {
		return nil, fmt.Errorf("%w: no products in category %q", market.ErrNoData, category)
	}

	for _, key := range keys {
		row := rows[key]
		if len(row.Entries) < 2 {
			continue
		}
		first := true
		for _, rec := range row.Entries {
			v := q.Metric.ValueOf(rec)
			if first || better(q.Metric, v, row.BestValue) {
				row.BestValue = v
				first = false
			}
		}
		result.Rows = append(result.Rows, *row)
	}
	sort.SliceStable(result.Rows, func(i, j int) bool {
		a, b := result.Rows[i], result.Rows[j]
		if a.BestValue != b.BestValue {
			return better(q.Metric, a.BestValue, b.BestValue)
		}
		return a.MatchKey < b.MatchKey
	})
	if len(result.Rows) > q.Limit {
		result.Rows = result.Rows[:q.Limit]
	}

	c.logger.Debug("Compared platforms",
		zap.String("category", category),
		zap.String("metric", string(q.Metric)),
		zap.Int("candidates", total),
		zap.Int("matched_rows", len(result.Rows)),
	)
	return result, nil
}

// better reports whether a ranks ahead of b. A lower price is better; for
// every other metric a higher value is.
func better(m market.Metric, a, b float64) bool {
	if m == market.MetricPrice {
		return a < b
	}
	return a > b
}

func sortByMetric(records []market.ProductRecord, m market.Metric) {
	sort.SliceStable(records, func(i, j int) bool {
		vi, vj := m.ValueOf(records[i]), m.ValueOf(records[j])
		if vi != vj {
			return better(m, vi, vj)
		}
		return less(records[i], records[j])
	})
}
