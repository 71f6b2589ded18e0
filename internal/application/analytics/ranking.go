package analytics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/domain/market"
)

const (
	// MaxTopN bounds every ranking request
	MaxTopN = 500

	defaultRisingDays = 7
)

// RankQuery selects products for a hot-list ranking.
// Empty Platform and Category mean all.
type RankQuery struct {
	Platform  market.Platform
	Category  string
	TimeRange market.TimeRange
	TopN      int
}

// RisingQuery selects products whose sales grew over the last Days days
type RisingQuery struct {
	Platform market.Platform
	Category string
	Days     int
	Limit    int
}

// RisingProduct is a product with its sales growth across the window
type RisingProduct struct {
	market.ProductRecord
	FirstSales int64   `json:"first_sales"`
	LastSales  int64   `json:"last_sales"`
	GrowthPct  float64 `json:"growth_pct"`
	Snapshots  int     `json:"snapshots"`
}

// CategoryRanking is the hot list of one category
type CategoryRanking struct {
	Category string                 `json:"category"`
	Products []market.ProductRecord `json:"products"`
}

// PriceRange is a half-open interval [Min, Max). A nil Max is unbounded.
type PriceRange struct {
	Label string           `json:"label"`
	Min   decimal.Decimal  `json:"min"`
	Max   *decimal.Decimal `json:"max,omitempty"`
}

// Contains reports whether price falls in the range
func (r PriceRange) Contains(price decimal.Decimal) bool {
	if price.LessThan(r.Min) {
		return false
	}
	return r.Max == nil || price.LessThan(*r.Max)
}

// PriceRangeRanking is the hot list of one price band
type PriceRangeRanking struct {
	Range    PriceRange             `json:"range"`
	Products []market.ProductRecord `json:"products"`
}

// DefaultPriceRanges returns the budget, mid-range, premium and luxury bands
func DefaultPriceRanges() []PriceRange {
	bound := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	return []PriceRange{
		{Label: "0-50", Min: decimal.Zero, Max: bound(50)},
		{Label: "50-200", Min: decimal.NewFromInt(50), Max: bound(200)},
		{Label: "200-1000", Min: decimal.NewFromInt(200), Max: bound(1000)},
		{Label: "1000+", Min: decimal.NewFromInt(1000)},
	}
}

// ---------------------------------------------------------------------------
// Ranker
// ---------------------------------------------------------------------------

// Ranker produces hot-product lists from the latest snapshots
type Ranker struct {
	store  market.SnapshotRepository
	now    func() time.Time
	logger *zap.Logger
}

// NewRanker creates a Ranker reading from store
func NewRanker(store market.SnapshotRepository, now func() time.Time, logger *zap.Logger) *Ranker {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ranker{store: store, now: now, logger: logger}
}

// Rank returns up to TopN products ordered by score, then sales, then id.
// An empty result is not an error.
func (r *Ranker) Rank(ctx context.Context, q RankQuery) ([]market.ProductRecord, error) {
	if err := validateLimit("top_n", q.TopN); err != nil {
		return nil, err
	}
	if q.Platform != "" && !q.Platform.IsValid() {
		return nil, fmt.Errorf("%w: unknown platform %q", market.ErrInvalidQuery, q.Platform)
	}
	if q.TimeRange == "" {
		q.TimeRange = market.TimeRangeAll
	}

	records, err := r.store.Latest(ctx, market.LatestFilter{
		Platform: q.Platform,
		Category: market.CanonicalCategory(q.Category),
		Since:    q.TimeRange.Since(r.now()),
	})
	if err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}

	SortRecords(records)
	r.logger.Debug("Ranked products",
		zap.String("platform", string(q.Platform)),
		zap.String("category", q.Category),
		zap.String("time_range", string(q.TimeRange)),
		zap.Int("candidates", len(records)),
	)
	return head(records, q.TopN), nil
}

// Rising returns products ordered by sales growth between their first and
// last snapshot in the window. Products with a single snapshot or no
// starting sales are left out.
func (r *Ranker) Rising(ctx context.Context, q RisingQuery) ([]RisingProduct, error) {
	if err := validateLimit("limit", q.Limit); err != nil {
		return nil, err
	}
	if q.Days < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", market.ErrInvalidQuery)
	}
	if q.Days == 0 {
		q.Days = defaultRisingDays
	}

	to := r.now()
	from := to.Add(-time.Duration(q.Days) * 24 * time.Hour)
	snapshots, err := r.store.HistoryFor(ctx, market.LatestFilter{
		Platform: q.Platform,
		Category: market.CanonicalCategory(q.Category),
	}, from, to)
	if err != nil {
		return nil, fmt.Errorf("rising: %w", err)
	}

	type series struct {
		first, last market.Snapshot
		count       int
	}
	var order []market.SnapshotKey
	byProduct := make(map[market.SnapshotKey]*series)
	for _, s := range snapshots {
		k := market.SnapshotKey{Platform: s.Platform, PlatformProductID: s.PlatformProductID}
		cur, ok := byProduct[k]
		if !ok {
			byProduct[k] = &series{first: s, last: s, count: 1}
			order = append(order, k)
			continue
		}
		cur.last = s
		cur.count++
	}

	rising := make([]RisingProduct, 0, len(order))
	for _, k := range order {
		s := byProduct[k]
		if s.count < 2 || s.first.SalesCount <= 0 {
			continue
		}
		growth := float64(s.last.SalesCount-s.first.SalesCount) / float64(s.first.SalesCount) * 100
		rising = append(rising, RisingProduct{
			ProductRecord: s.last.ProductRecord,
			FirstSales:    s.first.SalesCount,
			LastSales:     s.last.SalesCount,
			GrowthPct:     round2(growth),
			Snapshots:     s.count,
		})
	}

	sort.SliceStable(rising, func(i, j int) bool {
		if rising[i].GrowthPct != rising[j].GrowthPct {
			return rising[i].GrowthPct > rising[j].GrowthPct
		}
		return less(rising[i].ProductRecord, rising[j].ProductRecord)
	})
	if len(rising) > q.Limit {
		rising = rising[:q.Limit]
	}
	return rising, nil
}

// ByCategory returns the top perCategory products of every known category
func (r *Ranker) ByCategory(ctx context.Context, platform market.Platform, perCategory int) ([]CategoryRanking, error) {
	if err := validateLimit("per_category", perCategory); err != nil {
		return nil, err
	}
	records, err := r.store.Latest(ctx, market.LatestFilter{Platform: platform})
	if err != nil {
		return nil, fmt.Errorf("category rankings: %w", err)
	}
	SortRecords(records)

	var names []string
	grouped := make(map[string][]market.ProductRecord)
	for _, rec := range records {
		if rec.Category == "" {
			continue
		}
		if _, ok := grouped[rec.Category]; !ok {
			names = append(names, rec.Category)
		}
		if len(grouped[rec.Category]) < perCategory {
			grouped[rec.Category] = append(grouped[rec.Category], rec)
		}
	}
	sort.Strings(names)

	out := make([]CategoryRanking, 0, len(names))
	for _, name := range names {
		out = append(out, CategoryRanking{Category: name, Products: grouped[name]})
	}
	return out, nil
}

// ByPriceRange returns the top perRange products of each price band.
// Bands with no products are omitted.
func (r *Ranker) ByPriceRange(ctx context.Context, platform market.Platform, ranges []PriceRange, perRange int) ([]PriceRangeRanking, error) {
	if err := validateLimit("per_range", perRange); err != nil {
		return nil, err
	}
	if len(ranges) == 0 {
		ranges = DefaultPriceRanges()
	}
	records, err := r.store.Latest(ctx, market.LatestFilter{Platform: platform})
	if err != nil {
		return nil, fmt.Errorf("price range rankings: %w", err)
	}
	SortRecords(records)

	out := make([]PriceRangeRanking, 0, len(ranges))
	for _, pr := range ranges {
		var products []market.ProductRecord
		for _, rec := range records {
			if len(products) == perRange {
				break
			}
			if pr.Contains(rec.Price) {
				products = append(products, rec)
			}
		}
		if len(products) > 0 {
			out = append(out, PriceRangeRanking{Range: pr, Products: products})
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// ordering helpers
// ---------------------------------------------------------------------------

// SortRecords orders records by popularity score descending, then sales
// descending, then platform product id ascending. Platform breaks the
// remaining ties so the order is total.
func SortRecords(records []market.ProductRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return less(records[i], records[j])
	})
}

func less(a, b market.ProductRecord) bool {
	if a.PopularityScore != b.PopularityScore {
		return a.PopularityScore > b.PopularityScore
	}
	if a.SalesCount != b.SalesCount {
		return a.SalesCount > b.SalesCount
	}
	if a.PlatformProductID != b.PlatformProductID {
		return a.PlatformProductID < b.PlatformProductID
	}
	return a.Platform < b.Platform
}

func head(records []market.ProductRecord, n int) []market.ProductRecord {
	if len(records) > n {
		return records[:n]
	}
	return records
}

func validateLimit(name string, n int) error {
	if n <= 0 || n > MaxTopN {
		return fmt.Errorf("%w: %s must be between 1 and %d", market.ErrInvalidQuery, name, MaxTopN)
	}
	return nil
}
