// Package tracker is the application facade used by the HTTP API and the
// command line: it triggers collection runs and serves rankings, trends and
// comparisons from the snapshot store.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/application/analytics"
	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/cache"
)

// ErrCollectionInProgress is returned when a collection is requested while a
// run is already executing
var ErrCollectionInProgress = errors.New("tracker: collection already in progress")

const (
	queryKeyPrefix  = "query:"
	defaultCacheTTL = 10 * time.Minute
	maxRunsListed   = 100

	// windowStep is the cache bucket of queries bounded by the clock. Their
	// keys carry the bucket start, so a result is never served for a window
	// more than one step older than the caller's.
	windowStep = time.Minute
)

// Collector runs one collection cycle. Begin creates the running record and
// Execute fills and finalizes it.
type Collector interface {
	Begin() *market.CollectionRun
	Execute(ctx context.Context, run *market.CollectionRun)
}

// Options tunes the Service
type Options struct {
	// CacheTTL is how long ranking and comparison results are cached
	CacheTTL time.Duration
	// Now is the clock used for time-range queries
	Now func() time.Time
}

// Service is the tracker facade
type Service struct {
	collector  Collector
	snapshots  market.SnapshotRepository
	runs       market.RunRepository
	ranker     *analytics.Ranker
	trends     *analytics.TrendEngine
	comparator *analytics.Comparator
	cache      cache.ResultCache
	cacheTTL   time.Duration
	now        func() time.Time
	logger     *zap.Logger

	collecting sync.Mutex
	background sync.WaitGroup
	stopCtx    context.Context
	stop       context.CancelFunc
}

// NewService creates a new tracker Service. A nil cache disables caching.
func NewService(
	collector Collector,
	snapshots market.SnapshotRepository,
	runs market.RunRepository,
	resultCache cache.ResultCache,
	logger *zap.Logger,
	opts Options,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resultCache == nil {
		resultCache = cache.NopResultCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	logger = logger.Named("tracker")
	stopCtx, stop := context.WithCancel(context.Background())
	return &Service{
		collector:  collector,
		snapshots:  snapshots,
		runs:       runs,
		ranker:     analytics.NewRanker(snapshots, opts.Now, logger),
		trends:     analytics.NewTrendEngine(snapshots, logger),
		comparator: analytics.NewComparator(snapshots, logger),
		cache:      resultCache,
		cacheTTL:   opts.CacheTTL,
		now:        opts.Now,
		logger:     logger,
		stopCtx:    stopCtx,
		stop:       stop,
	}
}

// ---------------------------------------------------------------------------
// Collection
// ---------------------------------------------------------------------------

// CollectData runs one collection cycle, stores the run record and drops
// cached query results. Only one run executes at a time. The returned run
// is never nil when err is nil or when only saving the run record failed.
func (s *Service) CollectData(ctx context.Context) (*market.CollectionRun, error) {
	if !s.collecting.TryLock() {
		return nil, ErrCollectionInProgress
	}
	defer s.collecting.Unlock()

	run := s.collector.Begin()
	s.collector.Execute(ctx, run)
	// the run record is written even when the caller has gone away
	if err := s.finish(context.WithoutCancel(ctx), run); err != nil {
		return run, err
	}
	return run, nil
}

// StartCollection stores a running record and executes the cycle in the
// background, detached from ctx. It returns the run id once the record is
// stored. Shutdown cancels and waits for the background run.
func (s *Service) StartCollection(ctx context.Context) (uuid.UUID, error) {
	if !s.collecting.TryLock() {
		return uuid.Nil, ErrCollectionInProgress
	}
	run := s.collector.Begin()
	if err := s.runs.Save(ctx, run); err != nil {
		s.collecting.Unlock()
		return uuid.Nil, fmt.Errorf("save run %s: %w", run.ID, err)
	}

	id := run.ID
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer s.collecting.Unlock()
		s.collector.Execute(s.stopCtx, run)
		_ = s.finish(context.WithoutCancel(s.stopCtx), run)
	}()
	return id, nil
}

// Shutdown cancels a background run and waits for its record to be saved
func (s *Service) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for background collection: %w", ctx.Err())
	}
}

// finish drops cached query results and saves the finalized run
func (s *Service) finish(ctx context.Context, run *market.CollectionRun) error {
	if err := s.cache.InvalidatePrefix(ctx, queryKeyPrefix); err != nil {
		s.logger.Warn("Failed to invalidate cached results", zap.Error(err))
	}
	if err := s.runs.Save(ctx, run); err != nil {
		s.logger.Error("Failed to save collection run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun returns a stored collection run
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*market.CollectionRun, error) {
	return s.runs.FindByID(ctx, id)
}

// ListRuns returns the most recent runs, newest first
func (s *Service) ListRuns(ctx context.Context, limit int) ([]market.CollectionRun, error) {
	if limit <= 0 || limit > maxRunsListed {
		return nil, fmt.Errorf("%w: limit must be between 1 and %d", market.ErrInvalidQuery, maxRunsListed)
	}
	return s.runs.FindRecent(ctx, limit)
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// GetHotProducts returns the current top products
func (s *Service) GetHotProducts(ctx context.Context, platform market.Platform, category string, timeRange market.TimeRange, limit int) ([]market.ProductRecord, error) {
	q := analytics.RankQuery{Platform: platform, Category: category, TimeRange: timeRange, TopN: limit}
	key := cache.Key("hot", string(platform), market.CanonicalCategory(category), string(timeRange), strconv.Itoa(limit))
	ttl := s.cacheTTL
	if timeRange != "" && timeRange != market.TimeRangeAll {
		key, ttl = s.windowed(key)
	}
	return cached(ctx, s, key, ttl, func() ([]market.ProductRecord, error) {
		return s.ranker.Rank(ctx, q)
	})
}

// GetTrend returns one product's metric series between from and to
func (s *Service) GetTrend(ctx context.Context, platform market.Platform, productID string, metric market.Metric, from, to time.Time) (*analytics.TrendResult, error) {
	return s.trends.Trend(ctx, analytics.TrendQuery{
		Platform:  platform,
		ProductID: productID,
		Metric:    metric,
		From:      from,
		To:        to,
	})
}

// GetComparison compares a category across platforms
func (s *Service) GetComparison(ctx context.Context, category string, metric market.Metric, platforms []market.Platform) (*analytics.ComparisonResult, error) {
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, string(p))
	}
	sort.Strings(names)
	key := cache.Key("compare", market.CanonicalCategory(category), string(metric), strings.Join(names, ","))
	return cached(ctx, s, key, s.cacheTTL, func() (*analytics.ComparisonResult, error) {
		return s.comparator.Compare(ctx, analytics.ComparisonQuery{
			Category:  category,
			Metric:    metric,
			Platforms: platforms,
		})
	})
}

// GetRisingProducts returns products with the fastest sales growth over days
func (s *Service) GetRisingProducts(ctx context.Context, platform market.Platform, category string, days, limit int) ([]analytics.RisingProduct, error) {
	key, ttl := s.windowed(cache.Key("rising", string(platform), market.CanonicalCategory(category), strconv.Itoa(days), strconv.Itoa(limit)))
	return cached(ctx, s, key, ttl, func() ([]analytics.RisingProduct, error) {
		return s.ranker.Rising(ctx, analytics.RisingQuery{Platform: platform, Category: category, Days: days, Limit: limit})
	})
}

// GetCategoryRankings returns the top products of every category
func (s *Service) GetCategoryRankings(ctx context.Context, platform market.Platform, perCategory int) ([]analytics.CategoryRanking, error) {
	key := cache.Key("categories-ranked", string(platform), strconv.Itoa(perCategory))
	return cached(ctx, s, key, s.cacheTTL, func() ([]analytics.CategoryRanking, error) {
		return s.ranker.ByCategory(ctx, platform, perCategory)
	})
}

// GetPriceRangeRankings returns the top products of each default price band
func (s *Service) GetPriceRangeRankings(ctx context.Context, platform market.Platform, perRange int) ([]analytics.PriceRangeRanking, error) {
	key := cache.Key("price-ranges", string(platform), strconv.Itoa(perRange))
	return cached(ctx, s, key, s.cacheTTL, func() ([]analytics.PriceRangeRanking, error) {
		return s.ranker.ByPriceRange(ctx, platform, nil, perRange)
	})
}

// GetMarketTrend returns the daily sales or price series of the market
func (s *Service) GetMarketTrend(ctx context.Context, platform market.Platform, category string, metric market.Metric, groupBy analytics.MarketGroup, days int) (*analytics.MarketTrend, error) {
	key, ttl := s.windowed(cache.Key("market", string(platform), market.CanonicalCategory(category), string(metric), string(groupBy), strconv.Itoa(days)))
	at := s.now()
	return cached(ctx, s, key, ttl, func() (*analytics.MarketTrend, error) {
		return s.trends.Aggregate(ctx, analytics.MarketTrendQuery{
			Platform: platform,
			Category: category,
			Metric:   metric,
			GroupBy:  groupBy,
			Days:     days,
			At:       at,
		})
	})
}

// GetCategoryTrend returns the best selling categories of the last days
func (s *Service) GetCategoryTrend(ctx context.Context, platform market.Platform, days int) (*analytics.CategoryTrend, error) {
	key, ttl := s.windowed(cache.Key("market-categories", string(platform), strconv.Itoa(days)))
	at := s.now()
	return cached(ctx, s, key, ttl, func() (*analytics.CategoryTrend, error) {
		return s.trends.Categories(ctx, platform, days, at)
	})
}

// GetTrendSummary condenses the market trends of the last days
func (s *Service) GetTrendSummary(ctx context.Context, platform market.Platform, days int) (*analytics.MarketSummary, error) {
	key, ttl := s.windowed(cache.Key("market-summary", string(platform), strconv.Itoa(days)))
	at := s.now()
	return cached(ctx, s, key, ttl, func() (*analytics.MarketSummary, error) {
		return s.trends.Summary(ctx, platform, days, at)
	})
}

// GetCategories returns the known categories, optionally for one platform
func (s *Service) GetCategories(ctx context.Context, platform market.Platform) ([]string, error) {
	categories, err := s.snapshots.Categories(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// GetSystemStats returns store-wide counters
func (s *Service) GetSystemStats(ctx context.Context) (*market.Stats, error) {
	stats, err := s.snapshots.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("system stats: %w", err)
	}
	return stats, nil
}

// windowed suffixes key with the current clock bucket and returns the TTL
// for it, capped at one bucket
func (s *Service) windowed(key string) (string, time.Duration) {
	bucket := s.now().Truncate(windowStep)
	ttl := s.cacheTTL
	if ttl > windowStep {
		ttl = windowStep
	}
	return cache.Key(key, strconv.FormatInt(bucket.Unix(), 10)), ttl
}

// cached serves key from the result cache, loading and storing it for ttl
// on a miss. Cache failures are logged and never fail the query.
func cached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	key = queryKeyPrefix + key

	var hit T
	found, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		s.logger.Warn("Result cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		return hit, nil
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	if err := s.cache.Set(ctx, key, v, ttl); err != nil {
		s.logger.Warn("Result cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}
