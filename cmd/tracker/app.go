package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bestseller/tracker/internal/application/collection"
	"github.com/bestseller/tracker/internal/application/tracker"
	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/cache"
	"github.com/bestseller/tracker/internal/infrastructure/config"
	"github.com/bestseller/tracker/internal/infrastructure/ecommerce"
	"github.com/bestseller/tracker/internal/infrastructure/logger"
	"github.com/bestseller/tracker/internal/infrastructure/persistence"
	"github.com/bestseller/tracker/internal/infrastructure/telemetry"
)

const (
	slowQueryThreshold = 200 * time.Millisecond
	// mockSeed keeps mock product ids stable across restarts
	mockSeed = 42
)

// app holds the wired components shared by every subcommand
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *persistence.Database
	meters  *telemetry.MeterProvider
	pool    *telemetry.DBPoolMetrics
	cache   cache.ResultCache
	service *tracker.Service

	// platforms restricts collection to these platforms when set
	platforms []market.Platform
}

// openDatabase connects to the configured database with a zap-backed gorm logger
func openDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log.Named("gorm"), logger.MapGormLogLevel(cfg.Database.LogLevel), slowQueryThreshold)
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	return db, nil
}

// newApp wires storage, adapters, the coordinator and the service facade.
// With platforms given, only their adapters take part in collection.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, platforms ...market.Platform) (*app, error) {
	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db, platforms: platforms}
	if err := a.wire(ctx); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	meters, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           a.cfg.Telemetry.Enabled,
		CollectorEndpoint: a.cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    a.cfg.Telemetry.ExportInterval,
		ServiceName:       a.cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Insecure:          a.cfg.Telemetry.Insecure,
	}, a.log)
	if err != nil {
		return err
	}
	a.meters = meters

	pool, err := telemetry.NewDBPoolMetrics(meters.Meter("tracker/db"), poolStats(a.db), a.log)
	if err != nil {
		return fmt.Errorf("create pool metrics: %w", err)
	}
	a.pool = pool

	collectionMetrics, err := telemetry.NewCollectionMetrics(meters.Meter("tracker/collection"))
	if err != nil {
		return fmt.Errorf("create collection metrics: %w", err)
	}

	registry, err := ecommerce.BuildRegistry(registryOptions(a.cfg))
	if err != nil {
		return err
	}
	if len(registry.Platforms()) == 0 {
		a.log.Warn("No platforms enabled, collection runs will be empty")
	}
	adapters, err := selectAdapters(registry, a.platforms)
	if err != nil {
		return err
	}

	resultCache, err := cache.NewResultCacheFactory(a.cfg.Cache, a.cfg.Redis, cache.WithLogger(a.log)).CreateCache()
	if err != nil {
		return err
	}
	a.cache = resultCache

	snapshots := persistence.NewGormSnapshotRepository(a.db.DB)
	runs := persistence.NewGormRunRepository(a.db.DB)

	coordinator := collection.NewCoordinator(
		adapters,
		collection.NewNormalizer(scoreWeights(a.cfg.Scoring)),
		snapshots,
		coordinatorOptions(a.cfg),
		a.log,
		collection.WithMetrics(collectionMetrics),
	)

	a.service = tracker.NewService(coordinator, snapshots, runs, resultCache, a.log, tracker.Options{
		CacheTTL: a.cfg.Cache.TTL,
	})
	return nil
}

// selectAdapters returns the adapters of platforms, or every registered
// adapter when platforms is empty
func selectAdapters(registry *ecommerce.Registry, platforms []market.Platform) ([]market.SourceAdapter, error) {
	if len(platforms) == 0 {
		return registry.Adapters(), nil
	}
	adapters := make([]market.SourceAdapter, 0, len(platforms))
	for _, p := range platforms {
		adapter, err := registry.Get(p)
		if err != nil {
			return nil, fmt.Errorf("platform %s is not enabled: %w", p, err)
		}
		adapters = append(adapters, adapter)
	}
	return adapters, nil
}

// close releases everything newApp acquired, in reverse order
func (a *app) close(ctx context.Context) {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn("Failed to close result cache", zap.Error(err))
		}
	}
	if a.pool != nil {
		_ = a.pool.Close()
	}
	if a.meters != nil {
		if err := a.meters.Shutdown(ctx); err != nil {
			a.log.Warn("Failed to shut down meter provider", zap.Error(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("Failed to close database", zap.Error(err))
	}
}

// ---------------------------------------------------------------------------
// config mapping
// ---------------------------------------------------------------------------

func registryOptions(cfg *config.Config) ecommerce.RegistryOptions {
	p := cfg.Platforms
	opts := ecommerce.RegistryOptions{
		Client: ecommerce.ClientOptions{
			Timeout:           cfg.Collection.Timeout,
			ProxyURL:          cfg.Collection.Proxy,
			RequestsPerSecond: cfg.Collection.RequestsPerSecond,
		},
		Modes: map[market.Platform]ecommerce.SourceMode{
			market.PlatformTikTok: ecommerce.SourceMode(p.TikTok.Mode),
			market.PlatformAmazon: ecommerce.SourceMode(p.Amazon.Mode),
			market.PlatformShopee: ecommerce.SourceMode(p.Shopee.Mode),
		},
		MockSeed: mockSeed,
	}
	if p.TikTok.Enabled {
		opts.TikTok = &ecommerce.TikTokConfig{
			APIKey:     p.TikTok.APIKey,
			APISecret:  p.TikTok.APISecret,
			APIBaseURL: p.TikTok.BaseURL,
			PageSize:   p.TikTok.PageSize,
		}
	}
	if p.Amazon.Enabled {
		opts.Amazon = &ecommerce.AmazonConfig{BaseURL: p.Amazon.BaseURL}
	}
	if p.Shopee.Enabled {
		opts.Shopee = &ecommerce.ShopeeConfig{
			PartnerID:  p.Shopee.PartnerID,
			APIKey:     p.Shopee.APIKey,
			APISecret:  p.Shopee.APISecret,
			APIBaseURL: p.Shopee.BaseURL,
			PageSize:   p.Shopee.PageSize,
		}
	}
	return opts
}

func coordinatorOptions(cfg *config.Config) collection.Options {
	categories := make(map[market.Platform][]string)
	for p, pc := range map[market.Platform]config.PlatformConfig{
		market.PlatformTikTok: cfg.Platforms.TikTok,
		market.PlatformAmazon: cfg.Platforms.Amazon,
		market.PlatformShopee: cfg.Platforms.Shopee,
	} {
		if len(pc.Categories) > 0 {
			categories[p] = pc.Categories
		}
	}
	return collection.Options{
		Categories:        categories,
		DefaultCategories: cfg.Collection.DefaultCategories,
		Limit:             cfg.Collection.MaxProductsPerCollection,
		Retry: collection.RetryPolicy{
			MaxAttempts: cfg.Collection.RetryCount,
			Delay:       cfg.Collection.RetryDelay,
			Timeout:     cfg.Collection.Timeout,
		},
	}
}

func poolStats(db *persistence.Database) telemetry.PoolStatsFunc {
	return func() (telemetry.PoolStats, error) {
		s, err := db.Stats()
		if err != nil {
			return telemetry.PoolStats{}, err
		}
		return telemetry.PoolStats{
			MaxOpen:   s.MaxOpenConnections,
			Open:      s.OpenConnections,
			InUse:     s.InUse,
			Idle:      s.Idle,
			WaitCount: s.WaitCount,
		}, nil
	}
}

func scoreWeights(cfg config.ScoringConfig) collection.ScoreWeights {
	return collection.ScoreWeights{
		Sales:    cfg.SalesWeight,
		Rating:   cfg.RatingWeight,
		Recency:  cfg.RecencyWeight,
		HalfLife: time.Duration(cfg.HalfLifeHours * float64(time.Hour)),
	}
}
