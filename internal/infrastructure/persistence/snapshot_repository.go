package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/infrastructure/persistence/models"
)

// GormSnapshotRepository implements market.SnapshotRepository using GORM
type GormSnapshotRepository struct {
	db *gorm.DB
}

// NewGormSnapshotRepository creates a new GormSnapshotRepository
func NewGormSnapshotRepository(db *gorm.DB) *GormSnapshotRepository {
	return &GormSnapshotRepository{db: db}
}

// Compile-time interface check
var _ market.SnapshotRepository = (*GormSnapshotRepository)(nil)

// Upsert inserts the snapshot and refreshes the product row in one transaction.
// A snapshot that already exists is left untouched and reported as not inserted.
// The product row only moves forward in time, so replaying an older snapshot
// never overwrites newer attributes.
func (r *GormSnapshotRepository) Upsert(ctx context.Context, runID uuid.UUID, record market.ProductRecord) (bool, error) {
	snapshot := models.SnapshotFromDomain(runID, record)
	product := models.ProductFromDomain(record)
	inserted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "platform"},
				{Name: "platform_product_id"},
				{Name: "collected_at"},
			},
			DoNothing: true,
		}).Create(snapshot)
		if result.Error != nil {
			return fmt.Errorf("insert snapshot: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}
		inserted = true

		result = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "platform"}, {Name: "platform_product_id"}},
			DoNothing: true,
		}).Create(product)
		if result.Error != nil {
			return fmt.Errorf("insert product: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			return nil
		}

		err := tx.Model(&models.ProductModel{}).
			Where("platform = ? AND platform_product_id = ? AND last_collected_at <= ?",
				product.Platform, product.PlatformProductID, product.LastCollectedAt).
			Updates(product.UpdateColumns()).Error
		if err != nil {
			return fmt.Errorf("update product: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("upsert %s/%s: %w", record.Platform, record.PlatformProductID, err)
	}
	return inserted, nil
}

// Latest returns the newest state of every product matching the filter,
// ordered by popularity score descending
func (r *GormSnapshotRepository) Latest(ctx context.Context, filter market.LatestFilter) ([]market.ProductRecord, error) {
	query := r.db.WithContext(ctx).Model(&models.ProductModel{})
	if filter.Platform != "" {
		query = query.Where("platform = ?", string(filter.Platform))
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if !filter.Since.IsZero() {
		query = query.Where("last_collected_at >= ?", filter.Since.UTC())
	}

	var rows []models.ProductModel
	err := query.
		Order("popularity_score DESC").
		Order("sales_count DESC").
		Order("platform_product_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query latest products: %w", err)
	}

	records := make([]market.ProductRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].ToDomain()
	}
	return records, nil
}

// History returns one product's snapshots in [from, to], oldest first.
// A zero bound is open.
func (r *GormSnapshotRepository) History(ctx context.Context, platform market.Platform, productID string, from, to time.Time) ([]market.Snapshot, error) {
	query := r.db.WithContext(ctx).
		Where("platform = ? AND platform_product_id = ?", string(platform), productID)
	return r.findSnapshots(withinRange(query, from, to))
}

// HistoryFor returns the snapshots in [from, to] of every product matching
// the filter, grouped by product and oldest first within a product
func (r *GormSnapshotRepository) HistoryFor(ctx context.Context, filter market.LatestFilter, from, to time.Time) ([]market.Snapshot, error) {
	query := r.db.WithContext(ctx)
	if filter.Platform != "" {
		query = query.Where("platform = ?", string(filter.Platform))
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}
	if from.IsZero() || (!filter.Since.IsZero() && filter.Since.After(from)) {
		from = filter.Since
	}
	return r.findSnapshots(withinRange(query, from, to).Order("platform ASC").Order("platform_product_id ASC"))
}

func withinRange(query *gorm.DB, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		query = query.Where("collected_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		query = query.Where("collected_at <= ?", to.UTC())
	}
	return query
}

func (r *GormSnapshotRepository) findSnapshots(query *gorm.DB) ([]market.Snapshot, error) {
	var rows []models.SnapshotModel
	if err := query.Order("collected_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	snapshots := make([]market.Snapshot, len(rows))
	for i := range rows {
		snapshots[i] = rows[i].ToDomain()
	}
	return snapshots, nil
}

// Categories returns the distinct non-empty categories in alphabetical order
func (r *GormSnapshotRepository) Categories(ctx context.Context, platform market.Platform) ([]string, error) {
	query := r.db.WithContext(ctx).Model(&models.ProductModel{}).Where("category <> ''")
	if platform != "" {
		query = query.Where("platform = ?", string(platform))
	}

	var categories []string
	if err := query.Distinct().Order("category ASC").Pluck("category", &categories).Error; err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	return categories, nil
}

// Stats returns store-wide counters
func (r *GormSnapshotRepository) Stats(ctx context.Context) (*market.Stats, error) {
	db := r.db.WithContext(ctx)
	stats := &market.Stats{PlatformCounts: make(map[market.Platform]int64)}

	if err := db.Model(&models.ProductModel{}).Count(&stats.ProductCount).Error; err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	if err := db.Model(&models.SnapshotModel{}).Count(&stats.SnapshotCount).Error; err != nil {
		return nil, fmt.Errorf("count snapshots: %w", err)
	}
	if err := db.Model(&models.ProductModel{}).Where("category <> ''").Distinct("category").Count(&stats.CategoryCount).Error; err != nil {
		return nil, fmt.Errorf("count categories: %w", err)
	}

	var perPlatform []struct {
		Platform string
		Count    int64
	}
	if err := db.Model(&models.ProductModel{}).Select("platform, COUNT(*) AS count").Group("platform").Scan(&perPlatform).Error; err != nil {
		return nil, fmt.Errorf("count products per platform: %w", err)
	}
	for _, row := range perPlatform {
		stats.PlatformCounts[market.Platform(row.Platform)] = row.Count
	}

	var newest []models.SnapshotModel
	if err := db.Select("collected_at").Order("collected_at DESC").Limit(1).Find(&newest).Error; err != nil {
		return nil, fmt.Errorf("query last update: %w", err)
	}
	if len(newest) == 1 {
		t := newest[0].CollectedAt.UTC()
		stats.LastUpdate = &t
	}
	return stats, nil
}
