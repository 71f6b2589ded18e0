package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bestseller/tracker/internal/domain/market"
)

// SnapshotModel is one immutable product observation
type SnapshotModel struct {
	ID                int64           `gorm:"primaryKey;autoIncrement"`
	RunID             string          `gorm:"type:varchar(36);index"`
	Platform          string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_snapshots_identity,priority:1"`
	PlatformProductID string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_snapshots_identity,priority:2"`
	CollectedAt       time.Time       `gorm:"not null;uniqueIndex:idx_snapshots_identity,priority:3;index:idx_snapshots_category_time,priority:2"`
	Category          string          `gorm:"type:varchar(255);not null;default:'';index:idx_snapshots_category_time,priority:1"`
	Title             string          `gorm:"type:varchar(1000);not null"`
	Price             decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency          string          `gorm:"type:varchar(8);not null"`
	Rating            float64         `gorm:"not null;default:0"`
	RatingReported    bool            `gorm:"not null;default:false"`
	ReviewCount       int64           `gorm:"not null;default:0"`
	SalesCount        int64           `gorm:"not null;default:0"`
	PopularityScore   float64         `gorm:"not null;default:0"`
	ValueRating       string          `gorm:"type:varchar(16);not null;default:'unknown'"`
	ImageURL          string          `gorm:"type:varchar(2048)"`
	ProductURL        string          `gorm:"type:varchar(2048)"`
	ListedAt          *time.Time
	CreatedAt         time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SnapshotModel) TableName() string {
	return "product_snapshots"
}

// SnapshotFromDomain builds a snapshot row for a record collected by the run
func SnapshotFromDomain(runID uuid.UUID, r market.ProductRecord) *SnapshotModel {
	m := &SnapshotModel{
		Platform:          string(r.Platform),
		PlatformProductID: r.PlatformProductID,
		CollectedAt:       r.CollectedAt.UTC(),
		Category:          r.Category,
		Title:             r.Title,
		Price:             r.Price,
		Currency:          r.Currency,
		Rating:            r.Rating,
		RatingReported:    r.RatingReported,
		ReviewCount:       r.ReviewCount,
		SalesCount:        r.SalesCount,
		PopularityScore:   r.PopularityScore,
		ValueRating:       string(r.ValueRating),
		ImageURL:          r.ImageURL,
		ProductURL:        r.ProductURL,
		ListedAt:          utcPtr(r.ListedAt),
	}
	if runID != uuid.Nil {
		m.RunID = runID.String()
	}
	return m
}

// ToDomain converts the row to a snapshot
func (m *SnapshotModel) ToDomain() market.Snapshot {
	return market.Snapshot{
		ID:    m.ID,
		RunID: m.RunID,
		ProductRecord: market.ProductRecord{
			Platform:          market.Platform(m.Platform),
			PlatformProductID: m.PlatformProductID,
			Title:             m.Title,
			Category:          m.Category,
			Price:             m.Price,
			Currency:          m.Currency,
			Rating:            m.Rating,
			RatingReported:    m.RatingReported,
			ReviewCount:       m.ReviewCount,
			SalesCount:        m.SalesCount,
			PopularityScore:   m.PopularityScore,
			ValueRating:       market.ValueRating(m.ValueRating),
			ImageURL:          m.ImageURL,
			ProductURL:        m.ProductURL,
			ListedAt:          utcPtr(m.ListedAt),
			CollectedAt:       m.CollectedAt.UTC(),
		},
	}
}
