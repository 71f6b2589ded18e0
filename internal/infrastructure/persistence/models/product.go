package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bestseller/tracker/internal/domain/market"
)

// ProductModel is the current view of one product. It mirrors the newest
// snapshot seen for the product.
type ProductModel struct {
	ID                uint64          `gorm:"primaryKey;autoIncrement"`
	Platform          string          `gorm:"type:varchar(20);not null;uniqueIndex:idx_products_identity,priority:1"`
	PlatformProductID string          `gorm:"type:varchar(128);not null;uniqueIndex:idx_products_identity,priority:2"`
	Title             string          `gorm:"type:varchar(1000);not null"`
	Category          string          `gorm:"type:varchar(255);not null;default:'';index"`
	Price             decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency          string          `gorm:"type:varchar(8);not null"`
	Rating            float64         `gorm:"not null;default:0"`
	RatingReported    bool            `gorm:"not null;default:false"`
	ReviewCount       int64           `gorm:"not null;default:0"`
	SalesCount        int64           `gorm:"not null;default:0"`
	PopularityScore   float64         `gorm:"not null;default:0;index"`
	ValueRating       string          `gorm:"type:varchar(16);not null;default:'unknown'"`
	ImageURL          string          `gorm:"type:varchar(2048)"`
	ProductURL        string          `gorm:"type:varchar(2048)"`
	ListedAt          *time.Time
	LastCollectedAt   time.Time `gorm:"not null;index"`
	Timestamps
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ProductFromDomain builds a product row from a record
func ProductFromDomain(r market.ProductRecord) *ProductModel {
	return &ProductModel{
		Platform:          string(r.Platform),
		PlatformProductID: r.PlatformProductID,
		Title:             r.Title,
		Category:          r.Category,
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
		LastCollectedAt:   r.CollectedAt.UTC(),
	}
}

// UpdateColumns returns the columns refreshed when a newer snapshot arrives.
// A map is used so zero values are written too.
func (m *ProductModel) UpdateColumns() map[string]any {
	return map[string]any{
		"title":             m.Title,
		"category":          m.Category,
		"price":             m.Price,
		"currency":          m.Currency,
		"rating":            m.Rating,
		"rating_reported":   m.RatingReported,
		"review_count":      m.ReviewCount,
		"sales_count":       m.SalesCount,
		"popularity_score":  m.PopularityScore,
		"value_rating":      m.ValueRating,
		"image_url":         m.ImageURL,
		"product_url":       m.ProductURL,
		"listed_at":         m.ListedAt,
		"last_collected_at": m.LastCollectedAt,
		"updated_at":        time.Now().UTC(),
	}
}

// ToDomain converts the row to a record
func (m *ProductModel) ToDomain() market.ProductRecord {
	return market.ProductRecord{
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
		CollectedAt:       m.LastCollectedAt.UTC(),
	}
}
