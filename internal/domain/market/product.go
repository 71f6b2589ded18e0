package market

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NeutralRating is assigned to products whose platform reports no rating
const NeutralRating = 2.5

// MaxRating is the upper bound of the rating scale
const MaxRating = 5.0

// RawItem is one listing as returned by a source adapter, before
// normalization. Payload holds the platform's own JSON for the item.
type RawItem struct {
	Platform Platform        `json:"platform"`
	SourceID string          `json:"source_id,omitempty"`
	Category string          `json:"category"`
	Payload  json.RawMessage `json:"payload"`
}

// ---------------------------------------------------------------------------
// Platform payloads
// ---------------------------------------------------------------------------

// TikTokProduct is a product entry of the TikTok Shop search API
type TikTokProduct struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price *struct {
		OriginalPrice *decimal.Decimal `json:"original_price"`
		Currency      string           `json:"currency"`
	} `json:"price"`
	Sales *struct {
		Sales30Day int64 `json:"sales_30_day"`
	} `json:"sales"`
	Rating *struct {
		AverageRating *float64 `json:"average_rating"`
		RatingCount   int64    `json:"rating_count"`
	} `json:"rating"`
	CategoryName string   `json:"category_name"`
	Images       []string `json:"images"`
	ProductURL   string   `json:"product_url"`
	CreateTime   int64    `json:"create_time"`
}

// AmazonListing is a product scraped from an Amazon best-seller page
type AmazonListing struct {
	ASIN        string           `json:"asin"`
	Title       string           `json:"title"`
	Price       *decimal.Decimal `json:"price"`
	Currency    string           `json:"currency"`
	Rating      *float64         `json:"rating"`
	ReviewCount int64            `json:"review_count"`
	Rank        int              `json:"rank"`
	ImageURL    string           `json:"image_url"`
	ProductURL  string           `json:"product_url"`
}

// ShopeeItem is an item entry of the Shopee partner item list API.
// Price is expressed in 1/100000 of the currency unit.
type ShopeeItem struct {
	ItemID       int64            `json:"item_id"`
	Name         string           `json:"item_name"`
	Price        *decimal.Decimal `json:"price"`
	Currency     string           `json:"currency"`
	Sold         int64            `json:"sold"`
	RatingStar   *float64         `json:"rating_star"`
	CommentCount int64            `json:"cmt_count"`
	CategoryName string           `json:"category_name"`
	Image        string           `json:"image"`
	ShopID       int64            `json:"shop_id"`
	CreateTime   int64            `json:"create_time"`
}

// ShopeePriceUnit converts Shopee integer prices into currency units
var ShopeePriceUnit = decimal.NewFromInt(100000)

// ---------------------------------------------------------------------------
// ProductRecord is the canonical product schema shared by every platform
// ---------------------------------------------------------------------------

// ProductRecord is the canonical product schema shared by every platform
type ProductRecord struct {
	Platform          Platform        `json:"platform"`
	PlatformProductID string          `json:"platform_product_id"`
	Title             string          `json:"title"`
	Category          string          `json:"category"`
	Price             decimal.Decimal `json:"price"`
	Currency          string          `json:"currency"`
	Rating            float64         `json:"rating"`
	RatingReported    bool            `json:"rating_reported"`
	ReviewCount       int64           `json:"review_count"`
	SalesCount        int64           `json:"sales_count"`
	PopularityScore   float64         `json:"popularity_score"`
	ValueRating       ValueRating     `json:"value_rating"`
	ImageURL          string          `json:"image_url,omitempty"`
	ProductURL        string          `json:"product_url,omitempty"`
	ListedAt          *time.Time      `json:"listed_at,omitempty"`
	CollectedAt       time.Time       `json:"collected_at"`
}

// Key returns the snapshot identity of the record
func (r ProductRecord) Key() SnapshotKey {
	return SnapshotKey{
		Platform:          r.Platform,
		PlatformProductID: r.PlatformProductID,
		CollectedAt:       r.CollectedAt,
	}
}

// MatchKey returns the title used to align products across platforms:
// lower case with runs of whitespace collapsed to one space.
func (r ProductRecord) MatchKey() string {
	return NormalizeTitleKey(r.Title)
}

// NormalizeTitleKey lower-cases s and collapses whitespace
func NormalizeTitleKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// SnapshotKey identifies one snapshot row
type SnapshotKey struct {
	Platform          Platform
	PlatformProductID string
	CollectedAt       time.Time
}

// Snapshot is an immutable capture of a product's metrics at CollectedAt
type Snapshot struct {
	ID    int64  `json:"id"`
	RunID string `json:"run_id,omitempty"`
	ProductRecord
}

// ---------------------------------------------------------------------------
// ValueRating grades price against rating
// ---------------------------------------------------------------------------

// ValueRating grades price against rating
type ValueRating string

const (
	ValueRatingGood      ValueRating = "good"
	ValueRatingFair      ValueRating = "fair"
	ValueRatingExpensive ValueRating = "expensive"
	ValueRatingUnknown   ValueRating = "unknown"
)

// RateValue grades a product by rating / (ln(1+price) + 1). Products without
// a reported rating or with a zero price are unknown.
func RateValue(price decimal.Decimal, rating float64, reported bool) ValueRating {
	if !reported || !price.IsPositive() {
		return ValueRatingUnknown
	}
	ratio := rating / (math.Log1p(price.InexactFloat64()) + 1)
	switch {
	case ratio > 1:
		return ValueRatingGood
	case ratio > 0.5:
		return ValueRatingFair
	default:
		return ValueRatingExpensive
	}
}

// ---------------------------------------------------------------------------
// Text cleaning
// ---------------------------------------------------------------------------

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// CleanText strips HTML tags and control characters and collapses whitespace
func CleanText(s string) string {
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return ' '
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalCategory cleans a category name and title-cases it, so
// "home  DECOR" and "Home Decor" name the same category
func CanonicalCategory(s string) string {
	c := CleanText(s)
	if c == "" {
		return ""
	}
	return cases.Title(language.English).String(c)
}
