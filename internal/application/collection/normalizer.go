package collection

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bestseller/tracker/internal/domain/market"
)

// amazonSalesPerRank estimates monthly sales from a best-seller rank as
// amazonSalesPerRank / rank. Amazon does not publish sales figures.
const amazonSalesPerRank = 5000

// ScoreWeights configures the popularity score
//
//	score = Sales*ln(1+sales) + Rating*rating*ln(1+reviews) + Recency*recency
//
// where recency halves every HalfLife of listing age at collection time.
type ScoreWeights struct {
	Sales    float64
	Rating   float64
	Recency  float64
	HalfLife time.Duration
}

// DefaultScoreWeights returns the weights used when none are configured
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Sales: 1.0, Rating: 0.2, Recency: 1.0, HalfLife: 7 * 24 * time.Hour}
}

// Normalizer maps platform payloads onto market.ProductRecord.
// It holds no mutable state and is safe for concurrent use.
type Normalizer struct {
	weights ScoreWeights
}

// NewNormalizer creates a normalizer. A non-positive half-life falls back to the default.
func NewNormalizer(weights ScoreWeights) *Normalizer {
	if weights.HalfLife <= 0 {
		weights.HalfLife = DefaultScoreWeights().HalfLife
	}
	return &Normalizer{weights: weights}
}

// fields is the platform-independent view of a payload before validation
type fields struct {
	id          string
	title       string
	category    string
	price       *decimal.Decimal
	currency    string
	rating      *float64
	reviews     int64
	sales       int64
	imageURL    string
	productURL  string
	listedAtSec int64
}

// Normalize converts one raw item collected at collectedAt. Items with a
// missing or malformed id, title or price fail with *market.ValidationError.
func (n *Normalizer) Normalize(item market.RawItem, collectedAt time.Time) (market.ProductRecord, error) {
	f, err := decode(item)
	if err != nil {
		return market.ProductRecord{}, market.NewValidationError(item, "payload", err.Error())
	}

	f.id = strings.TrimSpace(f.id)
	if f.id == "" {
		f.id = strings.TrimSpace(item.SourceID)
	}
	if f.id == "" {
		return market.ProductRecord{}, market.NewValidationError(item, "platform_product_id", "missing")
	}
	title := market.CleanText(f.title)
	if title == "" {
		return market.ProductRecord{}, market.NewValidationError(item, "title", "missing")
	}
	if f.price == nil {
		return market.ProductRecord{}, market.NewValidationError(item, "price", "missing")
	}
	if f.price.IsNegative() {
		return market.ProductRecord{}, market.NewValidationError(item, "price", "negative")
	}

	record := market.ProductRecord{
		Platform:          item.Platform,
		PlatformProductID: f.id,
		Title:             title,
		Category:          normalizeCategory(item.Category, f.category),
		Price:             *f.price,
		Currency:          normalizeCurrency(f.currency, item.Platform),
		Rating:            market.NeutralRating,
		ReviewCount:       max(f.reviews, 0),
		SalesCount:        max(f.sales, 0),
		ImageURL:          strings.TrimSpace(f.imageURL),
		ProductURL:        strings.TrimSpace(f.productURL),
		CollectedAt:       collectedAt,
	}
	if f.rating != nil && !math.IsNaN(*f.rating) {
		record.Rating = math.Min(math.Max(*f.rating, 0), market.MaxRating)
		record.RatingReported = true
	}
	if f.listedAtSec > 0 {
		listed := time.Unix(f.listedAtSec, 0).UTC()
		record.ListedAt = &listed
	}

	record.PopularityScore = n.Score(record)
	record.ValueRating = market.RateValue(record.Price, record.Rating, record.RatingReported)
	return record, nil
}

// Score computes the popularity score of a normalized record
func (n *Normalizer) Score(r market.ProductRecord) float64 {
	return n.weights.Sales*math.Log1p(float64(r.SalesCount)) +
		n.weights.Rating*r.Rating*math.Log1p(float64(r.ReviewCount)) +
		n.weights.Recency*n.recency(r)
}

// recency is 1 for a listing collected the moment it appeared and halves
// every half-life after that. Unknown listing times count as one half-life.
func (n *Normalizer) recency(r market.ProductRecord) float64 {
	if r.ListedAt == nil {
		return 0.5
	}
	age := r.CollectedAt.Sub(*r.ListedAt)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, age.Hours()/n.weights.HalfLife.Hours())
}

func decode(item market.RawItem) (*fields, error) {
	switch item.Platform {
	case market.PlatformTikTok:
		var p market.TikTokProduct
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return nil, err
		}
		f := &fields{id: p.ID, title: p.Name, category: p.CategoryName, productURL: p.ProductURL, listedAtSec: p.CreateTime}
		if p.Price != nil {
			f.price = p.Price.OriginalPrice
			f.currency = p.Price.Currency
		}
		if p.Sales != nil {
			f.sales = p.Sales.Sales30Day
		}
		if p.Rating != nil {
			f.rating = p.Rating.AverageRating
			f.reviews = p.Rating.RatingCount
		}
		if len(p.Images) > 0 {
			f.imageURL = p.Images[0]
		}
		return f, nil

	case market.PlatformAmazon:
		var p market.AmazonListing
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return nil, err
		}
		f := &fields{
			id: p.ASIN, title: p.Title, price: p.Price, currency: p.Currency,
			rating: p.Rating, reviews: p.ReviewCount, imageURL: p.ImageURL, productURL: p.ProductURL,
		}
		if p.Rank > 0 {
			f.sales = amazonSalesPerRank / int64(p.Rank)
		}
		return f, nil

	case market.PlatformShopee:
		var p market.ShopeeItem
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return nil, err
		}
		f := &fields{
			title: p.Name, category: p.CategoryName, currency: p.Currency, rating: p.RatingStar,
			reviews: p.CommentCount, sales: p.Sold, imageURL: p.Image, listedAtSec: p.CreateTime,
		}
		if p.ItemID > 0 {
			f.id = fmt.Sprint(p.ItemID)
		}
		if p.Price != nil {
			price := p.Price.Div(market.ShopeePriceUnit)
			f.price = &price
		}
		return f, nil

	default:
		return nil, fmt.Errorf("unsupported platform %q", item.Platform)
	}
}

// normalizeCategory prefers the category the item was collected for so
// rankings group by the categories operators configure
func normalizeCategory(requested, reported string) string {
	if c := market.CanonicalCategory(requested); c != "" {
		return c
	}
	return market.CanonicalCategory(reported)
}

func normalizeCurrency(currency string, p market.Platform) string {
	c := strings.ToUpper(strings.TrimSpace(currency))
	if c == "" {
		return p.DefaultCurrency()
	}
	return c
}
