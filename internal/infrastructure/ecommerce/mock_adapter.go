package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/bestseller/tracker/internal/domain/market"
)

// mockCatalog is shared by every platform so cross-platform comparison has
// matching titles to work with
var mockCatalog = []string{
	"Wireless Earbuds Pro",
	"Stainless Steel Water Bottle",
	"LED Desk Lamp",
	"Yoga Mat Non Slip",
	"Portable Phone Charger 10000mAh",
	"Bluetooth Speaker Mini",
	"Silicone Kitchen Utensil Set",
	"Vitamin C Serum",
	"Running Shoes Lightweight",
	"Smart Watch Fitness Tracker",
	"Air Fryer 5L",
	"Mechanical Keyboard RGB",
}

// MockAdapter produces synthetic listings in each platform's own payload
// format, for offline demos. It never makes network calls. Sales grow with
// every call so repeated runs produce a visible trend.
type MockAdapter struct {
	platform market.Platform
	seed     int64
	calls    atomic.Int64
}

var _ market.SourceAdapter = (*MockAdapter)(nil)

// NewMockAdapter creates a mock adapter for the platform
func NewMockAdapter(platform market.Platform, seed int64) *MockAdapter {
	return &MockAdapter{platform: platform, seed: seed}
}

// Platform returns the platform this mock imitates
func (m *MockAdapter) Platform() market.Platform {
	return m.platform
}

// Fetch synthesizes up to limit listings
func (m *MockAdapter) Fetch(ctx context.Context, category string, limit int) (*market.FetchBatch, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", market.ErrNetwork, ctx.Err())
	default:
	}

	round := m.calls.Add(1)
	h := fnv.New64a()
	h.Write([]byte(string(m.platform) + "|" + strings.ToLower(category)))
	r := rand.New(rand.NewSource(int64(h.Sum64()) ^ m.seed))

	n := limit
	if n > len(mockCatalog) {
		n = len(mockCatalog)
	}

	batch := &market.FetchBatch{Items: make([]market.RawItem, 0, n)}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%s-%03d", m.platform, strings.ToLower(strings.ReplaceAll(category, " ", "")), i+1)
		base := int64(100 + r.Intn(5000))
		sold := base + round*int64(10+r.Intn(50))
		price := decimal.NewFromInt(int64(500 + r.Intn(20000))).Div(decimal.NewFromInt(100))
		rating := float64(30+r.Intn(21)) / 10
		reviews := int64(r.Intn(3000))

		if m.platform == market.PlatformShopee {
			id = fmt.Sprint(fnv32(id))
		} else if m.platform == market.PlatformAmazon {
			id = strings.ToUpper(id)
		}
		payload, err := m.payload(id, mockCatalog[i], category, price, sold, rating, reviews, i+1)
		if err != nil {
			return nil, err
		}
		batch.Items = append(batch.Items, market.RawItem{
			Platform: m.platform,
			SourceID: id,
			Category: category,
			Payload:  payload,
		})
	}
	return batch, nil
}

func (m *MockAdapter) payload(id, title, category string, price decimal.Decimal, sold int64, rating float64, reviews int64, rank int) (json.RawMessage, error) {
	switch m.platform {
	case market.PlatformTikTok:
		return json.Marshal(map[string]any{
			"id":            id,
			"name":          title,
			"price":         map[string]any{"original_price": price.String(), "currency": "USD"},
			"sales":         map[string]any{"sales_30_day": sold},
			"rating":        map[string]any{"average_rating": rating, "rating_count": reviews},
			"category_name": category,
		})
	case market.PlatformAmazon:
		return json.Marshal(market.AmazonListing{
			ASIN:        id,
			Title:       title,
			Price:       &price,
			Currency:    "USD",
			Rating:      &rating,
			ReviewCount: reviews,
			Rank:        rank,
		})
	default:
		units := price.Mul(market.ShopeePriceUnit)
		return json.Marshal(map[string]any{
			"item_id":       json.Number(id),
			"item_name":     title,
			"price":         units.IntPart(),
			"sold":          sold,
			"rating_star":   rating,
			"cmt_count":     reviews,
			"category_name": category,
		})
	}
}

func fnv32(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
