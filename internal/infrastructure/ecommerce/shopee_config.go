package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
)

// ShopeeConfig holds configuration for the Shopee partner API v2
type ShopeeConfig struct {
	// PartnerID is the partner identifier issued by Shopee
	PartnerID int64
	// APIKey is the partner key
	APIKey string
	// APISecret signs every request
	APISecret string
	// APIBaseURL is the base URL including the /api/v2 prefix
	APIBaseURL string
	// PageSize is the number of items requested per page
	PageSize int
}

const (
	// ShopeeProductionAPIURL is the production API endpoint
	ShopeeProductionAPIURL = "https://partner.shopeemobile.com/api/v2"
	// shopeeItemListPath is the item list endpoint relative to the base URL
	shopeeItemListPath = "/product/get_item_list"
	// shopeeSignPath is the path covered by the signature
	shopeeSignPath = "/api/v2" + shopeeItemListPath
	// shopeeMaxPageSize is the largest page the API accepts
	shopeeMaxPageSize = 100
)

// Errors for Shopee configuration
var (
	ErrShopeeConfigMissingPartnerID = errors.New("shopee: partner ID is required")
	ErrShopeeConfigMissingAPIKey    = errors.New("shopee: api key is required")
	ErrShopeeConfigMissingAPISecret = errors.New("shopee: api secret is required")
)

// NewShopeeConfig creates a new Shopee configuration with defaults
func NewShopeeConfig(partnerID int64, apiKey, apiSecret string) *ShopeeConfig {
	return &ShopeeConfig{
		PartnerID:  partnerID,
		APIKey:     apiKey,
		APISecret:  apiSecret,
		APIBaseURL: ShopeeProductionAPIURL,
		PageSize:   50,
	}
}

// Validate validates the Shopee configuration and fills defaults
func (c *ShopeeConfig) Validate() error {
	if c.PartnerID <= 0 {
		return ErrShopeeConfigMissingPartnerID
	}
	if c.APIKey == "" {
		return ErrShopeeConfigMissingAPIKey
	}
	if c.APISecret == "" {
		return ErrShopeeConfigMissingAPISecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = ShopeeProductionAPIURL
	}
	if c.PageSize <= 0 || c.PageSize > shopeeMaxPageSize {
		c.PageSize = 50
	}
	return nil
}

// Sign generates the request signature:
// hex(HMAC-SHA256(secret, partner_id + path + timestamp + api_key))
func (c *ShopeeConfig) Sign(path string, timestamp int64) string {
	base := strconv.FormatInt(c.PartnerID, 10) + path + strconv.FormatInt(timestamp, 10) + c.APIKey
	h := hmac.New(sha256.New, []byte(c.APISecret))
	h.Write([]byte(base))
	return hex.EncodeToString(h.Sum(nil))
}
