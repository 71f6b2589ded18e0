package ecommerce

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// TikTokConfig holds configuration for the TikTok Shop product search API
type TikTokConfig struct {
	// APIKey identifies the application
	APIKey string
	// APISecret signs every request
	APISecret string
	// APIBaseURL is the base URL for the API
	APIBaseURL string
	// PageSize is the number of products requested per page
	PageSize int
}

const (
	// TikTokProductionAPIURL is the production API endpoint
	TikTokProductionAPIURL = "https://open-api.tiktokglobalshop.com"
	// tiktokSearchPath is the product search endpoint
	tiktokSearchPath = "/api/products/search"
	// tiktokMaxPageSize is the largest page the API accepts
	tiktokMaxPageSize = 50
)

// Errors for TikTok configuration
var (
	ErrTikTokConfigMissingAPIKey    = errors.New("tiktok: api key is required")
	ErrTikTokConfigMissingAPISecret = errors.New("tiktok: api secret is required")
)

// NewTikTokConfig creates a new TikTok configuration with defaults
func NewTikTokConfig(apiKey, apiSecret string) *TikTokConfig {
	return &TikTokConfig{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		APIBaseURL: TikTokProductionAPIURL,
		PageSize:   20,
	}
}

// Validate validates the TikTok configuration and fills defaults
func (c *TikTokConfig) Validate() error {
	if c.APIKey == "" {
		return ErrTikTokConfigMissingAPIKey
	}
	if c.APISecret == "" {
		return ErrTikTokConfigMissingAPISecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = TikTokProductionAPIURL
	}
	if c.PageSize <= 0 || c.PageSize > tiktokMaxPageSize {
		c.PageSize = 20
	}
	return nil
}

// Sign generates the request signature: hex(HMAC-SHA256(secret, api_key + timestamp + path))
func (c *TikTokConfig) Sign(timestamp, path string) string {
	h := hmac.New(sha256.New, []byte(c.APISecret))
	h.Write([]byte(c.APIKey + timestamp + path))
	return hex.EncodeToString(h.Sum(nil))
}
