package ecommerce

import (
	"strings"
)

// AmazonConfig holds configuration for scraping Amazon best-seller pages
type AmazonConfig struct {
	// BaseURL is the storefront origin, e.g. https://www.amazon.com
	BaseURL string
	// UserAgent is sent with every page request
	UserAgent string
	// MaxPages bounds pagination; best-seller lists have 50 items per page
	MaxPages int
	// CategoryPaths overrides or extends the built-in category map
	CategoryPaths map[string]string
}

const (
	// AmazonDefaultBaseURL is the US storefront
	AmazonDefaultBaseURL = "https://www.amazon.com"
	// amazonDefaultUserAgent mimics a desktop browser
	amazonDefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	// amazonPageSize is the number of items on one best-seller page
	amazonPageSize = 50
)

// amazonCategoryPaths maps tracker categories to best-seller URL paths
var amazonCategoryPaths = map[string]string{
	"electronics": "electronics",
	"computers":   "computers",
	"books":       "books",
	"home":        "home-garden",
	"kitchen":     "kitchen",
	"toys":        "toys-and-games",
	"beauty":      "beauty",
	"fashion":     "fashion",
	"health":      "hpc",
	"sports":      "sporting-goods",
}

// NewAmazonConfig creates a new Amazon configuration with defaults
func NewAmazonConfig() *AmazonConfig {
	return &AmazonConfig{
		BaseURL:   AmazonDefaultBaseURL,
		UserAgent: amazonDefaultUserAgent,
		MaxPages:  2,
	}
}

// Validate fills defaults; scraping needs no credentials
func (c *AmazonConfig) Validate() error {
	if c.BaseURL == "" {
		c.BaseURL = AmazonDefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.UserAgent == "" {
		c.UserAgent = amazonDefaultUserAgent
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 2
	}
	return nil
}

// CategoryPath resolves a category to its best-seller path. Unknown
// categories are used as-is, lower-cased with spaces turned into dashes.
func (c *AmazonConfig) CategoryPath(category string) string {
	key := strings.ToLower(strings.TrimSpace(category))
	if p, ok := c.CategoryPaths[key]; ok {
		return p
	}
	if p, ok := amazonCategoryPaths[key]; ok {
		return p
	}
	return strings.Join(strings.Fields(key), "-")
}
