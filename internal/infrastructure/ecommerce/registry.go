package ecommerce

import (
	"fmt"
	"net/http"

	"github.com/bestseller/tracker/internal/domain/market"
)

// SourceMode selects how a platform's listings are obtained
type SourceMode string

const (
	// SourceModeLive talks to the real platform
	SourceModeLive SourceMode = "live"
	// SourceModeMock synthesizes listings offline
	SourceModeMock SourceMode = "mock"
)

// RegistryOptions holds per-platform adapter settings. A nil platform config
// leaves that platform disabled.
type RegistryOptions struct {
	Client ClientOptions
	Modes  map[market.Platform]SourceMode
	TikTok *TikTokConfig
	Amazon *AmazonConfig
	Shopee *ShopeeConfig
	// MockSeed seeds mock adapters
	MockSeed int64
}

// Registry holds the adapters of all enabled platforms
type Registry struct {
	adapters map[market.Platform]market.SourceAdapter
}

// NewRegistry creates a registry from explicit adapters
func NewRegistry(adapters ...market.SourceAdapter) *Registry {
	r := &Registry{adapters: make(map[market.Platform]market.SourceAdapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Platform()] = a
	}
	return r
}

// BuildRegistry creates the adapters for every configured platform. All live
// adapters share one HTTP client so the proxy and timeout apply uniformly.
func BuildRegistry(opts RegistryOptions) (*Registry, error) {
	client, err := NewHTTPClient(opts.Client)
	if err != nil {
		return nil, err
	}

	var adapters []market.SourceAdapter
	add := func(p market.Platform, enabled bool, live func(*http.Client) (market.SourceAdapter, error)) error {
		if !enabled {
			return nil
		}
		if opts.Modes[p] == SourceModeMock {
			adapters = append(adapters, NewMockAdapter(p, opts.MockSeed))
			return nil
		}
		a, err := live(client)
		if err != nil {
			return fmt.Errorf("ecommerce: %s adapter: %w", p, err)
		}
		adapters = append(adapters, a)
		return nil
	}

	if err := add(market.PlatformTikTok, opts.TikTok != nil, func(c *http.Client) (market.SourceAdapter, error) {
		return NewTikTokAdapter(opts.TikTok, c, opts.Client.RequestsPerSecond)
	}); err != nil {
		return nil, err
	}
	if err := add(market.PlatformAmazon, opts.Amazon != nil, func(c *http.Client) (market.SourceAdapter, error) {
		return NewAmazonAdapter(opts.Amazon, c, opts.Client.RequestsPerSecond)
	}); err != nil {
		return nil, err
	}
	if err := add(market.PlatformShopee, opts.Shopee != nil, func(c *http.Client) (market.SourceAdapter, error) {
		return NewShopeeAdapter(opts.Shopee, c, opts.Client.RequestsPerSecond)
	}); err != nil {
		return nil, err
	}

	return NewRegistry(adapters...), nil
}

// Get returns the adapter for a platform
func (r *Registry) Get(p market.Platform) (market.SourceAdapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", market.ErrUnknownSource, p)
	}
	return a, nil
}

// Adapters returns the registered adapters in platform order
func (r *Registry) Adapters() []market.SourceAdapter {
	out := make([]market.SourceAdapter, 0, len(r.adapters))
	for _, p := range market.AllPlatforms() {
		if a, ok := r.adapters[p]; ok {
			out = append(out, a)
		}
	}
	return out
}

// Platforms returns the enabled platforms in order
func (r *Registry) Platforms() []market.Platform {
	out := make([]market.Platform, 0, len(r.adapters))
	for _, a := range r.Adapters() {
		out = append(out, a.Platform())
	}
	return out
}
