package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/bestseller/tracker/internal/domain/market"
)

const (
	// maxResponseSize limits the response body size to prevent memory exhaustion
	maxResponseSize = 10 * 1024 * 1024 // 10MB max response
	// defaultTimeout bounds a single request when no timeout is configured
	defaultTimeout = 30 * time.Second
)

// ClientOptions configures the HTTP client shared by all adapters
type ClientOptions struct {
	// Timeout bounds every request made through the client
	Timeout time.Duration
	// ProxyURL routes every request through one proxy when set
	ProxyURL string
	// RequestsPerSecond paces page requests per adapter; 0 disables pacing
	RequestsPerSecond float64
	// UserAgent is sent on scraping requests
	UserAgent string
}

// NewHTTPClient creates an HTTP client honouring the timeout and proxy options
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = timeout
	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil || proxyURL.Host == "" {
			return nil, fmt.Errorf("ecommerce: invalid proxy URL %q", opts.ProxyURL)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// newLimiter returns a token bucket for the given rate, unlimited when rps <= 0
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// wait blocks until the limiter admits one request
func wait(ctx context.Context, limiter *rate.Limiter) error {
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", market.ErrNetwork, err)
	}
	return nil
}

// classifyStatus maps an HTTP status code to a source error, nil for 2xx/3xx.
// Every other failing status is a retryable network error.
func classifyStatus(platform market.Platform, status int) error {
	switch {
	case status >= 200 && status < 400:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s HTTP %d", market.ErrAuth, platform, status)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s HTTP %d", market.ErrRateLimited, platform, status)
	default:
		return fmt.Errorf("%w: %s HTTP %d", market.ErrNetwork, platform, status)
	}
}

// classifyTransportError wraps a transport failure as a network error.
// Proxy dial failures and timeouts land here too.
func classifyTransportError(platform market.Platform, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s request timed out: %w", market.ErrNetwork, platform, err)
	}
	return fmt.Errorf("%w: %s: %w", market.ErrNetwork, platform, err)
}

// clampLimit keeps page sizes within what a platform accepts
func clampLimit(n, ceiling int) int {
	if n <= 0 {
		return 0
	}
	if n > ceiling {
		return ceiling
	}
	return n
}
