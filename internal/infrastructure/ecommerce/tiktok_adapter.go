package ecommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bestseller/tracker/internal/domain/market"
)

// TikTokAdapter implements SourceAdapter for the TikTok Shop product search API
type TikTokAdapter struct {
	config     *TikTokConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

var _ market.SourceAdapter = (*TikTokAdapter)(nil)

// NewTikTokAdapter creates a new TikTok adapter with the given configuration.
// A nil client falls back to a client with default options.
func NewTikTokAdapter(config *TikTokConfig, client *http.Client, requestsPerSecond float64) (*TikTokAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		var err error
		if client, err = NewHTTPClient(ClientOptions{}); err != nil {
			return nil, err
		}
	}

	return &TikTokAdapter{
		config:     config,
		httpClient: client,
		limiter:    newLimiter(requestsPerSecond),
		now:        time.Now,
	}, nil
}

// Platform returns the platform served by this adapter
func (a *TikTokAdapter) Platform() market.Platform {
	return market.PlatformTikTok
}

// Fetch pages through the search API, most popular first, until limit
// products are collected or the API has no more pages
func (a *TikTokAdapter) Fetch(ctx context.Context, category string, limit int) (*market.FetchBatch, error) {
	batch := &market.FetchBatch{}
	seen := 0

	for page := 1; seen < limit; page++ {
		size := clampLimit(limit-seen, a.config.PageSize)
		data, err := a.searchPage(ctx, category, page, size)
		if err != nil {
			return nil, err
		}

		for _, raw := range data.Products {
			if seen >= limit {
				break
			}
			seen++
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(raw, &fields); err != nil {
				batch.ParseErrors = append(batch.ParseErrors, market.ItemError{
					Err: fmt.Errorf("%w: tiktok product: %v", market.ErrParse, err),
				})
				continue
			}
			batch.Items = append(batch.Items, market.RawItem{
				Platform: market.PlatformTikTok,
				SourceID: rawID(fields["id"]),
				Category: category,
				Payload:  raw,
			})
		}

		if !data.HasMore || len(data.Products) == 0 {
			break
		}
	}

	return batch, nil
}

// searchPage requests one page of the product search API
func (a *TikTokAdapter) searchPage(ctx context.Context, category string, page, size int) (*TikTokSearchData, error) {
	if err := wait(ctx, a.limiter); err != nil {
		return nil, err
	}

	body, err := json.Marshal(TikTokSearchRequest{
		Category:   category,
		PageSize:   size,
		PageNumber: page,
		SortBy:     "popularity",
	})
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.APIBaseURL+tiktokSearchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(a.now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", a.config.APIKey)
	req.Header.Set("x-timestamp", timestamp)
	req.Header.Set("x-signature", a.config.Sign(timestamp, tiktokSearchPath))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(market.PlatformTikTok, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, classifyTransportError(market.PlatformTikTok, err)
	}
	if err := classifyStatus(market.PlatformTikTok, resp.StatusCode); err != nil {
		return nil, err
	}

	var result TikTokSearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: tiktok: %v", market.ErrParse, err)
	}

	switch result.Code {
	case tiktokCodeSuccess:
	case tiktokCodeInvalidSign, tiktokCodeUnauthorized:
		return nil, fmt.Errorf("%w: tiktok code %d: %s", market.ErrAuth, result.Code, result.Message)
	case tiktokCodeTooManyCalls:
		return nil, fmt.Errorf("%w: tiktok code %d: %s", market.ErrRateLimited, result.Code, result.Message)
	default:
		return nil, fmt.Errorf("%w: tiktok code %d: %s", market.ErrNetwork, result.Code, result.Message)
	}

	if result.Data == nil {
		return nil, fmt.Errorf("%w: tiktok: response has no data", market.ErrParse)
	}
	return result.Data, nil
}

// rawID renders a JSON id that may be a string or a number
func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}
