package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/bestseller/tracker/internal/domain/market"
)

// ShopeeAdapter implements SourceAdapter for the Shopee partner API
type ShopeeAdapter struct {
	config  *ShopeeConfig
	client  *resty.Client
	limiter *rate.Limiter
	now     func() time.Time
}

var _ market.SourceAdapter = (*ShopeeAdapter)(nil)

// NewShopeeAdapter creates a new Shopee adapter. The resty client wraps the
// given HTTP client so proxy and timeout settings carry over.
func NewShopeeAdapter(config *ShopeeConfig, client *http.Client, requestsPerSecond float64) (*ShopeeAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		var err error
		if client, err = NewHTTPClient(ClientOptions{}); err != nil {
			return nil, err
		}
	}

	rc := resty.NewWithClient(client).
		SetBaseURL(config.APIBaseURL).
		SetHeader("Accept", "application/json")

	return &ShopeeAdapter{
		config:  config,
		client:  rc,
		limiter: newLimiter(requestsPerSecond),
		now:     time.Now,
	}, nil
}

// Platform returns the platform served by this adapter
func (a *ShopeeAdapter) Platform() market.Platform {
	return market.PlatformShopee
}

// Fetch pages through the item list sorted by units sold
func (a *ShopeeAdapter) Fetch(ctx context.Context, category string, limit int) (*market.FetchBatch, error) {
	batch := &market.FetchBatch{}
	seen := 0
	offset := 0

	for seen < limit {
		size := clampLimit(limit-seen, a.config.PageSize)
		data, err := a.listItems(ctx, category, offset, size)
		if err != nil {
			return nil, err
		}

		for _, raw := range data.Item {
			if seen >= limit {
				break
			}
			seen++
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(raw, &fields); err != nil {
				batch.ParseErrors = append(batch.ParseErrors, market.ItemError{
					Err: fmt.Errorf("%w: shopee item: %v", market.ErrParse, err),
				})
				continue
			}
			batch.Items = append(batch.Items, market.RawItem{
				Platform: market.PlatformShopee,
				SourceID: rawID(fields["item_id"]),
				Category: category,
				Payload:  raw,
			})
		}

		if !data.HasNextPage || len(data.Item) == 0 {
			break
		}
		if data.NextOffset > offset {
			offset = data.NextOffset
		} else {
			offset += len(data.Item)
		}
	}

	return batch, nil
}

// listItems requests one page of get_item_list
func (a *ShopeeAdapter) listItems(ctx context.Context, category string, offset, size int) (*ShopeeItemListData, error) {
	if err := wait(ctx, a.limiter); err != nil {
		return nil, err
	}

	timestamp := a.now().Unix()
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"partner_id": strconv.FormatInt(a.config.PartnerID, 10),
			"timestamp":  strconv.FormatInt(timestamp, 10),
			"sign":       a.config.Sign(shopeeSignPath, timestamp),
			"category":   category,
			"offset":     strconv.Itoa(offset),
			"page_size":  strconv.Itoa(size),
			"sort_by":    "sales",
		}).
		Get(shopeeItemListPath)
	if err != nil {
		return nil, classifyTransportError(market.PlatformShopee, err)
	}
	if err := classifyStatus(market.PlatformShopee, resp.StatusCode()); err != nil {
		return nil, err
	}

	var result ShopeeItemListResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("%w: shopee: %v", market.ErrParse, err)
	}

	if code := result.ErrorCode(); code != "" {
		switch {
		case isShopeeAuthError(code):
			return nil, fmt.Errorf("%w: shopee %s: %s", market.ErrAuth, code, result.Message)
		case isShopeeRateLimit(code):
			return nil, fmt.Errorf("%w: shopee %s: %s", market.ErrRateLimited, code, result.Message)
		default:
			return nil, fmt.Errorf("%w: shopee %s: %s", market.ErrNetwork, code, result.Message)
		}
	}

	if result.Response == nil {
		return nil, fmt.Errorf("%w: shopee: response has no data", market.ErrParse)
	}
	return result.Response, nil
}
