package ecommerce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bestseller/tracker/internal/domain/market"
)

func newTestShopeeAdapter(t *testing.T, serverURL string, pageSize int) *ShopeeAdapter {
	t.Helper()
	config := NewShopeeConfig(1001, "partner_key", "partner_secret")
	config.APIBaseURL = serverURL
	config.PageSize = pageSize
	adapter, err := NewShopeeAdapter(config, nil, 0)
	require.NoError(t, err)
	adapter.now = func() time.Time { return time.Unix(1700000000, 0) }
	return adapter
}

func TestShopeeConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (&ShopeeConfig{APIKey: "k", APISecret: "s"}).Validate(), ErrShopeeConfigMissingPartnerID)
	assert.ErrorIs(t, (&ShopeeConfig{PartnerID: 1, APISecret: "s"}).Validate(), ErrShopeeConfigMissingAPIKey)
	assert.ErrorIs(t, (&ShopeeConfig{PartnerID: 1, APIKey: "k"}).Validate(), ErrShopeeConfigMissingAPISecret)

	config := &ShopeeConfig{PartnerID: 1, APIKey: "k", APISecret: "s", PageSize: 500}
	require.NoError(t, config.Validate())
	assert.Equal(t, ShopeeProductionAPIURL, config.APIBaseURL)
	assert.Equal(t, 50, config.PageSize)
}

func TestShopeeConfig_Sign(t *testing.T) {
	config := NewShopeeConfig(1001, "partner_key", "partner_secret")

	sign := config.Sign(shopeeSignPath, 1700000000)
	assert.Len(t, sign, 64)
	assert.Equal(t, sign, config.Sign(shopeeSignPath, 1700000000))
	assert.NotEqual(t, sign, config.Sign("/api/v2/shop/get_shop_info", 1700000000))
}

func TestShopeeAdapter_Fetch_Paginates(t *testing.T) {
	var offsets []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, shopeeItemListPath, r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "1001", q.Get("partner_id"))
		assert.Equal(t, "1700000000", q.Get("timestamp"))
		assert.Equal(t, "sales", q.Get("sort_by"))
		assert.Equal(t, "home", q.Get("category"))
		assert.NotEmpty(t, q.Get("sign"))
		offsets = append(offsets, q.Get("offset"))

		offset, _ := strconv.Atoi(q.Get("offset"))
		size, _ := strconv.Atoi(q.Get("page_size"))
		items := make([]map[string]any, 0, size)
		for i := 0; i < size; i++ {
			items = append(items, map[string]any{
				"item_id":   offset + i + 1,
				"item_name": "Item",
				"price":     1990000,
				"sold":      10,
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":    "",
			"response": map[string]any{"item": items, "has_next_page": true, "next_offset": offset + size},
		})
	}))
	defer server.Close()

	adapter := newTestShopeeAdapter(t, server.URL, 2)
	batch, err := adapter.Fetch(context.Background(), "home", 5)
	require.NoError(t, err)

	require.Len(t, batch.Items, 5)
	assert.Equal(t, []string{"0", "2", "4"}, offsets)
	assert.Equal(t, "1", batch.Items[0].SourceID)
	assert.Equal(t, "5", batch.Items[4].SourceID)
	assert.Equal(t, market.PlatformShopee, batch.Items[4].Platform)
}

func TestShopeeAdapter_Fetch_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"auth error", http.StatusOK, `{"error":"error_auth","message":"invalid partner"}`, market.ErrAuth},
		{"sign error", http.StatusOK, `{"error":"error_sign","message":"wrong sign"}`, market.ErrAuth},
		{"throttled", http.StatusOK, `{"error":"error_too_many_request","message":"slow"}`, market.ErrRateLimited},
		{"server error code", http.StatusOK, `{"error":"error_server","message":"oops"}`, market.ErrNetwork},
		{"http 403", http.StatusForbidden, `{}`, market.ErrAuth},
		{"http 500", http.StatusInternalServerError, `{}`, market.ErrNetwork},
		{"no response", http.StatusOK, `{"error":""}`, market.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := newTestShopeeAdapter(t, server.URL, 10)
			_, err := adapter.Fetch(context.Background(), "", 10)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestShopeeItemListResponse_ErrorCode(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{`""`, ""},
		{`0`, ""},
		{`null`, ""},
		{`"error_auth"`, "error_auth"},
		{`10001`, "10001"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			r := ShopeeItemListResponse{Error: json.RawMessage(tt.raw)}
			assert.Equal(t, tt.expected, r.ErrorCode())
		})
	}
	assert.True(t, (&ShopeeItemListResponse{}).IsSuccess())
}
