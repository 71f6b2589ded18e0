package ecommerce

import (
	"encoding/json"
	"strings"
)

// ShopeeItemListResponse is the response wrapper of get_item_list.
// Error is a string code on v2 and a number on some legacy gateways.
type ShopeeItemListResponse struct {
	Error     json.RawMessage     `json:"error"`
	Message   string              `json:"message"`
	RequestID string              `json:"request_id,omitempty"`
	Response  *ShopeeItemListData `json:"response,omitempty"`
}

// ShopeeItemListData holds one page of items
type ShopeeItemListData struct {
	Item        []json.RawMessage `json:"item"`
	TotalCount  int               `json:"total_count"`
	HasNextPage bool              `json:"has_next_page"`
	NextOffset  int               `json:"next_offset"`
}

// ErrorCode returns the error code as a string, empty on success
func (r *ShopeeItemListResponse) ErrorCode() string {
	raw := strings.TrimSpace(string(r.Error))
	switch raw {
	case "", "null", `""`, "0":
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Error, &s); err == nil {
		return s
	}
	return raw
}

// IsSuccess returns true if the response indicates success
func (r *ShopeeItemListResponse) IsSuccess() bool {
	return r.ErrorCode() == ""
}

// isShopeeAuthError reports whether a Shopee error code means bad credentials
func isShopeeAuthError(code string) bool {
	return strings.Contains(code, "auth") || strings.Contains(code, "sign") || strings.Contains(code, "permission")
}

// isShopeeRateLimit reports whether a Shopee error code means throttling
func isShopeeRateLimit(code string) bool {
	return strings.Contains(code, "too_many") || strings.Contains(code, "limit")
}
