package ecommerce

import (
	"encoding/json"
)

// TikTok envelope codes that are not plain failures
const (
	tiktokCodeSuccess      = 0
	tiktokCodeInvalidSign  = 40001
	tiktokCodeUnauthorized = 40100
	tiktokCodeTooManyCalls = 42900
)

// TikTokSearchRequest is the body of a product search call
type TikTokSearchRequest struct {
	Category   string `json:"category,omitempty"`
	PageSize   int    `json:"page_size"`
	PageNumber int    `json:"page_number"`
	SortBy     string `json:"sort_by"`
}

// TikTokSearchResponse is the response wrapper of a product search call
type TikTokSearchResponse struct {
	// Code is the error code (0 for success)
	Code int `json:"code"`
	// Message is the error message
	Message string `json:"message"`
	// RequestID is the request trace ID for debugging
	RequestID string            `json:"request_id,omitempty"`
	Data      *TikTokSearchData `json:"data,omitempty"`
}

// TikTokSearchData holds one page of products. Products stay raw so each can
// be validated on its own.
type TikTokSearchData struct {
	Products []json.RawMessage `json:"products"`
	Total    int               `json:"total"`
	HasMore  bool              `json:"has_more"`
}

// IsSuccess returns true if the response indicates success
func (r *TikTokSearchResponse) IsSuccess() bool {
	return r.Code == tiktokCodeSuccess
}
