package dto

import (
	"strings"
	"time"
)

// HotProductsQuery binds GET /products/hot
type HotProductsQuery struct {
	Platform  string `form:"platform" binding:"omitempty,oneof=tiktok amazon shopee"`
	Category  string `form:"category" binding:"omitempty,max=100"`
	TimeRange string `form:"time_range" binding:"omitempty,oneof=day week month year all"`
	Limit     int    `form:"limit,default=20" binding:"min=1,max=500"`
}

// RisingProductsQuery binds GET /products/rising
type RisingProductsQuery struct {
	Platform string `form:"platform" binding:"omitempty,oneof=tiktok amazon shopee"`
	Category string `form:"category" binding:"omitempty,max=100"`
	Days     int    `form:"days,default=7" binding:"min=1,max=365"`
	Limit    int    `form:"limit,default=20" binding:"min=1,max=500"`
}

// TrendPath binds the path of GET /products/:platform/:id/trend
type TrendPath struct {
	Platform  string `uri:"platform" binding:"required,oneof=tiktok amazon shopee"`
	ProductID string `uri:"id" binding:"required,max=128"`
}

// TrendQuery binds the query of GET /products/:platform/:id/trend
type TrendQuery struct {
	Metric string    `form:"metric" binding:"omitempty,oneof=sales_count rating price popularity_score"`
	From   time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}

// ComparisonQuery binds GET /comparisons
type ComparisonQuery struct {
	Category  string `form:"category" binding:"required,max=100"`
	Metric    string `form:"metric" binding:"omitempty,oneof=sales_count rating price popularity_score"`
	Platforms string `form:"platforms" binding:"omitempty,max=64"`
}

// PlatformNames splits the comma separated platforms parameter
func (q ComparisonQuery) PlatformNames() []string {
	if strings.TrimSpace(q.Platforms) == "" {
		return nil
	}
	parts := strings.Split(q.Platforms, ",")
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}
	return names
}

// RankingsQuery binds GET /rankings/categories and /rankings/price-ranges
type RankingsQuery struct {
	Platform string `form:"platform" binding:"omitempty,oneof=tiktok amazon shopee"`
	Limit    int    `form:"limit,default=10" binding:"min=1,max=500"`
}

// MarketTrendQuery binds GET /trends/sales and /trends/prices
type MarketTrendQuery struct {
	Platform string `form:"platform" binding:"omitempty,oneof=tiktok amazon shopee"`
	Category string `form:"category" binding:"omitempty,max=100"`
	GroupBy  string `form:"group_by" binding:"omitempty,oneof=platform category none"`
	Days     int    `form:"days,default=30" binding:"min=1,max=366"`
}

// MarketWindowQuery binds GET /trends/categories and /trends/summary
type MarketWindowQuery struct {
	Platform string `form:"platform" binding:"omitempty,oneof=tiktok amazon shopee"`
	Days     int    `form:"days,default=30" binding:"min=1,max=366"`
}

// PlatformQuery binds endpoints filtered by an optional platform
type PlatformQuery struct {
	Platform string `form:"platform" binding:"omitempty,oneof=tiktok amazon shopee"`
}

// ListRunsQuery binds GET /collections
type ListRunsQuery struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

// RunPath binds GET /collections/:id
type RunPath struct {
	ID string `uri:"id" binding:"required,uuid"`
}

// CollectionAccepted is returned by POST /collections
type CollectionAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
