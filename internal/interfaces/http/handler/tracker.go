package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bestseller/tracker/internal/application/analytics"
	"github.com/bestseller/tracker/internal/application/tracker"
	"github.com/bestseller/tracker/internal/domain/market"
	"github.com/bestseller/tracker/internal/interfaces/http/dto"
)

// TrackerService is the application facade served by TrackerHandler
type TrackerService interface {
	StartCollection(ctx context.Context) (uuid.UUID, error)
	GetRun(ctx context.Context, id uuid.UUID) (*market.CollectionRun, error)
	ListRuns(ctx context.Context, limit int) ([]market.CollectionRun, error)
	GetHotProducts(ctx context.Context, platform market.Platform, category string, timeRange market.TimeRange, limit int) ([]market.ProductRecord, error)
	GetTrend(ctx context.Context, platform market.Platform, productID string, metric market.Metric, from, to time.Time) (*analytics.TrendResult, error)
	GetComparison(ctx context.Context, category string, metric market.Metric, platforms []market.Platform) (*analytics.ComparisonResult, error)
	GetRisingProducts(ctx context.Context, platform market.Platform, category string, days, limit int) ([]analytics.RisingProduct, error)
	GetCategoryRankings(ctx context.Context, platform market.Platform, perCategory int) ([]analytics.CategoryRanking, error)
	GetPriceRangeRankings(ctx context.Context, platform market.Platform, perRange int) ([]analytics.PriceRangeRanking, error)
	GetMarketTrend(ctx context.Context, platform market.Platform, category string, metric market.Metric, groupBy analytics.MarketGroup, days int) (*analytics.MarketTrend, error)
	GetCategoryTrend(ctx context.Context, platform market.Platform, days int) (*analytics.CategoryTrend, error)
	GetTrendSummary(ctx context.Context, platform market.Platform, days int) (*analytics.MarketSummary, error)
	GetCategories(ctx context.Context, platform market.Platform) ([]string, error)
	GetSystemStats(ctx context.Context) (*market.Stats, error)
}

var _ TrackerService = (*tracker.Service)(nil)

// TrackerHandler serves collection runs, rankings, trends and comparisons
type TrackerHandler struct {
	BaseHandler
	service TrackerService
}

// NewTrackerHandler creates a new TrackerHandler
func NewTrackerHandler(service TrackerService) *TrackerHandler {
	return &TrackerHandler{service: service}
}

// RegisterRoutes mounts the tracker endpoints on rg
func (h *TrackerHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/collections", h.TriggerCollection)
	rg.GET("/collections", h.ListCollections)
	rg.GET("/collections/:id", h.GetCollection)

	rg.GET("/products/hot", h.GetHotProducts)
	rg.GET("/products/rising", h.GetRisingProducts)
	rg.GET("/products/:platform/:id/trend", h.GetTrend)

	rg.GET("/comparisons", h.GetComparison)
	rg.GET("/rankings/categories", h.GetCategoryRankings)
	rg.GET("/rankings/price-ranges", h.GetPriceRangeRankings)

	rg.GET("/trends/sales", h.GetSalesTrend)
	rg.GET("/trends/prices", h.GetPriceTrend)
	rg.GET("/trends/categories", h.GetCategoryTrend)
	rg.GET("/trends/summary", h.GetTrendSummary)

	rg.GET("/categories", h.GetCategories)
	rg.GET("/stats", h.GetStats)
}

// ---------------------------------------------------------------------------
// Collection runs
// ---------------------------------------------------------------------------

// TriggerCollection starts a collection cycle in the background and
// returns its id. Poll GET /collections/:id for the outcome.
// POST /collections
func (h *TrackerHandler) TriggerCollection(c *gin.Context) {
	id, err := h.service.StartCollection(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Accepted(c, c.Request.URL.Path+"/"+id.String(), dto.CollectionAccepted{
		ID:     id.String(),
		Status: string(market.RunStatusRunning),
	})
}

// GetCollection returns one stored run.
// GET /collections/:id
func (h *TrackerHandler) GetCollection(c *gin.Context) {
	var p dto.RunPath
	if err := c.ShouldBindUri(&p); err != nil {
		h.ValidationError(c, err)
		return
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		h.ValidationError(c, err)
		return
	}
	run, err := h.service.GetRun(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, run)
}

// ListCollections returns the most recent runs, newest first.
// GET /collections?limit=
func (h *TrackerHandler) ListCollections(c *gin.Context) {
	var q dto.ListRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	runs, err := h.service.ListRuns(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, runs, len(runs), q.Limit)
}

// ---------------------------------------------------------------------------
// Rankings
// ---------------------------------------------------------------------------

// GetHotProducts returns the top products by popularity score.
// GET /products/hot?platform=&category=&time_range=&limit=
func (h *TrackerHandler) GetHotProducts(c *gin.Context) {
	var q dto.HotProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	products, err := h.service.GetHotProducts(
		c.Request.Context(),
		market.Platform(q.Platform),
		q.Category,
		market.TimeRange(q.TimeRange),
		q.Limit,
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, products, len(products), q.Limit)
}

// GetRisingProducts returns the products with the fastest sales growth.
// GET /products/rising?platform=&category=&days=&limit=
func (h *TrackerHandler) GetRisingProducts(c *gin.Context) {
	var q dto.RisingProductsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	products, err := h.service.GetRisingProducts(c.Request.Context(), market.Platform(q.Platform), q.Category, q.Days, q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, products, len(products), q.Limit)
}

// GetCategoryRankings returns the top products of every category.
// GET /rankings/categories?platform=&limit=
func (h *TrackerHandler) GetCategoryRankings(c *gin.Context) {
	var q dto.RankingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	rankings, err := h.service.GetCategoryRankings(c.Request.Context(), market.Platform(q.Platform), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rankings)
}

// GetPriceRangeRankings returns the top products of every price band.
// GET /rankings/price-ranges?platform=&limit=
func (h *TrackerHandler) GetPriceRangeRankings(c *gin.Context) {
	var q dto.RankingsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	rankings, err := h.service.GetPriceRangeRankings(c.Request.Context(), market.Platform(q.Platform), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rankings)
}

// ---------------------------------------------------------------------------
// Trend and comparison
// ---------------------------------------------------------------------------

// GetTrend returns one product's metric over time.
// GET /products/:platform/:id/trend?metric=&from=&to=
func (h *TrackerHandler) GetTrend(c *gin.Context) {
	var p dto.TrendPath
	if err := c.ShouldBindUri(&p); err != nil {
		h.ValidationError(c, err)
		return
	}
	var q dto.TrendQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	trend, err := h.service.GetTrend(
		c.Request.Context(),
		market.Platform(p.Platform),
		p.ProductID,
		market.Metric(q.Metric),
		q.From,
		q.To,
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, trend)
}

// GetComparison compares one category across platforms.
// GET /comparisons?category=&metric=&platforms=tiktok,amazon
func (h *TrackerHandler) GetComparison(c *gin.Context) {
	var q dto.ComparisonQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}

	var platforms []market.Platform
	if names := q.PlatformNames(); len(names) > 0 {
		parsed, err := market.ParsePlatforms(names)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		platforms = parsed
	}

	result, err := h.service.GetComparison(c.Request.Context(), q.Category, market.Metric(q.Metric), platforms)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// ---------------------------------------------------------------------------
// Market trends
// ---------------------------------------------------------------------------

// GetSalesTrend returns daily summed sales.
// GET /trends/sales?platform=&category=&group_by=&days=
func (h *TrackerHandler) GetSalesTrend(c *gin.Context) {
	h.marketTrend(c, market.MetricSalesCount)
}

// GetPriceTrend returns daily mean prices.
// GET /trends/prices?platform=&category=&group_by=&days=
func (h *TrackerHandler) GetPriceTrend(c *gin.Context) {
	h.marketTrend(c, market.MetricPrice)
}

func (h *TrackerHandler) marketTrend(c *gin.Context, metric market.Metric) {
	var q dto.MarketTrendQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	trend, err := h.service.GetMarketTrend(
		c.Request.Context(),
		market.Platform(q.Platform),
		q.Category,
		metric,
		analytics.MarketGroup(q.GroupBy),
		q.Days,
	)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, trend)
}

// GetCategoryTrend returns the best selling categories with their shares.
// GET /trends/categories?platform=&days=
func (h *TrackerHandler) GetCategoryTrend(c *gin.Context) {
	var q dto.MarketWindowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	trend, err := h.service.GetCategoryTrend(c.Request.Context(), market.Platform(q.Platform), q.Days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, trend)
}

// GetTrendSummary condenses the market trends of a window.
// GET /trends/summary?platform=&days=
func (h *TrackerHandler) GetTrendSummary(c *gin.Context) {
	var q dto.MarketWindowQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	summary, err := h.service.GetTrendSummary(c.Request.Context(), market.Platform(q.Platform), q.Days)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, summary)
}

// ---------------------------------------------------------------------------
// Catalog
// ---------------------------------------------------------------------------

// GetCategories lists the known categories.
// GET /categories?platform=
func (h *TrackerHandler) GetCategories(c *gin.Context) {
	var q dto.PlatformQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.ValidationError(c, err)
		return
	}
	categories, err := h.service.GetCategories(c.Request.Context(), market.Platform(q.Platform))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessList(c, categories, len(categories), 0)
}

// GetStats returns store-wide counters.
// GET /stats
func (h *TrackerHandler) GetStats(c *gin.Context) {
	stats, err := h.service.GetSystemStats(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, stats)
}
