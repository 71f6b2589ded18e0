package market

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Platform identifies a marketplace the tracker collects from
// ---------------------------------------------------------------------------

// Platform identifies a marketplace the tracker collects from
type Platform string

const (
	// PlatformTikTok represents TikTok Shop
	PlatformTikTok Platform = "tiktok"
	// PlatformAmazon represents Amazon best-seller lists
	PlatformAmazon Platform = "amazon"
	// PlatformShopee represents Shopee
	PlatformShopee Platform = "shopee"
)

// AllPlatforms returns every supported platform in a stable order
func AllPlatforms() []Platform {
	return []Platform{PlatformTikTok, PlatformAmazon, PlatformShopee}
}

// IsValid returns true if the platform is supported
func (p Platform) IsValid() bool {
	switch p {
	case PlatformTikTok, PlatformAmazon, PlatformShopee:
		return true
	default:
		return false
	}
}

// String returns the string representation of Platform
func (p Platform) String() string {
	return string(p)
}

// DisplayName returns a human-readable name for the platform
func (p Platform) DisplayName() string {
	switch p {
	case PlatformTikTok:
		return "TikTok Shop"
	case PlatformAmazon:
		return "Amazon"
	case PlatformShopee:
		return "Shopee"
	default:
		return string(p)
	}
}

// DefaultCurrency is used when a platform payload carries no currency
func (p Platform) DefaultCurrency() string {
	switch p {
	case PlatformAmazon:
		return "USD"
	case PlatformShopee:
		return "SGD"
	default:
		return "USD"
	}
}

// ParsePlatform parses a case-insensitive platform name
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: unknown platform %q", ErrInvalidQuery, s)
	}
	return p, nil
}

// ParsePlatforms parses a list of platform names, dropping duplicates.
// An empty list expands to all platforms.
func ParsePlatforms(names []string) ([]Platform, error) {
	if len(names) == 0 {
		return AllPlatforms(), nil
	}
	seen := make(map[Platform]bool, len(names))
	out := make([]Platform, 0, len(names))
	for _, n := range names {
		p, err := ParsePlatform(n)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Metric selects the value plotted by trend and comparison queries
// ---------------------------------------------------------------------------

// Metric selects the value plotted by trend and comparison queries
type Metric string

const (
	MetricSalesCount      Metric = "sales_count"
	MetricRating          Metric = "rating"
	MetricPrice           Metric = "price"
	MetricPopularityScore Metric = "popularity_score"
)

// IsValid returns true if the metric is supported
func (m Metric) IsValid() bool {
	switch m {
	case MetricSalesCount, MetricRating, MetricPrice, MetricPopularityScore:
		return true
	default:
		return false
	}
}

// ParseMetric parses a metric name, defaulting to popularity_score when empty
func ParseMetric(s string) (Metric, error) {
	if s == "" {
		return MetricPopularityScore, nil
	}
	m := Metric(strings.ToLower(s))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidQuery, s)
	}
	return m, nil
}

// ValueOf extracts the metric value from a record
func (m Metric) ValueOf(r ProductRecord) float64 {
	switch m {
	case MetricSalesCount:
		return float64(r.SalesCount)
	case MetricRating:
		return r.Rating
	case MetricPrice:
		return r.Price.InexactFloat64()
	default:
		return r.PopularityScore
	}
}

// ---------------------------------------------------------------------------
// TimeRange limits queries to records collected recently
// ---------------------------------------------------------------------------

// TimeRange limits queries to records collected recently
type TimeRange string

const (
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
	TimeRangeAll   TimeRange = "all"
)

// ParseTimeRange parses a time range name, defaulting to all when empty
func ParseTimeRange(s string) (TimeRange, error) {
	if s == "" {
		return TimeRangeAll, nil
	}
	tr := TimeRange(strings.ToLower(s))
	if tr.Duration() == 0 && tr != TimeRangeAll {
		return "", fmt.Errorf("%w: unknown time range %q", ErrInvalidQuery, s)
	}
	return tr, nil
}

// Duration returns the window length, or 0 for an unbounded range
func (t TimeRange) Duration() time.Duration {
	switch t {
	case TimeRangeDay:
		return 24 * time.Hour
	case TimeRangeWeek:
		return 7 * 24 * time.Hour
	case TimeRangeMonth:
		return 30 * 24 * time.Hour
	case TimeRangeYear:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

// Since returns the lower bound for the range relative to now, or the zero
// time when the range is unbounded.
func (t TimeRange) Since(now time.Time) time.Time {
	d := t.Duration()
	if d == 0 {
		return time.Time{}
	}
	return now.Add(-d)
}
