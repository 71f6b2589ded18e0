package ecommerce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/bestseller/tracker/internal/domain/market"
)

var (
	asinPattern   = regexp.MustCompile(`/dp/([A-Z0-9]{10})`)
	numberPattern = regexp.MustCompile(`[0-9][0-9,]*(\.[0-9]+)?`)
)

// AmazonAdapter implements SourceAdapter by scraping Amazon best-seller pages
type AmazonAdapter struct {
	config     *AmazonConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

var _ market.SourceAdapter = (*AmazonAdapter)(nil)

// NewAmazonAdapter creates a new Amazon adapter
func NewAmazonAdapter(config *AmazonConfig, client *http.Client, requestsPerSecond float64) (*AmazonAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		var err error
		if client, err = NewHTTPClient(ClientOptions{}); err != nil {
			return nil, err
		}
	}

	return &AmazonAdapter{
		config:     config,
		httpClient: client,
		limiter:    newLimiter(requestsPerSecond),
	}, nil
}

// Platform returns the platform served by this adapter
func (a *AmazonAdapter) Platform() market.Platform {
	return market.PlatformAmazon
}

// Fetch scrapes best-seller pages for the category in rank order
func (a *AmazonAdapter) Fetch(ctx context.Context, category string, limit int) (*market.FetchBatch, error) {
	batch := &market.FetchBatch{}
	seen := 0

	for page := 1; page <= a.config.MaxPages && seen < limit; page++ {
		doc, err := a.fetchPage(ctx, category, page)
		if err != nil {
			return nil, err
		}

		items := doc.Find("div[id='gridItemRoot']")
		if items.Length() == 0 {
			break
		}

		items.EachWithBreak(func(i int, sel *goquery.Selection) bool {
			seen++
			listing, err := a.parseListing(sel, (page-1)*amazonPageSize+i+1)
			if err != nil {
				batch.ParseErrors = append(batch.ParseErrors, market.ItemError{SourceID: listing.ASIN, Err: err})
				return seen < limit
			}
			payload, err := json.Marshal(listing)
			if err != nil {
				batch.ParseErrors = append(batch.ParseErrors, market.ItemError{SourceID: listing.ASIN, Err: err})
				return seen < limit
			}
			batch.Items = append(batch.Items, market.RawItem{
				Platform: market.PlatformAmazon,
				SourceID: listing.ASIN,
				Category: category,
				Payload:  payload,
			})
			return seen < limit
		})

		if items.Length() < amazonPageSize {
			break
		}
	}

	return batch, nil
}

// fetchPage downloads and parses one best-seller page
func (a *AmazonAdapter) fetchPage(ctx context.Context, category string, page int) (*goquery.Document, error) {
	if err := wait(ctx, a.limiter); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/gp/bestsellers/%s?pg=%d", a.config.BaseURL, a.config.CategoryPath(category), page)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("amazon: failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", a.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(market.PlatformAmazon, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(market.PlatformAmazon, resp.StatusCode); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: amazon: %v", market.ErrParse, err)
	}
	if isBotChallenge(doc) {
		return nil, fmt.Errorf("%w: amazon served a captcha page", market.ErrRateLimited)
	}
	return doc, nil
}

// parseListing reads one grid item. Only a missing ASIN is a parse error;
// missing price or title is left for the normalizer to reject.
func (a *AmazonAdapter) parseListing(sel *goquery.Selection, position int) (market.AmazonListing, error) {
	listing := market.AmazonListing{Rank: position}

	if badge := strings.TrimSpace(sel.Find("span.zg-bdg-text").First().Text()); badge != "" {
		if n, err := strconv.Atoi(strings.TrimPrefix(badge, "#")); err == nil {
			listing.Rank = n
		}
	}

	link := sel.Find("a[href*='/dp/']").First().AttrOr("href", "")
	listing.ASIN = sel.Find("div[data-asin]").First().AttrOr("data-asin", "")
	if listing.ASIN == "" {
		if m := asinPattern.FindStringSubmatch(link); m != nil {
			listing.ASIN = m[1]
		}
	}
	if listing.ASIN == "" {
		return listing, fmt.Errorf("%w: amazon item at rank %d has no ASIN", market.ErrParse, listing.Rank)
	}

	img := sel.Find("img").First()
	listing.Title = firstNonEmpty(
		sel.Find("div[class*='line-clamp']").First().Text(),
		img.AttrOr("alt", ""),
	)
	listing.ImageURL = img.AttrOr("src", "")
	if link != "" {
		listing.ProductURL = a.config.BaseURL + "/dp/" + listing.ASIN
	}

	priceText := strings.TrimSpace(sel.Find("span[class*='p13n-sc-price']").First().Text())
	listing.Price, listing.Currency = parsePrice(priceText)

	if stars := sel.Find("span.a-icon-alt").First().Text(); stars != "" {
		if m := numberPattern.FindString(stars); m != "" {
			if v, err := strconv.ParseFloat(m, 64); err == nil {
				listing.Rating = &v
			}
		}
	}
	listing.ReviewCount = parseCount(sel.Find("a[href*='product-reviews'] span.a-size-small").First().Text())

	return listing, nil
}

// isBotChallenge detects the captcha page Amazon serves to throttled clients
func isBotChallenge(doc *goquery.Document) bool {
	if doc.Find("form[action*='validateCaptcha']").Length() > 0 {
		return true
	}
	return strings.Contains(doc.Find("title").Text(), "Robot Check")
}

// parsePrice reads "$1,299.00" or "$10.99 - $15.99" (lower bound)
func parsePrice(text string) (*decimal.Decimal, string) {
	m := numberPattern.FindString(text)
	if m == "" {
		return nil, ""
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return nil, ""
	}
	currency := ""
	switch {
	case strings.HasPrefix(text, "$"):
		currency = "USD"
	case strings.HasPrefix(text, "£"):
		currency = "GBP"
	case strings.HasPrefix(text, "€"):
		currency = "EUR"
	}
	return &d, currency
}

// parseCount reads "12,345" as 12345, 0 when absent
func parseCount(text string) int64 {
	m := numberPattern.FindString(text)
	if m == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.SplitN(m, ".", 2)[0], ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
