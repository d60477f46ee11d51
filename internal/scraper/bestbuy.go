package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// DefaultBestBuyAPIBase is the Canadian availability endpoint.
const DefaultBestBuyAPIBase = "https://www.bestbuy.ca/ecomm-api/availability/products"

const (
	bestBuyLocation      = "Best Buy"
	bestBuyInStock       = "IN_STOCK"
	addToCartSelector    = `[data-automation="addToCartButton"]`
	defaultAPIUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
	bestBuyUnknownSKUTag = "Best Buy - Unknown SKU"
)

var skuPattern = regexp.MustCompile(`/(\d+)(?:[/?]|$)`)

// parseSKU returns the first path segment made only of digits.
func parseSKU(rawURL string) string {
	match := skuPattern.FindStringSubmatch(rawURL)
	if len(match) < 2 {
		return ""
	}
	return match[1]
}

type availabilityResponse struct {
	Availabilities []struct {
		SKU                string `json:"sku"`
		ProductTitle       string `json:"productTitle"`
		AvailabilityStatus string `json:"availabilityStatus"`
	} `json:"availabilities"`
}

// BestBuyAPI queries the bestbuy.ca availability API instead of rendering the page.
type BestBuyAPI struct {
	opts Options
}

// Name implements stock.Adapter.
func (*BestBuyAPI) Name() string { return "Best Buy" }

// Scrape implements stock.Adapter. The session is not used.
func (a *BestBuyAPI) Scrape(ctx context.Context, _ stock.Session, target stock.Target) (stock.Result, error) {
	sku := parseSKU(target.URL())
	if sku == "" {
		return stock.Result{Title: bestBuyUnknownSKUTag},
			stock.AdapterFailure(target, fmt.Errorf("unable to parse SKU from %s", target))
	}
	fallback := stock.Result{Title: "Best Buy SKU " + sku}

	body, err := a.fetch(ctx, a.endpoint(sku))
	if err != nil {
		return fallback, stock.AdapterFailure(target, err)
	}
	var payload availabilityResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return fallback, stock.AdapterFailure(target, fmt.Errorf("decode availability: %w", err))
	}
	if len(payload.Availabilities) == 0 {
		return fallback, nil
	}

	product := payload.Availabilities[0]
	result := fallback
	if product.ProductTitle != "" {
		result.Title = stock.ShortTitle(product.ProductTitle, a.opts.TitleMaxLen)
	}
	if product.AvailabilityStatus == bestBuyInStock {
		result.Entries = []stock.Entry{{Location: bestBuyLocation, Quantity: 1}}
	}
	return result, nil
}

func (a *BestBuyAPI) endpoint(sku string) string {
	q := url.Values{}
	q.Set("skus", sku)
	q.Set("accept-language", "en-CA")
	return a.opts.BestBuyAPIBase + "?" + q.Encode()
}

func (a *BestBuyAPI) fetch(ctx context.Context, endpoint string) ([]byte, error) {
	userAgent := a.opts.UserAgent
	if userAgent == "" {
		userAgent = defaultAPIUserAgent
	}
	collector := colly.NewCollector(colly.UserAgent(userAgent), colly.AllowURLRevisit())
	collector.SetRequestTimeout(a.opts.APITimeout)

	var (
		body     []byte
		fetchErr error
	)
	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
	})
	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			fetchErr = fmt.Errorf("availability api status %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(endpoint)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("availability request canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return nil, fmt.Errorf("availability request failed: %w", fetchErr)
		}
		if err != nil {
			return nil, fmt.Errorf("availability request failed: %w", err)
		}
		if len(body) == 0 {
			return nil, errors.New("availability request returned an empty body")
		}
		return body, nil
	}
}

// BestBuyPage renders a bestbuy.com product page and inspects the add-to-cart button.
type BestBuyPage struct {
	opts Options
}

// Name implements stock.Adapter.
func (*BestBuyPage) Name() string { return "Best Buy" }

// Scrape implements stock.Adapter.
func (a *BestBuyPage) Scrape(ctx context.Context, session stock.Session, target stock.Target) (stock.Result, error) {
	placeholder := stock.Result{Title: stock.PlaceholderTitle(a.Name())}
	if err := session.Navigate(ctx, target.URL()); err != nil {
		return placeholder, stock.NavigationFailure(target, err)
	}
	title, err := session.Title(ctx)
	if err != nil {
		return placeholder, stock.AdapterFailure(target, err)
	}
	result := stock.Result{Title: stock.ShortTitle(title, a.opts.TitleMaxLen)}

	waitCtx, cancel := context.WithTimeout(ctx, a.opts.ButtonWait)
	defer cancel()
	if err := session.WaitVisible(waitCtx, addToCartSelector); err != nil {
		if ctx.Err() != nil {
			return result, stock.NavigationFailure(target, ctx.Err())
		}
		// A missing button means the product cannot be bought right now.
		a.opts.Logger.Debug("add-to-cart button not found", zap.String("target", target.URL()), zap.Error(err))
		return result, nil
	}

	html, err := session.HTML(ctx)
	if err != nil {
		return result, stock.AdapterFailure(target, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return result, stock.AdapterFailure(target, fmt.Errorf("parse html: %w", err))
	}
	button := doc.Find(addToCartSelector).First()
	if _, disabled := button.Attr("disabled"); button.Length() > 0 && !disabled {
		result.Entries = []stock.Entry{{Location: bestBuyLocation, Quantity: 1}}
	}
	return result, nil
}
