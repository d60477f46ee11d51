package scraper

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// page is a loaded product page ready for extraction.
type page struct {
	title string
	doc   *goquery.Document
}

// loadPage navigates the session and parses the rendered DOM. A navigation
// failure returns the retailer placeholder title alongside a classified error.
func loadPage(ctx context.Context, session stock.Session, target stock.Target, retailer string, maxTitle int) (page, stock.Result, error) {
	placeholder := stock.Result{Title: stock.PlaceholderTitle(retailer)}
	if err := session.Navigate(ctx, target.URL()); err != nil {
		return page{}, placeholder, stock.NavigationFailure(target, err)
	}
	title, err := session.Title(ctx)
	if err != nil {
		return page{}, placeholder, stock.AdapterFailure(target, err)
	}
	title = stock.ShortTitle(title, maxTitle)
	html, err := session.HTML(ctx)
	if err != nil {
		return page{}, stock.Result{Title: title}, stock.AdapterFailure(target, err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page{}, stock.Result{Title: title}, stock.AdapterFailure(target, fmt.Errorf("parse html: %w", err))
	}
	return page{title: title, doc: doc}, stock.Result{Title: title}, nil
}

// parseQuantity reads the leading integer of s, treating "10+" as 10.
func parseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
	if end == 0 {
		return 0, false
	}
	if end > 0 {
		s = s[:end]
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
