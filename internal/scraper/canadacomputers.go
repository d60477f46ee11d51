package scraper

import (
	"context"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// CanadaComputers reads the "check other stores" panel.
type CanadaComputers struct {
	opts Options
}

// Name implements stock.Adapter.
func (*CanadaComputers) Name() string { return "Canada Computers" }

// Scrape implements stock.Adapter.
func (a *CanadaComputers) Scrape(ctx context.Context, session stock.Session, target stock.Target) (stock.Result, error) {
	p, result, err := loadPage(ctx, session, target, a.Name(), a.opts.TitleMaxLen)
	if err != nil {
		return result, err
	}
	if p.doc.Find("#checkothertores").Length() == 0 {
		a.opts.Logger.Debug("store availability panel missing", zap.String("target", target.URL()))
		return result, nil
	}

	p.doc.Find("#collapseON > .card-body").First().
		ChildrenFiltered(".row.align-items-center").
		Each(func(_ int, row *goquery.Selection) {
			spans := row.Find("span")
			if spans.Length() < 2 {
				return
			}
			store := cleanText(spans.Eq(0).Text())
			qty, ok := parseQuantity(spans.Eq(1).Text())
			if store == "" || !ok || qty <= 0 {
				return
			}
			result.Entries = append(result.Entries, stock.Entry{Location: store, Quantity: qty})
		})
	return result, nil
}
