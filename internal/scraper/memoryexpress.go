package scraper

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

const (
	memexOnlineSelector = ".c-capr-inventory-selector__details-online .c-capr-inventory-store__availability"
	memexStoreSelector  = ".c-capr-inventory-region .c-capr-inventory-store"
	memexInStockClass   = "InventoryState_InStock"
	onlineStoreLocation = "Online Store"
)

// MemoryExpress reads the online and per-store inventory selector.
type MemoryExpress struct {
	opts Options
}

// Name implements stock.Adapter.
func (*MemoryExpress) Name() string { return "Memory Express" }

// Scrape implements stock.Adapter.
func (a *MemoryExpress) Scrape(ctx context.Context, session stock.Session, target stock.Target) (stock.Result, error) {
	p, result, err := loadPage(ctx, session, target, a.Name(), a.opts.TitleMaxLen)
	if err != nil {
		return result, err
	}

	if online := p.doc.Find(memexOnlineSelector).First(); online.Length() > 0 {
		if qty, ok := parseQuantity(online.Text()); ok && qty > 0 {
			result.Entries = append(result.Entries, stock.Entry{Location: onlineStoreLocation, Quantity: qty})
		}
	}

	p.doc.Find(memexStoreSelector).Each(func(_ int, store *goquery.Selection) {
		name := store.Find(".c-capr-inventory-store__name").First()
		avail := store.Find(".c-capr-inventory-store__availability").First()
		if name.Length() == 0 || avail.Length() == 0 {
			return
		}
		class, _ := avail.Attr("class")
		if !strings.Contains(class, memexInStockClass) {
			return
		}
		location := cleanText(strings.Replace(name.Text(), ":", "", 1))
		qty, ok := parseQuantity(avail.Text())
		if location == "" || !ok || qty <= 0 {
			return
		}
		result.Entries = append(result.Entries, stock.Entry{Location: location, Quantity: qty})
	})
	return result, nil
}
