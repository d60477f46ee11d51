package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

const canadaComputersHTML = `<html><body>
<div id="checkothertores">Check other stores</div>
<div id="collapseON"><div class="card-body">
  <div class="row align-items-center"><span>Ottawa Merivale</span><span>3</span></div>
  <div class="row align-items-center"><span>Kanata</span><span>0</span></div>
  <div class="row align-items-center"><span> Toronto  Downtown </span><span>5+</span></div>
  <div class="row align-items-center"><span>Lonely span</span></div>
  <div class="row"><span>Not a store row</span><span>9</span></div>
</div></div>
</body></html>`

const memoryExpressHTML = `<html><body>
<div class="c-capr-inventory-selector__details-online">
  <span class="c-capr-inventory-store__availability InventoryState_InStock">10+</span>
</div>
<ul>
 <li class="c-capr-inventory-region">
  <div class="c-capr-inventory-store">
    <span class="c-capr-inventory-store__name">Etobicoke:</span>
    <span class="c-capr-inventory-store__availability InventoryState_InStock">8</span>
  </div>
  <div class="c-capr-inventory-store">
    <span class="c-capr-inventory-store__name">Ottawa:</span>
    <span class="c-capr-inventory-store__availability InventoryState_OutOfStock">0</span>
  </div>
  <div class="c-capr-inventory-store">
    <span class="c-capr-inventory-store__name">Calgary:</span>
    <span class="c-capr-inventory-store__availability InventoryState_InStock">Coming Soon</span>
  </div>
 </li>
</ul>
</body></html>`

func newTestRegistry(apiBase string) *Registry {
	return NewRegistry(Options{TitleMaxLen: 40, BestBuyAPIBase: apiBase, APITimeout: 2 * time.Second})
}

func TestSelectByHost(t *testing.T) {
	t.Parallel()

	cases := map[string]Variant{
		"https://www.canadacomputers.com/en/video-cards/1234/rtx.html": VariantCanadaComputers,
		"https://www.bestbuy.ca/en-ca/product/rtx-5090/17952919":       VariantBestBuyCA,
		"https://www.bestbuy.com/site/rtx/6614151.p?skuId=6614151":     VariantBestBuyUS,
		"https://www.memoryexpress.com/Products/MX00131122":            VariantMemoryExpress,
		"https://shop.memoryexpress.com/Products/MX1":                  VariantMemoryExpress,
		"https://www.newegg.ca/p/N82E1":                                VariantNone,
		"https://notbestbuy.ca/x":                                      VariantNone,
		"not a url":                                                    VariantNone,
	}
	for raw, want := range cases {
		require.Equal(t, want, Select(stock.Target(raw)), raw)
	}
	require.Equal(t, "memoryexpress", VariantMemoryExpress.String())
	require.Equal(t, "none", VariantNone.String())
}

func TestRegistryNoAdapter(t *testing.T) {
	t.Parallel()

	reg := newTestRegistry("")
	_, err := reg.Adapter("https://www.newegg.ca/p/1")
	require.ErrorIs(t, err, stock.ErrNoAdapter)

	adapter, err := reg.Adapter("https://www.canadacomputers.com/p/1")
	require.NoError(t, err)
	require.Equal(t, "Canada Computers", adapter.Name())
}

func TestCanadaComputersExtractsPositiveStock(t *testing.T) {
	t.Parallel()

	target := stock.Target("https://www.canadacomputers.com/p/1")
	session := &fakeSession{title: "ASUS ROG Astral GeForce RTX 5090 32GB GDDR7 OC Edition", html: canadaComputersHTML}
	adapter, err := newTestRegistry("").Adapter(target)
	require.NoError(t, err)

	result, err := adapter.Scrape(context.Background(), session, target)
	require.NoError(t, err)
	require.Equal(t, "ASUS ROG Astral GeForce RTX 5090 32GB GD…", result.Title)
	require.Equal(t, []stock.Entry{
		{Location: "Ottawa Merivale", Quantity: 3},
		{Location: "Toronto Downtown", Quantity: 5},
	}, result.Entries)
	require.Equal(t, []string{target.URL()}, session.navigations)
}

func TestCanadaComputersMissingPanelIsNotAnError(t *testing.T) {
	t.Parallel()

	target := stock.Target("https://www.canadacomputers.com/p/1")
	session := &fakeSession{title: "Sold out", html: `<html><body><p>nothing</p></body></html>`}
	adapter, err := newTestRegistry("").Adapter(target)
	require.NoError(t, err)

	result, err := adapter.Scrape(context.Background(), session, target)
	require.NoError(t, err)
	require.Empty(t, result.Entries)
	require.Equal(t, "Sold out", result.Title)
}

func TestNavigationFailureReturnsPlaceholder(t *testing.T) {
	t.Parallel()

	cases := []struct {
		target string
		navErr error
		title  string
		kind   stock.Kind
	}{
		{"https://www.canadacomputers.com/p/1", fmt.Errorf("navigate: %w", context.DeadlineExceeded), "Canada Computers - Unknown", stock.KindNavigationTimeout},
		{"https://www.memoryexpress.com/Products/MX1", errors.New("net::ERR_CONNECTION_RESET"), "Memory Express - Unknown", stock.KindNavigation},
		{"https://www.bestbuy.com/site/x/6614151.p", errors.New("Navigation timeout of 30000 ms exceeded"), "Best Buy - Unknown", stock.KindNavigationTimeout},
	}
	reg := newTestRegistry("")
	for _, tc := range cases {
		target := stock.Target(tc.target)
		adapter, err := reg.Adapter(target)
		require.NoError(t, err)

		result, err := adapter.Scrape(context.Background(), &fakeSession{navErr: tc.navErr}, target)
		require.Error(t, err)
		require.Equal(t, tc.kind, stock.KindOf(err), tc.target)
		require.Equal(t, tc.title, result.Title)
		require.Empty(t, result.Entries)
	}
}

func TestMemoryExpressExtractsOnlineAndStores(t *testing.T) {
	t.Parallel()

	target := stock.Target("https://www.memoryexpress.com/Products/MX00131122")
	session := &fakeSession{title: "MSI RTX 5080", html: memoryExpressHTML}
	adapter, err := newTestRegistry("").Adapter(target)
	require.NoError(t, err)

	result, err := adapter.Scrape(context.Background(), session, target)
	require.NoError(t, err)
	require.Equal(t, []stock.Entry{
		{Location: "Online Store", Quantity: 10},
		{Location: "Etobicoke", Quantity: 8},
	}, result.Entries)
	require.Equal(t, stock.Signature("Online Store:10|Etobicoke:8"), result.Signature())
}

func TestHTMLFailureIsAdapterError(t *testing.T) {
	t.Parallel()

	target := stock.Target("https://www.memoryexpress.com/Products/MX1")
	session := &fakeSession{title: "Title", htmlErr: errors.New("node detached")}
	adapter, err := newTestRegistry("").Adapter(target)
	require.NoError(t, err)

	result, err := adapter.Scrape(context.Background(), session, target)
	require.Equal(t, stock.KindAdapter, stock.KindOf(err))
	require.Equal(t, "Title", result.Title)
}

func TestBestBuyPageButtonStates(t *testing.T) {
	t.Parallel()

	target := stock.Target("https://www.bestbuy.com/site/x/6614151.p")
	adapter, err := NewRegistry(Options{ButtonWait: 50 * time.Millisecond}).Adapter(target)
	require.NoError(t, err)

	enabled := &fakeSession{title: "RTX", html: `<button data-automation="addToCartButton">Add</button>`}
	result, err := adapter.Scrape(context.Background(), enabled, target)
	require.NoError(t, err)
	require.Equal(t, []stock.Entry{{Location: "Best Buy", Quantity: 1}}, result.Entries)

	disabled := &fakeSession{title: "RTX", html: `<button data-automation="addToCartButton" disabled>Sold Out</button>`}
	result, err = adapter.Scrape(context.Background(), disabled, target)
	require.NoError(t, err)
	require.Empty(t, result.Entries)

	missing := &fakeSession{title: "RTX", html: `<p>coming soon</p>`}
	result, err = adapter.Scrape(context.Background(), missing, target)
	require.NoError(t, err)
	require.Empty(t, result.Entries)
}

func TestParseSKU(t *testing.T) {
	t.Parallel()

	require.Equal(t, "17952919", parseSKU("https://www.bestbuy.ca/en-ca/product/rtx-5090/17952919"))
	require.Equal(t, "17952919", parseSKU("https://www.bestbuy.ca/en-ca/product/17952919?icmp=x"))
	require.Equal(t, "17952919", parseSKU("https://www.bestbuy.ca/en-ca/product/rtx/17952919/"))
	require.Empty(t, parseSKU("https://www.bestbuy.ca/en-ca/product/rtx-5090"))
}

func TestParseQuantity(t *testing.T) {
	t.Parallel()

	cases := map[string]int{"3": 3, " 12 ": 12, "10+": 10, "5 in stock": 5}
	for in, want := range cases {
		got, ok := parseQuantity(in)
		require.True(t, ok, in)
		require.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "Coming Soon", "+5"} {
		_, ok := parseQuantity(in)
		require.False(t, ok, in)
	}
}

func TestBestBuyAPI(t *testing.T) {
	t.Parallel()

	var (
		mu                  sync.Mutex
		gotQuery, gotAccept string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotQuery = r.URL.RawQuery
		gotAccept = r.Header.Get("Accept")
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("skus") {
		case "17952919":
			fmt.Fprint(w, `{"availabilities":[{"sku":"17952919","productTitle":"NVIDIA GeForce RTX 5090 Founders Edition 32GB","availabilityStatus":"IN_STOCK"}]}`)
		case "111":
			fmt.Fprint(w, `{"availabilities":[{"sku":"111","availabilityStatus":"SOLD_OUT_ONLINE"}]}`)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	reg := newTestRegistry(srv.URL)
	inStock := stock.Target("https://www.bestbuy.ca/en-ca/product/rtx-5090/17952919")
	adapter, err := reg.Adapter(inStock)
	require.NoError(t, err)

	result, err := adapter.Scrape(context.Background(), nil, inStock)
	require.NoError(t, err)
	require.Equal(t, "NVIDIA GeForce RTX 5090 Founders Edition…", result.Title)
	require.Equal(t, []stock.Entry{{Location: "Best Buy", Quantity: 1}}, result.Entries)
	mu.Lock()
	require.Equal(t, "accept-language=en-CA&skus=17952919", gotQuery)
	require.Equal(t, "application/json", gotAccept)
	mu.Unlock()

	soldOut := stock.Target("https://www.bestbuy.ca/en-ca/product/x/111")
	result, err = adapter.Scrape(context.Background(), nil, soldOut)
	require.NoError(t, err)
	require.Equal(t, "Best Buy SKU 111", result.Title)
	require.Empty(t, result.Entries)

	broken := stock.Target("https://www.bestbuy.ca/en-ca/product/x/999")
	result, err = adapter.Scrape(context.Background(), nil, broken)
	require.Equal(t, stock.KindAdapter, stock.KindOf(err))
	require.Equal(t, "Best Buy SKU 999", result.Title)

	noSKU := stock.Target("https://www.bestbuy.ca/en-ca/product/rtx")
	result, err = adapter.Scrape(context.Background(), nil, noSKU)
	require.Equal(t, stock.KindAdapter, stock.KindOf(err))
	require.Equal(t, "Best Buy - Unknown SKU", result.Title)
}
