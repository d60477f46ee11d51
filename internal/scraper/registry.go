// Package scraper holds the per-retailer adapters and the host table that selects them.
package scraper

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Variant identifies an adapter implementation.
type Variant int

// Known variants.
const (
	VariantNone Variant = iota
	VariantCanadaComputers
	VariantBestBuyCA
	VariantBestBuyUS
	VariantMemoryExpress
)

func (v Variant) String() string {
	switch v {
	case VariantCanadaComputers:
		return "canadacomputers"
	case VariantBestBuyCA:
		return "bestbuy-ca"
	case VariantBestBuyUS:
		return "bestbuy-us"
	case VariantMemoryExpress:
		return "memoryexpress"
	default:
		return "none"
	}
}

var hostTable = []struct {
	domain  string
	variant Variant
}{
	{domain: "canadacomputers.com", variant: VariantCanadaComputers},
	{domain: "bestbuy.ca", variant: VariantBestBuyCA},
	{domain: "bestbuy.com", variant: VariantBestBuyUS},
	{domain: "memoryexpress.com", variant: VariantMemoryExpress},
}

// Select maps a target to its adapter variant by host. Subdomains match their parent.
func Select(target stock.Target) Variant {
	host := target.Host()
	if host == "" {
		return VariantNone
	}
	for _, entry := range hostTable {
		if host == entry.domain || strings.HasSuffix(host, "."+entry.domain) {
			return entry.variant
		}
	}
	return VariantNone
}

// Options tunes adapter behavior.
type Options struct {
	UserAgent      string
	TitleMaxLen    int
	APITimeout     time.Duration
	BestBuyAPIBase string
	ButtonWait     time.Duration
	Logger         *zap.Logger
}

// Registry resolves targets to adapters.
type Registry struct {
	adapters map[Variant]stock.Adapter
}

// NewRegistry builds every known adapter.
func NewRegistry(opts Options) *Registry {
	opts.Logger = logging.OrNop(opts.Logger).Named("scraper")
	if opts.APITimeout <= 0 {
		opts.APITimeout = 10 * time.Second
	}
	if opts.ButtonWait <= 0 {
		opts.ButtonWait = 8 * time.Second
	}
	if opts.BestBuyAPIBase == "" {
		opts.BestBuyAPIBase = DefaultBestBuyAPIBase
	}
	return &Registry{
		adapters: map[Variant]stock.Adapter{
			VariantCanadaComputers: &CanadaComputers{opts: opts},
			VariantBestBuyCA:       &BestBuyAPI{opts: opts},
			VariantBestBuyUS:       &BestBuyPage{opts: opts},
			VariantMemoryExpress:   &MemoryExpress{opts: opts},
		},
	}
}

// Adapter returns the adapter for target or stock.ErrNoAdapter.
func (r *Registry) Adapter(target stock.Target) (stock.Adapter, error) {
	adapter, ok := r.adapters[Select(target)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", target, stock.ErrNoAdapter)
	}
	return adapter, nil
}
