package report

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

func TestStockChange(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	StockChange(&buf, "RTX 5090", "https://www.canadacomputers.com/p/1", []stock.Entry{
		{Location: "Kanata", Quantity: 2},
		{Location: "Online", Quantity: 5},
	})
	out := buf.String()
	require.Contains(t, out, "RTX 5090")
	require.Contains(t, out, "Kanata")
	require.Contains(t, out, "Online")
	require.Contains(t, out, "https://www.canadacomputers.com/p/1")
}

func TestChecks(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Checks(&buf, []CheckRow{
		{URL: "https://a.example/1", Variant: "canadacomputers", Title: "Card", Entries: []stock.Entry{{Location: "Kanata", Quantity: 1}}},
		{URL: "https://b.example/2", Variant: "none", Err: errors.New("no adapter")},
	})
	out := buf.String()
	require.Contains(t, out, "canadacomputers")
	require.Contains(t, out, "no adapter")
	require.Contains(t, out, "true")
	require.Contains(t, out, "false")
}

func TestTargets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	Targets(&buf, []TargetRow{{URL: "https://www.bestbuy.ca/en-ca/product/1", Host: "bestbuy.ca", Variant: "bestbuy_ca"}})
	require.Contains(t, buf.String(), "bestbuy_ca")
	require.Contains(t, buf.String(), "bestbuy.ca")
}
