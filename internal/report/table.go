// Package report renders console tables for stock changes and one-shot checks.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// CheckRow is one line of a one-shot check report.
type CheckRow struct {
	URL     string
	Variant string
	Title   string
	Entries []stock.Entry
	Err     error
}

// TargetRow is one configured target and the adapter chosen for it.
type TargetRow struct {
	URL     string
	Host    string
	Variant string
}

// StockChange prints the per-location quantities of a detected change.
func StockChange(w io.Writer, title, url string, entries []stock.Entry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(table.Row{"Store", "Stock"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.Location, e.Quantity})
	}
	t.AppendFooter(table.Row{"URL", url})
	t.Render()
}

// Checks prints the outcome of a one-shot check per URL.
func Checks(w io.Writer, rows []CheckRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"URL", "Adapter", "Title", "In Stock", "Locations", "Error"})
	for _, r := range rows {
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
		}
		t.AppendRow(table.Row{
			r.URL,
			r.Variant,
			r.Title,
			strconv.FormatBool(len(r.Entries) > 0),
			stock.FormatEntries(r.Entries),
			errText,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "Total", fmt.Sprintf("%d", len(rows))})
	t.Render()
}

// Targets prints the configured targets.
func Targets(w io.Writer, rows []TargetRow) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "URL", "Host", "Adapter"})
	for i, r := range rows {
		t.AppendRow(table.Row{i + 1, r.URL, r.Host, r.Variant})
	}
	t.Render()
}
