package stock

import (
	"strconv"
	"strings"
)

// Signature is an order-preserving digest of stock entries used for equality only.
type Signature string

// EmptySignature is the signature of a result with no entries.
const EmptySignature Signature = ""

// SignatureOf renders entries as "location:quantity" pairs joined by "|".
func SignatureOf(entries []Entry) Signature {
	if len(entries) == 0 {
		return EmptySignature
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(e.Location)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(e.Quantity))
	}
	return Signature(b.String())
}

// FormatEntries renders one "• location: quantity" line per entry.
func FormatEntries(entries []Entry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, "• "+e.Location+": "+strconv.Itoa(e.Quantity))
	}
	return strings.Join(lines, "\n")
}

// ShortTitle truncates title to max runes, appending an ellipsis when cut.
func ShortTitle(title string, max int) string {
	title = strings.TrimSpace(title)
	if max <= 0 {
		return title
	}
	runes := []rune(title)
	if len(runes) <= max {
		return title
	}
	return string(runes[:max]) + "…"
}

// PlaceholderTitle is the title used when a page could not be loaded.
func PlaceholderTitle(retailer string) string {
	return retailer + " - Unknown"
}
