// Package stock defines the data model shared by every stage of a stock check.
package stock

import (
	"net/url"
	"strings"
	"time"
)

// Target is a product page URL monitored for availability.
type Target string

// URL returns the raw URL.
func (t Target) URL() string { return string(t) }

// Host returns the lowercased host without a port or a leading "www.".
func (t Target) Host() string {
	parsed, err := url.Parse(string(t))
	if err != nil {
		return ""
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Entry reports the quantity available at one location.
type Entry struct {
	Location string `json:"store"`
	Quantity int    `json:"stock"`
}

// Result is what an adapter extracted from one product page.
type Result struct {
	Title   string  `json:"title"`
	Entries []Entry `json:"stockResults"`
}

// InStock reports whether any location has stock.
func (r Result) InStock() bool { return len(r.Entries) > 0 }

// Signature returns the canonical signature of the result entries.
func (r Result) Signature() Signature { return SignatureOf(r.Entries) }

// Record is the inventory log entry written for a detected change.
type Record struct {
	CheckID   string    `json:"check_id"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Entries   []Entry   `json:"stockResults"`
	Signature Signature `json:"signature"`
}
