package stock

import "context"

// Session is one isolated browser execution context, valid for a single task.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Title(ctx context.Context) (string, error)
	HTML(ctx context.Context) (string, error)
	WaitVisible(ctx context.Context, selector string) error
}

// Adapter extracts stock entries for one retailer.
type Adapter interface {
	Name() string
	Scrape(ctx context.Context, session Session, target Target) (Result, error)
}

// Notifier delivers a human-readable stock notification.
type Notifier interface {
	Notify(ctx context.Context, title, message string) error
}

// Recorder appends change records to an inventory log.
type Recorder interface {
	Record(ctx context.Context, record Record) error
}
