package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/stock-monitor/internal/stock"
)

type fakeSession struct{}

func (fakeSession) Navigate(context.Context, string) error    { return nil }
func (fakeSession) Title(context.Context) (string, error)     { return "", nil }
func (fakeSession) HTML(context.Context) (string, error)      { return "", nil }
func (fakeSession) WaitVisible(context.Context, string) error { return nil }

type fakeFactory struct {
	mu         sync.Mutex
	opened     int
	released   int
	closeCalls int
	sessionErr error
	onClose    func()
}

func (f *fakeFactory) NewSession(context.Context) (stock.Session, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessionErr != nil {
		return nil, nil, f.sessionErr
	}
	f.opened++
	return fakeSession{}, func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFactory) Close() error {
	f.mu.Lock()
	f.closeCalls++
	onClose := f.onClose
	f.mu.Unlock()
	if onClose != nil {
		onClose()
	}
	return nil
}

func (f *fakeFactory) counts() (opened, released, closed int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened, f.released, f.closeCalls
}

type scrapeFunc func(ctx context.Context, target stock.Target) (stock.Result, error)

type fakeAdapter struct {
	calls atomic.Int32
	fn    scrapeFunc
}

func (*fakeAdapter) Name() string { return "fake" }

func (a *fakeAdapter) Scrape(ctx context.Context, _ stock.Session, target stock.Target) (stock.Result, error) {
	a.calls.Add(1)
	return a.fn(ctx, target)
}

type fakeSelector struct {
	adapter stock.Adapter
}

func (s fakeSelector) Adapter(target stock.Target) (stock.Adapter, error) {
	if s.adapter == nil {
		return nil, stock.ErrNoAdapter
	}
	return s.adapter, nil
}
