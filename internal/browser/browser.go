// Package browser provides chromedp-backed execution contexts: one Chrome
// process per Browser and one tab per Session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Config controls how Chrome is launched.
type Config struct {
	Headless  bool
	NoSandbox bool
	UserAgent string
	ExecPath  string
}

// Browser owns one Chrome process and hands out isolated tabs.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	open          atomic.Int64
	closeOnce     sync.Once
	closeErr      error
}

// Launch starts Chrome and waits for it to accept commands.
func Launch(ctx context.Context, cfg Config, logger *zap.Logger) (*Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	logger = logging.OrNop(logger)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	// The first Run owns the browser lifetime, so it must use browserCtx itself.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	logger.Debug("browser launched", zap.Bool("headless", cfg.Headless))

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewSession opens a fresh tab. The returned release func closes it and must always be called.
func (b *Browser) NewSession(ctx context.Context) (stock.Session, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}
	if b.browserCtx.Err() != nil {
		return nil, nil, fmt.Errorf("open session: browser gone: %w", stock.ErrPoolUnavailable)
	}
	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	b.open.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() {
			cancelTab()
			b.open.Add(-1)
		})
	}
	return &Session{ctx: tabCtx, userAgent: b.cfg.UserAgent}, release, nil
}

// OpenSessions reports tabs handed out and not yet released.
func (b *Browser) OpenSessions() int64 { return b.open.Load() }

// Close shuts Chrome down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		err := chromedp.Cancel(b.browserCtx)
		b.browserCancel()
		b.allocCancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			b.closeErr = fmt.Errorf("close browser: %w", err)
		}
		b.logger.Debug("browser closed")
	})
	return b.closeErr
}

// Session is a single Chrome tab.
type Session struct {
	ctx       context.Context
	userAgent string
	prepared  bool
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	actions := []chromedp.Action{}
	if !s.prepared {
		actions = append(actions, s.networkSetupAction())
		s.prepared = true
	}
	actions = append(actions, chromedp.Navigate(url))
	if err := s.run(ctx, actions...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Title returns document.title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.run(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	return title, nil
}

// HTML returns the rendered outer HTML of the document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// WaitVisible blocks until selector matches a visible node.
func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	if err := s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	callCtx, cancel := context.WithCancel(s.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		callCtx, cancel = context.WithDeadline(s.ctx, deadline)
	}
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(callCtx, actions...); err != nil {
		if ctxErr := callCtx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return fmt.Errorf("%w: %w", ctxErr, err)
		}
		return err
	}
	return nil
}

func (s *Session) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if s.userAgent != "" {
			if err := emulation.SetUserAgentOverride(s.userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
