// Package app builds the monitor's long-lived services from configuration and
// runs them until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/api"
	"github.com/JakeFAU/stock-monitor/internal/browser"
	"github.com/JakeFAU/stock-monitor/internal/config"
	"github.com/JakeFAU/stock-monitor/internal/detector"
	"github.com/JakeFAU/stock-monitor/internal/health"
	"github.com/JakeFAU/stock-monitor/internal/inventory"
	pgstore "github.com/JakeFAU/stock-monitor/internal/inventory/postgres"
	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/notify"
	gcppublisher "github.com/JakeFAU/stock-monitor/internal/notify/pubsub"
	"github.com/JakeFAU/stock-monitor/internal/notify/pushover"
	"github.com/JakeFAU/stock-monitor/internal/pool"
	"github.com/JakeFAU/stock-monitor/internal/ratelimit"
	"github.com/JakeFAU/stock-monitor/internal/report"
	"github.com/JakeFAU/stock-monitor/internal/scheduler"
	"github.com/JakeFAU/stock-monitor/internal/scraper"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// App contains the monitor's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	manager   *pool.Manager
	monitor   *health.Monitor
	detector  *detector.Detector
	scheduler *scheduler.Scheduler
	apiServer *api.Server
	notifier  *notify.Multi

	publisher *gcppublisher.Publisher
	pgStore   *pgstore.Store
	closeOnce sync.Once
}

type options struct {
	builder    pool.Builder
	channels   []notify.Channel
	recorders  []stock.Recorder
	out        io.Writer
	httpClient *http.Client
}

// Option customizes Build.
type Option func(*options)

// WithPoolBuilder replaces the Chrome-backed pool builder.
func WithPoolBuilder(b pool.Builder) Option {
	return func(o *options) { o.builder = b }
}

// WithChannel adds a notification channel.
func WithChannel(ch notify.Channel) Option {
	return func(o *options) { o.channels = append(o.channels, ch) }
}

// WithRecorder adds an inventory recorder.
func WithRecorder(r stock.Recorder) Option {
	return func(o *options) { o.recorders = append(o.recorders, r) }
}

// WithOutput sets where stock-change tables are printed.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithHTTPClient sets the client used by HTTP notifiers.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// Build creates the application's dependencies. Nothing is started until Run.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	o := options{out: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	logger = logging.OrNop(logger)
	if err := cfg.ValidateTargets(); err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("targets", len(cfg.Targets)),
		zap.Int("concurrency", cfg.Pool.Concurrency),
		zap.Bool("server", cfg.Server.Enabled),
	)

	notifier, err := setupNotifier(cfg, logger, o)
	if err != nil {
		return nil, err
	}
	a.notifier = notifier

	recorder, err := a.setupRecorders(ctx, o)
	if err != nil {
		a.closeSinks()
		return nil, err
	}

	builder := o.builder
	if builder == nil {
		builder = NewPoolBuilder(cfg, logger)
	}
	a.manager = pool.NewManager(builder, logger)
	a.monitor = health.NewMonitor(health.Config{
		Threshold: cfg.Health.NavTimeoutThreshold,
		Grace:     cfg.Health.RestartGrace,
	}, a.manager, logger)

	detCfg := detector.Config{
		NotifyOutOfStock: cfg.Detector.NotifyOutOfStock,
		TitleMaxLen:      cfg.Detector.TitleMaxLen,
	}
	if cfg.Detector.PrintTable {
		detCfg.Table = o.out
	}
	a.detector = detector.New(detCfg, notifier, recorder, logger)

	a.scheduler, err = scheduler.New(scheduler.Config{
		BaseDelay:       cfg.Schedule.BaseDelay,
		Jitter:          cfg.Schedule.Jitter,
		Stagger:         cfg.Schedule.Stagger,
		RestartInterval: cfg.Health.RestartInterval,
	}, Targets(cfg), a.manager, a.monitor, a.detector, scheduler.WithLogger(logger))
	if err != nil {
		a.closeSinks()
		return nil, fmt.Errorf("scheduler init failed: %w", err)
	}

	if cfg.Server.Enabled {
		a.apiServer = api.NewServer(a.monitor, a.manager, a.scheduler, a.detector, logger)
	}
	return a, nil
}

// Targets converts the configured URLs.
func Targets(cfg config.Config) []stock.Target {
	out := make([]stock.Target, 0, len(cfg.Targets))
	for _, u := range cfg.Targets {
		out = append(out, stock.Target(u))
	}
	return out
}

// NewPoolBuilder returns a builder that launches Chrome and wraps it in a pool.
func NewPoolBuilder(cfg config.Config, logger *zap.Logger) pool.Builder {
	logger = logging.OrNop(logger)
	registry := scraper.NewRegistry(scraper.Options{
		UserAgent:   cfg.Pool.UserAgent,
		TitleMaxLen: cfg.Detector.TitleMaxLen,
		Logger:      logger,
	})
	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: cfg.RateLimit.PerHostRPS,
		Burst:      cfg.RateLimit.Burst,
	})
	return func(ctx context.Context) (*pool.Pool, error) {
		b, err := browser.Launch(ctx, browser.Config{
			Headless:  cfg.Pool.Headless,
			NoSandbox: cfg.Pool.NoSandbox,
			UserAgent: cfg.Pool.UserAgent,
			ExecPath:  cfg.Pool.ChromePath,
		}, logger.Named("browser"))
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		p, err := pool.New(pool.Config{
			Concurrency:  cfg.Pool.Concurrency,
			TaskTimeout:  cfg.Pool.TaskTimeout,
			RetryLimit:   cfg.Pool.RetryLimit,
			RetryBackoff: cfg.Pool.RetryBackoff,
			CloseTimeout: cfg.Pool.CloseTimeout,
		}, b, registry, pool.WithLimiter(limiter), pool.WithLogger(logger))
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("create pool: %w", err)
		}
		return p, nil
	}
}

func setupNotifier(cfg config.Config, logger *zap.Logger, o options) (*notify.Multi, error) {
	var channels []notify.Channel
	if cfg.Notify.Pushover.Enabled {
		client, err := pushover.New(pushover.Config{
			Endpoint: cfg.Notify.Pushover.Endpoint,
			UserKey:  cfg.Notify.Pushover.UserKey,
			APIToken: cfg.Notify.Pushover.APIToken,
			Timeout:  cfg.Notify.Pushover.Timeout,
		}, o.httpClient)
		if err != nil {
			return nil, fmt.Errorf("pushover init failed: %w", err)
		}
		channels = append(channels, notify.Channel{Name: "pushover", Notifier: client})
		logger.Info("pushover notifications enabled")
	}
	if cfg.Notify.Log.Enabled {
		channels = append(channels, notify.Channel{Name: "log", Notifier: notify.NewLog(logger)})
	}
	channels = append(channels, o.channels...)
	if len(channels) == 0 {
		logger.Warn("no notification channels configured, logging notifications only")
		channels = append(channels, notify.Channel{Name: "log", Notifier: notify.NewLog(logger)})
	}
	return notify.NewMulti(logger, channels...), nil
}

func (a *App) setupRecorders(ctx context.Context, o options) (stock.Recorder, error) {
	var recorders inventory.Multi
	if dir := a.cfg.Inventory.Dir; dir != "" {
		file, err := inventory.NewFileRecorder(dir)
		if err != nil {
			return nil, fmt.Errorf("inventory log init failed: %w", err)
		}
		recorders = append(recorders, file)
		a.logger.Info("inventory log enabled", zap.String("dir", dir))
	}
	if pg := a.cfg.Inventory.Postgres; pg.Enabled {
		store, err := pgstore.NewStore(ctx, pgstore.Config{DSN: pg.DSN, Table: pg.Table, MaxConns: pg.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("inventory store init failed: %w", err)
		}
		a.pgStore = store
		recorders = append(recorders, store)
		a.logger.Info("inventory store enabled", zap.String("table", pg.Table))
	}
	if ps := a.cfg.Notify.PubSub; ps.Enabled {
		pub, err := gcppublisher.Dial(ctx, ps.ProjectID, ps.TopicName)
		if err != nil {
			return nil, fmt.Errorf("pubsub init failed: %w", err)
		}
		a.publisher = pub
		recorders = append(recorders, pub)
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", ps.ProjectID),
			zap.String("topic", ps.TopicName),
		)
	}
	recorders = append(recorders, o.recorders...)
	return recorders, nil
}

// Run starts the pool, the status server and every polling loop, and blocks
// until ctx is canceled. The pool is closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := a.manager.Start(ctx); err != nil {
		return fmt.Errorf("start pool: %w", err)
	}
	a.logger.Info("application started", zap.Int64("pool_generation", a.manager.Generation()))

	var (
		srv    *http.Server
		srvErr = make(chan error, 1)
	)
	if a.apiServer != nil {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				srvErr <- err
				stop()
			}
		}()
	}

	runErr := a.scheduler.Run(ctx)
	a.logger.Info("shutdown initiated")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown error", zap.Error(err))
		}
	}
	if err := a.manager.Close(); err != nil {
		a.logger.Warn("pool close failed", zap.Error(err))
	}

	select {
	case err := <-srvErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	return runErr
}

// Close releases the pool and every sink. It is idempotent.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.manager.Close()
		a.closeSinks()
		a.logger.Info("shutdown complete")
	})
	return err
}

func (a *App) closeSinks() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

// Monitor exposes the health monitor.
func (a *App) Monitor() *health.Monitor { return a.monitor }

// Detector exposes the change detector.
func (a *App) Detector() *detector.Detector { return a.detector }

// Scheduler exposes the scheduler.
func (a *App) Scheduler() *scheduler.Scheduler { return a.scheduler }

// Handler returns the status API handler, or nil when the server is disabled.
func (a *App) Handler() http.Handler {
	if a.apiServer == nil {
		return nil
	}
	return a.apiServer.Handler()
}

// Check scrapes every target once on a temporary pool built by build.
// Targets run concurrently, bounded by the pool.
func Check(ctx context.Context, build pool.Builder, targets []stock.Target, logger *zap.Logger) ([]report.CheckRow, error) {
	manager := pool.NewManager(build, logger)
	if err := manager.Start(ctx); err != nil {
		return nil, fmt.Errorf("start pool: %w", err)
	}
	defer func() {
		if err := manager.Close(); err != nil {
			logging.OrNop(logger).Warn("pool close failed", zap.Error(err))
		}
	}()

	rows := make([]report.CheckRow, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target stock.Target) {
			defer wg.Done()
			result, err := manager.Submit(ctx, target)
			rows[i] = report.CheckRow{
				URL:     target.URL(),
				Variant: scraper.Select(target).String(),
				Title:   result.Title,
				Entries: result.Entries,
				Err:     err,
			}
		}(i, target)
	}
	wg.Wait()
	return rows, nil
}
