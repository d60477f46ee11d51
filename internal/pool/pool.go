// Package pool runs stock checks on a bounded set of browser sessions.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/metrics"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

var (
	// ErrPoolClosed is returned by Submit once Close has started.
	ErrPoolClosed = stock.ErrPoolClosed
	// ErrPoolUnavailable is returned when no live pool can accept work.
	ErrPoolUnavailable = stock.ErrPoolUnavailable
)

// SessionFactory hands out isolated execution contexts.
type SessionFactory interface {
	NewSession(ctx context.Context) (stock.Session, func(), error)
	Close() error
}

// AdapterSelector resolves the adapter for a target.
type AdapterSelector interface {
	Adapter(target stock.Target) (stock.Adapter, error)
}

// Waiter paces tasks per host before they start.
type Waiter interface {
	Wait(ctx context.Context, target stock.Target) error
}

// Config controls pool capacity and task budgets.
type Config struct {
	Concurrency  int
	TaskTimeout  time.Duration
	RetryLimit   int
	RetryBackoff time.Duration
	CloseTimeout time.Duration
}

// Pool executes tasks with at most Concurrency sessions in flight.
type Pool struct {
	cfg      Config
	factory  SessionFactory
	adapters AdapterSelector
	limiter  Waiter
	retry    RetryPolicy
	logger   *zap.Logger

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLimiter paces attempts through w.
func WithLimiter(w Waiter) Option {
	return func(p *Pool) { p.limiter = w }
}

// WithRetryPolicy overrides the default exponential policy.
func WithRetryPolicy(r RetryPolicy) Option {
	return func(p *Pool) { p.retry = r }
}

// WithLogger sets the pool logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pool) { p.logger = logging.OrNop(logger) }
}

// New builds a Pool that owns factory and closes it on Close.
func New(cfg Config, factory SessionFactory, adapters AdapterSelector, opts ...Option) (*Pool, error) {
	if factory == nil {
		return nil, errors.New("session factory is required")
	}
	if adapters == nil {
		return nil, errors.New("adapter selector is required")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be > 0, got %d", cfg.Concurrency)
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:      cfg,
		factory:  factory,
		adapters: adapters,
		retry:    NewExponentialRetryPolicy(cfg.RetryLimit, cfg.RetryBackoff),
		logger:   zap.NewNop(),
		sem:      make(chan struct{}, cfg.Concurrency),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Submit runs the adapter for target and blocks until it finishes, fails
// permanently, or ctx is done. Retries happen inside Submit.
func (p *Pool) Submit(ctx context.Context, target stock.Target) (stock.Result, error) {
	if !p.enter() {
		return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, ErrPoolClosed)
	}
	return p.run(ctx, target)
}

// enter registers a task unless the pool is closed. A true result must be
// paired with run.
func (p *Pool) enter() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.wg.Add(1)
	return true
}

func (p *Pool) run(ctx context.Context, target stock.Target) (stock.Result, error) {
	defer p.wg.Done()

	adapter, err := p.adapters.Adapter(target)
	if err != nil {
		return stock.Result{}, err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	start := time.Now()
	defer func() { metrics.ObserveTaskDuration(target.URL(), time.Since(start)) }()

	release, err := p.acquire(taskCtx)
	if err != nil {
		return stock.Result{}, p.submissionError(target, err)
	}
	defer release()

	for retries := 0; ; retries++ {
		result, err := p.attempt(taskCtx, adapter, target)
		if err == nil {
			metrics.ObserveTaskAttempt(target.URL(), "success")
			return result, nil
		}
		metrics.ObserveTaskAttempt(target.URL(), stock.KindOf(err).String())
		if p.ctx.Err() != nil || ctx.Err() != nil {
			return result, p.submissionError(target, err)
		}
		if !p.retry.ShouldRetry(err, retries) {
			return result, err
		}
		backoff := p.retry.Backoff(retries)
		p.logger.Debug("retrying task",
			zap.String("target", target.URL()),
			zap.Int("retry", retries+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-taskCtx.Done():
			return result, p.submissionError(target, taskCtx.Err())
		case <-time.After(backoff):
		}
	}
}

// attempt runs one adapter invocation in a fresh session under the task timeout.
func (p *Pool) attempt(ctx context.Context, adapter stock.Adapter, target stock.Target) (stock.Result, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, target); err != nil {
			return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, err)
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()

	session, release, err := p.factory.NewSession(attemptCtx)
	if err != nil {
		if errors.Is(err, ErrPoolUnavailable) {
			return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, err)
		}
		return stock.Result{}, stock.NavigationFailure(target, fmt.Errorf("open session: %w", err))
	}
	metrics.IncActiveSessions()
	defer func() {
		release()
		metrics.DecActiveSessions()
	}()

	result, err := adapter.Scrape(attemptCtx, session, target)
	if err != nil && stock.KindOf(err) == stock.KindUnknown {
		if attemptCtx.Err() != nil {
			err = stock.NavigationFailure(target, err)
		} else {
			err = stock.AdapterFailure(target, err)
		}
	}
	return result, err
}

func (p *Pool) acquire(ctx context.Context) (func(), error) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session slot: %w", ctx.Err())
	}
}

// submissionError reports work cut short by shutdown or cancellation as a
// pool submission failure, replacing any classification made by the adapter.
func (p *Pool) submissionError(target stock.Target, err error) error {
	if p.ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrPoolClosed, err)
	}
	return &stock.TaskError{Kind: stock.KindPoolSubmission, URL: target.URL(), Err: err}
}

// InFlight reports tasks holding a session slot.
func (p *Pool) InFlight() int { return len(p.sem) }

// Close cancels outstanding tasks, waits for them to release their sessions,
// then closes the factory. It is idempotent.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cancel()

		drained := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-time.After(p.cfg.CloseTimeout):
			p.logger.Warn("pool close timed out waiting for tasks", zap.Duration("timeout", p.cfg.CloseTimeout))
		}

		if err := p.factory.Close(); err != nil {
			p.closeErr = fmt.Errorf("close session factory: %w", err)
		}
	})
	return p.closeErr
}
