package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Builder creates a fresh pool, usually by launching a new browser.
type Builder func(ctx context.Context) (*Pool, error)

// Manager owns the single live Pool and swaps it atomically on Recycle.
// Submissions read the current pool on every call and block while a swap is
// in progress. A submission rejected by a pool that was swapped out after it
// was read moves to the replacement; work already accepted is not resubmitted.
type Manager struct {
	build  Builder
	logger *zap.Logger

	mu      sync.RWMutex
	current *Pool
	closed  bool

	generation atomic.Int64
	active     atomic.Bool
}

// NewManager wraps build. Call Start before submitting work.
func NewManager(build Builder, logger *zap.Logger) *Manager {
	return &Manager{build: build, logger: logging.OrNop(logger).Named("pool")}
}

// Start creates the first pool.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPoolClosed
	}
	if m.current != nil {
		return nil
	}
	return m.launchLocked(ctx)
}

// Submit runs target on the current pool.
func (m *Manager) Submit(ctx context.Context, target stock.Target) (stock.Result, error) {
	m.mu.RLock()
	p, closed := m.current, m.closed
	m.mu.RUnlock()
	if closed {
		return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, ErrPoolClosed)
	}
	if p == nil {
		return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, ErrPoolUnavailable)
	}
	return m.submitOn(ctx, p, target)
}

// submitOn runs target on p, following swaps until a pool accepts it.
func (m *Manager) submitOn(ctx context.Context, p *Pool, target stock.Target) (stock.Result, error) {
	for !p.enter() {
		// Blocks until any swap in progress finishes.
		m.mu.RLock()
		next, closed := m.current, m.closed
		m.mu.RUnlock()
		if closed || next == p {
			return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, ErrPoolClosed)
		}
		if next == nil {
			return stock.Result{}, stock.NewTaskError(stock.KindPoolSubmission, target, ErrPoolUnavailable)
		}
		m.logger.Debug("submission moved to replacement pool", zap.String("target", target.URL()))
		p = next
	}
	return p.run(ctx, target)
}

// Recycle closes the current pool, pauses for grace, and launches a
// replacement. Close always completes before the new pool is built.
func (m *Manager) Recycle(ctx context.Context, grace time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPoolClosed
	}

	m.closeCurrentLocked()

	if grace > 0 {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("restart grace interrupted: %w", ctx.Err())
		case <-timer.C:
		}
	}
	return m.launchLocked(ctx)
}

// Close shuts down the current pool; later submissions fail with ErrPoolClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return m.closeCurrentLocked()
}

// Active reports whether a live pool is accepting work.
func (m *Manager) Active() bool { return m.active.Load() }

// Generation counts pools launched so far.
func (m *Manager) Generation() int64 { return m.generation.Load() }

func (m *Manager) launchLocked(ctx context.Context) error {
	p, err := m.build(ctx)
	if err != nil {
		return fmt.Errorf("launch pool: %w", err)
	}
	m.current = p
	m.active.Store(true)
	gen := m.generation.Add(1)
	m.logger.Info("pool launched", zap.Int64("generation", gen))
	return nil
}

func (m *Manager) closeCurrentLocked() error {
	if m.current == nil {
		return nil
	}
	m.active.Store(false)
	err := m.current.Close()
	m.current = nil
	if err != nil {
		m.logger.Warn("pool close reported an error", zap.Error(err))
		return fmt.Errorf("close pool: %w", err)
	}
	m.logger.Info("pool closed", zap.Int64("generation", m.generation.Load()))
	return nil
}
