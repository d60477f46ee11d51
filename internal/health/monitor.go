// Package health tracks consecutive navigation timeouts and restarts the
// worker pool when the browser looks wedged.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/metrics"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// State summarizes monitor health.
type State string

// Monitor states.
const (
	StateHealthy    State = "healthy"
	StateDegraded   State = "degraded"
	StateRestarting State = "restarting"
)

// Restart reasons.
const (
	ReasonNavigationTimeouts = "navigation_timeouts"
	ReasonScheduled          = "scheduled"
	ReasonUnavailable        = "pool_unavailable"
	ReasonManual             = "manual"
)

// Recycler tears the pool down and builds a new one.
type Recycler interface {
	Recycle(ctx context.Context, grace time.Duration) error
}

// Config controls restart behavior.
type Config struct {
	Threshold int
	Grace     time.Duration
}

// Status is a point-in-time view of the monitor.
type Status struct {
	State                  State     `json:"state"`
	ConsecutiveNavTimeouts int       `json:"consecutive_nav_timeouts"`
	Threshold              int       `json:"threshold"`
	Restarts               int       `json:"restarts"`
	LastRestartReason      string    `json:"last_restart_reason,omitempty"`
	LastRestartAt          time.Time `json:"last_restart_at,omitempty"`
	LastRestartError       string    `json:"last_restart_error,omitempty"`
}

// Monitor counts navigation timeouts and serializes pool restarts.
type Monitor struct {
	cfg      Config
	recycler Recycler
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	consecutive int
	restarting  bool
	restarts    int
	lastReason  string
	lastAt      time.Time
	lastErr     error
}

// NewMonitor builds a Monitor. A non-positive threshold defaults to 3.
func NewMonitor(cfg Config, recycler Recycler, logger *zap.Logger) *Monitor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	return &Monitor{
		cfg:      cfg,
		recycler: recycler,
		logger:   logging.OrNop(logger).Named("health"),
		now:      time.Now,
	}
}

// Observe records the outcome of one check and restarts the pool when the
// navigation timeout threshold is reached. It reports whether a restart ran.
// Only navigation timeouts count; any other completed outcome, including a
// navigation error such as net::ERR_NAME_NOT_RESOLVED, resets the counter.
func (m *Monitor) Observe(ctx context.Context, target stock.Target, err error) bool {
	if err == nil {
		m.reset()
		return false
	}

	kind := stock.KindOf(err)
	switch {
	case kind == stock.KindNavigationTimeout:
		m.mu.Lock()
		m.consecutive++
		n := m.consecutive
		// The guard is claimed under the same lock that observed the threshold,
		// so a manual or scheduled restart cannot slip in between.
		trip := n >= m.cfg.Threshold && m.claimLocked()
		m.mu.Unlock()
		metrics.SetConsecutiveNavTimeouts(n)
		m.logger.Warn("navigation timeout",
			zap.String("target", target.URL()),
			zap.Int("consecutive", n),
			zap.Int("threshold", m.cfg.Threshold),
			zap.Error(err),
		)
		if !trip {
			return false
		}
		_ = m.recycle(ctx, ReasonNavigationTimeouts)
		return true
	case errors.Is(err, stock.ErrPoolUnavailable):
		ran, _ := m.Restart(ctx, ReasonUnavailable)
		return ran
	case kind == stock.KindPoolSubmission:
		// Shutdown and restarts cancel in-flight work; that says nothing about the browser.
		return false
	default:
		m.reset()
		return false
	}
}

// Restart recycles the pool unless a restart is already running. It reports
// whether this call performed the restart.
func (m *Monitor) Restart(ctx context.Context, reason string) (bool, error) {
	m.mu.Lock()
	claimed := m.claimLocked()
	m.mu.Unlock()
	if !claimed {
		m.logger.Debug("restart already in progress", zap.String("reason", reason))
		return false, nil
	}
	return true, m.recycle(ctx, reason)
}

// claimLocked takes the restart guard. m.mu must be held.
func (m *Monitor) claimLocked() bool {
	if m.restarting {
		return false
	}
	m.restarting = true
	return true
}

// recycle runs a restart whose guard the caller already holds and releases it.
func (m *Monitor) recycle(ctx context.Context, reason string) error {
	m.logger.Info("restarting pool", zap.String("reason", reason), zap.Duration("grace", m.cfg.Grace))
	err := m.recycler.Recycle(ctx, m.cfg.Grace)

	m.mu.Lock()
	m.consecutive = 0
	m.restarting = false
	m.restarts++
	m.lastReason = reason
	m.lastAt = m.now()
	m.lastErr = err
	m.mu.Unlock()

	metrics.SetConsecutiveNavTimeouts(0)
	metrics.ObservePoolRestart(reason)
	if err != nil {
		m.logger.Error("pool restart failed", zap.String("reason", reason), zap.Error(err))
		return err
	}
	m.logger.Info("pool restarted", zap.String("reason", reason))
	return nil
}

// Restarting reports whether a restart is in flight.
func (m *Monitor) Restarting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarting
}

// Status returns a snapshot of the monitor.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Status{
		State:                  StateHealthy,
		ConsecutiveNavTimeouts: m.consecutive,
		Threshold:              m.cfg.Threshold,
		Restarts:               m.restarts,
		LastRestartReason:      m.lastReason,
		LastRestartAt:          m.lastAt,
	}
	if m.lastErr != nil {
		s.LastRestartError = m.lastErr.Error()
	}
	switch {
	case m.restarting:
		s.State = StateRestarting
	case m.consecutive > 0:
		s.State = StateDegraded
	}
	return s
}

func (m *Monitor) reset() {
	m.mu.Lock()
	changed := m.consecutive != 0
	m.consecutive = 0
	m.mu.Unlock()
	if changed {
		metrics.SetConsecutiveNavTimeouts(0)
	}
}
