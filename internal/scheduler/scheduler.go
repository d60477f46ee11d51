// Package scheduler runs one polling loop per target and routes every check
// outcome to the health monitor and the change detector.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/detector"
	"github.com/JakeFAU/stock-monitor/internal/health"
	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/metrics"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Check outcomes other than failure kinds.
const (
	OutcomeOK        = "ok"
	OutcomeNoAdapter = "no_adapter"
	OutcomePanic     = "panic"
)

// Submitter executes one check.
type Submitter interface {
	Submit(ctx context.Context, target stock.Target) (stock.Result, error)
}

// HealthMonitor consumes check outcomes and serializes restarts.
type HealthMonitor interface {
	Observe(ctx context.Context, target stock.Target, err error) bool
	Restart(ctx context.Context, reason string) (bool, error)
}

// ChangeDetector consumes successful scrapes.
type ChangeDetector interface {
	Observe(ctx context.Context, target stock.Target, checkID string, result stock.Result) (detector.Change, error)
}

// Config controls loop cadence.
type Config struct {
	BaseDelay time.Duration
	Jitter    time.Duration
	Stagger   time.Duration
	// RestartInterval schedules proactive pool restarts. Zero disables them.
	RestartInterval time.Duration
}

// TargetStatus is the latest check of one target.
type TargetStatus struct {
	URL         string    `json:"url"`
	Checks      int       `json:"checks"`
	LastCheckID string    `json:"last_check_id,omitempty"`
	LastCheckAt time.Time `json:"last_check_at,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	NextCheckAt time.Time `json:"next_check_at,omitempty"`
}

// Scheduler coordinates the per-target loops.
type Scheduler struct {
	cfg       Config
	targets   []stock.Target
	submitter Submitter
	health    HealthMonitor
	detector  ChangeDetector
	logger    *zap.Logger

	jitter func(n int64) int64
	newID  func() string
	now    func() time.Time

	mu       sync.Mutex
	statuses map[stock.Target]*TargetStatus
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithJitterSource replaces the uniform source used for delay jitter.
// fn must return a value in [0, n).
func WithJitterSource(fn func(n int64) int64) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.jitter = fn
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logging.OrNop(logger).Named("scheduler")
	}
}

// New builds a Scheduler over targets.
func New(cfg Config, targets []stock.Target, submitter Submitter, monitor HealthMonitor, changes ChangeDetector, opts ...Option) (*Scheduler, error) {
	if submitter == nil || monitor == nil || changes == nil {
		return nil, fmt.Errorf("scheduler requires a submitter, health monitor and change detector")
	}
	if cfg.BaseDelay <= 0 {
		return nil, fmt.Errorf("base delay must be positive")
	}
	s := &Scheduler{
		cfg:       cfg,
		targets:   append([]stock.Target(nil), targets...),
		submitter: submitter,
		health:    monitor,
		detector:  changes,
		logger:    zap.NewNop(),
		jitter:    rand.Int64N,
		newID:     uuid.NewString,
		now:       time.Now,
		statuses:  make(map[stock.Target]*TargetStatus, len(targets)),
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range s.targets {
		s.statuses[t] = &TargetStatus{URL: t.URL()}
	}
	return s, nil
}

// NextDelay returns base plus a uniform jitter in [0, jitter).
func (s *Scheduler) NextDelay() time.Duration {
	if s.cfg.Jitter <= 0 {
		return s.cfg.BaseDelay
	}
	return s.cfg.BaseDelay + time.Duration(s.jitter(int64(s.cfg.Jitter)))
}

// Run starts every loop and the proactive restart job, and blocks until ctx
// is canceled and all loops have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	var c *cron.Cron
	if s.cfg.RestartInterval > 0 {
		var err error
		c, err = s.startRestartJob(ctx)
		if err != nil {
			return err
		}
	}

	s.logger.Info("scheduler started",
		zap.Int("targets", len(s.targets)),
		zap.Duration("base_delay", s.cfg.BaseDelay),
		zap.Duration("jitter", s.cfg.Jitter),
		zap.Duration("stagger", s.cfg.Stagger),
		zap.Duration("restart_interval", s.cfg.RestartInterval),
	)

	var wg sync.WaitGroup
	for i, target := range s.targets {
		wg.Add(1)
		go func(index int, target stock.Target) {
			defer wg.Done()
			s.loop(ctx, index, target)
		}(i, target)
	}
	wg.Wait()

	if c != nil {
		<-c.Stop().Done()
	}
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) startRestartJob(ctx context.Context) (*cron.Cron, error) {
	cl := cronLogger{s.logger.Named("cron").Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	schedule := "@every " + s.cfg.RestartInterval.String()
	if _, err := c.AddFunc(schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if ran, err := s.health.Restart(ctx, health.ReasonScheduled); !ran {
			s.logger.Info("scheduled restart skipped: restart already in progress")
		} else if err != nil {
			s.logger.Error("scheduled restart failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule proactive restart %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}

func (s *Scheduler) loop(ctx context.Context, index int, target stock.Target) {
	log := s.logger.With(zap.String("target", target.URL()))
	if !sleep(ctx, time.Duration(index)*s.cfg.Stagger) {
		return
	}
	for {
		if s.safeCheck(ctx, target) == OutcomeNoAdapter {
			log.Warn("no adapter for target host, skipping target")
			return
		}
		if ctx.Err() != nil {
			return
		}
		delay := s.NextDelay()
		s.updateStatus(target, func(st *TargetStatus) { st.NextCheckAt = s.now().Add(delay) })
		log.Debug("check complete", zap.Duration("next_in", delay))
		if !sleep(ctx, delay) {
			return
		}
	}
}

func (s *Scheduler) safeCheck(ctx context.Context, target stock.Target) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			outcome = OutcomePanic
			metrics.ObserveCheck(target.URL(), OutcomePanic)
			s.updateStatus(target, func(st *TargetStatus) {
				st.LastOutcome = OutcomePanic
				st.LastError = fmt.Sprint(r)
			})
			s.logger.Error("check panicked", zap.String("target", target.URL()), zap.Any("panic", r))
		}
	}()
	return s.Check(ctx, target)
}

// Check runs one check of target and routes the outcome. It returns the
// outcome label recorded for the check.
func (s *Scheduler) Check(ctx context.Context, target stock.Target) string {
	checkID := s.newID()
	log := s.logger.With(zap.String("target", target.URL()), zap.String("check_id", checkID))
	started := s.now()

	result, err := s.submitter.Submit(ctx, target)
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, stock.ErrNoAdapter):
		outcome = OutcomeNoAdapter
	default:
		outcome = stock.KindOf(err).String()
	}

	s.updateStatus(target, func(st *TargetStatus) {
		st.Checks++
		st.LastCheckID = checkID
		st.LastCheckAt = started
		st.LastOutcome = outcome
		st.LastError = ""
		if err != nil {
			st.LastError = err.Error()
		}
	})
	metrics.ObserveCheck(target.URL(), outcome)

	if outcome == OutcomeNoAdapter {
		return outcome
	}

	if restarted := s.health.Observe(ctx, target, err); restarted {
		log.Info("pool restarted after check")
	}

	switch kind := stock.KindOf(err); {
	case err == nil:
	case kind == stock.KindAdapter:
		log.Warn("adapter failed, treating as no stock data", zap.Error(err))
		result = stock.Result{Title: result.Title}
	case kind.Navigational():
		log.Warn("navigation failed", zap.String("kind", kind.String()), zap.Error(err))
		return outcome
	default:
		log.Warn("check failed", zap.String("kind", kind.String()), zap.Error(err))
		return outcome
	}

	if _, derr := s.detector.Observe(ctx, target, checkID, result); derr != nil {
		log.Warn("change side effects failed", zap.Error(derr))
	}
	return outcome
}

// Statuses returns the latest status of every target in configuration order.
func (s *Scheduler) Statuses() []TargetStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TargetStatus, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, *s.statuses[t])
	}
	return out
}

// Targets returns the configured targets.
func (s *Scheduler) Targets() []stock.Target {
	return append([]stock.Target(nil), s.targets...)
}

func (s *Scheduler) updateStatus(target stock.Target, fn func(*TargetStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[target]
	if !ok {
		st = &TargetStatus{URL: target.URL()}
		s.statuses[target] = st
	}
	fn(st)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
