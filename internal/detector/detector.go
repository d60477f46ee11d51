// Package detector compares each scrape with the last known stock signature
// of its target and decides whether to notify.
package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/metrics"
	"github.com/JakeFAU/stock-monitor/internal/report"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Decision is what the detector did with one observation.
type Decision string

// Decisions.
const (
	DecisionUnchanged  Decision = "unchanged"
	DecisionOutOfStock Decision = "out_of_stock"
	DecisionChanged    Decision = "changed"
)

// Config holds change-detection policy.
type Config struct {
	// NotifyOutOfStock sends one notification when a target goes from stocked to empty.
	NotifyOutOfStock bool
	TitleMaxLen      int
	// Table receives a console table for every change. Nil disables it.
	Table io.Writer
}

// TargetState is the detector's view of one target.
type TargetState struct {
	Signature    stock.Signature `json:"signature"`
	InStock      bool            `json:"in_stock"`
	Observations int             `json:"observations"`
	LastChangeAt time.Time       `json:"last_change_at,omitempty"`
}

// Change describes the outcome of one observation.
type Change struct {
	Decision  Decision
	Target    stock.Target
	CheckID   string
	Title     string
	Entries   []stock.Entry
	Signature stock.Signature
	Previous  stock.Signature
	// Notified is true when a notification was attempted.
	Notified bool
}

// Detector owns per-target state for the life of the process.
type Detector struct {
	cfg      Config
	notifier stock.Notifier
	recorder stock.Recorder
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	states map[stock.Target]TargetState
}

// New builds a Detector. A nil notifier or recorder disables that side effect.
func New(cfg Config, notifier stock.Notifier, recorder stock.Recorder, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:      cfg,
		notifier: notifier,
		recorder: recorder,
		logger:   logging.OrNop(logger).Named("detector"),
		now:      time.Now,
		states:   make(map[stock.Target]TargetState),
	}
}

// Observe applies one scrape result. State is updated before any side effect
// runs, so a failed notification or record never causes a repeat. The
// returned error joins side-effect failures.
func (d *Detector) Observe(ctx context.Context, target stock.Target, checkID string, result stock.Result) (Change, error) {
	sig := result.Signature()
	now := d.now()

	d.mu.Lock()
	prev, seen := d.states[target]
	next := prev
	next.Observations++
	change := Change{
		Target:    target,
		CheckID:   checkID,
		Title:     stock.ShortTitle(result.Title, d.cfg.TitleMaxLen),
		Entries:   result.Entries,
		Signature: sig,
		Previous:  prev.Signature,
	}
	switch {
	case !result.InStock():
		change.Decision = DecisionOutOfStock
		if prev.InStock {
			next.LastChangeAt = now
		}
		next.Signature = stock.EmptySignature
		next.InStock = false
	case seen && sig == prev.Signature:
		change.Decision = DecisionUnchanged
	default:
		change.Decision = DecisionChanged
		next.Signature = sig
		next.InStock = true
		next.LastChangeAt = now
	}
	d.states[target] = next
	d.mu.Unlock()

	log := d.logger.With(
		zap.String("target", target.URL()),
		zap.String("check_id", checkID),
		zap.String("title", change.Title),
	)

	switch change.Decision {
	case DecisionUnchanged:
		log.Info("state unchanged", zap.String("signature", string(sig)))
		return change, nil
	case DecisionOutOfStock:
		log.Info("out of stock")
		if !d.cfg.NotifyOutOfStock || !prev.InStock {
			return change, nil
		}
		change.Notified = true
		return change, d.notify(ctx, change.Title, "Out of stock")
	}

	log.Info("stock changed",
		zap.String("signature", string(sig)),
		zap.String("previous", string(prev.Signature)),
		zap.Int("locations", len(result.Entries)),
	)
	metrics.ObserveStockChange(target.URL())
	if d.cfg.Table != nil {
		report.StockChange(d.cfg.Table, change.Title, target.URL(), result.Entries)
	}

	change.Notified = true
	var errs []error
	if err := d.notify(ctx, change.Title, stock.FormatEntries(result.Entries)); err != nil {
		errs = append(errs, err)
	}
	if err := d.record(ctx, stock.Record{
		CheckID:   checkID,
		Timestamp: now,
		URL:       target.URL(),
		Title:     change.Title,
		Entries:   result.Entries,
		Signature: sig,
	}); err != nil {
		errs = append(errs, err)
	}
	return change, errors.Join(errs...)
}

func (d *Detector) notify(ctx context.Context, title, message string) error {
	if d.notifier == nil {
		return nil
	}
	if err := d.notifier.Notify(ctx, title, message); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}

func (d *Detector) record(ctx context.Context, record stock.Record) error {
	if d.recorder == nil {
		return nil
	}
	if err := d.recorder.Record(ctx, record); err != nil {
		return fmt.Errorf("record inventory: %w", err)
	}
	return nil
}

// State returns the current state of target.
func (d *Detector) State(target stock.Target) (TargetState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.states[target]
	return s, ok
}

// Snapshot copies the state of every observed target.
func (d *Detector) Snapshot() map[stock.Target]TargetState {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[stock.Target]TargetState, len(d.states))
	for k, v := range d.states {
		out[k] = v
	}
	return out
}
