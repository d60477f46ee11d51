// Package notify fans stock notifications out to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/logging"
	"github.com/JakeFAU/stock-monitor/internal/metrics"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// Channel is a named notifier.
type Channel struct {
	Name     string
	Notifier stock.Notifier
}

// Multi delivers every notification to all channels. Failures are collected,
// never retried.
type Multi struct {
	channels []Channel
	logger   *zap.Logger
}

// NewMulti builds a fan-out notifier.
func NewMulti(logger *zap.Logger, channels ...Channel) *Multi {
	return &Multi{channels: channels, logger: logging.OrNop(logger).Named("notify")}
}

// Channels lists the configured channel names.
func (m *Multi) Channels() []string {
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name)
	}
	return names
}

// Notify implements stock.Notifier.
func (m *Multi) Notify(ctx context.Context, title, message string) error {
	var errs []error
	for _, ch := range m.channels {
		err := ch.Notifier.Notify(ctx, title, message)
		metrics.ObserveNotification(ch.Name, err)
		if err != nil {
			m.logger.Warn("notification failed", zap.String("channel", ch.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", ch.Name, err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &stock.TaskError{Kind: stock.KindNotification, Err: errors.Join(errs...)}
}

// Log writes notifications to the logger instead of delivering them.
type Log struct {
	logger *zap.Logger
}

// NewLog builds a dry-run notifier.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logging.OrNop(logger).Named("notify")}
}

// Notify implements stock.Notifier.
func (l *Log) Notify(_ context.Context, title, message string) error {
	l.logger.Info("notification", zap.String("title", title), zap.String("message", message))
	return nil
}
