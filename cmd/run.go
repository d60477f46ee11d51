package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/app"
	"github.com/JakeFAU/stock-monitor/internal/config"
)

type runner interface {
	Run(ctx context.Context) error
	Close() error
}

// buildRunner is replaced in tests.
var buildRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (runner, error) {
	return app.Build(ctx, cfg, logger)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Monitor every configured target until interrupted",
		Long: `Starts the browser pool, one polling loop per configured target and,
when enabled, the status server. SIGINT or SIGTERM stops the loops and
closes the pool.`,
		Args: cobra.NoArgs,
		RunE: runMonitor,
	}
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if err := rt.cfg.ValidateNotifiers(); err != nil {
		return err
	}
	if err := rt.cfg.ValidateTargets(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor, err := buildRunner(ctx, rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer func() {
		if cerr := monitor.Close(); cerr != nil {
			rt.logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()

	if err := monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run monitor: %w", err)
	}
	rt.logger.Info("monitor stopped")
	return nil
}
