// Package cmd defines the stockmonitor command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/config"
	"github.com/JakeFAU/stock-monitor/internal/logging"
)

// runtimeKey stores the loaded config and logger in the command context.
type runtimeKey struct{}

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var (
		cfgFile string
		debug   bool
	)
	cmd := &cobra.Command{
		Use:   "stockmonitor",
		Short: "Watches retailer product pages and notifies when stock changes.",
		Long: `stockmonitor polls product pages with a pool of headless Chrome tabs,
detects changes in per-store availability, and sends notifications.
The browser pool is recycled when navigation keeps timing out and on a
fixed interval.`,
		SilenceUsage: true,

		// Config and logger are shared by every subcommand.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if debug {
				cfg.Logging.Development = true
				cfg.Logging.Level = "debug"
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, runtimeKey{}, &runtime{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				// Sync fails on terminals; nothing useful can be done about it.
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment uses the STOCKMON_ prefix")
	cmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newRunCmd(), newCheckCmd(), newTargetsCmd())
	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("command context missing")
	}
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stockmonitor:", err)
		os.Exit(1)
	}
}
