package cmd

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/stock-monitor/internal/app"
	"github.com/JakeFAU/stock-monitor/internal/config"
	"github.com/JakeFAU/stock-monitor/internal/report"
	"github.com/JakeFAU/stock-monitor/internal/stock"
)

// checkTargets is replaced in tests.
var checkTargets = func(ctx context.Context, cfg config.Config, logger *zap.Logger, targets []stock.Target) ([]report.CheckRow, error) {
	return app.Check(ctx, app.NewPoolBuilder(cfg, logger), targets, logger)
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [url]...",
		Short: "Scrape the given URLs (or every configured target) once",
		Long: `Launches a temporary browser pool, scrapes each URL once and prints
the stock found per location. No notifications are sent and nothing is
recorded.`,
		RunE: runCheck,
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	var targets []stock.Target
	for _, raw := range args {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid product url %q", raw)
		}
		targets = append(targets, stock.Target(raw))
	}
	if len(targets) == 0 {
		targets = app.Targets(rt.cfg)
	}
	if len(targets) == 0 {
		return fmt.Errorf("no urls given and no targets configured")
	}

	rows, err := checkTargets(cmd.Context(), rt.cfg, rt.logger, targets)
	if err != nil {
		return fmt.Errorf("check targets: %w", err)
	}
	report.Checks(cmd.OutOrStdout(), rows)
	return nil
}
