package cmd

import (
	"github.com/spf13/cobra"

	"github.com/JakeFAU/stock-monitor/internal/app"
	"github.com/JakeFAU/stock-monitor/internal/report"
	"github.com/JakeFAU/stock-monitor/internal/scraper"
)

func newTargetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List configured targets and the adapter chosen for each",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			targets := app.Targets(rt.cfg)
			rows := make([]report.TargetRow, 0, len(targets))
			for _, t := range targets {
				rows = append(rows, report.TargetRow{
					URL:     t.URL(),
					Host:    t.Host(),
					Variant: scraper.Select(t).String(),
				})
			}
			report.Targets(cmd.OutOrStdout(), rows)
			return nil
		},
	}
}
