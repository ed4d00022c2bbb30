package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/signalbot/internal/analytics"
)

func newReportCmd(o *rootOptions) *cobra.Command {
	var series bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard for the signals already in the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runReport(cmd.Context(), o, series)
		},
	}
	cmd.Flags().BoolVar(&series, "series", false, "also print accuracy over time, rolling win rate and cumulative profit")
	return cmd
}

func runReport(ctx context.Context, o *rootOptions, series bool) error {
	a, err := newApp(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	d, err := a.engine.Dashboard(ctx)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := a.console.Notify(ctx, d); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if !series || d.Summary.Total == 0 {
		return nil
	}

	rows, err := a.engine.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	a.console.PrintAccuracy(analytics.AccuracyPoints(rows))
	a.console.PrintSeries(
		fmt.Sprintf("ROLLING WIN RATE (%d)", a.engine.Config().RollingWindow),
		analytics.RollingWinRate(rows, a.engine.Config().RollingWindow),
	)
	a.console.PrintSeries("CUMULATIVE PROFIT", analytics.CumulativeProfit(rows))
	return nil
}
