package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/signalbot/config"
)

// rootOptions son los flags persistentes y la config ya cargada.
type rootOptions struct {
	configPath string
	verbose    bool
	logFormat  string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "signalbot",
		Short: "Trading-signal verification and rolling statistics",
		Long: `signalbot listens to chat messages carrying trading signals, verifies and
persists each one, and serves accuracy, ranking and heatmap statistics.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			if o.verbose {
				cfg.Log.Level = "debug"
			}
			if o.logFormat != "" {
				cfg.Log.Format = o.logFormat
			}
			setupLogger(cfg.Log)
			o.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVar(&o.configPath, "config", "config/config.yaml", "path to config file (empty: env and defaults only)")
	root.PersistentFlags().BoolVar(&o.verbose, "verbose", false, "set log level to debug")
	root.PersistentFlags().StringVar(&o.logFormat, "format", "", "log format: text|json (overrides config)")

	root.AddCommand(newRunCmd(o), newReplayCmd(o), newReportCmd(o))
	return root
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
