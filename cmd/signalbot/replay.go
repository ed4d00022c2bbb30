package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/signalbot/internal/adapters/replay"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

type replayOptions struct {
	label     string
	batchSize int
	serve     bool
}

func newReplayCmd(o *rootOptions) *cobra.Command {
	ro := &replayOptions{}
	cmd := &cobra.Command{
		Use:   "replay FILE...",
		Short: "Ingest exported chat logs through the same pipeline as the live listener",
		Long: `replay reads message blocks (separated by blank lines or "---", with an
optional "# <RFC3339>" header line) and feeds them to the ingestion pipeline.

Example usage:
  signalbot replay exports/eth60s.txt
  signalbot replay --label @ETHGPT60s_bot exports/*.txt
  signalbot replay --serve exports/eth60s.txt     # keep the API up afterwards`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), o, ro, args)
		},
	}
	cmd.Flags().StringVar(&ro.label, "label", "", "source label for every message (default: file name)")
	cmd.Flags().IntVar(&ro.batchSize, "batch", 50, "messages per poll")
	cmd.Flags().BoolVar(&ro.serve, "serve", false, "keep serving the HTTP API after the files are drained")
	return cmd
}

func runReplay(ctx context.Context, o *rootOptions, ro *replayOptions, files []string) error {
	var sources []ports.MessageSource
	total := 0
	for _, path := range files {
		src, err := replay.Open(path, replay.Options{Label: ro.label, BatchSize: ro.batchSize})
		if err != nil {
			return err
		}
		total += src.Len()
		sources = append(sources, src)
	}

	a, err := newApp(ctx, o.cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("replay starting", "files", len(files), "messages", total)

	stats, err := serve(ctx, a, sources, !ro.serve)
	if err != nil {
		return err
	}
	slog.Info("replay complete",
		"messages", stats.Messages,
		"signals", stats.Signals,
		"failures", stats.Failures,
	)
	return nil
}
