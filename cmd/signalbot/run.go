package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/signalbot/internal/adapters/telegram"
	"github.com/alejandrodnm/signalbot/internal/listener"
	"github.com/alejandrodnm/signalbot/internal/ports"
)

func newRunCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen to Telegram chats and keep the dashboard updated",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runListen(cmd.Context(), o)
		},
	}
}

func runListen(ctx context.Context, o *rootOptions) error {
	cfg := o.cfg
	client, err := telegram.NewClient(telegram.ClientConfig{
		Token:       cfg.Telegram.Token,
		APIBase:     cfg.Telegram.APIBase,
		PollTimeout: cfg.PollTimeout(),
		RatePerSec:  cfg.Telegram.RatePerSec,
	})
	if err != nil {
		return fmt.Errorf("run: set TELEGRAM_BOT_TOKEN: %w", err)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Info("signalbot starting",
		"config", o.configPath,
		"chats", cfg.Telegram.Chats,
		"refresh", cfg.RefreshInterval(),
		"http", cfg.HTTP.Addr,
	)

	sources := []ports.MessageSource{telegram.NewSource(client, cfg.Telegram.Chats)}
	stats, err := serve(ctx, a, sources, false)
	if err != nil {
		return err
	}
	slog.Info("signalbot stopped cleanly",
		"messages", stats.Messages,
		"signals", stats.Signals,
		"failures", stats.Failures,
	)
	return nil
}

// serve corre el listener y, si está configurada, la API HTTP hasta que ctx se cancele.
// Un fallo al arrancar la API para también el listener.
func serve(ctx context.Context, a *app, sources []ports.MessageSource, stopWhenDrained bool) (listener.Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srvErr := make(chan error, 1)
	if srv := a.httpServer(); srv != nil {
		go func() {
			err := srv.Run(ctx)
			if err != nil {
				slog.Error("http api failed", "err", err)
				cancel()
			}
			srvErr <- err
		}()
	} else {
		close(srvErr)
	}

	runner := listener.New(listener.Config{
		RefreshInterval: a.cfg.RefreshInterval(),
		StopWhenDrained: stopWhenDrained,
	}, sources, a.pipeline, a.engine, a.notifier())

	stats, err := runner.Run(ctx)
	cancel()
	if serr := <-srvErr; serr != nil && err == nil {
		err = serr
	}
	return stats, err
}
