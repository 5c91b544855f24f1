package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var shutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the index syncer",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "grace period for in-flight requests and queued index jobs")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, cleanup, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer cleanup()
	logger := a.Logger

	if a.Syncer != nil {
		if err := a.Syncer.Start(ctx); err != nil {
			return err
		}
	}
	if a.Telegram != nil {
		if err := a.Telegram.SetWebhook(a.Config.Telegram.WebhookURL, a.Config.Telegram.WebhookSecret); err != nil {
			logger.Warn("[serve] telegram webhook not set", zap.Error(err))
		}
	}

	srv := a.Server()
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("[serve] listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	ops := map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	}
	if a.Syncer != nil {
		ops["index-syncer"] = func(ctx context.Context) error {
			return a.Syncer.Stop(ctx)
		}
	}
	done := gfshutdown.GracefulShutdown(context.Background(), shutdownTimeout, ops)

	select {
	case err := <-listenErr:
		logger.Error("[serve][listen][err]", zap.Error(err))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if a.Syncer != nil {
			_ = a.Syncer.Stop(shutdownCtx)
		}
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	case code := <-done:
		if code != 0 {
			return fmt.Errorf("shutdown finished with exit code %d", code)
		}
		logger.Info("[serve] shutdown complete")
		return nil
	}
}
