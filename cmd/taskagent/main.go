// Command taskagent serves the task agent API and runs its batch jobs.
//
// @title                       Task Agent API
// @version                     1.0
// @description                 Natural-language task management agent.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskagent/internal/app"
	"taskagent/internal/config"
	"taskagent/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "taskagent",
	Short:         "Natural-language task management agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, notifyCmd, reindexCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "taskagent:", err)
		stop()
		os.Exit(1)
	}
}

// bootstrap loads the config and wires the application. The returned
// function flushes the logger and releases the stores.
func bootstrap(ctx context.Context) (*app.App, func(), error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, func() {
		if err := a.Close(); err != nil {
			logger.Warn("[app][close]", zap.Error(err))
		}
		_ = logger.Sync()
	}, nil
}
