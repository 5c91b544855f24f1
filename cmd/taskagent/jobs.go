package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var deadlineWindow time.Duration

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Send task notifications",
	Long: `Send task notifications. Meant to be run from cron.

Available subcommands:
  daily     - mail the daily digest to users whose local time matches their setting
  deadlines - alert owners of tasks due soon that were not notified yet`,
}

var notifyDailyCmd = &cobra.Command{
	Use:   "daily",
	Short: "Send the daily digest with an AI summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := a.Notifications.SendDailyDigests(cmd.Context())
		if err != nil {
			return err
		}
		a.Logger.Info("[notify][daily] done", zap.Int("sent", n))
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d digests\n", n)
		return nil
	},
}

var notifyDeadlinesCmd = &cobra.Command{
	Use:   "deadlines",
	Short: "Alert owners of tasks whose deadline is near",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		window := a.Config.Notifications.DeadlineWindow
		if deadlineWindow > 0 {
			window = deadlineWindow
		}
		n, err := a.Notifications.SendDeadlineNotifications(cmd.Context(), window)
		if err != nil {
			return err
		}
		a.Logger.Info("[notify][deadlines] done", zap.Int("sent", n), zap.Duration("window", window))
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d deadline alerts\n", n)
		return nil
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the semantic index from the task store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, cleanup, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if a.Syncer == nil {
			return errors.New("semantic index is disabled: set index.path")
		}
		tasks, err := a.Tasks.ListAll(cmd.Context())
		if err != nil {
			return err
		}
		n, err := a.Syncer.Reindex(cmd.Context(), tasks)
		if err != nil {
			return err
		}
		a.Logger.Info("[reindex] done", zap.Int("indexed", n), zap.Int("tasks", len(tasks)))
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d of %d tasks\n", n, len(tasks))
		return nil
	},
}

func init() {
	notifyDeadlinesCmd.Flags().DurationVar(&deadlineWindow, "window", 0, "lookahead window (defaults to notifications.deadline_window)")
	notifyCmd.AddCommand(notifyDailyCmd, notifyDeadlinesCmd)
}
