package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch subcommand.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run scheduled and file-triggered jobs until interrupted",
		Long: `Loads every job in the jobs directory and keeps their triggers alive:
schedule jobs run on their cron expression, file_watch jobs run when a
watched file changes. Editing a job file reloads the jobs.

On SIGINT or SIGTERM the watchers stop and running jobs get --grace to
finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			db, err := rootOpts.openStorage()
			if err != nil {
				return err
			}
			defer db.Close()

			rootOpts.optionalClient(ctx)

			svc := rootOpts.jobService(db)
			if err := svc.Reload(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load jobs", err)
			}
			if err := svc.RestartWatchers(ctx); err != nil {
				return WrapExitError(ExitCommandError, "failed to start watchers", err)
			}
			rootOpts.Logger.Info("watching", "jobs_dir", rootOpts.Config.JobsDir)

			<-ctx.Done()
			rootOpts.Logger.Info("shutting down")
			svc.Stop()

			waitCtx, waitCancel := context.WithTimeout(context.Background(), grace)
			defer waitCancel()
			svc.WaitRunning(waitCtx)
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "grace", 30*time.Second, "how long to wait for running jobs on shutdown")
	return cmd
}
