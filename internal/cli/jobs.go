package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sftocsv/internal/storage"
)

// NewJobsCommand creates the jobs command group.
func NewJobsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs, run history and query history",
	}
	cmd.AddCommand(newJobsListCommand(rootOpts))
	cmd.AddCommand(newJobsRunsCommand(rootOpts))
	cmd.AddCommand(newJobsQueriesCommand(rootOpts))
	return cmd
}

func newJobsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs in the jobs directory with their last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openStorage()
			if err != nil {
				return err
			}
			defer db.Close()

			svc := rootOpts.jobService(db)
			if err := svc.Reload(); err != nil {
				return WrapExitError(ExitCommandError, "failed to load jobs", err)
			}
			infos, err := svc.ListJobs()
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list jobs", err)
			}

			var b strings.Builder
			if len(infos) == 0 {
				fmt.Fprintf(&b, "No jobs in %s", rootOpts.Config.JobsDir)
			}
			for i, info := range infos {
				if i > 0 {
					b.WriteByte('\n')
				}
				trigger := info.Job.Trigger.Type
				if trigger == "" {
					trigger = "manual"
				}
				last := "never run"
				if st := info.Status; st != nil && st.LastRunAt != nil {
					last = fmt.Sprintf("%s at %s", st.LastStatus, st.LastRunAt.Format(time.RFC3339))
				}
				if info.Running != nil {
					last = fmt.Sprintf("running since %s (%s)", info.Running.StartedAt.Format(time.RFC3339), info.Running.Trigger)
				}
				fmt.Fprintf(&b, "%-24s %-10s %s  (%s)", info.Job.Name, trigger, last, info.Job.ID)
			}
			return rootOpts.output(cmd).Success(infos, b.String())
		},
	}
}

func newJobsRunsCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [job]",
		Short: "Show run history, for one job or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openStorage()
			if err != nil {
				return err
			}
			defer db.Close()

			ref := ""
			svc := rootOpts.jobService(db)
			if len(args) == 1 {
				ref = args[0]
				if err := svc.Reload(); err != nil {
					return WrapExitError(ExitCommandError, "failed to load jobs", err)
				}
			}
			logs, err := svc.ListRunLogs(ref, limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to list runs", err)
			}

			var b strings.Builder
			if len(logs) == 0 {
				b.WriteString("No runs recorded")
			}
			for i, l := range logs {
				if i > 0 {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "%s  %-24s %-8s %-10s read=%d written=%d",
					l.StartedAt.Format(time.RFC3339), l.JobName, l.Status, l.Trigger, l.RowsRead, l.RowsWritten)
				if l.Error != "" {
					fmt.Fprintf(&b, "  %s", l.Error)
				}
			}
			return rootOpts.output(cmd).Success(logs, b.String())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs")
	return cmd
}

func newJobsQueriesCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		limit int
		prune time.Duration
	)
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Show recently executed queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openStorage()
			if err != nil {
				return err
			}
			defer db.Close()

			store := storage.NewQueryLogStore(db)
			out := rootOpts.output(cmd)
			if prune > 0 {
				n, err := store.Prune(time.Now().Add(-prune))
				if err != nil {
					return WrapExitError(ExitFailure, "failed to prune query log", err)
				}
				out.Logf("pruned %d queries older than %s", n, prune)
			}

			entries, err := store.Recent(limit)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read query log", err)
			}
			var b strings.Builder
			if len(entries) == 0 {
				b.WriteString("No queries recorded")
			}
			for i, q := range entries {
				if i > 0 {
					b.WriteByte('\n')
				}
				status := "ok"
				if q.Error != "" {
					status = "error"
				}
				fmt.Fprintf(&b, "%s  %-8s %-5s rows=%d requests=%d %dms  %s",
					q.ExecutedAt.Format(time.RFC3339), q.Kind, status, q.Rows, q.Requests, q.DurationMs, q.Query)
			}
			return out.Success(entries, b.String())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of queries")
	cmd.Flags().DurationVar(&prune, "prune", 0, "first delete entries older than this (e.g. 720h)")
	return cmd
}
