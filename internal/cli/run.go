package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sftocsv/internal/etl"
	"sftocsv/internal/service"
)

// NewRunCommand creates the run subcommand.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <job|file.yaml>",
		Short: "Run a job once",
		Long: `Runs a job by id or name from the jobs directory, or directly from a job
file. The run is recorded in the run history. Exits 1 when the job fails.`,
		Example: `  sftocsv run jobs/contacts.yaml
  sftocsv run contacts`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openStorage()
			if err != nil {
				return err
			}
			defer db.Close()

			// Jobs without a soql input run without a token.
			rootOpts.optionalClient(cmd.Context())

			svc := rootOpts.jobService(db)
			ref, err := loadRunTarget(svc, args[0])
			if err != nil {
				return err
			}

			result, runErr := svc.RunJob(cmd.Context(), ref, etl.TriggerManual)
			if result == nil {
				return WrapExitError(ExitFailure, "job did not run", runErr)
			}
			out := rootOpts.output(cmd)
			if runErr != nil {
				if rootOpts.Format == "json" {
					_ = out.Success(result, "")
				}
				return WrapExitError(ExitFailure, fmt.Sprintf("job %s failed", result.JobName), runErr)
			}
			return out.Success(result, formatResult(result))
		},
	}
	return cmd
}

// loadRunTarget registers a job file named on the command line, or loads
// the jobs directory to resolve ref. It returns the job reference to run.
func loadRunTarget(svc *service.JobService, ref string) (string, error) {
	ext := strings.ToLower(filepath.Ext(ref))
	if ext == ".yaml" || ext == ".yml" {
		if _, err := os.Stat(ref); err == nil {
			job, err := etl.LoadJob(ref)
			if err != nil {
				return "", WrapExitError(ExitCommandError, "invalid job file", err)
			}
			svc.Add(job)
			return job.ID, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", WrapExitError(ExitCommandError, "failed to read job file", err)
		}
	}
	if err := svc.Reload(); err != nil {
		return "", WrapExitError(ExitCommandError, "failed to load jobs", err)
	}
	if _, err := svc.GetJob(ref); err != nil {
		return "", WrapExitError(ExitCommandError, "unknown job", err)
	}
	return ref, nil
}

func formatResult(r *etl.SyncResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s, %d rows read, %d rows written in %s",
		r.JobName, r.Status, r.RowsRead, r.RowsWritten, r.Duration.Round(time.Millisecond))
	for _, t := range r.Targets {
		fmt.Fprintf(&b, "\n  %s", t)
	}
	return b.String()
}
