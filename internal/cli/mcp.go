package cli

import (
	"github.com/spf13/cobra"

	"sftocsv/internal/etl"
	mcpserver "sftocsv/internal/mcp"
	"sftocsv/internal/storage"
)

// Version is reported by the MCP server. Set with -ldflags at build time.
var Version = "dev"

// NewMCPCommand creates the mcp subcommand.
func NewMCPCommand(rootOpts *RootOptions) *cobra.Command {
	var allowRun bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve queries, joins and jobs as MCP tools on stdin/stdout",
		Long: `Starts a Model Context Protocol server on stdin/stdout. Query tools need
an access token; job tools use the configured jobs directory. run_job writes
files and tables, so it stays disabled unless --allow-run is given.

Logs go to stderr so they never mix with the protocol stream.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := rootOpts.openStorage()
			if err != nil {
				return err
			}
			defer db.Close()

			deps := mcpserver.Deps{
				QueryLog: storage.NewQueryLogStore(db),
				AllowRun: allowRun,
				Logger:   rootOpts.Logger,
				Version:  Version,
			}
			if c := rootOpts.optionalClient(cmd.Context()); c != nil {
				deps.Client = c
			}

			svc := rootOpts.jobService(db)
			if err := svc.Reload(); err != nil {
				rootOpts.Logger.Warn("jobs not loaded; job tools disabled", "dir", rootOpts.Config.JobsDir, "err", err)
			} else {
				deps.Jobs = svc
			}

			rootOpts.Logger.Info("mcp: serving on stdio", "sources", len(etl.ListSources()))
			if err := mcpserver.New(deps).ServeStdio(); err != nil {
				return WrapExitError(ExitFailure, "MCP server error", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&allowRun, "allow-run", false, "enable the run_job tool")
	return cmd
}
