package cli

import (
	"github.com/spf13/cobra"

	"sftocsv/internal/flatten"
)

// NewFlattenCommand creates the flatten subcommand.
func NewFlattenCommand(rootOpts *RootOptions) *cobra.Command {
	var q queryOptions

	cmd := &cobra.Command{
		Use:     "flatten <result.json>",
		Short:   "Flatten a saved nested query result into one CSV per object type",
		Example: `  sftocsv flatten response.json --out export`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recs, err := readRecordsFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read input", err)
			}
			bag, err := flatten.Flatten(recs)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to flatten", err)
			}
			return q.writeBag(cmd, rootOpts, bag)
		},
	}
	cmd.Flags().StringVarP(&q.Out, "out", "o", "", "file name prefix; prints to stdout when empty")
	cmd.Flags().BoolVar(&q.Append, "append", false, "append to existing CSV files")
	return cmd
}
