package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sftocsv/internal/csvfile"
	"sftocsv/internal/etl"
)

// NewSourcesCommand creates the sources command.
func NewSourcesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the source types jobs can read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := etl.ListSources()
			var b strings.Builder
			for i, spec := range specs {
				if i > 0 {
					b.WriteByte('\n')
				}
				fmt.Fprintf(&b, "%-12s %s", spec.Type, spec.Label)
				for _, f := range spec.ConfigFields {
					req := ""
					if f.Required {
						req = " (required)"
					}
					fmt.Fprintf(&b, "\n    %-14s %s%s", f.Key, f.Label, req)
				}
			}
			return rootOpts.output(cmd).Success(specs, b.String())
		},
	}
	cmd.AddCommand(newPreviewCommand(rootOpts))
	return cmd
}

func newPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		settings []string
		rows     int
	)
	cmd := &cobra.Command{
		Use:   "preview <type>",
		Short: "Read the first rows of a source and show the inferred schema",
		Example: `  sftocsv sources preview csv_file --set path=accounts.csv
  sftocsv sources preview soql --set query="SELECT Id, Name FROM Account" --rows 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := parseSettings(settings)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid --set", err)
			}
			if args[0] == "soql" {
				if _, err := rootOpts.client(cmd.Context()); err != nil {
					return err
				}
			}
			recs, schema, err := etl.NewEngine(rootOpts.Logger).Preview(cmd.Context(), args[0], cfg, rows)
			if err != nil {
				return WrapExitError(ExitFailure, "preview failed", err)
			}
			if rootOpts.Format == "json" {
				return rootOpts.output(cmd).Success(map[string]any{"schema": schema, "records": recs}, "")
			}
			w := cmd.OutOrStdout()
			for _, f := range schema.Fields {
				fmt.Fprintf(w, "# %s: %s\n", f.Name, f.Type)
			}
			return csvfile.Write(w, recs)
		},
	}
	cmd.Flags().StringArrayVar(&settings, "set", nil, "source setting as key=value (repeatable)")
	cmd.Flags().IntVar(&rows, "rows", 10, "maximum rows to read")
	return cmd
}

// parseSettings turns key=value pairs into a source config. Values stay
// strings; SourceConfig converts booleans and integers on read.
func parseSettings(pairs []string) (etl.SourceConfig, error) {
	cfg := etl.SourceConfig{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("%q is not key=value", p)
		}
		cfg[k] = v
	}
	return cfg, nil
}
