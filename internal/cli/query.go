package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sftocsv/internal/csvfile"
	"sftocsv/internal/record"
	"sftocsv/internal/salesforce"
	"sftocsv/internal/storage"
)

// queryOptions are the output flags shared by query and large-in.
type queryOptions struct {
	Nested bool
	Out    string
	Append bool
}

func (q *queryOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&q.Nested, "nested", false, "flatten subqueries into one CSV per object type")
	cmd.Flags().StringVarP(&q.Out, "out", "o", "", "CSV path (nested: file name prefix); prints to stdout when empty")
	cmd.Flags().BoolVar(&q.Append, "append", false, "append to existing CSV files instead of replacing them")
}

// NewQueryCommand creates the query subcommand.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var q queryOptions

	cmd := &cobra.Command{
		Use:   "query <soql>",
		Short: "Run a SOQL query and write the records as CSV",
		Example: `  sftocsv query "SELECT Id, Name FROM Account" --out accounts
  sftocsv query "SELECT Id, (SELECT Id FROM Contacts) FROM Account" --nested --out export`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := rootOpts.client(cmd.Context())
			if err != nil {
				return err
			}
			soql := args[0]
			entry := &storage.QueryLog{Kind: storage.QueryFlat, Query: soql}
			if q.Nested {
				entry.Kind = storage.QueryNested
			}
			start := time.Now()
			defer func() {
				entry.DurationMs = time.Since(start).Milliseconds()
				rootOpts.recordQuery(entry)
			}()

			if q.Nested {
				bag, err := client.QueryNested(cmd.Context(), soql)
				if err != nil {
					entry.Error = err.Error()
					return queryFailed(err)
				}
				entry.Rows = bag.Count()
				return q.writeBag(cmd, rootOpts, bag)
			}
			recs, err := client.Query(cmd.Context(), soql)
			if err != nil {
				entry.Error = err.Error()
				return queryFailed(err)
			}
			entry.Rows = len(recs)
			return q.writeFlat(cmd, rootOpts, recs)
		},
	}
	q.bind(cmd)
	return cmd
}

// queryFailed tells a rejected or unreachable query apart from a local
// failure such as a cancelled context or a bad batch template.
func queryFailed(err error) error {
	if salesforce.IsRemoteQueryError(err) {
		return WrapExitError(ExitFailure, "remote query failed", err)
	}
	return WrapExitError(ExitFailure, "query failed", err)
}

// writeFlat writes recs to --out, or to stdout when no file was named.
func (q *queryOptions) writeFlat(cmd *cobra.Command, rootOpts *RootOptions, recs record.Collection) error {
	out := rootOpts.output(cmd)
	if q.Out == "" {
		if rootOpts.Format == "json" {
			return out.Success(recs, "")
		}
		return csvfile.Write(cmd.OutOrStdout(), recs)
	}
	path := csvfile.Path(q.Out)
	if err := csvfile.WriteRecords(recs, path, q.Append); err != nil {
		return WrapExitError(ExitFailure, "failed to write CSV", err)
	}
	return out.Success(map[string]any{"path": path, "rows": len(recs)},
		fmt.Sprintf("Wrote %d rows to %s", len(recs), path))
}

// writeBag writes one CSV per type under the --out prefix, or each type to
// stdout under a heading.
func (q *queryOptions) writeBag(cmd *cobra.Command, rootOpts *RootOptions, bag *record.Bag) error {
	out := rootOpts.output(cmd)
	if q.Out == "" {
		if rootOpts.Format == "json" {
			return out.Success(bag, "")
		}
		w := cmd.OutOrStdout()
		for i, typ := range bag.Types() {
			recs, _ := bag.Get(typ)
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "# %s\n", typ)
			if err := csvfile.Write(w, recs); err != nil {
				return err
			}
		}
		return nil
	}
	paths, err := csvfile.WriteBag(bag, q.Out, q.Append)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to write CSV", err)
	}
	return out.Success(map[string]any{"paths": paths, "rows": bag.Count()},
		fmt.Sprintf("Wrote %d rows to %d files", bag.Count(), len(paths)))
}
