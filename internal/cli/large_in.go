package cli

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sftocsv/internal/batch"
	"sftocsv/internal/csvfile"
	"sftocsv/internal/record"
	"sftocsv/internal/storage"
)

// LargeInOptions holds flags for the large-in command.
type LargeInOptions struct {
	queryOptions
	IDs      []string
	IDsFile  string
	IDColumn string
	NoQuote  bool
	DryRun   bool
}

// NewLargeInCommand creates the large-in subcommand.
func NewLargeInCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LargeInOptions{}

	cmd := &cobra.Command{
		Use:   "large-in <template>",
		Short: "Run a query over a long id list, split into as many requests as needed",
		Long: `Runs a SOQL template whose <in> placeholder is replaced by the ids, split
so every request stays under the query length limit. Results are merged in
batch order.`,
		Example: `  sftocsv large-in "SELECT Id, Name FROM Contact WHERE AccountId IN <in>" --ids-file accounts.txt --out contacts
  sftocsv large-in "SELECT Id FROM Account WHERE Id IN <in>" --ids-file accounts.csv --id-column Id --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLargeIn(cmd, rootOpts, opts, args[0])
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringSliceVar(&opts.IDs, "ids", nil, "ids, comma separated")
	cmd.Flags().StringVar(&opts.IDsFile, "ids-file", "", "file with one id per line, or a CSV file with --id-column")
	cmd.Flags().StringVar(&opts.IDColumn, "id-column", "Id", "column holding the ids when --ids-file is a CSV file")
	cmd.Flags().BoolVar(&opts.NoQuote, "no-quote", false, "insert ids as they are instead of as quoted strings")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "print the queries without running them")
	return cmd
}

func runLargeIn(cmd *cobra.Command, rootOpts *RootOptions, opts *LargeInOptions, template string) error {
	if !strings.Contains(template, batch.Placeholder) {
		return NewExitError(ExitCommandError, fmt.Sprintf("template must contain %s", batch.Placeholder))
	}
	ids, err := opts.collectIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return NewExitError(ExitCommandError, "no ids given: use --ids or --ids-file")
	}
	if !opts.NoQuote {
		ids = batch.QuoteIDs(ids)
	}
	queries, err := batch.Queries(template, ids)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build queries", err)
	}

	out := rootOpts.output(cmd)
	if opts.DryRun {
		return out.Success(queries, strings.Join(queries, "\n"))
	}
	out.Logf("%d ids split into %d queries", len(ids), len(queries))

	client, err := rootOpts.client(cmd.Context())
	if err != nil {
		return err
	}
	entry := &storage.QueryLog{Kind: storage.QueryLargeIn, Query: template, Requests: len(queries)}
	start := time.Now()
	defer func() {
		entry.DurationMs = time.Since(start).Milliseconds()
		rootOpts.recordQuery(entry)
	}()

	if opts.Nested {
		bag, err := client.LargeInQueryNested(cmd.Context(), template, ids)
		if err != nil {
			entry.Error = err.Error()
			return queryFailed(err)
		}
		entry.Rows = bag.Count()
		return opts.writeBag(cmd, rootOpts, bag)
	}
	recs, err := client.LargeInQuery(cmd.Context(), template, ids)
	if err != nil {
		entry.Error = err.Error()
		return queryFailed(err)
	}
	entry.Rows = len(recs)
	return opts.writeFlat(cmd, rootOpts, recs)
}

// collectIDs merges --ids and --ids-file, dropping blanks.
func (o *LargeInOptions) collectIDs() ([]string, error) {
	var ids []string
	for _, id := range o.IDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if o.IDsFile == "" {
		return ids, nil
	}
	fromFile, err := readIDsFile(o.IDsFile, o.IDColumn)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read ids file", err)
	}
	return append(ids, fromFile...), nil
}

func readIDsFile(path, column string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		recs, err := csvfile.ReadRecords(path)
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, r := range recs {
			v, ok := r.Get(column)
			if !ok || record.IsNull(v) {
				continue
			}
			if s := strings.TrimSpace(record.Format(v)); s != "" {
				ids = append(ids, s)
			}
		}
		return ids, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			ids = append(ids, s)
		}
	}
	return ids, sc.Err()
}
