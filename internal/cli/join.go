package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"sftocsv/internal/join"
	"sftocsv/internal/record"
)

// JoinOptions holds flags for the join command.
type JoinOptions struct {
	Kind        string
	Key         string
	LeftKey     string
	RightKey    string
	Side        string
	Exclusive   bool
	PreserveKey bool
	Out         string
	Append      bool
}

// NewJoinCommand creates the join subcommand.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JoinOptions{}

	cmd := &cobra.Command{
		Use:   "join <left> <right>",
		Short: "Join two CSV or JSON record files",
		Long: `Joins two record files in memory.

  inner    every left/right pair with equal key values; the right key is dropped
  natural  each left row with the first right row sharing a field value
  outer    inner rows plus unmatched rows of --side (left, right or full)

CSV cells are read as strings, so keys only match values of the same type.`,
		Example: `  sftocsv join contacts.csv accounts.csv --left-key AccountId --right-key Id --out contacts_with_account
  sftocsv join a.json b.json --kind outer --key Id --side full`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			left, err := readRecordsFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read left input", err)
			}
			right, err := readRecordsFile(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read right input", err)
			}
			out, err := opts.join(left, right)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid join", err)
			}
			q := queryOptions{Out: opts.Out, Append: opts.Append}
			return q.writeFlat(cmd, rootOpts, out)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "inner", "join kind (inner|natural|outer)")
	cmd.Flags().StringVar(&opts.Key, "key", "", "key field on both sides")
	cmd.Flags().StringVar(&opts.LeftKey, "left-key", "", "left key field")
	cmd.Flags().StringVar(&opts.RightKey, "right-key", "", "right key field")
	cmd.Flags().StringVar(&opts.Side, "side", "", "outer join side (left|right|full)")
	cmd.Flags().BoolVar(&opts.Exclusive, "exclusive", false, "natural join: require every shared field to match")
	cmd.Flags().BoolVar(&opts.PreserveKey, "preserve-key", false, "keep the right (inner-side) key in joined rows")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "CSV path; prints to stdout when empty")
	cmd.Flags().BoolVar(&opts.Append, "append", false, "append to an existing CSV file")
	return cmd
}

func (o *JoinOptions) keys() (string, string, error) {
	lk, rk := o.LeftKey, o.RightKey
	if lk == "" {
		lk = o.Key
	}
	if rk == "" {
		rk = o.Key
	}
	if lk == "" || rk == "" {
		return "", "", fmt.Errorf("%s join needs --key or both --left-key and --right-key", o.Kind)
	}
	return lk, rk, nil
}

func (o *JoinOptions) join(left, right record.Collection) (record.Collection, error) {
	switch o.Kind {
	case "inner":
		lk, rk, err := o.keys()
		if err != nil {
			return nil, err
		}
		return join.Inner(left, right, lk, rk, o.PreserveKey), nil
	case "natural":
		return join.Natural(left, right, o.Exclusive), nil
	case "outer":
		lk, rk, err := o.keys()
		if err != nil {
			return nil, err
		}
		side, err := join.ParseSide(o.Side)
		if err != nil {
			return nil, err
		}
		return join.Outer(left, right, lk, rk, side, o.PreserveKey)
	default:
		return nil, fmt.Errorf("unknown join kind %q (want inner, natural or outer)", o.Kind)
	}
}
