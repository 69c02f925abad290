package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sidesync/internal/engine"
	"github.com/roach88/sidesync/internal/hlc"
	"github.com/roach88/sidesync/internal/ir"
)

// OplogOptions holds flags for the oplog command.
type OplogOptions struct {
	*RootOptions
	After string // only entries with a later hlc_time
	Store string // only entries for this store
}

// NewOplogCommand creates the oplog command.
func NewOplogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OplogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "oplog",
		Short: "Print oplog entries in hlc_time order",
		Long: `Print oplog entries in hlc_time order.

With --after, only entries strictly newer than the given timestamp are
printed, which is how a sync client pulls what it has not seen yet.

Examples:
  sidesync oplog
  sidesync oplog --after 2024-05-01T12:00:00.000Z-0003-8f2c1a9e4b7d6053
  sidesync oplog --store todo_items --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOplog(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.After, "after", "", "only entries after this hlc_time")
	cmd.Flags().StringVar(&opts.Store, "store", "", "only entries for this store")

	return cmd
}

func runOplog(cmd *cobra.Command, opts *OplogOptions) error {
	f := newFormatter(cmd, opts.RootOptions)

	if opts.After != "" {
		if _, err := hlc.Parse(opts.After); err != nil {
			return WrapExitError(ExitCommandError, "invalid --after timestamp", err)
		}
	}

	eng, err := openEngine(cmd, opts.RootOptions, f)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	ctx := commandContext(cmd)
	var entries []ir.OpLogEntry
	err = eng.Run(ctx, nil, engine.ReadOnly, func(txn *engine.Txn) error {
		var err error
		if opts.After != "" {
			entries, err = txn.Oplog().GetAllAfter(ctx, opts.After)
		} else {
			entries, err = txn.Oplog().GetAll(ctx)
		}
		return err
	})
	if err != nil {
		return reportFailure(f, "failed to read oplog", err)
	}

	out := make([]json.RawMessage, 0, len(entries))
	var text strings.Builder
	for _, e := range entries {
		if opts.Store != "" && e.Store != opts.Store {
			continue
		}
		data, err := json.Marshal(e)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode oplog entry", err)
		}
		out = append(out, data)
		if text.Len() > 0 {
			text.WriteByte('\n')
		}
		fmt.Fprintf(&text, "%s\t%s\t%s\t%s\t%s", e.HLCTime, e.Store, textJSON(e.ObjectKey), e.Prop, textJSON(e.Value))
	}
	if len(out) == 0 {
		text.WriteString("No oplog entries.")
	}

	return f.Result(text.String(), out)
}
