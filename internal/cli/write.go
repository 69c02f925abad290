package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sidesync/internal/engine"
	"github.com/roach88/sidesync/internal/ir"
)

// WriteResult is the output of add and put.
type WriteResult struct {
	Store        string          `json:"store"`
	Key          json.RawMessage `json:"key"`
	OplogEntries int             `json:"oplog_entries"`
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <store> <value-json> [key-json]",
		Short: "Insert a new object",
		Long: `Insert a new object in one read-write transaction, recording one oplog
entry per top-level property.

Stores with a key path take the key from the value. Keyless stores need
the key argument. Adding an existing key aborts the transaction.

Examples:
  sidesync add todo_items '{"id":1,"name":"buy cookies","done":false}'
  sidesync add kv '"hello"' '"greeting"'`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, rootOpts, "add", args)
		},
	}
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "put <store> <value-json> [key-json]",
		Short: "Insert or update an object",
		Long: `Insert or update an object in one read-write transaction.

A record without its key properties plus an explicit key is a partial
update: it is merged into the stored object and only the given
properties are recorded in the oplog.

Examples:
  sidesync put todo_items '{"id":1,"name":"buy cookies","done":true}'
  sidesync put todo_items '{"done":true}' 1`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, rootOpts, "put", args)
		},
	}
}

func runWrite(cmd *cobra.Command, opts *RootOptions, op string, args []string) error {
	f := newFormatter(cmd, opts)
	storeName := args[0]

	value, err := parseValueArg("value", args[1])
	if err != nil {
		return err
	}
	var key ir.Value
	if len(args) == 3 {
		if key, err = parseValueArg("key", args[2]); err != nil {
			return err
		}
	}

	eng, err := openEngine(cmd, opts, f)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	ctx := commandContext(cmd)
	var resolved ir.Value
	var entries int
	err = eng.Run(ctx, []string{storeName}, engine.ReadWrite, func(txn *engine.Txn) error {
		p, err := txn.Store(storeName)
		if err != nil {
			return err
		}
		before, err := txn.Oplog().Count(ctx)
		if err != nil {
			return err
		}
		if op == "add" {
			resolved, err = p.Add(ctx, value, key)
		} else {
			resolved, err = p.Put(ctx, value, key)
		}
		if err != nil {
			return err
		}
		after, err := txn.Oplog().Count(ctx)
		entries = after - before
		return err
	})
	if err != nil {
		return reportFailure(f, op+" failed", err)
	}

	return f.Result(
		fmt.Sprintf("%s %s[%s]: %d oplog entr%s", op, storeName, textJSON(resolved), entries, plural(entries)),
		WriteResult{Store: storeName, Key: rawJSON(resolved), OplogEntries: entries},
	)
}

func plural(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
