package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sidesync/internal/engine"
	"github.com/roach88/sidesync/internal/ir"
)

// ObjectResult is one stored object in command output.
type ObjectResult struct {
	Key   json.RawMessage `json:"key"`
	Value json.RawMessage `json:"value"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <store> <key-json>",
		Short: "Print the object stored under a key",
		Long: `Print the object stored under a key.

Exit codes:
  0 - Object found
  1 - No object under the key, or unknown store
  2 - Command error

Examples:
  sidesync get todo_items 1
  sidesync get settings '["ui","theme"]'`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(cmd, rootOpts, args[0], args[1])
		},
	}
}

func runGet(cmd *cobra.Command, opts *RootOptions, storeName, keyArg string) error {
	f := newFormatter(cmd, opts)

	key, err := parseValueArg("key", keyArg)
	if err != nil {
		return err
	}

	eng, err := openEngine(cmd, opts, f)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	ctx := commandContext(cmd)
	var value ir.Value
	var found bool
	err = eng.Run(ctx, []string{storeName}, engine.ReadOnly, func(txn *engine.Txn) error {
		p, err := txn.Store(storeName)
		if err != nil {
			return err
		}
		value, found, err = p.Get(ctx, key)
		return err
	})
	if err != nil {
		return reportFailure(f, "get failed", err)
	}

	if !found {
		msg := fmt.Sprintf("no object in %s under key %s", storeName, textJSON(key))
		if outErr := f.Fail("E_NOT_FOUND", msg, nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, msg)
	}

	return f.Result(textJSON(value), ObjectResult{Key: rawJSON(key), Value: rawJSON(value)})
}

// NewGetAllCommand creates the get-all command.
func NewGetAllCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get-all <store>",
		Short: "Print every object in a store, ordered by key",
		Long: `Print every object in a store, ordered by key: numbers before strings
before arrays.

Examples:
  sidesync get-all todo_items
  sidesync get-all settings --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGetAll(cmd, rootOpts, args[0])
		},
	}
}

func runGetAll(cmd *cobra.Command, opts *RootOptions, storeName string) error {
	f := newFormatter(cmd, opts)

	eng, err := openEngine(cmd, opts, f)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	ctx := commandContext(cmd)
	var keys, values []ir.Value
	err = eng.Run(ctx, []string{storeName}, engine.ReadOnly, func(txn *engine.Txn) error {
		p, err := txn.Store(storeName)
		if err != nil {
			return err
		}
		if keys, err = p.GetAllKeys(ctx); err != nil {
			return err
		}
		values, err = p.GetAll(ctx)
		return err
	})
	if err != nil {
		return reportFailure(f, "get-all failed", err)
	}

	objects := make([]ObjectResult, len(values))
	var text strings.Builder
	for i := range values {
		objects[i] = ObjectResult{Key: rawJSON(keys[i]), Value: rawJSON(values[i])}
		if i > 0 {
			text.WriteByte('\n')
		}
		fmt.Fprintf(&text, "%s\t%s", textJSON(keys[i]), textJSON(values[i]))
	}
	if len(values) == 0 {
		text.WriteString("No objects.")
	}

	return f.Result(text.String(), objects)
}
