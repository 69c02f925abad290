package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sidesync/internal/ir"
	"github.com/roach88/sidesync/internal/schema"
)

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init <schema-dir>",
		Short: "Register the collections declared in a CUE schema directory",
		Long: `Load the .cue files in a directory and register every collection they
declare in the database, creating the database if needed.

Registering an identical collection again is a no-op; changing the key
path of a registered collection is an error.

Exit codes:
  0 - Collections registered
  1 - Schema errors or key path conflict
  2 - Command error (missing directory, database cannot be opened)

Examples:
  sidesync init ./schema
  sidesync --db app.db init ./schema --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, rootOpts, args[0])
		},
	}
}

// CollectionInfo is the output form of a collection.
type CollectionInfo struct {
	Name    string `json:"name"`
	KeyPath string `json:"key_path"`
}

func collectionInfos(cols []ir.Collection) []CollectionInfo {
	infos := make([]CollectionInfo, len(cols))
	for i, c := range cols {
		infos[i] = CollectionInfo{Name: c.Name, KeyPath: c.KeyPath.String()}
	}
	return infos
}

func formatCollections(cols []ir.Collection) string {
	if len(cols) == 0 {
		return "No collections."
	}
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s\tkeyPath=%s", c.Name, c.KeyPath)
	}
	return b.String()
}

func runInit(cmd *cobra.Command, opts *RootOptions, dir string) error {
	f := newFormatter(cmd, opts)

	cols, err := schema.LoadDir(dir)
	if err != nil {
		var le *schema.LoadError
		if errors.As(err, &le) {
			if le.Code == schema.ErrCodeNotFound {
				return WrapExitError(ExitCommandError, "failed to load schema", err)
			}
			if outErr := f.Fail(le.Code, le.Error(), nil); outErr != nil {
				return outErr
			}
		}
		return WrapExitError(ExitFailure, "failed to load schema", err)
	}
	f.Debugf("loaded %d collection(s) from %s", len(cols), dir)

	eng, err := openEngine(cmd, opts, f)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	if err := eng.RegisterCollections(commandContext(cmd), cols...); err != nil {
		return reportFailure(f, "failed to register collections", err)
	}

	return f.Result(
		fmt.Sprintf("Registered %d collection(s) in %s\n%s", len(cols), opts.Database, formatCollections(cols)),
		collectionInfos(cols),
	)
}

// NewCollectionsCommand creates the collections command.
func NewCollectionsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List registered collections",
		Long: `List the collections registered in the database, ordered by name.

Examples:
  sidesync collections
  sidesync --db app.db collections --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollections(cmd, rootOpts)
		},
	}
}

func runCollections(cmd *cobra.Command, opts *RootOptions) error {
	f := newFormatter(cmd, opts)

	eng, err := openEngine(cmd, opts, f)
	if err != nil {
		return err
	}
	defer closeEngine(eng)

	cols, err := eng.Collections(commandContext(cmd))
	if err != nil {
		return reportFailure(f, "failed to list collections", err)
	}
	return f.Result(formatCollections(cols), collectionInfos(cols))
}
