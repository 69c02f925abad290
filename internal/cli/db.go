package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/sidesync/internal/engine"
	"github.com/roach88/sidesync/internal/ir"
)

// openEngine opens the database named by --db and attaches it to f. Logs go
// to stderr: warnings by default, everything with --verbose.
func openEngine(cmd *cobra.Command, opts *RootOptions, f *Formatter) (*engine.Engine, error) {
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	eng, err := engine.Open(commandContext(cmd), opts.Database, engine.WithLogger(logger))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	f.attach(commandContext(cmd), eng, opts.Database)
	return eng, nil
}

// closeEngine closes eng, logging rather than returning a failure so that
// it can be deferred.
func closeEngine(eng *engine.Engine) {
	if err := eng.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// commandContext returns the command's context, or Background when the
// command was executed without one (as in most tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newFormatter(cmd *cobra.Command, opts *RootOptions) *Formatter {
	return &Formatter{
		JSON:    opts.Format == "json",
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// parseValueArg decodes a JSON command argument, keeping object key order.
func parseValueArg(what, arg string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(arg))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid %s JSON", what), err)
	}
	return v, nil
}

// rawJSON renders v for embedding in a JSON response.
func rawJSON(v ir.Value) json.RawMessage {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return json.RawMessage(`null`)
	}
	return data
}

// textJSON renders v in canonical form for text output.
func textJSON(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

// errorCode picks the response code for an engine failure.
func errorCode(err error) string {
	var re *engine.RuntimeError
	if errors.As(err, &re) {
		return string(re.Code)
	}
	if engine.IsAborted(err) {
		return "E_ABORTED"
	}
	return "E_FAILED"
}

// reportFailure prints err and returns the ExitError for it. Engine
// failures exit 1.
func reportFailure(f *Formatter, message string, err error) error {
	if outErr := f.Fail(errorCode(err), err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, message, err)
}
