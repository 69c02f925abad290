package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/sidesync/internal/engine"
)

// Exit codes shared by every command.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // aborted transaction, missing object, failed scenario, rejected schema
	ExitCommandError = 2 // bad arguments, unreadable database or schema path
)

// ExitError is a command failure carrying the process exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without an underlying cause.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError whose cause is err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps a command error to the process exit code. Errors that
// are not ExitErrors exit 1.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Response is what every command prints with --format json.
type Response struct {
	Status string         `json:"status"` // "ok" or "error"
	Data   any            `json:"data,omitempty"`
	Meta   *ResponseMeta  `json:"meta,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError identifies a failure. Code is a RuntimeError code
// (UNKNOWN_STORE, READ_ONLY, NOT_A_RECORD), a schema E-code, or one of
// E_ABORTED, E_NOT_FOUND, E_FAILED, E_TEST_FAILED.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta describes the database once the command is done with it,
// so a sync client can tell how far the log has moved.
type ResponseMeta struct {
	Database     string `json:"database"`
	Node         string `json:"node"`
	Clock        string `json:"clock,omitempty"` // newest timestamp issued or observed
	OplogEntries int    `json:"oplog_entries"`
}

// Formatter prints command results as text or as a Response.
type Formatter struct {
	JSON    bool
	Out     io.Writer
	Diag    io.Writer // --verbose diagnostics; kept off Out so JSON stays parseable
	Verbose bool

	ctx context.Context
	eng *engine.Engine
	db  string
}

// attach makes JSON responses carry metadata read from eng at print time.
func (f *Formatter) attach(ctx context.Context, eng *engine.Engine, db string) {
	f.ctx, f.eng, f.db = ctx, eng, db
}

// Result prints text, or data inside an "ok" Response.
func (f *Formatter) Result(text string, data any) error {
	if !f.JSON {
		_, err := fmt.Fprintln(f.Out, text)
		return err
	}
	return f.emit(Response{Status: "ok", Data: data})
}

// Fail prints a failure as "Error [code]: message", or inside an "error"
// Response together with data, which may be nil.
func (f *Formatter) Fail(code, message string, data any) error {
	if !f.JSON {
		_, err := fmt.Fprintf(f.Out, "Error [%s]: %s\n", code, message)
		return err
	}
	return f.emit(Response{
		Status: "error",
		Data:   data,
		Error:  &ResponseError{Code: code, Message: message},
	})
}

// Debugf prints a diagnostic line when --verbose is set.
func (f *Formatter) Debugf(format string, args ...any) {
	if !f.Verbose || f.Diag == nil {
		return
	}
	fmt.Fprintf(f.Diag, format+"\n", args...)
}

func (f *Formatter) emit(resp Response) error {
	resp.Meta = f.meta()
	return json.NewEncoder(f.Out).Encode(resp)
}

func (f *Formatter) meta() *ResponseMeta {
	if f.eng == nil {
		return nil
	}
	m := &ResponseMeta{Database: f.db, Node: f.eng.Clock().Node()}
	if ts := f.eng.Clock().Current(); ts.Millis > 0 {
		m.Clock = ts.String()
	}
	err := f.eng.Run(f.ctx, nil, engine.ReadOnly, func(txn *engine.Txn) error {
		var err error
		m.OplogEntries, err = txn.Oplog().Count(f.ctx)
		return err
	})
	if err != nil {
		f.Debugf("oplog count unavailable: %v", err)
	}
	return m
}
