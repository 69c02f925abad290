package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/sidesync/internal/engine"
	"github.com/roach88/sidesync/internal/ir"
	"github.com/roach88/sidesync/internal/schema"
	"github.com/roach88/sidesync/internal/testutil"
)

// Harness executes one scenario against a fresh engine.
type Harness struct {
	engine *engine.Engine
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database whose clock is frozen at
// testutil.Epoch with node testutil.NodeID, so the n-th oplog entry always
// gets testutil.Timestamp(n).
//
// Execution flow:
//  1. Create a fresh in-memory engine
//  2. Register the scenario's collections
//  3. Run each transaction, checking step errors and expect_aborted
//  4. Read back the oplog and evaluate assertions
//
// Mismatches are reported in Result.Errors; the returned error is reserved
// for scenarios that cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	eng, err := engine.Open(ctx, ":memory:",
		engine.WithNodeID(testutil.NodeID),
		engine.WithWallClock(testutil.NewWall().Now),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory engine: %w", err)
	}
	defer eng.Close()

	cols, err := scenarioCollections(scenario)
	if err != nil {
		return nil, err
	}
	if err := eng.RegisterCollections(ctx, cols...); err != nil {
		return nil, err
	}

	h := &Harness{engine: eng, logger: logger}
	result := NewResult()

	for i, txn := range scenario.Transactions {
		outcome, err := h.runTransaction(ctx, txn, result, fmt.Sprintf("transactions[%d]", i))
		if err != nil {
			return nil, fmt.Errorf("transactions[%d]: %w", i, err)
		}
		result.Transactions = append(result.Transactions, outcome)
	}

	entries, err := h.readOplog(ctx)
	if err != nil {
		return nil, err
	}
	result.Oplog = entries

	actx := &AssertionContext{Engine: eng, Ctx: ctx}
	if err := EvaluateAssertions(result, scenario.Assertions, actx); err != nil {
		return nil, err
	}

	return result, nil
}

// scenarioCollections compiles whichever collection source the scenario uses.
func scenarioCollections(s *Scenario) ([]ir.Collection, error) {
	switch {
	case s.Schema != "":
		return schema.CompileString(s.Schema)
	case s.SchemaDir != "":
		return schema.LoadDir(s.SchemaDir)
	}

	cols := make([]ir.Collection, 0, len(s.Collections))
	for i, decl := range s.Collections {
		kp, err := keyPathFromNode(decl.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
		col := ir.Collection{Name: decl.Name, KeyPath: kp}
		if err := col.Validate(); err != nil {
			return nil, fmt.Errorf("collections[%d]: %w", i, err)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// runTransaction runs one scenario transaction. Step mismatches are added
// to result; the returned error means the transaction could not be run.
func (h *Harness) runTransaction(ctx context.Context, txn Transaction, result *Result, where string) (TxnOutcome, error) {
	mode := engine.ReadWrite
	if txn.Mode == ModeReadOnly {
		mode = engine.ReadOnly
	}

	stores := txn.Stores
	if len(stores) == 0 {
		stores = stepStores(txn.Steps)
	}

	runErr := h.engine.Run(ctx, stores, mode, func(t *engine.Txn) error {
		for i, step := range txn.Steps {
			stepErr := h.runStep(ctx, t, step)
			checkStepError(result, fmt.Sprintf("%s.steps[%d]", where, i), step, stepErr)
		}
		// Failed steps have already doomed the transaction; the body's
		// own result does not need to repeat them.
		return nil
	})

	var outcome TxnOutcome
	switch {
	case runErr == nil:
		outcome.Committed = true
	case engine.IsAborted(runErr), engine.IsUnknownStore(runErr):
		// An unknown store in the scope is reported before the body runs,
		// so nothing was written either way.
		outcome.Error = runErr.Error()
	default:
		return outcome, runErr
	}

	if txn.ExpectAborted && outcome.Committed {
		result.AddError(fmt.Sprintf("%s: expected transaction to abort, but it committed", where))
	}
	if !txn.ExpectAborted && !outcome.Committed {
		result.AddError(fmt.Sprintf("%s: unexpected abort: %s", where, outcome.Error))
	}

	h.logger.Debug("scenario transaction finished", "where", where, "committed", outcome.Committed)
	return outcome, nil
}

func (h *Harness) runStep(ctx context.Context, t *engine.Txn, step Step) error {
	p, err := t.Store(step.Store)
	if err != nil {
		return err
	}

	value, err := optionalValue(step.Value)
	if err != nil {
		return fmt.Errorf("harness: value: %w", err)
	}
	key, err := optionalValue(step.Key)
	if err != nil {
		return fmt.Errorf("harness: key: %w", err)
	}

	switch step.Op {
	case OpAdd:
		_, err = p.Add(ctx, value, key)
	case OpPut:
		_, err = p.Put(ctx, value, key)
	case OpDelete:
		err = p.Delete(ctx, key)
	}
	return err
}

func checkStepError(result *Result, where string, step Step, err error) {
	switch {
	case step.ExpectError == "" && err != nil:
		result.AddError(fmt.Sprintf("%s: %s failed: %v", where, step.Op, err))
	case step.ExpectError != "" && err == nil:
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got success", where, step.ExpectError))
	case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
		result.AddError(fmt.Sprintf("%s: expected error containing %q, got %q", where, step.ExpectError, err.Error()))
	}
}

// stepStores returns the distinct stores named by steps, in first-use order.
func stepStores(steps []Step) []string {
	seen := make(map[string]bool)
	var stores []string
	for _, s := range steps {
		if !seen[s.Store] {
			seen[s.Store] = true
			stores = append(stores, s.Store)
		}
	}
	return stores
}

func (h *Harness) readOplog(ctx context.Context) ([]ir.OpLogEntry, error) {
	var entries []ir.OpLogEntry
	err := h.engine.Run(ctx, nil, engine.ReadOnly, func(t *engine.Txn) error {
		var err error
		entries, err = t.Oplog().GetAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read oplog: %w", err)
	}
	return entries, nil
}
