package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/sidesync/internal/ir"
	"github.com/roach88/sidesync/internal/store"
)

// TxnState is the lifecycle position of a transaction.
type TxnState int

const (
	// TxnOpen accepts reads and writes.
	TxnOpen TxnState = iota
	// TxnCommitting is set while the store commits.
	TxnCommitting
	// TxnCommitted is final: every write is durable.
	TxnCommitted
	// TxnAborting is set by the first failure; the store has already
	// rolled back and every further operation fails.
	TxnAborting
	// TxnAborted is final: no write is visible.
	TxnAborted
)

func (s TxnState) String() string {
	switch s {
	case TxnOpen:
		return "open"
	case TxnCommitting:
		return "committing"
	case TxnCommitted:
		return "committed"
	case TxnAborting:
		return "aborting"
	case TxnAborted:
		return "aborted"
	default:
		return fmt.Sprintf("TxnState(%d)", int(s))
	}
}

// Txn is the handle a transaction body receives.
//
// Transitions: Open -> Committing -> Committed, or Open -> Aborting ->
// Aborted. Any failed proxied write moves the transaction to Aborting
// immediately, so a body that swallows the error still cannot commit.
type Txn struct {
	engine *Engine
	tx     *store.Tx
	mode   Mode
	scope  map[string]*store.ObjectStore

	mu      sync.Mutex
	state   TxnState
	cause   error
	writes  int
	entries int
}

func newTxn(e *Engine, tx *store.Tx, mode Mode) *Txn {
	return &Txn{
		engine: e,
		tx:     tx,
		mode:   mode,
		scope:  make(map[string]*store.ObjectStore),
	}
}

// Mode returns the transaction's mode.
func (t *Txn) Mode() Mode {
	return t.mode
}

// State returns the current lifecycle state.
func (t *Txn) State() TxnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the failure that aborted the transaction, or nil.
func (t *Txn) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cause
}

// Store returns the proxied handle for a store in the transaction's scope.
// Asking for a store outside the scope fails the transaction.
func (t *Txn) Store(name string) (*StoreProxy, error) {
	if err := t.active(); err != nil {
		return nil, err
	}
	obj, ok := t.scope[name]
	if !ok {
		return nil, t.fail(NewUnknownStoreError(name, "not in transaction scope"))
	}
	return &StoreProxy{txn: t, obj: obj}, nil
}

// Oplog returns a read-only view of the oplog within this transaction.
// Entries written earlier in the same transaction are visible to it.
func (t *Txn) Oplog() *OplogView {
	return &OplogView{txn: t}
}

// Abort rolls the transaction back. Run then returns an *AbortError
// wrapping ErrAbortedByCaller. Calling Abort again, or after a failure,
// is a no-op.
func (t *Txn) Abort() {
	t.fail(ErrAbortedByCaller)
}

// active returns ErrTransactionInactive unless the transaction is Open.
func (t *Txn) active() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxnOpen {
		return ErrTransactionInactive
	}
	return nil
}

// fail records err as the abort cause if it is the first failure, rolls
// the store transaction back, and returns err so call sites can
// `return t.fail(err)`.
func (t *Txn) fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TxnOpen {
		return err
	}
	t.state = TxnAborting
	t.cause = err
	if rbErr := t.tx.Rollback(); rbErr != nil {
		t.engine.logger.Error("rollback failed", "error", rbErr)
	}
	return err
}

// recordWrite counts a successful proxied write for logging.
func (t *Txn) recordWrite(entries int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes++
	t.entries += entries
}

// settle moves the transaction to a final state and returns Run's result.
func (t *Txn) settle() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case TxnOpen:
		t.state = TxnCommitting
		if err := t.tx.Commit(); err != nil {
			t.state = TxnAborted
			t.cause = err
			if rbErr := t.tx.Rollback(); rbErr != nil {
				t.engine.logger.Error("rollback failed", "error", rbErr)
			}
			t.engine.logger.Warn("transaction aborted", "mode", t.mode.String(), "cause", err)
			return &AbortError{Cause: err}
		}
		t.state = TxnCommitted
		t.engine.logger.Info("transaction committed",
			"mode", t.mode.String(),
			"writes", t.writes,
			"oplog_entries", t.entries,
		)
		return nil

	case TxnAborting:
		t.state = TxnAborted
		t.engine.logger.Warn("transaction aborted", "mode", t.mode.String(), "cause", t.cause)
		return &AbortError{Cause: t.cause}

	default:
		return fmt.Errorf("settle: transaction already %s", t.state)
	}
}

// OplogView reads the oplog inside a transaction. Only the engine appends
// to the oplog, so the view has no write methods.
type OplogView struct {
	txn *Txn
}

// Get returns the entry with the given timestamp, or ok=false.
func (v *OplogView) Get(ctx context.Context, hlcTime string) (ir.OpLogEntry, bool, error) {
	if err := v.txn.active(); err != nil {
		return ir.OpLogEntry{}, false, err
	}
	return v.txn.tx.Oplog().Get(ctx, hlcTime)
}

// GetAll returns every entry in hlc_time order.
func (v *OplogView) GetAll(ctx context.Context) ([]ir.OpLogEntry, error) {
	if err := v.txn.active(); err != nil {
		return nil, err
	}
	return v.txn.tx.Oplog().GetAll(ctx)
}

// GetAllAfter returns entries strictly after the given timestamp.
func (v *OplogView) GetAllAfter(ctx context.Context, after string) ([]ir.OpLogEntry, error) {
	if err := v.txn.active(); err != nil {
		return nil, err
	}
	return v.txn.tx.Oplog().GetAllAfter(ctx, after)
}

// Count returns the number of entries.
func (v *OplogView) Count(ctx context.Context) (int, error) {
	if err := v.txn.active(); err != nil {
		return 0, err
	}
	return v.txn.tx.Oplog().Count(ctx)
}
