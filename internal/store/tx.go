package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/sidesync/internal/ir"
)

// Tx is one SQLite transaction spanning any number of collections plus
// the oplog. Nothing written through it is visible to other transactions
// until Commit; Rollback discards all of it.
type Tx struct {
	tx   *sql.Tx
	done bool
}

// Commit makes every write in the transaction durable.
func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Rollback discards every write in the transaction.
// Safe to call more than once and after Commit.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// ObjectStore returns a handle to the named collection within this
// transaction. Returns ErrUnknownCollection if it is not registered.
func (t *Tx) ObjectStore(ctx context.Context, name string) (*ObjectStore, error) {
	if t.done {
		return nil, ErrTxDone
	}
	col, err := readCollection(ctx, t.tx, name)
	if err != nil {
		return nil, err
	}
	return &ObjectStore{tx: t, col: col}, nil
}

// Collections returns all registered descriptors, read inside the
// transaction.
func (t *Tx) Collections(ctx context.Context) ([]ir.Collection, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return readCollections(ctx, t.tx)
}

// Oplog returns a handle to the oplog within this transaction.
func (t *Tx) Oplog() *OplogStore {
	return &OplogStore{tx: t}
}

// q returns the live transaction, or ErrTxDone.
func (t *Tx) q() (querier, error) {
	if t.done {
		return nil, ErrTxDone
	}
	return t.tx, nil
}

// ObjectStore reads and writes the objects of one collection.
//
// It is the plain store: writes here do NOT produce oplog entries.
type ObjectStore struct {
	tx  *Tx
	col ir.Collection
}

// Descriptor returns the collection's name and key path.
func (o *ObjectStore) Descriptor() ir.Collection {
	return o.col
}

// OplogStore reads and appends oplog entries.
type OplogStore struct {
	tx *Tx
}
