package engine

import (
	"context"
	"fmt"

	"github.com/roach88/sidesync/internal/ir"
	"github.com/roach88/sidesync/internal/keypath"
	"github.com/roach88/sidesync/internal/oplog"
	"github.com/roach88/sidesync/internal/store"
)

// StoreProxy is a collection handle that records every write in the oplog.
//
// Writes resolve the key, decompose the value into properties, stamp one
// oplog entry per property, write the object, and append the entries, all
// inside the transaction. A failed write returns its error and aborts the
// transaction; no entry is appended for it. Reads pass straight through.
type StoreProxy struct {
	txn *Txn
	obj *store.ObjectStore
}

// Name returns the collection name.
func (p *StoreProxy) Name() string {
	return p.obj.Descriptor().Name
}

// KeyPath returns the collection's key discipline.
func (p *StoreProxy) KeyPath() ir.KeyPath {
	return p.obj.Descriptor().KeyPath
}

// Add inserts a new object and returns its key.
//
// Stores with a key path take the key from value, which must be a record
// carrying every key property; key is ignored. Keyless stores require key.
// Adding an existing key fails with *store.DuplicateKeyError.
func (p *StoreProxy) Add(ctx context.Context, value ir.Value, key ir.Value) (ir.Value, error) {
	if err := p.beginWrite("add"); err != nil {
		return nil, err
	}
	kp := p.KeyPath()

	explicit := key
	if !isKeyless(kp) {
		if _, ok := value.(ir.Record); !ok {
			return nil, p.txn.fail(NewNotARecordError(p.Name(), kp.String()))
		}
		explicit = nil
	}

	resolved, err := keypath.Resolve(kp, value, explicit)
	if err != nil {
		return nil, p.txn.fail(fmt.Errorf("add to %q: %w", p.Name(), err))
	}

	pairs := oplog.Decompose(kp, value)
	entries := p.txn.engine.writer.Materialize(p.Name(), resolved, pairs)

	if err := p.obj.Add(ctx, resolved, value); err != nil {
		return nil, p.txn.fail(err)
	}
	if err := p.txn.tx.Oplog().Append(ctx, entries...); err != nil {
		return nil, p.txn.fail(err)
	}

	p.logWrite("add", resolved, len(entries))
	return resolved, nil
}

// Put inserts or updates an object and returns its key.
//
// When value carries the key (or the store is keyless and key is given),
// the stored object is replaced by value. When a store with a key path
// gets a record without its key properties plus an explicit key, the
// record is a partial update: it is shallow-merged into the existing
// object (or becomes a new object with the key properties filled in) and
// only the supplied properties are recorded in the oplog. A partial record
// that sets a key property to another value fails with
// *keypath.KeyConflictError.
func (p *StoreProxy) Put(ctx context.Context, value ir.Value, key ir.Value) (ir.Value, error) {
	if err := p.beginWrite("put"); err != nil {
		return nil, err
	}
	kp := p.KeyPath()

	rec, isRecord := value.(ir.Record)
	if !isKeyless(kp) && !isRecord {
		return nil, p.txn.fail(NewNotARecordError(p.Name(), kp.String()))
	}
	partial := !isKeyless(kp) && !keypath.Carries(kp, value)

	resolved, err := keypath.Resolve(kp, value, key)
	if err != nil {
		return nil, p.txn.fail(fmt.Errorf("put to %q: %w", p.Name(), err))
	}
	if partial {
		if rec, err = keypath.Align(kp, rec, resolved); err != nil {
			return nil, p.txn.fail(fmt.Errorf("put to %q: %w", p.Name(), err))
		}
		value = rec
	}

	pairs := oplog.Decompose(kp, value)
	entries := p.txn.engine.writer.Materialize(p.Name(), resolved, pairs)

	stored := value
	if partial {
		stored, err = p.merged(ctx, resolved, rec)
		if err != nil {
			return nil, p.txn.fail(err)
		}
	}

	if err := p.obj.Put(ctx, resolved, stored); err != nil {
		return nil, p.txn.fail(err)
	}
	if err := p.txn.tx.Oplog().Append(ctx, entries...); err != nil {
		return nil, p.txn.fail(err)
	}

	p.logWrite("put", resolved, len(entries))
	return resolved, nil
}

// merged returns the object a partial put stores under key. The key
// properties always hold key, whatever the merge replaced.
func (p *StoreProxy) merged(ctx context.Context, key ir.Value, delta ir.Record) (ir.Value, error) {
	existing, ok, err := p.obj.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("put to %q: read existing: %w", p.Name(), err)
	}
	next := delta
	if prev, isRecord := existing.(ir.Record); ok && isRecord {
		next = prev.Merge(delta)
	}
	return keypath.Inject(p.KeyPath(), next, key), nil
}

// Delete always fails with ErrDeleteUnsupported and aborts the transaction.
func (p *StoreProxy) Delete(ctx context.Context, key ir.Value) error {
	if err := p.beginWrite("delete"); err != nil {
		return err
	}
	return p.txn.fail(fmt.Errorf("delete from %q: %w", p.Name(), ErrDeleteUnsupported))
}

// Get returns the object under key, or ok=false.
func (p *StoreProxy) Get(ctx context.Context, key ir.Value) (ir.Value, bool, error) {
	if err := p.txn.active(); err != nil {
		return nil, false, err
	}
	return p.obj.Get(ctx, key)
}

// GetAll returns every object ordered by key.
func (p *StoreProxy) GetAll(ctx context.Context) ([]ir.Value, error) {
	if err := p.txn.active(); err != nil {
		return nil, err
	}
	return p.obj.GetAll(ctx)
}

// GetAllKeys returns every key in order.
func (p *StoreProxy) GetAllKeys(ctx context.Context) ([]ir.Value, error) {
	if err := p.txn.active(); err != nil {
		return nil, err
	}
	return p.obj.GetAllKeys(ctx)
}

// Count returns the number of objects.
func (p *StoreProxy) Count(ctx context.Context) (int, error) {
	if err := p.txn.active(); err != nil {
		return 0, err
	}
	return p.obj.Count(ctx)
}

// beginWrite checks that the transaction accepts writes. A read-only
// violation fails the transaction like any other write error.
func (p *StoreProxy) beginWrite(op string) error {
	if err := p.txn.active(); err != nil {
		return err
	}
	if p.txn.mode != ReadWrite {
		return p.txn.fail(NewReadOnlyError(p.Name(), op))
	}
	return nil
}

func (p *StoreProxy) logWrite(op string, key ir.Value, entries int) {
	p.txn.recordWrite(entries)
	if enc, err := ir.EncodeKey(key); err == nil {
		p.txn.engine.logger.Debug("write", "op", op, "store", p.Name(), "key", enc, "oplog_entries", entries)
	}
}

func isKeyless(kp ir.KeyPath) bool {
	_, ok := kp.(ir.Keyless)
	return ok
}
