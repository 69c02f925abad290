package store

import (
	"context"
	"fmt"

	"github.com/roach88/sidesync/internal/ir"
)

// Add inserts a new object under key.
// Returns *DuplicateKeyError if the key already exists; the caller is
// expected to abort the transaction.
func (o *ObjectStore) Add(ctx context.Context, key, value ir.Value) error {
	q, err := o.tx.q()
	if err != nil {
		return err
	}
	encKey, err := ir.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("add to %q: %w", o.col.Name, err)
	}
	valueJSON, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("add to %q: %w", o.col.Name, err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO objects (collection, key, value) VALUES (?, ?, ?)
	`, o.col.Name, encKey, valueJSON)
	if isPrimaryKeyViolation(err) {
		return &DuplicateKeyError{Collection: o.col.Name, Key: key}
	}
	if err != nil {
		return fmt.Errorf("add to %q: %w", o.col.Name, err)
	}
	return nil
}

// Put inserts or replaces the object under key.
func (o *ObjectStore) Put(ctx context.Context, key, value ir.Value) error {
	q, err := o.tx.q()
	if err != nil {
		return err
	}
	encKey, err := ir.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("put to %q: %w", o.col.Name, err)
	}
	valueJSON, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("put to %q: %w", o.col.Name, err)
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO objects (collection, key, value) VALUES (?, ?, ?)
		ON CONFLICT(collection, key) DO UPDATE SET value = excluded.value
	`, o.col.Name, encKey, valueJSON); err != nil {
		return fmt.Errorf("put to %q: %w", o.col.Name, err)
	}
	return nil
}

// Delete removes the object under key. Deleting a missing key is a no-op.
func (o *ObjectStore) Delete(ctx context.Context, key ir.Value) error {
	q, err := o.tx.q()
	if err != nil {
		return err
	}
	encKey, err := ir.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("delete from %q: %w", o.col.Name, err)
	}
	if _, err := q.ExecContext(ctx, `
		DELETE FROM objects WHERE collection = ? AND key = ?
	`, o.col.Name, encKey); err != nil {
		return fmt.Errorf("delete from %q: %w", o.col.Name, err)
	}
	return nil
}

// Append writes oplog entries. Entries are never updated; a second entry
// with an existing hlc_time is an error.
func (l *OplogStore) Append(ctx context.Context, entries ...ir.OpLogEntry) error {
	q, err := l.tx.q()
	if err != nil {
		return err
	}
	for _, e := range entries {
		keyJSON, err := ir.EncodeKey(e.ObjectKey)
		if err != nil {
			return fmt.Errorf("append oplog entry %s: %w", e.HLCTime, err)
		}
		valueJSON, err := marshalValue(e.Value)
		if err != nil {
			return fmt.Errorf("append oplog entry %s: %w", e.HLCTime, err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO oplog (hlc_time, store, object_key, prop, value)
			VALUES (?, ?, ?, ?, ?)
		`, e.HLCTime, e.Store, keyJSON, e.Prop, valueJSON); err != nil {
			return fmt.Errorf("append oplog entry %s: %w", e.HLCTime, err)
		}
	}
	return nil
}
