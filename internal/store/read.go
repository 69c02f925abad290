package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sidesync/internal/ir"
)

// Get returns the object stored under key, or ok=false if there is none.
func (o *ObjectStore) Get(ctx context.Context, key ir.Value) (value ir.Value, ok bool, err error) {
	q, err := o.tx.q()
	if err != nil {
		return nil, false, err
	}
	encKey, err := ir.EncodeKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("get from %q: %w", o.col.Name, err)
	}

	var valueJSON string
	err = q.QueryRowContext(ctx, `
		SELECT value FROM objects WHERE collection = ? AND key = ?
	`, o.col.Name, encKey).Scan(&valueJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get from %q: %w", o.col.Name, err)
	}

	value, err = unmarshalValue(valueJSON)
	if err != nil {
		return nil, false, fmt.Errorf("get from %q: %w", o.col.Name, err)
	}
	return value, true, nil
}

// KeyValue is one stored object together with its key.
type KeyValue struct {
	Key   ir.Value
	Value ir.Value
}

// Scan returns every object in the collection, ordered by key
// (see ir.CompareKeys). Returns an empty slice (not nil) when empty.
func (o *ObjectStore) Scan(ctx context.Context) ([]KeyValue, error) {
	q, err := o.tx.q()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT key, value FROM objects WHERE collection = ?
	`, o.col.Name)
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", o.col.Name, err)
	}
	defer rows.Close()

	kvs := []KeyValue{}
	for rows.Next() {
		var keyJSON, valueJSON string
		if err := rows.Scan(&keyJSON, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan %q: %w", o.col.Name, err)
		}
		key, err := ir.DecodeKey(keyJSON)
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", o.col.Name, err)
		}
		value, err := unmarshalValue(valueJSON)
		if err != nil {
			return nil, fmt.Errorf("scan %q: %w", o.col.Name, err)
		}
		kvs = append(kvs, KeyValue{Key: key, Value: value})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %q: %w", o.col.Name, err)
	}

	// Canonical key text does not sort in key order, so sort here.
	slices.SortFunc(kvs, func(a, b KeyValue) int {
		return ir.CompareKeys(a.Key, b.Key)
	})
	return kvs, nil
}

// GetAll returns every object in the collection, ordered by key.
func (o *ObjectStore) GetAll(ctx context.Context) ([]ir.Value, error) {
	kvs, err := o.Scan(ctx)
	if err != nil {
		return nil, err
	}
	values := make([]ir.Value, len(kvs))
	for i, kv := range kvs {
		values[i] = kv.Value
	}
	return values, nil
}

// GetAllKeys returns every key in the collection, in order.
func (o *ObjectStore) GetAllKeys(ctx context.Context) ([]ir.Value, error) {
	kvs, err := o.Scan(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]ir.Value, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys, nil
}

// Count returns the number of objects in the collection.
func (o *ObjectStore) Count(ctx context.Context) (int, error) {
	q, err := o.tx.q()
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM objects WHERE collection = ?
	`, o.col.Name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %q: %w", o.col.Name, err)
	}
	return n, nil
}

// Get returns the oplog entry with the given timestamp, or ok=false.
func (l *OplogStore) Get(ctx context.Context, hlcTime string) (entry ir.OpLogEntry, ok bool, err error) {
	q, err := l.tx.q()
	if err != nil {
		return ir.OpLogEntry{}, false, err
	}
	row := q.QueryRowContext(ctx, `
		SELECT hlc_time, store, object_key, prop, value FROM oplog WHERE hlc_time = ?
	`, hlcTime)
	entry, err = scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.OpLogEntry{}, false, nil
	}
	if err != nil {
		return ir.OpLogEntry{}, false, err
	}
	return entry, true, nil
}

// GetAll returns every oplog entry in hlc_time order.
// Returns an empty slice (not nil) when the log is empty.
func (l *OplogStore) GetAll(ctx context.Context) ([]ir.OpLogEntry, error) {
	return l.GetAllAfter(ctx, "")
}

// GetAllAfter returns entries with hlc_time strictly greater than after,
// in hlc_time order. This is the slice of the log a peer that has seen
// everything up to after still needs.
func (l *OplogStore) GetAllAfter(ctx context.Context, after string) ([]ir.OpLogEntry, error) {
	q, err := l.tx.q()
	if err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT hlc_time, store, object_key, prop, value
		FROM oplog
		WHERE hlc_time > ?
		ORDER BY hlc_time COLLATE BINARY ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query oplog: %w", err)
	}
	defer rows.Close()

	entries := []ir.OpLogEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate oplog: %w", err)
	}
	return entries, nil
}

// Count returns the number of oplog entries.
func (l *OplogStore) Count(ctx context.Context) (int, error) {
	q, err := l.tx.q()
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM oplog`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count oplog: %w", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEntry scans one oplog row.
func scanEntry(row rowScanner) (ir.OpLogEntry, error) {
	var e ir.OpLogEntry
	var keyJSON, valueJSON string
	if err := row.Scan(&e.HLCTime, &e.Store, &keyJSON, &e.Prop, &valueJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.OpLogEntry{}, err
		}
		return ir.OpLogEntry{}, fmt.Errorf("scan oplog entry: %w", err)
	}

	key, err := ir.DecodeKey(keyJSON)
	if err != nil {
		return ir.OpLogEntry{}, fmt.Errorf("scan oplog entry %s: %w", e.HLCTime, err)
	}
	value, err := unmarshalValue(valueJSON)
	if err != nil {
		return ir.OpLogEntry{}, fmt.Errorf("scan oplog entry %s: %w", e.HLCTime, err)
	}
	e.ObjectKey = key
	e.Value = value
	return e, nil
}
