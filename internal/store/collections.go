package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/roach88/sidesync/internal/ir"
)

// CreateCollection registers a collection descriptor.
// Registering the same descriptor twice is a no-op; registering a name
// with a different key path returns ErrCollectionMismatch.
func (s *Store) CreateCollection(ctx context.Context, col ir.Collection) error {
	if err := col.Validate(); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create collection: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	existing, err := readCollection(ctx, tx, col.Name)
	switch {
	case err == nil:
		if !reflect.DeepEqual(existing, col) {
			return fmt.Errorf("create collection %q: %w (have %s, got %s)",
				col.Name, ErrCollectionMismatch, existing.KeyPath, col.KeyPath)
		}
		return nil
	case !errors.Is(err, ErrUnknownCollection):
		return fmt.Errorf("create collection: %w", err)
	}

	descriptor, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("create collection: marshal descriptor: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO collections (name, descriptor) VALUES (?, ?)
	`, col.Name, string(descriptor)); err != nil {
		return fmt.Errorf("create collection: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create collection: commit: %w", err)
	}
	return nil
}

// Collection returns the descriptor registered under name.
// Returns ErrUnknownCollection if there is none.
func (s *Store) Collection(ctx context.Context, name string) (ir.Collection, error) {
	return readCollection(ctx, s.db, name)
}

// Collections returns all registered descriptors ordered by name.
func (s *Store) Collections(ctx context.Context) ([]ir.Collection, error) {
	return readCollections(ctx, s.db)
}

func readCollection(ctx context.Context, q querier, name string) (ir.Collection, error) {
	var descriptor string
	err := q.QueryRowContext(ctx, `
		SELECT descriptor FROM collections WHERE name = ?
	`, name).Scan(&descriptor)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Collection{}, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	if err != nil {
		return ir.Collection{}, fmt.Errorf("read collection %q: %w", name, err)
	}

	var col ir.Collection
	if err := json.Unmarshal([]byte(descriptor), &col); err != nil {
		return ir.Collection{}, fmt.Errorf("read collection %q: %w", name, err)
	}
	return col, nil
}

func readCollections(ctx context.Context, q querier) ([]ir.Collection, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT descriptor FROM collections ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	cols := []ir.Collection{}
	for rows.Next() {
		var descriptor string
		if err := rows.Scan(&descriptor); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		var col ir.Collection
		if err := json.Unmarshal([]byte(descriptor), &col); err != nil {
			return nil, fmt.Errorf("decode collection: %w", err)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collections: %w", err)
	}
	return cols, nil
}
