package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/sidesync/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestCollections registers one collection of each key discipline:
// "todo_items" keyed by "id", "settings" keyed by ["scope","name"], and
// the keyless "kv".
func createTestCollections(t *testing.T, s *Store) {
	t.Helper()
	cols := []ir.Collection{
		{Name: "todo_items", KeyPath: ir.SingleKey{Path: "id"}},
		{Name: "settings", KeyPath: ir.CompoundKey{Paths: []string{"scope", "name"}}},
		{Name: "kv", KeyPath: ir.Keyless{}},
	}
	for _, col := range cols {
		if err := s.CreateCollection(context.Background(), col); err != nil {
			t.Fatalf("CreateCollection(%q) failed: %v", col.Name, err)
		}
	}
}

// beginTestTx opens a transaction that is rolled back at test cleanup
// unless the test commits it first.
func beginTestTx(t *testing.T, s *Store) *Tx {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	t.Cleanup(func() { tx.Rollback() })
	return tx
}

// objectStore returns the named collection handle inside tx.
func objectStore(t *testing.T, tx *Tx, name string) *ObjectStore {
	t.Helper()
	obj, err := tx.ObjectStore(context.Background(), name)
	if err != nil {
		t.Fatalf("ObjectStore(%q) failed: %v", name, err)
	}
	return obj
}

// view runs fn inside a transaction that is rolled back afterwards.
func view(t *testing.T, s *Store, fn func(*Tx)) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	defer tx.Rollback()
	fn(tx)
}

func countObjects(t *testing.T, tx *Tx, name string) int {
	t.Helper()
	n, err := objectStore(t, tx, name).Count(context.Background())
	if err != nil {
		t.Fatalf("Count(%q) failed: %v", name, err)
	}
	return n
}

func todo(id int64, text string) ir.Record {
	return ir.NewRecord(ir.F("id", ir.Int(id)), ir.F("text", ir.String(text)))
}
