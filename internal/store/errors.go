package store

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sidesync/internal/ir"
)

// DuplicateKeyError is returned by Add when an object with the same key
// already exists in the collection.
type DuplicateKeyError struct {
	Collection string
	Key        ir.Value
}

func (e *DuplicateKeyError) Error() string {
	enc, err := ir.EncodeKey(e.Key)
	if err != nil {
		return fmt.Sprintf("collection %q: key already exists", e.Collection)
	}
	return fmt.Sprintf("collection %q: key %s already exists", e.Collection, enc)
}

// IsDuplicateKey returns true if err is or wraps a DuplicateKeyError.
func IsDuplicateKey(err error) bool {
	var e *DuplicateKeyError
	return errors.As(err, &e)
}

// ErrUnknownCollection is returned when a collection name is not registered.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrCollectionMismatch is returned when a collection is registered again
// with a different key path.
var ErrCollectionMismatch = errors.New("collection already registered with a different key path")

// ErrTxDone is returned by operations on a committed or rolled back Tx.
var ErrTxDone = errors.New("transaction already finished")

// isPrimaryKeyViolation reports whether err is SQLite's PRIMARY KEY
// constraint failure.
func isPrimaryKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
