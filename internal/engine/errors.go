package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents a misuse of the engine detected while running a
// transaction.
//
// Runtime errors include:
//   - Unknown store: Name is not registered, or not in the transaction's scope
//   - Read only: Write attempted in a ReadOnly transaction
//   - Not a record: Non-record value written to a keyed store
//
// Like every other write failure, a RuntimeError raised by a proxied write
// aborts the transaction.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Store names the affected collection, if any.
	Store string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownStore indicates a store name that cannot be used.
	ErrCodeUnknownStore RuntimeErrorCode = "UNKNOWN_STORE"

	// ErrCodeReadOnly indicates a write in a read-only transaction.
	ErrCodeReadOnly RuntimeErrorCode = "READ_ONLY"

	// ErrCodeNotARecord indicates a scalar or array written to a keyed store.
	ErrCodeNotARecord RuntimeErrorCode = "NOT_A_RECORD"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Store != "" {
		return fmt.Sprintf("%s: %s (store=%s)", e.Code, e.Message, e.Store)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func isCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownStore returns true if err is an unknown store error.
// Uses errors.As to handle wrapped errors.
func IsUnknownStore(err error) bool {
	return isCode(err, ErrCodeUnknownStore)
}

// IsReadOnly returns true if err is a read-only violation.
func IsReadOnly(err error) bool {
	return isCode(err, ErrCodeReadOnly)
}

// IsNotARecord returns true if err reports a non-record write to a keyed store.
func IsNotARecord(err error) bool {
	return isCode(err, ErrCodeNotARecord)
}

// NewUnknownStoreError creates a RuntimeError for an unusable store name.
func NewUnknownStoreError(store, why string) *RuntimeError {
	return &RuntimeError{Code: ErrCodeUnknownStore, Message: why, Store: store}
}

// NewReadOnlyError creates a RuntimeError for a write in a ReadOnly transaction.
func NewReadOnlyError(store, op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeReadOnly,
		Message: fmt.Sprintf("%s in a read-only transaction", op),
		Store:   store,
	}
}

// NewNotARecordError creates a RuntimeError for a non-record value written
// to a store with a key path.
func NewNotARecordError(store, keyPath string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNotARecord,
		Message: fmt.Sprintf("store has key path %s: value must be a record", keyPath),
		Store:   store,
	}
}

// ErrTransactionInactive is returned by every operation on a transaction
// that has committed, aborted, or already failed.
var ErrTransactionInactive = errors.New("transaction is not active")

// ErrDeleteUnsupported is returned by StoreProxy.Delete. Deletions are not
// representable as property writes; mark records deleted with a property
// instead.
var ErrDeleteUnsupported = errors.New("delete is not supported: set a deletion property instead")

// ErrAbortedByCaller is the abort cause when the body calls Txn.Abort.
var ErrAbortedByCaller = errors.New("aborted by caller")

// AbortError is returned by Run when the transaction did not commit.
// Nothing it wrote, data or oplog, is visible afterward.
type AbortError struct {
	// Cause is the first failure seen by the transaction.
	Cause error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("transaction was aborted: %v", e.Cause)
}

func (e *AbortError) Unwrap() error {
	return e.Cause
}

// IsAborted returns true if err is or wraps an AbortError.
func IsAborted(err error) bool {
	var ae *AbortError
	return errors.As(err, &ae)
}
