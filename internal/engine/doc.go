// Package engine records application writes as field-level oplog entries.
//
// Applications write through a StoreProxy obtained from a transaction:
//
//	err := e.Run(ctx, []string{"todo_items"}, engine.ReadWrite, func(txn *engine.Txn) error {
//		todos, err := txn.Store("todo_items")
//		if err != nil {
//			return err
//		}
//		_, err = todos.Add(ctx, todo, nil)
//		return err
//	})
//
// Each write resolves the object key from the collection's key path,
// splits the value into properties, and stamps one oplog entry per
// property with a fresh hybrid logical clock timestamp. The object and its
// entries are written in the same SQLite transaction.
//
// ATOMIC ABORT:
// The first failed write (missing key, duplicate key, read-only violation,
// store error) rolls the whole transaction back and is recorded on the
// Txn. Run then returns an *AbortError even if the body ignored the
// failure, so neither data nor oplog entries from an aborted transaction
// are ever visible.
//
// MONOTONICITY:
// All transactions share one clock whose Issue is mutex-guarded, and the
// clock resumes after the newest persisted entry on Open. Every entry's
// hlc_time is therefore strictly greater than all entries before it.
package engine
