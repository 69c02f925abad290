// Package harness runs YAML oplog scenarios against a fresh engine.
//
// A scenario declares collections, runs a sequence of transactions, and
// checks the resulting objects and oplog.
//
// # Scenario Format
//
//	name: todo_partial_put
//	description: "A partial put records only the supplied properties"
//	collections:
//	  - name: todo_items
//	    key_path: id
//	transactions:
//	  - steps:
//	      - op: add
//	        store: todo_items
//	        value: { id: 1, name: "buy cookies", done: false }
//	  - steps:
//	      - op: put
//	        store: todo_items
//	        value: { done: true }
//	        key: 1
//	  - steps:
//	      - op: delete
//	        store: todo_items
//	        key: 1
//	        expect_error: "delete is not supported"
//	    expect_aborted: true
//	assertions:
//	  - type: oplog_count
//	    count: 4
//	  - type: object
//	    store: todo_items
//	    key: 1
//	    expect: { id: 1, name: "buy cookies", done: true }
//
// Collections come from exactly one of: inline CUE (schema), a directory
// of .cue files (schema_dir), or a YAML list (collections). A transaction's
// stores default to every store its steps name; mode defaults to readwrite.
// YAML mappings keep their document order, which fixes the order of the
// oplog entries a record decomposes into.
//
// # Assertion Types
//
//   - oplog_count: the oplog holds exactly count entries
//   - oplog_contains: some entry matches every given field
//   - object: the stored object under key equals expect, or is absent
//   - store_count: a store holds exactly count objects
//   - monotonic: hlc_time strictly increases along the oplog
//
// # Deterministic Testing
//
// Every scenario runs in an in-memory SQLite database with the clock's wall
// time frozen at testutil.Epoch and node id testutil.NodeID, so the n-th
// oplog entry is stamped testutil.Timestamp(n). RunWithGolden compares the
// canonical JSON of the resulting oplog against testdata/golden.
package harness
