package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sidesync/internal/ir"
	"github.com/roach88/sidesync/internal/keypath"
	"github.com/roach88/sidesync/internal/store"
	"github.com/roach88/sidesync/internal/testutil"
)

// write runs fn in a ReadWrite transaction over every test store.
func write(t *testing.T, e *Engine, fn func(ctx context.Context, txn *Txn) error) error {
	t.Helper()
	ctx := context.Background()
	return e.Run(ctx, allStores(), ReadWrite, func(txn *Txn) error {
		return fn(ctx, txn)
	})
}

func mustStore(t *testing.T, txn *Txn, name string) *StoreProxy {
	t.Helper()
	s, err := txn.Store(name)
	require.NoError(t, err)
	return s
}

func TestProxy_Add_SingleKey(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		key, err := mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "buy cookies", false), nil)
		assert.Equal(t, ir.Int(1), key)
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 3)

	want := []struct {
		prop  string
		value ir.Value
	}{
		{"id", ir.Int(1)},
		{"name", ir.String("buy cookies")},
		{"done", ir.Bool(false)},
	}
	for i, w := range want {
		assert.Equal(t, testutil.Timestamp(i), entries[i].HLCTime)
		assert.Equal(t, "todo_items", entries[i].Store)
		assert.Equal(t, ir.Int(1), entries[i].ObjectKey)
		assert.Equal(t, w.prop, entries[i].Prop)
		assert.True(t, ir.Equal(w.value, entries[i].Value), "entry %d value = %v", i, entries[i].Value)
	}

	got, ok := readObject(t, e, "todo_items", ir.Int(1))
	require.True(t, ok)
	assert.True(t, ir.Equal(todoItem(1, "buy cookies", false), got))
}

func TestProxy_Add_SingleKeyIgnoresExplicitKey(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		key, err := mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "a", false), ir.Int(99))
		assert.Equal(t, ir.Int(1), key)
		return err
	})
	require.NoError(t, err)

	_, ok := readObject(t, e, "todo_items", ir.Int(99))
	assert.False(t, ok)
	_, ok = readObject(t, e, "todo_items", ir.Int(1))
	assert.True(t, ok)
}

func TestProxy_Add_CompoundKeyFidelity(t *testing.T) {
	e := openTestEngine(t)
	rec := ir.NewRecord(
		ir.F("value", ir.String("dark")),
		ir.F("scope", ir.String("ui")),
		ir.F("name", ir.String("theme")),
	)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "settings").Add(ctx, rec, nil)
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 3)
	wantKey := ir.Array{ir.String("ui"), ir.String("theme")}
	for _, entry := range entries {
		assert.True(t, ir.Equal(wantKey, entry.ObjectKey), "objectKey = %v for prop %q", entry.ObjectKey, entry.Prop)
	}
	assert.Equal(t, []string{"value", "scope", "name"},
		[]string{entries[0].Prop, entries[1].Prop, entries[2].Prop})
}

func TestProxy_Add_CompoundKeyMissingProperty(t *testing.T) {
	e := openTestEngine(t)

	var addErr error
	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, addErr = mustStore(t, txn, "settings").Add(ctx,
			ir.NewRecord(ir.F("scope", ir.String("ui"))), nil)
		return addErr
	})

	assert.True(t, keypath.IsMissingKey(addErr))
	assert.True(t, IsAborted(err))
	assert.Empty(t, readOplog(t, e))
}

func TestProxy_Keyless_AddPutGet(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "kv").Add(ctx, ir.String("bar"), ir.String("foo"))
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 1)
	assert.Equal(t, ir.OpLogEntry{
		HLCTime:   testutil.Timestamp(0),
		Store:     "kv",
		ObjectKey: ir.String("foo"),
		Prop:      "",
		Value:     ir.String("bar"),
	}, entries[0])

	err = write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(8675309), ir.String("foo"))
		return err
	})
	require.NoError(t, err)

	entries = readOplog(t, e)
	require.Len(t, entries, 2)
	assert.Equal(t, ir.String("foo"), entries[1].ObjectKey)
	assert.Equal(t, "", entries[1].Prop)
	assert.Equal(t, ir.Int(8675309), entries[1].Value)

	got, ok := readObject(t, e, "kv", ir.String("foo"))
	require.True(t, ok)
	assert.Equal(t, ir.Int(8675309), got)
}

func TestProxy_Keyless_KeysKeepUnicodeForm(t *testing.T) {
	e := openTestEngine(t)
	decomposed := ir.String("e\u0301")
	composed := ir.String("\u00e9")

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		kv := mustStore(t, txn, "kv")
		key, err := kv.Add(ctx, ir.String("x"), decomposed)
		if err != nil {
			return err
		}
		assert.Equal(t, decomposed, key)
		_, err = kv.Add(ctx, ir.String("y"), composed)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, 2, countObjects(t, e, "kv"))
	x, ok := readObject(t, e, "kv", decomposed)
	require.True(t, ok)
	assert.Equal(t, ir.String("x"), x)
	y, ok := readObject(t, e, "kv", composed)
	require.True(t, ok)
	assert.Equal(t, ir.String("y"), y)

	entries := readOplog(t, e)
	require.Len(t, entries, 2)
	assert.Equal(t, decomposed, entries[0].ObjectKey)
	assert.Equal(t, composed, entries[1].ObjectKey)
}

func TestProxy_Keyless_RecordIsOneEntry(t *testing.T) {
	e := openTestEngine(t)
	rec := ir.NewRecord(ir.F("a", ir.Int(1)), ir.F("b", ir.Int(2)))

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "kv").Put(ctx, rec, ir.String("k"))
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].Prop)
	assert.True(t, ir.Equal(rec, entries[0].Value))
}

func TestProxy_MissingKeyParam_RollsBackEarlierWrites(t *testing.T) {
	e := openTestEngine(t)

	var addErr error
	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		if _, err := mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "a", false), nil); err != nil {
			return err
		}
		if _, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(1), ir.String("x")); err != nil {
			return err
		}
		_, addErr = mustStore(t, txn, "kv").Add(ctx, ir.String("foo"), nil)
		return addErr
	})

	require.Error(t, addErr)
	assert.Contains(t, addErr.Error(), `specify the "key" param`)
	require.True(t, IsAborted(err))
	assert.True(t, keypath.IsMissingKeyParam(err), "AbortError must unwrap to the cause")

	assert.Empty(t, readOplog(t, e))
	assert.Equal(t, 0, countObjects(t, e, "todo_items"))
	assert.Equal(t, 0, countObjects(t, e, "kv"))
}

func TestProxy_SwallowedErrorStillAborts(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		if _, err := mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "a", false), nil); err != nil {
			return err
		}
		// Error deliberately ignored.
		_, _ = mustStore(t, txn, "kv").Add(ctx, ir.String("foo"), nil)
		return nil
	})

	require.True(t, IsAborted(err))
	assert.True(t, keypath.IsMissingKeyParam(err))
	assert.Empty(t, readOplog(t, e))
	assert.Equal(t, 0, countObjects(t, e, "todo_items"))
}

func TestProxy_OperationsAfterFailureAreInactive(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		kv := mustStore(t, txn, "kv")
		_, _ = kv.Add(ctx, ir.String("foo"), nil)
		assert.Equal(t, TxnAborting, txn.State())

		_, err := kv.Put(ctx, ir.String("v"), ir.String("k"))
		assert.ErrorIs(t, err, ErrTransactionInactive)
		_, _, err = kv.Get(ctx, ir.String("k"))
		assert.ErrorIs(t, err, ErrTransactionInactive)
		_, err = txn.Store("todo_items")
		assert.ErrorIs(t, err, ErrTransactionInactive)
		_, err = txn.Oplog().GetAll(ctx)
		assert.ErrorIs(t, err, ErrTransactionInactive)
		return nil
	})

	// The abort cause is the first failure, not the later inactive errors.
	assert.True(t, keypath.IsMissingKeyParam(err))
}

func TestProxy_Add_DuplicateAborts(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "a", false), nil)
		return err
	})
	require.NoError(t, err)

	var addErr error
	err = write(t, e, func(ctx context.Context, txn *Txn) error {
		if _, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(1), ir.String("x")); err != nil {
			return err
		}
		_, addErr = mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "b", true), nil)
		return addErr
	})

	assert.True(t, store.IsDuplicateKey(addErr))
	assert.True(t, IsAborted(err))
	assert.True(t, store.IsDuplicateKey(err))

	// Only the first transaction's three entries survive.
	assert.Len(t, readOplog(t, e), 3)
	assert.Equal(t, 0, countObjects(t, e, "kv"))
	got, _ := readObject(t, e, "todo_items", ir.Int(1))
	assert.True(t, ir.Equal(todoItem(1, "a", false), got))
}

func TestProxy_Put_PartialDelta(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "todo_items").Add(ctx, todoItem(1, "buy cookies", false), nil)
		return err
	})
	require.NoError(t, err)

	err = write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "todo_items").Put(ctx,
			ir.NewRecord(ir.F("done", ir.Bool(true))), ir.Int(1))
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 4)
	last := entries[3]
	assert.Equal(t, "done", last.Prop)
	assert.Equal(t, ir.Int(1), last.ObjectKey)
	assert.Equal(t, ir.Bool(true), last.Value)

	got, ok := readObject(t, e, "todo_items", ir.Int(1))
	require.True(t, ok)
	assert.True(t, ir.Equal(todoItem(1, "buy cookies", true), got))

	// Merged record keeps its original property order.
	assert.Equal(t, []string{"id", "name", "done"}, got.(ir.Record).Names())
}

func TestProxy_Put_PartialCreatesRecordWithKey(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "settings").Put(ctx,
			ir.NewRecord(ir.F("value", ir.String("dark"))),
			ir.Array{ir.String("ui"), ir.String("theme")})
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 1)
	assert.Equal(t, "value", entries[0].Prop)

	got, ok := readObject(t, e, "settings", ir.Array{ir.String("ui"), ir.String("theme")})
	require.True(t, ok)
	assert.True(t, ir.Equal(ir.NewRecord(
		ir.F("value", ir.String("dark")),
		ir.F("scope", ir.String("ui")),
		ir.F("name", ir.String("theme")),
	), got))
}

func TestProxy_Put_NestedMergeIsShallow(t *testing.T) {
	e := openTestEngine(t)
	original := ir.NewRecord(
		ir.F("id", ir.Int(1)),
		ir.F("meta", ir.NewRecord(ir.F("a", ir.Int(1)), ir.F("b", ir.Int(2)))),
	)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		todos := mustStore(t, txn, "todo_items")
		if _, err := todos.Add(ctx, original, nil); err != nil {
			return err
		}
		_, err := todos.Put(ctx, ir.NewRecord(ir.F("meta", ir.NewRecord(ir.F("b", ir.Int(3))))), ir.Int(1))
		return err
	})
	require.NoError(t, err)

	got, _ := readObject(t, e, "todo_items", ir.Int(1))
	meta, _ := got.(ir.Record).Get("meta")
	assert.True(t, ir.Equal(ir.NewRecord(ir.F("b", ir.Int(3))), meta))
}

func TestProxy_Put_PartialKeyConflictAborts(t *testing.T) {
	e := openTestEngine(t)
	uiTheme := ir.Array{ir.String("ui"), ir.String("theme")}

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "settings").Add(ctx, ir.NewRecord(
			ir.F("scope", ir.String("ui")),
			ir.F("name", ir.String("theme")),
			ir.F("value", ir.String("light")),
		), nil)
		return err
	})
	require.NoError(t, err)

	var putErr error
	err = write(t, e, func(ctx context.Context, txn *Txn) error {
		_, putErr = mustStore(t, txn, "settings").Put(ctx, ir.NewRecord(
			ir.F("scope", ir.String("other")),
			ir.F("value", ir.String("dark")),
		), uiTheme)
		return putErr
	})
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.True(t, keypath.IsKeyConflict(putErr))

	assert.Len(t, readOplog(t, e), 3)
	got, ok := readObject(t, e, "settings", uiTheme)
	require.True(t, ok)
	scope, _ := got.(ir.Record).Get("scope")
	assert.Equal(t, ir.String("ui"), scope)

	// A partial record repeating the right key component is accepted.
	err = write(t, e, func(ctx context.Context, txn *Txn) error {
		_, err := mustStore(t, txn, "settings").Put(ctx, ir.NewRecord(
			ir.F("scope", ir.String("ui")),
			ir.F("value", ir.String("dark")),
		), uiTheme)
		return err
	})
	require.NoError(t, err)

	entries := readOplog(t, e)
	require.Len(t, entries, 5)
	assert.Equal(t, "scope", entries[3].Prop)
	assert.Equal(t, "value", entries[4].Prop)

	got, _ = readObject(t, e, "settings", uiTheme)
	assert.True(t, ir.Equal(ir.NewRecord(
		ir.F("scope", ir.String("ui")),
		ir.F("name", ir.String("theme")),
		ir.F("value", ir.String("dark")),
	), got))
}

func TestProxy_Put_PartialKeepsNestedKey(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.RegisterCollections(ctx, ir.Collection{Name: "docs", KeyPath: ir.SingleKey{Path: "meta.id"}}))

	docs := func(fn func(s *StoreProxy) error) error {
		return e.Run(ctx, []string{"docs"}, ReadWrite, func(txn *Txn) error {
			return fn(mustStore(t, txn, "docs"))
		})
	}

	err := docs(func(s *StoreProxy) error {
		_, err := s.Add(ctx, ir.NewRecord(
			ir.F("meta", ir.NewRecord(ir.F("id", ir.Int(1)), ir.F("title", ir.String("a")))),
			ir.F("body", ir.String("text")),
		), nil)
		return err
	})
	require.NoError(t, err)

	err = docs(func(s *StoreProxy) error {
		_, err := s.Put(ctx, ir.NewRecord(ir.F("meta", ir.NewRecord(ir.F("title", ir.String("b"))))), ir.Int(1))
		return err
	})
	require.NoError(t, err)

	got, ok := readObject(t, e, "docs", ir.Int(1))
	require.True(t, ok)
	id, ok := ir.Lookup(got, "meta.id")
	require.True(t, ok)
	assert.Equal(t, ir.Int(1), id)
	title, _ := ir.Lookup(got, "meta.title")
	assert.Equal(t, ir.String("b"), title)

	entries := readOplog(t, e)
	last := entries[len(entries)-1]
	assert.Equal(t, "meta", last.Prop)
	assert.True(t, ir.Equal(ir.NewRecord(ir.F("title", ir.String("b")), ir.F("id", ir.Int(1))), last.Value))

	// The stored record can be written back as a full put.
	err = docs(func(s *StoreProxy) error {
		_, err := s.Put(ctx, got, nil)
		return err
	})
	require.NoError(t, err)
}

func TestProxy_Put_FullReplacement(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		todos := mustStore(t, txn, "todo_items")
		if _, err := todos.Add(ctx, todoItem(1, "a", false), nil); err != nil {
			return err
		}
		_, err := todos.Put(ctx, ir.NewRecord(ir.F("id", ir.Int(1)), ir.F("name", ir.String("b"))), nil)
		return err
	})
	require.NoError(t, err)

	got, _ := readObject(t, e, "todo_items", ir.Int(1))
	assert.True(t, ir.Equal(ir.NewRecord(ir.F("id", ir.Int(1)), ir.F("name", ir.String("b"))), got))
	assert.Len(t, readOplog(t, e), 5)
}

func TestProxy_Put_ValueKeyWinsOverExplicitKey(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		key, err := mustStore(t, txn, "todo_items").Put(ctx, todoItem(1, "a", false), ir.Int(2))
		assert.Equal(t, ir.Int(1), key)
		return err
	})
	require.NoError(t, err)

	_, ok := readObject(t, e, "todo_items", ir.Int(2))
	assert.False(t, ok)
}

func TestProxy_Put_PartialWithoutKey(t *testing.T) {
	e := openTestEngine(t)

	var putErr error
	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, putErr = mustStore(t, txn, "todo_items").Put(ctx, ir.NewRecord(ir.F("done", ir.Bool(true))), nil)
		return putErr
	})

	assert.True(t, keypath.IsMissingKey(putErr))
	assert.True(t, IsAborted(err))
}

func TestProxy_NotARecordOnKeyedStore(t *testing.T) {
	e := openTestEngine(t)

	var putErr error
	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, putErr = mustStore(t, txn, "todo_items").Put(ctx, ir.String("x"), ir.Int(1))
		return putErr
	})

	assert.True(t, IsNotARecord(putErr))
	assert.True(t, IsAborted(err))
}

func TestProxy_InvalidKey(t *testing.T) {
	e := openTestEngine(t)

	var addErr error
	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		_, addErr = mustStore(t, txn, "todo_items").Add(ctx,
			ir.NewRecord(ir.F("id", ir.Bool(true))), nil)
		return addErr
	})

	assert.True(t, keypath.IsInvalidKey(addErr))
	assert.True(t, IsAborted(err))
}

func TestProxy_Delete_Unsupported(t *testing.T) {
	e := openTestEngine(t)

	var delErr error
	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		delErr = mustStore(t, txn, "kv").Delete(ctx, ir.String("k"))
		return nil
	})

	assert.ErrorIs(t, delErr, ErrDeleteUnsupported)
	assert.ErrorIs(t, err, ErrDeleteUnsupported)
}

func TestProxy_ReadOnlyRejectsWrites(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	var putErr error
	err := e.Run(ctx, []string{"kv"}, ReadOnly, func(txn *Txn) error {
		_, putErr = mustStore(t, txn, "kv").Put(ctx, ir.Int(1), ir.String("k"))
		return nil
	})

	assert.True(t, IsReadOnly(putErr))
	assert.True(t, IsAborted(err))
	assert.Empty(t, readOplog(t, e))
}

func TestProxy_StoreOutsideScope(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	var storeErr error
	err := e.Run(ctx, []string{"kv"}, ReadWrite, func(txn *Txn) error {
		_, storeErr = txn.Store("todo_items")
		return nil
	})

	assert.True(t, IsUnknownStore(storeErr))
	assert.True(t, IsAborted(err))
}

func TestProxy_ReadsPassThrough(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		todos := mustStore(t, txn, "todo_items")
		for _, id := range []int64{3, 1, 2} {
			if _, err := todos.Add(ctx, todoItem(id, "t", false), nil); err != nil {
				return err
			}
		}

		keys, err := todos.GetAllKeys(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)}, keys)

		values, err := todos.GetAll(ctx)
		require.NoError(t, err)
		require.Len(t, values, 3)
		assert.True(t, ir.Equal(todoItem(1, "t", false), values[0]))

		n, err := todos.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		// Reads add nothing to the oplog.
		count, err := txn.Oplog().Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 9, count)
		return nil
	})
	require.NoError(t, err)
}

func TestProxy_MonotonicWithinAndAcrossWrites(t *testing.T) {
	e := openTestEngine(t)

	for i := int64(0); i < 5; i++ {
		err := write(t, e, func(ctx context.Context, txn *Txn) error {
			if _, err := mustStore(t, txn, "todo_items").Put(ctx, todoItem(i, "t", i%2 == 0), nil); err != nil {
				return err
			}
			_, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(i), ir.String("counter"))
			return err
		})
		require.NoError(t, err)
	}

	entries := readOplog(t, e)
	require.Len(t, entries, 20)
	for i, entry := range entries {
		assert.Equal(t, testutil.Timestamp(i), entry.HLCTime)
	}
}

func TestTxn_AbortIdempotent(t *testing.T) {
	e := openTestEngine(t)

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		if _, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(1), ir.String("k")); err != nil {
			return err
		}
		txn.Abort()
		txn.Abort()
		assert.Equal(t, TxnAborting, txn.State())
		return nil
	})

	assert.ErrorIs(t, err, ErrAbortedByCaller)
	assert.Equal(t, 0, countObjects(t, e, "kv"))
	assert.Empty(t, readOplog(t, e))
}

func TestTxn_BodyErrorAborts(t *testing.T) {
	e := openTestEngine(t)
	bodyErr := errors.New("application failure")

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		if _, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(1), ir.String("k")); err != nil {
			return err
		}
		return bodyErr
	})

	assert.ErrorIs(t, err, bodyErr)
	assert.True(t, IsAborted(err))
	assert.Equal(t, 0, countObjects(t, e, "kv"))
}

func TestTxn_PanicAbortsAndRepanics(t *testing.T) {
	e := openTestEngine(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = write(t, e, func(ctx context.Context, txn *Txn) error {
			if _, err := mustStore(t, txn, "kv").Put(ctx, ir.Int(1), ir.String("k")); err != nil {
				return err
			}
			panic("boom")
		})
	})

	assert.Equal(t, 0, countObjects(t, e, "kv"))
	assert.Empty(t, readOplog(t, e))
}

func TestTxn_StateAfterCommit(t *testing.T) {
	e := openTestEngine(t)
	var held *Txn

	err := write(t, e, func(ctx context.Context, txn *Txn) error {
		held = txn
		assert.Equal(t, TxnOpen, txn.State())
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, TxnCommitted, held.State())
	_, err = held.Store("kv")
	assert.ErrorIs(t, err, ErrTransactionInactive)
}
