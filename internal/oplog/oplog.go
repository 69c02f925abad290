// Package oplog turns a single logical write into field-level oplog entries.
//
// Decompose splits a written value into (prop, value) pairs; a Writer stamps
// each pair with a fresh clock reading. Neither touches storage: the caller
// persists the entries in the same transaction as the data write.
package oplog

import (
	"github.com/roach88/sidesync/internal/hlc"
	"github.com/roach88/sidesync/internal/ir"
)

// Pair is one property of a decomposed write. An empty Prop stands for the
// whole value.
type Pair struct {
	Prop  string
	Value ir.Value
}

// Decompose flattens value into the pairs that will become oplog entries.
//
// A record written to a keyed collection yields one pair per own property
// in insertion order. A scalar or array, or any value written to a keyless
// collection, yields a single pair with an empty Prop. An empty record
// yields no pairs.
func Decompose(kp ir.KeyPath, value ir.Value) []Pair {
	rec, isRecord := value.(ir.Record)
	if _, keyless := kp.(ir.Keyless); keyless || !isRecord {
		return []Pair{{Prop: "", Value: value}}
	}

	pairs := make([]Pair, 0, len(rec))
	for _, f := range rec {
		pairs = append(pairs, Pair{Prop: f.Name, Value: f.Value})
	}
	return pairs
}

// Clock issues strictly increasing timestamps. *hlc.Clock implements it.
type Clock interface {
	Issue() hlc.Timestamp
}

// Writer builds oplog entries for decomposed writes.
type Writer struct {
	clock Clock
}

// NewWriter creates a writer drawing timestamps from clock.
func NewWriter(clock Clock) *Writer {
	return &Writer{clock: clock}
}

// Materialize returns one entry per pair, in pair order, each with a fresh
// timestamp. Because the clock is strictly increasing, the entries'
// HLCTime values increase in the same order and exceed every entry
// materialized before them.
func (w *Writer) Materialize(store string, key ir.Value, pairs []Pair) []ir.OpLogEntry {
	entries := make([]ir.OpLogEntry, len(pairs))
	for i, p := range pairs {
		entries[i] = ir.OpLogEntry{
			HLCTime:   w.clock.Issue().String(),
			Store:     store,
			ObjectKey: key,
			Prop:      p.Prop,
			Value:     p.Value,
		}
	}
	return entries
}
