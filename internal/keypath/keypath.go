// Package keypath derives object keys from written values according to a
// collection's key discipline.
//
// Everything here is a pure function over its inputs; nothing touches
// storage. Callers run Resolve before any write so that a bad key fails the
// call before the store is mutated.
package keypath

import (
	"fmt"
	"strings"

	"github.com/roach88/sidesync/internal/ir"
)

// Resolve computes the canonical key for a write.
//
//   - SingleKey: the value at the key path. When the value does not carry
//     it, explicitKey is used (the partial-update shape of put).
//   - CompoundKey: the array of values at each key path, in declared order,
//     or explicitKey (which must be an array of matching length).
//   - Keyless: explicitKey, which is required.
//
// A key carried by the value always wins over explicitKey. Pass a nil
// explicitKey when none was supplied.
func Resolve(kp ir.KeyPath, value ir.Value, explicitKey ir.Value) (ir.Value, error) {
	var key ir.Value
	switch kp := kp.(type) {
	case ir.SingleKey:
		if v, ok := ir.Lookup(value, kp.Path); ok && isRecord(value) {
			key = v
			break
		}
		if explicitKey == nil {
			return nil, &MissingKeyError{Paths: []string{kp.Path}, Missing: kp.Path}
		}
		key = explicitKey

	case ir.CompoundKey:
		tuple, missing := extractTuple(kp.Paths, value)
		if missing == "" {
			key = tuple
			break
		}
		if explicitKey == nil {
			return nil, &MissingKeyError{Paths: kp.Paths, Missing: missing}
		}
		arr, ok := explicitKey.(ir.Array)
		if !ok || len(arr) != len(kp.Paths) {
			return nil, &InvalidKeyError{
				Key:    explicitKey,
				Reason: fmt.Sprintf("compound key path %s needs an array of %d values", kp, len(kp.Paths)),
			}
		}
		key = explicitKey

	case ir.Keyless:
		if explicitKey == nil {
			return nil, &MissingKeyParamError{}
		}
		if s, ok := explicitKey.(ir.String); ok && s == "" {
			return nil, &MissingKeyParamError{}
		}
		key = explicitKey

	default:
		return nil, fmt.Errorf("resolve key: unknown key path %T", kp)
	}

	if err := ir.ValidateKey(key); err != nil {
		return nil, &InvalidKeyError{Key: key, Reason: err.Error()}
	}
	return key, nil
}

// extractTuple reads each path from value. It returns the first path that
// is absent, or "" when all are present.
func extractTuple(paths []string, value ir.Value) (ir.Array, string) {
	if !isRecord(value) {
		return nil, paths[0]
	}
	tuple := make(ir.Array, len(paths))
	for i, p := range paths {
		v, ok := ir.Lookup(value, p)
		if !ok {
			return nil, p
		}
		tuple[i] = v
	}
	return tuple, ""
}

// Carries reports whether value embeds every property of the key path, so
// that the key can be derived from the value alone.
func Carries(kp ir.KeyPath, value ir.Value) bool {
	switch kp := kp.(type) {
	case ir.SingleKey:
		_, missing := extractTuple([]string{kp.Path}, value)
		return missing == ""
	case ir.CompoundKey:
		_, missing := extractTuple(kp.Paths, value)
		return missing == ""
	default:
		return false
	}
}

// Inject writes the components of key into rec at the key path, so that a
// record created from a partial value still carries its own key.
// Keyless paths return rec unchanged.
func Inject(kp ir.KeyPath, rec ir.Record, key ir.Value) ir.Record {
	paths, parts := components(kp, key)
	for i, p := range paths {
		rec = ir.Assign(rec, p, parts[i])
	}
	return rec
}

// Align checks a partial record against the key it is written under.
//
// A key property the record sets must equal the matching key component,
// otherwise Align returns a *KeyConflictError. When a dotted key path
// points into a nested record the caller supplied ("meta" for "meta.id"),
// the key component is filled in there. Top-level key properties the
// record omits stay omitted.
func Align(kp ir.KeyPath, rec ir.Record, key ir.Value) (ir.Record, error) {
	paths, parts := components(kp, key)
	for i, p := range paths {
		if got, ok := ir.Lookup(rec, p); ok {
			if !ir.Equal(got, parts[i]) {
				return nil, &KeyConflictError{Path: p, Got: got, Want: parts[i]}
			}
			continue
		}
		head, _, nested := strings.Cut(p, ".")
		if !nested {
			continue
		}
		parent, ok := rec.Get(head)
		if !ok {
			continue
		}
		if !isRecord(parent) {
			return nil, &KeyConflictError{Path: p, Got: parent, Want: parts[i]}
		}
		rec = ir.Assign(rec, p, parts[i])
	}
	return rec, nil
}

// components pairs each key path with its part of key.
func components(kp ir.KeyPath, key ir.Value) ([]string, []ir.Value) {
	switch kp := kp.(type) {
	case ir.SingleKey:
		return []string{kp.Path}, []ir.Value{key}
	case ir.CompoundKey:
		arr, ok := key.(ir.Array)
		if !ok || len(arr) != len(kp.Paths) {
			return nil, nil
		}
		return kp.Paths, arr
	default:
		return nil, nil
	}
}

func isRecord(v ir.Value) bool {
	_, ok := v.(ir.Record)
	return ok
}
