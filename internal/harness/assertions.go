package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/sidesync/internal/engine"
	"github.com/roach88/sidesync/internal/ir"
)

// AssertionContext provides what assertions need beyond the result.
type AssertionContext struct {
	Engine *engine.Engine
	Ctx    context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string          // Assertion type for categorization
	Expected string          // Human-readable expected outcome
	Actual   string          // Human-readable actual outcome
	Oplog    []ir.OpLogEntry // Full oplog for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Oplog) > 0 {
		fmt.Fprintf(&buf, "\nOplog:\n")
		for _, entry := range e.Oplog {
			fmt.Fprintf(&buf, "  %s\n", formatEntry(entry))
		}
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion and records failures in result.
// The returned error is reserved for assertions that could not be
// evaluated, such as a storage failure.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) error {
	for i, a := range assertions {
		failure, err := evaluateAssertion(result, a, actx)
		if err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if failure != nil {
			result.AddError(fmt.Sprintf("assertions[%d]: %s", i, failure.Error()))
		}
	}
	return nil
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) (*AssertionError, error) {
	switch a.Type {
	case AssertOplogCount:
		return assertOplogCount(result.Oplog, a), nil
	case AssertOplogContains:
		return assertOplogContains(result.Oplog, a)
	case AssertMonotonic:
		return assertMonotonic(result.Oplog), nil
	case AssertObject:
		return assertObject(actx, a)
	case AssertStoreCount:
		return assertStoreCount(actx, a)
	default:
		return nil, fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertOplogCount checks the total number of oplog entries.
func assertOplogCount(oplog []ir.OpLogEntry, a Assertion) *AssertionError {
	if len(oplog) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertOplogCount,
		Expected: fmt.Sprintf("%d entries", a.Count),
		Actual:   fmt.Sprintf("%d entries", len(oplog)),
		Oplog:    oplog,
	}
}

// assertOplogContains checks that some entry matches every field given in
// the assertion's entry mapping (subset semantics).
func assertOplogContains(oplog []ir.OpLogEntry, a Assertion) (*AssertionError, error) {
	want, err := nodeToValue(a.Entry)
	if err != nil {
		return nil, fmt.Errorf("oplog_contains: entry: %w", err)
	}
	pattern, ok := want.(ir.Record)
	if !ok {
		return nil, fmt.Errorf("oplog_contains: entry must be a mapping")
	}
	for _, name := range pattern.Names() {
		switch name {
		case "hlc_time", "store", "object_key", "prop", "value":
		default:
			return nil, fmt.Errorf("oplog_contains: unknown entry field %q", name)
		}
	}

	for _, entry := range oplog {
		if matchEntry(entry, pattern) {
			return nil, nil
		}
	}
	return &AssertionError{
		Type:     AssertOplogContains,
		Expected: fmt.Sprintf("entry matching %s", formatValue(pattern)),
		Actual:   "not found in oplog",
		Oplog:    oplog,
	}, nil
}

func matchEntry(entry ir.OpLogEntry, pattern ir.Record) bool {
	got := entry.Record()
	for _, f := range pattern {
		v, ok := got.Get(f.Name)
		if !ok || !ir.Equal(v, f.Value) {
			return false
		}
	}
	return true
}

// assertMonotonic checks that hlc_time strictly increases along the oplog.
func assertMonotonic(oplog []ir.OpLogEntry) *AssertionError {
	for i := 1; i < len(oplog); i++ {
		if oplog[i-1].HLCTime >= oplog[i].HLCTime {
			return &AssertionError{
				Type:     AssertMonotonic,
				Expected: "strictly increasing hlc_time",
				Actual:   fmt.Sprintf("entry %d (%s) does not follow entry %d (%s)", i, oplog[i].HLCTime, i-1, oplog[i-1].HLCTime),
				Oplog:    oplog,
			}
		}
	}
	return nil
}

// assertObject checks the stored object under a key, or its absence.
func assertObject(actx *AssertionContext, a Assertion) (*AssertionError, error) {
	key, err := nodeToValue(a.Key)
	if err != nil {
		return nil, fmt.Errorf("object: key: %w", err)
	}

	var got ir.Value
	var found bool
	err = actx.Engine.Run(actx.Ctx, []string{a.Store}, engine.ReadOnly, func(t *engine.Txn) error {
		p, err := t.Store(a.Store)
		if err != nil {
			return err
		}
		got, found, err = p.Get(actx.Ctx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("object: %w", err)
	}

	if a.Absent {
		if !found {
			return nil, nil
		}
		return &AssertionError{
			Type:     AssertObject,
			Expected: fmt.Sprintf("no object at %s[%s]", a.Store, formatValue(key)),
			Actual:   formatValue(got),
		}, nil
	}

	want, err := nodeToValue(a.Expect)
	if err != nil {
		return nil, fmt.Errorf("object: expect: %w", err)
	}
	if !found {
		return &AssertionError{
			Type:     AssertObject,
			Expected: formatValue(want),
			Actual:   fmt.Sprintf("no object at %s[%s]", a.Store, formatValue(key)),
		}, nil
	}
	if !ir.Equal(got, want) {
		return &AssertionError{
			Type:     AssertObject,
			Expected: formatValue(want),
			Actual:   formatValue(got),
		}, nil
	}
	return nil, nil
}

// assertStoreCount checks the number of objects in a store.
func assertStoreCount(actx *AssertionContext, a Assertion) (*AssertionError, error) {
	var n int
	err := actx.Engine.Run(actx.Ctx, []string{a.Store}, engine.ReadOnly, func(t *engine.Txn) error {
		p, err := t.Store(a.Store)
		if err != nil {
			return err
		}
		n, err = p.Count(actx.Ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store_count: %w", err)
	}
	if n == a.Count {
		return nil, nil
	}
	return &AssertionError{
		Type:     AssertStoreCount,
		Expected: fmt.Sprintf("%d objects in %s", a.Count, a.Store),
		Actual:   fmt.Sprintf("%d objects", n),
	}, nil
}

func formatValue(v ir.Value) string {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(data)
}

func formatEntry(e ir.OpLogEntry) string {
	return fmt.Sprintf("%s %s %s %q = %s", e.HLCTime, e.Store, formatValue(e.ObjectKey), e.Prop, formatValue(e.Value))
}
