// Package schema loads collection declarations from CUE.
//
// A declaration names the collection and, optionally, its key path:
//
//	collection: todo_items: keyPath: "id"
//	collection: settings: keyPath: ["scope", "name"]
//	collection: kv: {}
//
// A string keyPath declares a single key path, a list declares a compound
// key path, and no keyPath declares a keyless collection.
package schema

import (
	"fmt"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/sidesync/internal/ir"
)

// CompileError is a declaration that could not be turned into a collection.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// knownFields are the fields a collection declaration may set.
var knownFields = []string{"keyPath"}

// CompileCollection parses one declaration. The collection name is the
// last selector of v's path, e.g. "todo_items" for collection.todo_items.
func CompileCollection(v cue.Value) (ir.Collection, error) {
	if err := v.Err(); err != nil {
		return ir.Collection{}, formatCUEError(err)
	}

	var col ir.Collection
	sels := v.Path().Selectors()
	if len(sels) > 0 {
		col.Name = sels[len(sels)-1].Unquoted()
	}

	if v.IncompleteKind() != cue.StructKind {
		return ir.Collection{}, &CompileError{
			Field:   "collection",
			Message: fmt.Sprintf("collection %q must be a struct", col.Name),
			Pos:     v.Pos(),
		}
	}

	iter, err := v.Fields()
	if err != nil {
		return ir.Collection{}, formatCUEError(err)
	}
	for iter.Next() {
		label := iter.Selector().Unquoted()
		if !slices.Contains(knownFields, label) {
			return ir.Collection{}, &CompileError{
				Field:   label,
				Message: fmt.Sprintf("unknown field in collection %q (allowed: %s)", col.Name, strings.Join(knownFields, ", ")),
				Pos:     iter.Value().Pos(),
			}
		}
	}

	col.KeyPath, err = parseKeyPath(v.LookupPath(cue.ParsePath("keyPath")))
	if err != nil {
		return ir.Collection{}, err
	}

	if err := col.Validate(); err != nil {
		return ir.Collection{}, &CompileError{
			Field:   "keyPath",
			Message: err.Error(),
			Pos:     v.Pos(),
		}
	}
	return col, nil
}

// parseKeyPath reads a keyPath value: absent, a string, or a list of
// strings.
func parseKeyPath(v cue.Value) (ir.KeyPath, error) {
	if !v.Exists() {
		return ir.Keyless{}, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if s == "" {
			return nil, &CompileError{Field: "keyPath", Message: "keyPath must not be empty", Pos: v.Pos()}
		}
		return ir.SingleKey{Path: s}, nil

	case cue.ListKind:
		list, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		var paths []string
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   "keyPath",
					Message: "keyPath list elements must be strings",
					Pos:     list.Value().Pos(),
				}
			}
			paths = append(paths, s)
		}
		if len(paths) == 0 {
			return nil, &CompileError{Field: "keyPath", Message: "keyPath list must not be empty", Pos: v.Pos()}
		}
		return ir.CompoundKey{Paths: paths}, nil

	default:
		return nil, &CompileError{
			Field:   "keyPath",
			Message: fmt.Sprintf("keyPath must be a string or a list of strings, got %s", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// Compile reads every declaration under the top-level "collection" field.
// The result is ordered by name. A value without declarations yields an
// empty slice.
func Compile(v cue.Value) ([]ir.Collection, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	cols := []ir.Collection{}
	decls := v.LookupPath(cue.ParsePath("collection"))
	if !decls.Exists() {
		return cols, nil
	}

	iter, err := decls.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		col, err := CompileCollection(iter.Value())
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}

	slices.SortFunc(cols, func(a, b ir.Collection) int {
		return strings.Compare(a.Name, b.Name)
	})
	return cols, nil
}

// CompileString compiles CUE source text.
func CompileString(src string) ([]ir.Collection, error) {
	ctx := cuecontext.New()
	return Compile(ctx.CompileString(src))
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
