package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Value is a sealed interface over the shapes an object store can hold.
// Only Null, String, Int, Bool, Array, and Record implement it.
// There is no float variant: stored values and keys must encode
// deterministically.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents a JSON null.
type Null struct{}

func (Null) value() {}

// String is a string scalar.
type String string

func (String) value() {}

// Int is an integer scalar. Always int64, never float64.
type Int int64

func (Int) value() {}

// Bool is a boolean scalar.
type Bool bool

func (Bool) value() {}

// Array is an ordered list of values.
type Array []Value

func (Array) value() {}

// Field is one named member of a Record.
type Field struct {
	Name  string
	Value Value
}

// F is a shorthand for Field.
// Example: NewRecord(F("id", Int(1)), F("name", String("buy cookies")))
func F(name string, v Value) Field {
	return Field{Name: name, Value: v}
}

// Record is an ordered mapping of property name to Value.
//
// Insertion order is preserved: it is the order properties were written in,
// and the order decomposition emits oplog entries in. Names are unique.
// Records are treated as immutable; With and Merge return copies.
type Record []Field

func (Record) value() {}

// NewRecord builds a Record from fields. A repeated name keeps its first
// position and takes the last value.
func NewRecord(fields ...Field) Record {
	rec := make(Record, 0, len(fields))
	for _, f := range fields {
		rec = rec.with(f.Name, f.Value)
	}
	return rec
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r)
}

// Get returns the value stored under name.
func (r Record) Get(name string) (Value, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Has reports whether name is an own property of r.
func (r Record) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns property names in insertion order.
func (r Record) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// With returns a copy of r with name set to v. An existing property keeps
// its position; a new one is appended.
func (r Record) With(name string, v Value) Record {
	out := make(Record, len(r), len(r)+1)
	copy(out, r)
	return out.with(name, v)
}

func (r Record) with(name string, v Value) Record {
	for i, f := range r {
		if f.Name == name {
			r[i].Value = v
			return r
		}
	}
	return append(r, Field{Name: name, Value: v})
}

// Merge returns the shallow merge of r and other: top-level properties of
// other replace those of r, nested records are replaced wholesale, never
// merged recursively.
func (r Record) Merge(other Record) Record {
	out := make(Record, len(r), len(r)+len(other))
	copy(out, r)
	for _, f := range other {
		out = out.with(f.Name, f.Value)
	}
	return out
}

// Lookup resolves a dotted property path ("meta.id") through nested
// records. An empty path returns v itself.
func Lookup(v Value, path string) (Value, bool) {
	if path == "" {
		return v, true
	}
	cur := v
	for _, part := range strings.Split(path, ".") {
		rec, ok := cur.(Record)
		if !ok {
			return nil, false
		}
		cur, ok = rec.Get(part)
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Assign returns a copy of rec with the dotted path set to v, creating
// intermediate records as needed.
func Assign(rec Record, path string, v Value) Record {
	head, rest, nested := strings.Cut(path, ".")
	if !nested {
		return rec.With(head, v)
	}
	child, _ := rec.Get(head)
	childRec, ok := child.(Record)
	if !ok {
		childRec = Record{}
	}
	return rec.With(head, Assign(childRec, rest, v))
}

// Equal reports deep equality. Record comparison ignores field order.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Null:
		_, ok := b.(Null)
		return ok
	case String, Int, Bool:
		return a == b
	case Array:
		bv, ok := b.(Array)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Record:
		bv, ok := b.(Record)
		if !ok || len(av) != len(bv) {
			return false
		}
		for _, f := range av {
			other, ok := bv.Get(f.Name)
			if !ok || !Equal(f.Value, other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// MarshalJSON writes the record with fields in insertion order.
// Use MarshalCanonical where byte-stable output is required.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(f.Name)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", f.Name, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", f.Name, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalValue marshals a Value to JSON bytes, records in insertion order.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Bool:
		return json.Marshal(bool(val))
	case Array:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case Record:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown Value type: %T", v)
	}
}

// UnmarshalValue decodes JSON into a Value.
// Object key order is preserved. Floats are rejected; null becomes Null.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}

	// Trailing garbage after the first value is an error.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeFromToken(dec, tok)
}

func decodeFromToken(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null{}, nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case json.Number:
		return numberToInt(t)
	case json.Delim:
		switch t {
		case '[':
			arr := Array{}
			for dec.More() {
				elem, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("array[%d]: %w", len(arr), err)
				}
				arr = append(arr, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		case '{':
			rec := Record{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return nil, fmt.Errorf("object[%q]: %w", key, err)
				}
				rec = rec.with(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		}
	}
	return nil, fmt.Errorf("unexpected JSON token %v", tok)
}

func numberToInt(n json.Number) (Value, error) {
	s := string(n)
	if strings.ContainsAny(s, ".eE") {
		return nil, fmt.Errorf("floats are not supported: %s", s)
	}
	i, err := n.Int64()
	if err != nil {
		return nil, fmt.Errorf("number out of int64 range: %s", s)
	}
	return Int(i), nil
}
