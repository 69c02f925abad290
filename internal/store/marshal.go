package store

import (
	"fmt"

	"github.com/roach88/sidesync/internal/ir"
)

// marshalValue converts a Value to JSON TEXT for storage.
// Record fields keep their insertion order so reads return what was written.
func marshalValue(v ir.Value) (string, error) {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses JSON TEXT written by marshalValue.
func unmarshalValue(data string) (ir.Value, error) {
	v, err := ir.UnmarshalValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}
