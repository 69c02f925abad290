package keypath

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/sidesync/internal/ir"
)

// MissingKeyParamError is returned when a keyless collection is written
// without a key.
type MissingKeyParamError struct{}

func (e *MissingKeyParamError) Error() string {
	return `store has no key path: specify the "key" param`
}

// MissingKeyError is returned when the value lacks a key path property and
// no key was supplied separately.
type MissingKeyError struct {
	// Paths is the declared key path.
	Paths []string
	// Missing is the first property the value did not carry.
	Missing string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("value has no %q property for key path [%s]", e.Missing, strings.Join(e.Paths, ", "))
}

// InvalidKeyError is returned when the resolved key is not a valid key
// (for example a boolean, or an empty string).
type InvalidKeyError struct {
	Key    ir.Value
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid key: %s", e.Reason)
}

// KeyConflictError is returned when a partial record sets a key property
// to something other than the key it is written under.
type KeyConflictError struct {
	Path string
	Got  ir.Value
	Want ir.Value
}

func (e *KeyConflictError) Error() string {
	return fmt.Sprintf("property %q conflicts with key: got %s, want %s", e.Path, describe(e.Got), describe(e.Want))
}

func describe(v ir.Value) string {
	data, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	return string(data)
}

// IsMissingKeyParam returns true if err is or wraps a MissingKeyParamError.
func IsMissingKeyParam(err error) bool {
	var e *MissingKeyParamError
	return errors.As(err, &e)
}

// IsMissingKey returns true if err is or wraps a MissingKeyError.
func IsMissingKey(err error) bool {
	var e *MissingKeyError
	return errors.As(err, &e)
}

// IsInvalidKey returns true if err is or wraps an InvalidKeyError.
func IsInvalidKey(err error) bool {
	var e *InvalidKeyError
	return errors.As(err, &e)
}

// IsKeyConflict returns true if err is or wraps a KeyConflictError.
func IsKeyConflict(err error) bool {
	var e *KeyConflictError
	return errors.As(err, &e)
}
