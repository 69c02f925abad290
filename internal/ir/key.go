package ir

import (
	"cmp"
	"fmt"
)

// A key is an Int, a non-empty String, or a non-empty Array of keys.
// Arrays are how compound keys are represented.

// ValidateKey reports whether v may be used as an object key.
func ValidateKey(v Value) error {
	switch k := v.(type) {
	case Int:
		return nil
	case String:
		if k == "" {
			return fmt.Errorf("empty string is not a valid key")
		}
		return nil
	case Array:
		if len(k) == 0 {
			return fmt.Errorf("empty array is not a valid key")
		}
		for i, elem := range k {
			if err := ValidateKey(elem); err != nil {
				return fmt.Errorf("key[%d]: %w", i, err)
			}
		}
		return nil
	case nil:
		return fmt.Errorf("missing key")
	default:
		return fmt.Errorf("%T is not a valid key type", v)
	}
}

// keyRank orders key types: numbers sort before strings, strings before arrays.
func keyRank(v Value) int {
	switch v.(type) {
	case Int:
		return 0
	case String:
		return 1
	case Array:
		return 2
	default:
		return 3
	}
}

// CompareKeys orders two valid keys. Ints compare numerically, strings by
// UTF-16 code units, arrays element-wise and then by length.
func CompareKeys(a, b Value) int {
	if ra, rb := keyRank(a), keyRank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case Int:
		return cmp.Compare(av, b.(Int))
	case String:
		return compareKeysRFC8785(string(av), string(b.(String)))
	case Array:
		bv := b.(Array)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := CompareKeys(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	default:
		return 0
	}
}

// EncodeKey returns the text form of a key used as its storage identity.
// Equal keys encode to identical strings and distinct keys to distinct
// strings; unlike MarshalCanonical, strings are not NFC normalized, so
// "e\u0301" and "\u00e9" remain two keys.
func EncodeKey(key Value) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	data, err := canonical{}.marshal(key)
	if err != nil {
		return "", fmt.Errorf("encode key: %w", err)
	}
	return string(data), nil
}

// DecodeKey parses the output of EncodeKey.
func DecodeKey(s string) (Value, error) {
	v, err := UnmarshalValue([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if err := ValidateKey(v); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return v, nil
}
