package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KeyPath is the key discipline of a collection: how an object's key is
// derived. It is a closed set: SingleKey, CompoundKey, or Keyless.
type KeyPath interface {
	keyPath() // Sealed
	String() string
}

// SingleKey derives the key from one (possibly dotted) property of the value.
type SingleKey struct {
	Path string
}

func (SingleKey) keyPath() {}

func (k SingleKey) String() string { return fmt.Sprintf("%q", k.Path) }

// CompoundKey derives an array key from several properties, in order.
type CompoundKey struct {
	Paths []string
}

func (CompoundKey) keyPath() {}

func (k CompoundKey) String() string {
	quoted := make([]string, len(k.Paths))
	for i, p := range k.Paths {
		quoted[i] = fmt.Sprintf("%q", p)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// Keyless collections store values under a key supplied with each write.
type Keyless struct{}

func (Keyless) keyPath() {}

func (Keyless) String() string { return "none" }

// Collection describes a logical object store. Immutable once registered.
type Collection struct {
	Name    string
	KeyPath KeyPath
}

// Validate checks that the descriptor is well formed.
func (c Collection) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	switch kp := c.KeyPath.(type) {
	case SingleKey:
		if err := validatePath(kp.Path); err != nil {
			return fmt.Errorf("collection %q: %w", c.Name, err)
		}
	case CompoundKey:
		if len(kp.Paths) == 0 {
			return fmt.Errorf("collection %q: compound key path must not be empty", c.Name)
		}
		for _, p := range kp.Paths {
			if err := validatePath(p); err != nil {
				return fmt.Errorf("collection %q: %w", c.Name, err)
			}
		}
	case Keyless:
	case nil:
		return fmt.Errorf("collection %q: key path is required (use Keyless)", c.Name)
	default:
		return fmt.Errorf("collection %q: unknown key path %T", c.Name, kp)
	}
	return nil
}

func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("key path property must not be empty")
	}
	for _, part := range strings.Split(p, ".") {
		if part == "" {
			return fmt.Errorf("key path %q has an empty segment", p)
		}
	}
	return nil
}

// collectionJSON is the persisted form of a Collection. keyPath is a
// string, a list of strings, or absent for keyless collections.
type collectionJSON struct {
	Name    string          `json:"name"`
	KeyPath json.RawMessage `json:"key_path,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c Collection) MarshalJSON() ([]byte, error) {
	out := collectionJSON{Name: c.Name}
	var err error
	switch kp := c.KeyPath.(type) {
	case SingleKey:
		out.KeyPath, err = json.Marshal(kp.Path)
	case CompoundKey:
		out.KeyPath, err = json.Marshal(kp.Paths)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Collection) UnmarshalJSON(data []byte) error {
	var in collectionJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Name = in.Name
	c.KeyPath = Keyless{}
	if len(in.KeyPath) == 0 || string(in.KeyPath) == "null" {
		return nil
	}

	var single string
	if err := json.Unmarshal(in.KeyPath, &single); err == nil {
		c.KeyPath = SingleKey{Path: single}
		return nil
	}
	var paths []string
	if err := json.Unmarshal(in.KeyPath, &paths); err != nil {
		return fmt.Errorf("collection %q: key_path must be a string or list of strings", in.Name)
	}
	c.KeyPath = CompoundKey{Paths: paths}
	return nil
}

// OpLogEntry records one property-level mutation.
//
// Entries are append-only. HLCTime is unique and orders the whole log;
// ObjectKey identifies the object and Prop the property within it (empty
// for the whole value).
type OpLogEntry struct {
	HLCTime   string `json:"hlc_time"`
	Store     string `json:"store"`
	ObjectKey Value  `json:"object_key"`
	Prop      string `json:"prop"`
	Value     Value  `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (e OpLogEntry) MarshalJSON() ([]byte, error) {
	key, err := MarshalValue(e.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("object_key: %w", err)
	}
	val, err := MarshalValue(e.Value)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return json.Marshal(struct {
		HLCTime   string          `json:"hlc_time"`
		Store     string          `json:"store"`
		ObjectKey json.RawMessage `json:"object_key"`
		Prop      string          `json:"prop"`
		Value     json.RawMessage `json:"value"`
	}{e.HLCTime, e.Store, key, e.Prop, val})
}

// Record returns the entry as a Value, for canonical encoding.
func (e OpLogEntry) Record() Record {
	return NewRecord(
		F("hlc_time", String(e.HLCTime)),
		F("store", String(e.Store)),
		F("object_key", e.ObjectKey),
		F("prop", String(e.Prop)),
		F("value", e.Value),
	)
}
