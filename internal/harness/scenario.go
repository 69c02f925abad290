package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario is a complete oplog test case loaded from YAML.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Schema is inline CUE declaring the collections.
	Schema string `yaml:"schema,omitempty"`

	// SchemaDir is a directory of .cue files, relative to the scenario file.
	SchemaDir string `yaml:"schema_dir,omitempty"`

	// Collections declares collections directly in YAML.
	Collections []CollectionDecl `yaml:"collections,omitempty"`

	Transactions []Transaction `yaml:"transactions"`
	Assertions   []Assertion   `yaml:"assertions"`
}

// CollectionDecl declares one collection. KeyPath is a string, a list of
// strings, or absent for a keyless collection.
type CollectionDecl struct {
	Name    string     `yaml:"name"`
	KeyPath *yaml.Node `yaml:"key_path,omitempty"`
}

// Transaction is one engine.Run call.
type Transaction struct {
	// Stores is the transaction scope. Defaults to every store the steps name.
	Stores []string `yaml:"stores,omitempty"`

	// Mode is "readwrite" (default) or "readonly".
	Mode string `yaml:"mode,omitempty"`

	Steps []Step `yaml:"steps"`

	// ExpectAborted asserts that the transaction does not commit.
	ExpectAborted bool `yaml:"expect_aborted,omitempty"`
}

// Step is one proxied operation inside a transaction.
type Step struct {
	Op    string     `yaml:"op"`
	Store string     `yaml:"store"`
	Value *yaml.Node `yaml:"value,omitempty"`
	Key   *yaml.Node `yaml:"key,omitempty"`

	// ExpectError is a substring the step's error must contain.
	// Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion is a check evaluated after every transaction has run.
type Assertion struct {
	Type string `yaml:"type"`

	// oplog_count and store_count
	Count int `yaml:"count,omitempty"`

	// store_count and object
	Store string `yaml:"store,omitempty"`

	// object
	Key    *yaml.Node `yaml:"key,omitempty"`
	Expect *yaml.Node `yaml:"expect,omitempty"`
	Absent bool       `yaml:"absent,omitempty"`

	// oplog_contains: subset of hlc_time, store, object_key, prop, value
	Entry *yaml.Node `yaml:"entry,omitempty"`
}

// Step operations.
const (
	OpAdd    = "add"
	OpPut    = "put"
	OpDelete = "delete"
)

// Assertion types.
const (
	AssertOplogCount    = "oplog_count"
	AssertOplogContains = "oplog_contains"
	AssertObject        = "object"
	AssertStoreCount    = "store_count"
	AssertMonotonic     = "monotonic"
)

// Transaction modes.
const (
	ModeReadWrite = "readwrite"
	ModeReadOnly  = "readonly"
)

// LoadScenario loads and validates a scenario from a YAML file.
// Unknown fields are rejected. A relative SchemaDir is resolved against
// the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if s.SchemaDir != "" && !filepath.IsAbs(s.SchemaDir) {
		s.SchemaDir = filepath.Join(filepath.Dir(path), s.SchemaDir)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	sources := 0
	if s.Schema != "" {
		sources++
	}
	if s.SchemaDir != "" {
		sources++
	}
	if len(s.Collections) > 0 {
		sources++
	}
	if sources != 1 {
		return fmt.Errorf("exactly one of schema, schema_dir, or collections is required")
	}

	for i, c := range s.Collections {
		if c.Name == "" {
			return fmt.Errorf("collections[%d]: name is required", i)
		}
	}

	for i, txn := range s.Transactions {
		if err := validateTransaction(txn); err != nil {
			return fmt.Errorf("transactions[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateTransaction(txn Transaction) error {
	switch txn.Mode {
	case "", ModeReadWrite, ModeReadOnly:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeReadWrite, ModeReadOnly, txn.Mode)
	}

	if len(txn.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}

	for i, step := range txn.Steps {
		if step.Store == "" {
			return fmt.Errorf("steps[%d]: store is required", i)
		}
		switch step.Op {
		case OpAdd, OpPut:
			if step.Value == nil {
				return fmt.Errorf("steps[%d]: %s requires value", i, step.Op)
			}
		case OpDelete:
			if step.Key == nil {
				return fmt.Errorf("steps[%d]: delete requires key", i)
			}
		default:
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertOplogCount:
		if a.Count < 0 {
			return fmt.Errorf("oplog_count: count must be non-negative")
		}
	case AssertOplogContains:
		if a.Entry == nil || a.Entry.Kind != yaml.MappingNode {
			return fmt.Errorf("oplog_contains: entry mapping is required")
		}
	case AssertObject:
		if a.Store == "" {
			return fmt.Errorf("object: store is required")
		}
		if a.Key == nil {
			return fmt.Errorf("object: key is required")
		}
		if (a.Expect == nil) == !a.Absent {
			return fmt.Errorf("object: exactly one of expect or absent is required")
		}
	case AssertStoreCount:
		if a.Store == "" {
			return fmt.Errorf("store_count: store is required")
		}
		if a.Count < 0 {
			return fmt.Errorf("store_count: count must be non-negative")
		}
	case AssertMonotonic:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
