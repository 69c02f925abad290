package harness

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sidesync/internal/ir"
)

// nodeToValue converts a YAML node to an ir.Value.
//
// Mappings keep their document order, which decides the order of oplog
// entries for a decomposed record. Floats are rejected.
func nodeToValue(n *yaml.Node) (ir.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) != 1 {
			return nil, fmt.Errorf("line %d: empty document", n.Line)
		}
		return nodeToValue(n.Content[0])

	case yaml.AliasNode:
		return nodeToValue(n.Alias)

	case yaml.ScalarNode:
		return scalarToValue(n)

	case yaml.SequenceNode:
		arr := make(ir.Array, len(n.Content))
		for i, elem := range n.Content {
			v, err := nodeToValue(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = v
		}
		return arr, nil

	case yaml.MappingNode:
		rec := make(ir.Record, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping keys must be scalars", k.Line)
			}
			val, err := nodeToValue(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k.Value, err)
			}
			rec = rec.With(k.Value, val)
		}
		return rec, nil

	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}

func scalarToValue(n *yaml.Node) (ir.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return ir.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return ir.Int(i), nil
	case "!!float":
		return nil, fmt.Errorf("line %d: floats are not supported: %s", n.Line, n.Value)
	case "!!str":
		return ir.String(n.Value), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported tag %s", n.Line, strconv.Quote(n.ShortTag()))
	}
}

// optionalValue converts n, treating an absent node as no value.
func optionalValue(n *yaml.Node) (ir.Value, error) {
	if n == nil {
		return nil, nil
	}
	return nodeToValue(n)
}

// keyPathFromNode converts a collection's key_path declaration.
func keyPathFromNode(n *yaml.Node) (ir.KeyPath, error) {
	if n == nil {
		return ir.Keyless{}, nil
	}
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return ir.Keyless{}, nil
		}
		return ir.SingleKey{Path: n.Value}, nil
	case yaml.SequenceNode:
		var paths []string
		if err := n.Decode(&paths); err != nil {
			return nil, fmt.Errorf("line %d: key_path list: %w", n.Line, err)
		}
		return ir.CompoundKey{Paths: paths}, nil
	default:
		return nil, fmt.Errorf("line %d: key_path must be a string or a list of strings", n.Line)
	}
}
