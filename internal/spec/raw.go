package spec

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rakunlabs/flowbot/internal/errs"
)

// orderedMap preserves YAML mapping key order. Go's map[string]any
// cannot: once a mapping is decoded into it, iteration order is
// randomized, but C1's rule 2 ("find the first field whose name is not
// when/error_handler") is only well defined if the original field
// order survives until the verb is picked.
type orderedMap struct {
	keys   []string
	values map[string]any
}

func newOrderedMap() *orderedMap {
	return &orderedMap{values: map[string]any{}}
}

func (m *orderedMap) set(k string, v any) {
	if _, ok := m.values[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.values[k] = v
}

func (m *orderedMap) get(k string) (any, bool) {
	v, ok := m.values[k]
	return v, ok
}

func (m *orderedMap) getOr(k string, def any) any {
	if v, ok := m.values[k]; ok {
		return v
	}
	return def
}

func (m *orderedMap) orderedKeys() []string { return m.keys }

// fromPlainMap rebuilds an orderedMap from a plain map[string]any,
// sorting keys for determinism. Used when Normalize is fed an
// already-normalized tree (e.g. a second Normalize pass over its own
// output) where order no longer carries meaning.
func fromPlainMap(m map[string]any) *orderedMap {
	om := newOrderedMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		om.set(k, m[k])
	}
	return om
}

func asMapping(v any) (*orderedMap, error) {
	switch x := v.(type) {
	case *orderedMap:
		return x, nil
	case map[string]any:
		return fromPlainMap(x), nil
	case nil:
		return newOrderedMap(), nil
	default:
		return nil, fmt.Errorf("%w: expected a mapping, got %T", errs.ErrNormalization, v)
	}
}

// decodeNode converts a yaml.Node tree into the orderedMap/[]any/scalar
// tree the rest of this package operates on.
func decodeNode(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return decodeNode(n.Content[0])
	case yaml.MappingNode:
		om := newOrderedMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i].Value
			v, err := decodeNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			om.set(k, v)
		}
		return om, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := decodeNode(c)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrNormalization, err)
		}
		return v, nil
	case yaml.AliasNode:
		return decodeNode(n.Alias)
	default:
		return nil, fmt.Errorf("%w: unsupported yaml node kind %v", errs.ErrNormalization, n.Kind)
	}
}

// Decode parses raw spec YAML into the order-preserving generic tree
// that Normalize consumes.
func Decode(data []byte) (any, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrNormalization, err)
	}
	return decodeNode(&root)
}

// plainify recursively converts an orderedMap/[]any tree into an
// ordinary map[string]any/[]any tree. It performs no verb folding; it
// is a structural copy used for sections normalize doesn't interpret
// (identity, presence, command options, trigger parameters, …) and as
// the final step of turning resolved action parameters into the plain
// maps the expression evaluator and action executor expect.
func plainify(v any) (any, error) {
	switch x := v.(type) {
	case *orderedMap:
		out := make(map[string]any, len(x.keys))
		for _, k := range x.keys {
			pv, err := plainify(x.values[k])
			if err != nil {
				return nil, err
			}
			out[k] = pv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			pv, err := plainify(e)
			if err != nil {
				return nil, err
			}
			out[i] = pv
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			pv, err := plainify(e)
			if err != nil {
				return nil, err
			}
			out[k] = pv
		}
		return out, nil
	default:
		return v, nil
	}
}
