// Package decode turns structured tool output into a tree of string-keyed
// maps. Callers navigate the tree with the typed accessors and never see the
// underlying YAML library.
package decode

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
)

// Tree is a decoded mapping node.
type Tree map[string]any

// YAML decodes a single YAML (or JSON) document whose root is a mapping.
func YAML(text string) (Tree, error) {
	var raw any
	if err := yaml.Unmarshal([]byte(text), &raw); err != nil {
		return nil, core.ErrParse(core.CodeMalformedOutput, "decoding structured output").WithCause(err)
	}
	if raw == nil {
		return nil, core.ErrParse(core.CodeMalformedOutput, "structured output is empty")
	}
	tree, ok := normalize(raw).(Tree)
	if !ok {
		return nil, core.ErrParse(core.CodeMalformedOutput,
			fmt.Sprintf("structured output root is %s, not a mapping", kindOf(raw)))
	}
	return tree, nil
}

// normalize converts nested mappings to Tree and sequences to []any.
func normalize(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(Tree, len(n))
		for k, val := range n {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(Tree, len(n))
		for k, val := range n {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, val := range n {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Has reports whether key is present.
func (t Tree) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Keys returns the mapping keys in lexical order.
func (t Tree) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Map returns the mapping stored at key. A missing key or a null value
// yields an empty tree; any other non-mapping value is an error.
func (t Tree) Map(key string) (Tree, error) {
	v, ok := t[key]
	if !ok || v == nil {
		return Tree{}, nil
	}
	m, ok := v.(Tree)
	if !ok {
		return nil, wrongKind(key, "mapping", v)
	}
	return m, nil
}

// List returns the sequence of mappings stored at key. A missing key or a
// null value yields an empty list.
func (t Tree) List(key string) ([]Tree, error) {
	v, ok := t[key]
	if !ok || v == nil {
		return nil, nil
	}
	seq, ok := v.([]any)
	if !ok {
		return nil, wrongKind(key, "sequence", v)
	}
	out := make([]Tree, 0, len(seq))
	for i, item := range seq {
		m, ok := item.(Tree)
		if !ok {
			return nil, wrongKind(fmt.Sprintf("%s[%d]", key, i), "mapping", item)
		}
		out = append(out, m)
	}
	return out, nil
}

// String returns the scalar stored at key. The key must be present.
func (t Tree) String(key string) (string, error) {
	v, ok := t[key]
	if !ok {
		return "", core.ErrParse(core.CodeMissingField, fmt.Sprintf("field %q is missing", key))
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case Tree, []any, nil:
		return "", wrongKind(key, "scalar", v)
	default:
		return fmt.Sprint(s), nil
	}
}

func wrongKind(key, want string, got any) error {
	return core.ErrParse(core.CodeMalformedOutput,
		fmt.Sprintf("field %q is %s, want %s", key, kindOf(got), want))
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case Tree, map[string]any, map[any]any:
		return "a mapping"
	case []any:
		return "a sequence"
	default:
		return "a scalar"
	}
}
