package descriptor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node is a read-only view of a YAML node.
//
// All accessors are nil-safe: looking up a missing key returns nil, and
// every method on a nil Node returns the zero value. Descriptor code can
// therefore chain lookups without checking every step.
type Node struct {
	n *yaml.Node
}

// Entry is one key/value pair of a mapping node, in document order.
type Entry struct {
	Key   string
	Value *Node
}

// Load parses a descriptor from r after applying subs.
//
// Returns:
//   - *Node: the document's root node
//   - error: ErrParse on invalid YAML, ErrEmpty when there is no document
func Load(r io.Reader, subs Substitutions) (*Node, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(Substitute(r, subs.Host, subs.Token)).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}

	root := wrap(&doc)
	if root == nil {
		return nil, ErrEmpty
	}
	return root, nil
}

// LoadFile opens path and parses it with Load.
func LoadFile(path string, subs Substitutions) (*Node, error) {
	f, err := os.Open(path) //nolint:gosec // descriptor path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	defer f.Close()

	node, err := Load(f, subs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return node, nil
}

// Parse is Load for in-memory descriptors without placeholders.
func Parse(src string) (*Node, error) {
	return Load(strings.NewReader(src), Substitutions{})
}

// wrap resolves documents and aliases down to a content node.
func wrap(n *yaml.Node) *Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		default:
			return &Node{n: n}
		}
	}
	return nil
}

// Kind returns the YAML kind of the node, or 0 for a nil node.
func (n *Node) Kind() yaml.Kind {
	if n == nil {
		return 0
	}
	return n.n.Kind
}

// IsMap reports whether the node is a mapping.
func (n *Node) IsMap() bool { return n.Kind() == yaml.MappingNode }

// IsSeq reports whether the node is a sequence.
func (n *Node) IsSeq() bool { return n.Kind() == yaml.SequenceNode }

// IsScalar reports whether the node is a scalar.
func (n *Node) IsScalar() bool { return n.Kind() == yaml.ScalarNode }

// Line returns the source line of the node, for error messages.
func (n *Node) Line() int {
	if n == nil {
		return 0
	}
	return n.n.Line
}

// Get returns the value stored under key in a mapping node.
func (n *Node) Get(key string) *Node {
	if !n.IsMap() {
		return nil
	}
	c := n.n.Content
	for i := 0; i+1 < len(c); i += 2 {
		if c[i].Value == key {
			return wrap(c[i+1])
		}
	}
	return nil
}

// Has reports whether key is present in a mapping node.
func (n *Node) Has(key string) bool {
	return n.Get(key) != nil
}

// Keys returns mapping keys in document order.
func (n *Node) Keys() []string {
	entries := n.Entries()
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Key)
	}
	return keys
}

// Entries returns mapping entries in document order. A key that appears
// more than once is returned once, with its first value.
func (n *Node) Entries() []Entry {
	if !n.IsMap() {
		return nil
	}
	c := n.n.Content
	seen := make(map[string]bool, len(c)/2)
	out := make([]Entry, 0, len(c)/2)
	for i := 0; i+1 < len(c); i += 2 {
		k := c[i].Value
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, Entry{Key: k, Value: wrap(c[i+1])})
	}
	return out
}

// Items returns the elements of a sequence node.
func (n *Node) Items() []*Node {
	if !n.IsSeq() {
		return nil
	}
	out := make([]*Node, 0, len(n.n.Content))
	for _, c := range n.n.Content {
		out = append(out, wrap(c))
	}
	return out
}

// Scalar returns the raw text of a scalar node.
func (n *Node) Scalar() string {
	if !n.IsScalar() {
		return ""
	}
	return n.n.Value
}

// String returns the scalar stored under key, or "" when absent.
func (n *Node) String(key string) string {
	return n.Get(key).Scalar()
}

// StringOr returns the scalar under key, or def when absent or empty.
func (n *Node) StringOr(key, def string) string {
	if s := n.String(key); s != "" {
		return s
	}
	return def
}

// Float parses the scalar under key as a float.
func (n *Node) Float(key string) (float64, bool) {
	s := n.String(key)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Bool parses the scalar under key as a YAML boolean, falling back to def.
func (n *Node) Bool(key string, def bool) bool {
	v := n.Get(key)
	if !v.IsScalar() {
		return def
	}
	var b bool
	if err := v.n.Decode(&b); err != nil {
		return def
	}
	return b
}

// Decode unmarshals the node into out.
func (n *Node) Decode(out any) error {
	if n == nil {
		return nil
	}
	if err := n.n.Decode(out); err != nil {
		return fmt.Errorf("%w: line %d: %w", ErrParse, n.n.Line, err)
	}
	return nil
}

// Map decodes a mapping node into a plain map. Non-mapping nodes yield nil.
func (n *Node) Map() map[string]any {
	if !n.IsMap() {
		return nil
	}
	var m map[string]any
	if err := n.n.Decode(&m); err != nil {
		return nil
	}
	return m
}

// Value decodes the node into a generic Go value.
func (n *Node) Value() any {
	if n == nil {
		return nil
	}
	var v any
	if err := n.n.Decode(&v); err != nil {
		return nil
	}
	return v
}
