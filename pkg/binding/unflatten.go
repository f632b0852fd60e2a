package binding

import (
	"errors"
	"fmt"
	"sort"
)

// MalformedPathError reports a flat key, or a group of keys sharing Path,
// that cannot be placed in a nested document.
type MalformedPathError struct {
	Path   string
	Reason string
}

func (e *MalformedPathError) Error() string {
	return fmt.Sprintf("binding: malformed path %q: %s", e.Path, e.Reason)
}

// IsMalformedPath reports whether err contains a MalformedPathError.
func IsMalformedPath(err error) bool {
	var target *MalformedPathError
	return errors.As(err, &target)
}

type trieNode struct {
	leaf   bool
	value  string
	fields map[string]*trieNode
	items  map[int]*trieNode
}

func (n *trieNode) field(key string) *trieNode {
	if n.fields == nil {
		n.fields = make(map[string]*trieNode)
	}
	child, ok := n.fields[key]
	if !ok {
		child = &trieNode{}
		n.fields[key] = child
	}
	return child
}

func (n *trieNode) item(idx int) *trieNode {
	if n.items == nil {
		n.items = make(map[int]*trieNode)
	}
	child, ok := n.items[idx]
	if !ok {
		child = &trieNode{}
		n.items[idx] = child
	}
	return child
}

// Unflatten rebuilds the nested document from a FlatMap. Keys that cannot be
// parsed, array indices that do not run contiguously from zero and keys that
// use one path both as a scalar and as a container are reported as
// MalformedPathError values joined into the returned error. The affected
// subtrees are left out of the document; everything else is returned.
func Unflatten(flat FlatMap) (map[string]any, error) {
	root := &trieNode{}
	var errs []error

	for _, key := range flat.Keys() {
		segments, err := ParsePath(key)
		if err != nil {
			errs = append(errs, &MalformedPathError{Path: key, Reason: err.Error()})
			continue
		}
		node := root
		for _, seg := range segments {
			if seg.IsIndex {
				node = node.item(seg.Index)
			} else {
				node = node.field(seg.Key)
			}
		}
		node.leaf = true
		node.value = flat[key]
	}

	out := make(map[string]any, len(root.fields))
	for _, key := range sortedKeys(root.fields) {
		if value, ok := build(root.fields[key], key, &errs); ok {
			out[key] = value
		}
	}
	return out, errors.Join(errs...)
}

func build(n *trieNode, path string, errs *[]error) (any, bool) {
	containers := 0
	if n.fields != nil {
		containers++
	}
	if n.items != nil {
		containers++
	}
	if containers > 1 || (n.leaf && containers > 0) {
		*errs = append(*errs, &MalformedPathError{Path: path, Reason: "used as both scalar and container or as both object and array"})
		return nil, false
	}

	switch {
	case n.leaf:
		return n.value, true
	case n.fields != nil:
		obj := make(map[string]any, len(n.fields))
		for _, key := range sortedKeys(n.fields) {
			if value, ok := build(n.fields[key], Member(path, key), errs); ok {
				obj[key] = value
			}
		}
		return obj, true
	case n.items != nil:
		indices := make([]int, 0, len(n.items))
		for idx := range n.items {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		for want, got := range indices {
			if want != got {
				*errs = append(*errs, &MalformedPathError{
					Path:   path,
					Reason: fmt.Sprintf("array indices are not contiguous from 0 (missing %d)", want),
				})
				return nil, false
			}
		}
		arr := make([]any, 0, len(indices))
		for _, idx := range indices {
			value, ok := build(n.items[idx], Index(path, idx), errs)
			if !ok {
				value = nil
			}
			arr = append(arr, value)
		}
		return arr, true
	default:
		return nil, false
	}
}
