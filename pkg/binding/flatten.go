package binding

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlatMap is the flat form-data document: one entry per scalar, keyed by
// its path.
type FlatMap map[string]string

// Clone returns an independent copy.
func (m FlatMap) Clone() FlatMap {
	out := make(FlatMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the keys in lexicographic order.
func (m FlatMap) Keys() []string {
	return sortedKeys(m)
}

// Without returns a copy that drops every key located under one of the
// given prefixes.
func (m FlatMap) Without(prefixes ...string) FlatMap {
	out := make(FlatMap, len(m))
	for k, v := range m {
		if withinAny(k, prefixes) {
			continue
		}
		out[k] = v
	}
	return out
}

// Subtree returns the entries located under prefix.
func (m FlatMap) Subtree(prefix string) FlatMap {
	out := make(FlatMap)
	for k, v := range m {
		if Within(k, prefix) {
			out[k] = v
		}
	}
	return out
}

func withinAny(key string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && Within(key, p) {
			return true
		}
	}
	return false
}

// Flatten converts a nested document into a FlatMap. The root is expected to
// be an object; scalars at the root are ignored.
func Flatten(doc any) FlatMap {
	out := make(FlatMap)
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out FlatMap, prefix string, value any) {
	switch typed := value.(type) {
	case nil:
		return
	case map[string]any:
		for key, child := range typed {
			flattenInto(out, Member(prefix, key), child)
		}
	case map[string]string:
		for key, child := range typed {
			out[Member(prefix, key)] = child
		}
	case []any:
		if prefix == "" {
			return
		}
		for i, child := range typed {
			flattenInto(out, Index(prefix, i), child)
		}
	case []map[string]any:
		if prefix == "" {
			return
		}
		for i, child := range typed {
			flattenInto(out, Index(prefix, i), child)
		}
	case []string:
		if prefix == "" {
			return
		}
		for i, child := range typed {
			out[Index(prefix, i)] = child
		}
	default:
		if prefix == "" {
			return
		}
		out[prefix] = Scalar(typed)
	}
}

// Scalar renders a JSON scalar the way it is stored in a FlatMap.
func Scalar(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case uint64:
		return strconv.FormatUint(typed, 10)
	case json.Number:
		return typed.String()
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
