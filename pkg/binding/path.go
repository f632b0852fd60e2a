package binding

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Segment is one step of a parsed path: either an object member or an array
// index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return s.Key
}

// ParsePath splits a flat key into segments. Keys must start with a member
// name; a bare index at the root, empty members and unterminated or
// non-numeric brackets are rejected.
func ParsePath(path string) ([]Segment, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("binding: empty path")
	}

	var (
		segments []Segment
		current  strings.Builder
		// expectMember is true right after a "." or at the start.
		expectMember = true
	)

	flush := func() error {
		if current.Len() == 0 {
			return fmt.Errorf("binding: empty member in path %q", path)
		}
		segments = append(segments, Segment{Key: current.String()})
		current.Reset()
		return nil
	}

	for i := 0; i < len(path); i++ {
		ch := path[i]
		switch ch {
		case '.':
			if expectMember {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			expectMember = true
		case '[':
			if expectMember {
				if len(segments) == 0 && current.Len() == 0 {
					return nil, fmt.Errorf("binding: path %q starts with an index", path)
				}
				if err := flush(); err != nil {
					return nil, err
				}
			}
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("binding: unterminated index in path %q", path)
			}
			raw := path[i+1 : i+end]
			idx, err := strconv.Atoi(raw)
			if err != nil || idx < 0 || raw != strconv.Itoa(idx) {
				return nil, fmt.Errorf("binding: invalid index %q in path %q", raw, path)
			}
			segments = append(segments, Segment{Index: idx, IsIndex: true})
			i += end
			expectMember = false
			if i+1 < len(path) && path[i+1] != '.' && path[i+1] != '[' {
				return nil, fmt.Errorf("binding: unexpected %q after index in path %q", path[i+1], path)
			}
		case ']':
			return nil, fmt.Errorf("binding: unexpected ']' in path %q", path)
		default:
			if !expectMember {
				return nil, fmt.Errorf("binding: unexpected %q in path %q", ch, path)
			}
			current.WriteByte(ch)
		}
	}

	if expectMember {
		if err := flush(); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// JoinPath renders segments back into flat-key form.
func JoinPath(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if seg.IsIndex {
			b.WriteString(seg.String())
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Key)
	}
	return b.String()
}

// Within reports whether key equals prefix or addresses a value nested under
// it.
func Within(key, prefix string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(key, prefix) {
		return false
	}
	if len(key) == len(prefix) {
		return true
	}
	next := key[len(prefix)]
	return next == '.' || next == '['
}

// Member appends a member name to base.
func Member(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// Index appends an array index to base.
func Index(base string, i int) string {
	return base + "[" + strconv.Itoa(i) + "]"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
