package binding

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{(i|\d+)\}`)

// TemplateError is returned when a binding template references a repetition
// level that the surrounding groups do not provide. It signals a layout
// configuration problem.
type TemplateError struct {
	Template string
	Level    int
	Depth    int
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("binding: template %q references level %d but only %d enclosing groups are available", e.Template, e.Level, e.Depth)
}

// Resolve substitutes index placeholders in template with the index chain of
// the enclosing repeating groups, outermost first. "{n}" picks level n
// explicitly; each "{i}" consumes the next level in order.
func Resolve(template string, indices []int) (string, error) {
	if !strings.Contains(template, "{") {
		return template, nil
	}

	var (
		next   int
		failed *TemplateError
	)
	out := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		if failed != nil {
			return match
		}
		raw := match[1 : len(match)-1]
		level := next
		if raw == "i" {
			next++
		} else {
			level, _ = strconv.Atoi(raw)
		}
		if level >= len(indices) {
			failed = &TemplateError{Template: template, Level: level, Depth: len(indices)}
			return match
		}
		return strconv.Itoa(indices[level])
	})
	if failed != nil {
		return "", failed
	}
	return out, nil
}

// HasPlaceholders reports whether template contains index placeholders.
func HasPlaceholders(template string) bool {
	return placeholderPattern.MatchString(template)
}

// Frame describes one enclosing repetition: the group's declared array
// binding and the index being rendered.
type Frame struct {
	Binding string
	Index   int
}

// Indices returns the index chain of frames.
func Indices(frames []Frame) []int {
	out := make([]int, len(frames))
	for i, f := range frames {
		out[i] = f.Index
	}
	return out
}

// ResolveInGroups maps a binding declared relative to the data model, such as
// "people.pets.name", onto the concrete repetition described by frames,
// yielding "people[0].pets[1].name". Bindings outside a frame's array are
// left alone for that frame.
func ResolveInGroups(binding string, frames []Frame) string {
	resolved := binding
	for i, frame := range frames {
		if frame.Binding == "" {
			continue
		}
		group := ResolveInGroups(frame.Binding, frames[:i])
		if !Within(resolved, group) {
			continue
		}
		rest := resolved[len(group):]
		if strings.HasPrefix(rest, "[") {
			continue
		}
		resolved = Index(group, frame.Index) + rest
	}
	return resolved
}

// Count returns the number of entries stored under the array at path, taken
// as the highest index present plus one.
func Count(doc FlatMap, path string) int {
	prefix := path + "["
	count := 0
	for key := range doc {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		end := strings.IndexByte(rest, ']')
		if end <= 0 {
			continue
		}
		idx, err := strconv.Atoi(rest[:end])
		if err != nil || idx < 0 {
			continue
		}
		if idx+1 > count {
			count = idx + 1
		}
	}
	return count
}
