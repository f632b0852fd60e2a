package validation

import (
	"strconv"
	"strings"
)

// FormLevel is the binding key for messages that do not belong to a field.
const FormLevel = ""

// Issue is a validation message reported by the backend.
type Issue struct {
	Field         string   `json:"field,omitempty"`
	Code          string   `json:"code,omitempty"`
	Description   string   `json:"description,omitempty"`
	Severity      Severity `json:"severity"`
	DataElementID string   `json:"dataElementId,omitempty"`
}

// Text returns the display text of the issue, falling back to its code.
func (i Issue) Text() string {
	if text := strings.TrimSpace(i.Description); text != "" {
		return text
	}
	return strings.TrimSpace(i.Code)
}

// MapIssues groups issues by binding key. Fixed issues are dropped and
// issues without a usable field path land on FormLevel. When dataElementID
// is set, issues for other data elements are skipped.
func MapIssues(issues []Issue, dataElementID string) map[string]Messages {
	out := make(map[string]Messages)
	for _, issue := range issues {
		if issue.Severity == SeverityFixed {
			continue
		}
		if dataElementID != "" && issue.DataElementID != "" && issue.DataElementID != dataElementID {
			continue
		}
		sev := issue.Severity
		if sev == SeverityUnspecified {
			sev = SeverityError
		}
		key := NormalizeField(issue.Field)
		m := out[key]
		m.Add(sev, issue.Text())
		if m.Empty() {
			continue
		}
		out[key] = m
	}
	return out
}

// NormalizeField rewrites a server field path given in dot, bracket or JSON
// pointer form into a binding key. Every segment is kept, so data-model
// roots such as "data" or "request" stay part of the key.
func NormalizeField(path string) string {
	if isFormLevelKey(path) {
		return FormLevel
	}
	segments := parsePathSegments(path)
	if len(segments) == 0 {
		return FormLevel
	}
	var b strings.Builder
	for _, segment := range segments {
		if isIndex(segment) {
			if b.Len() == 0 {
				continue
			}
			b.WriteString("[" + segment + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(segment)
	}
	if isFormLevelKey(b.String()) {
		return FormLevel
	}
	return b.String()
}

func parsePathSegments(path string) []string {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return nil
	}
	for strings.HasPrefix(clean, "#") || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, ".") || strings.HasPrefix(clean, "$") {
		clean = clean[1:]
	}

	clean = strings.NewReplacer("[", ".", "]", "", "//", "/").Replace(clean)
	clean = strings.Trim(clean, "./")
	if clean == "" {
		return nil
	}

	parts := strings.FieldsFunc(clean, func(r rune) bool {
		return r == '.' || r == '/'
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		segment := strings.TrimSpace(part)
		if segment == "" {
			continue
		}
		segment = strings.ReplaceAll(segment, "~1", "/")
		segment = strings.ReplaceAll(segment, "~0", "~")
		out = append(out, segment)
	}
	return out
}

func isFormLevelKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", ".", "/", "#", "$", "form", "base", "__all__", "non_field_errors", "non-field-errors":
		return true
	default:
		return false
	}
}

func isIndex(segment string) bool {
	if segment == "" {
		return false
	}
	n, err := strconv.Atoi(segment)
	return err == nil && n >= 0 && strconv.Itoa(n) == segment
}
