package validation

import "strings"

// Severity classifies a message. The numeric values follow the backend wire
// format.
type Severity int

const (
	SeverityUnspecified Severity = 0
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInfo        Severity = 3
	SeverityFixed       Severity = 4
	SeveritySuccess     Severity = 5
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityFixed:
		return "fixed"
	case SeveritySuccess:
		return "success"
	default:
		return "unspecified"
	}
}

// Messages groups message texts by severity for one binding.
type Messages struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Info     []string `json:"info,omitempty"`
	Success  []string `json:"success,omitempty"`
}

// Empty reports whether m holds no messages.
func (m Messages) Empty() bool {
	return len(m.Errors) == 0 && len(m.Warnings) == 0 && len(m.Info) == 0 && len(m.Success) == 0
}

// HasErrors reports whether m holds at least one error.
func (m Messages) HasErrors() bool { return len(m.Errors) > 0 }

// Add appends text under sev, skipping blanks and duplicates. Fixed and
// unspecified severities are ignored.
func (m *Messages) Add(sev Severity, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	var bucket *[]string
	switch sev {
	case SeverityError:
		bucket = &m.Errors
	case SeverityWarning:
		bucket = &m.Warnings
	case SeverityInfo:
		bucket = &m.Info
	case SeveritySuccess:
		bucket = &m.Success
	default:
		return
	}
	for _, existing := range *bucket {
		if existing == text {
			return
		}
	}
	*bucket = append(*bucket, text)
}

// Clone returns a deep copy of m.
func (m Messages) Clone() Messages {
	return Messages{
		Errors:   cloneStrings(m.Errors),
		Warnings: cloneStrings(m.Warnings),
		Info:     cloneStrings(m.Info),
		Success:  cloneStrings(m.Success),
	}
}

// Merge returns the union of client and server, deduplicated by literal
// text. Client messages come first.
func Merge(client, server Messages) Messages {
	var out Messages
	for _, src := range []Messages{client, server} {
		for _, text := range src.Errors {
			out.Add(SeverityError, text)
		}
		for _, text := range src.Warnings {
			out.Add(SeverityWarning, text)
		}
		for _, text := range src.Info {
			out.Add(SeverityInfo, text)
		}
		for _, text := range src.Success {
			out.Add(SeveritySuccess, text)
		}
	}
	return out
}

// MergeAll merges two per-binding message maps. Keys whose merged messages
// are empty are omitted.
func MergeAll(client, server map[string]Messages) map[string]Messages {
	out := make(map[string]Messages, len(client)+len(server))
	for key, m := range client {
		out[key] = Merge(m, server[key])
	}
	for key, m := range server {
		if _, done := out[key]; done {
			continue
		}
		out[key] = Merge(Messages{}, m)
	}
	for key, m := range out {
		if m.Empty() {
			delete(out, key)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	return append([]string(nil), in...)
}
