package options

// Option is one selectable entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Set is the resolved option list for one consumer. Loading is true while a
// fetch for the current lookup key is in flight; Options then holds the last
// cached value for that consumer, if any.
type Set struct {
	Options []Option
	Loading bool
}

// Contains reports whether value is one of the options.
func (s Set) Contains(value string) bool {
	for _, opt := range s.Options {
		if opt.Value == value {
			return true
		}
	}
	return false
}

func cloneOptions(src []Option) []Option {
	if src == nil {
		return nil
	}
	return append([]Option(nil), src...)
}
