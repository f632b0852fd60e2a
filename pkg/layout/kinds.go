package layout

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// Kind is the normalized component kind of a node.
type Kind string

// Built-in component kinds. KindOpaque marks declared types the registry does
// not know; such nodes are passed through for custom leaf renderers.
const (
	KindInput             Kind = "Input"
	KindTextArea          Kind = "TextArea"
	KindDropdown          Kind = "Dropdown"
	KindCheckboxes        Kind = "Checkboxes"
	KindRadioButtons      Kind = "RadioButtons"
	KindDatepicker        Kind = "Datepicker"
	KindGroup             Kind = "Group"
	KindSummary           Kind = "Summary"
	KindHeader            Kind = "Header"
	KindParagraph         Kind = "Paragraph"
	KindNavigationButtons Kind = "NavigationButtons"
	KindButton            Kind = "Button"
	KindOpaque            Kind = "Opaque"
)

// Kinds is a case-insensitive registry of known component type names.
type Kinds struct {
	mu     sync.Mutex
	folder cases.Caser
	names  map[string]Kind
}

// NewKinds returns a registry preloaded with the built-in kinds.
func NewKinds() *Kinds {
	k := &Kinds{
		folder: cases.Fold(),
		names:  make(map[string]Kind),
	}
	for _, kind := range []Kind{
		KindInput, KindTextArea, KindDropdown, KindCheckboxes, KindRadioButtons,
		KindDatepicker, KindGroup, KindSummary, KindHeader, KindParagraph,
		KindNavigationButtons, KindButton,
	} {
		k.Register(string(kind), kind)
	}
	return k
}

// Register maps a type name (matched case-insensitively) to kind. Later
// registrations replace earlier ones.
func (k *Kinds) Register(name string, kind Kind) {
	if k == nil {
		return
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || kind == "" {
		return
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.names[k.fold(trimmed)] = kind
}

// Normalize resolves a declared type name. Unknown names report
// (KindOpaque, false).
func (k *Kinds) Normalize(name string) (Kind, bool) {
	if k == nil {
		return KindOpaque, false
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	kind, ok := k.names[k.fold(strings.TrimSpace(name))]
	if !ok {
		return KindOpaque, false
	}
	return kind, true
}

// Names lists the registered kinds.
func (k *Kinds) Names() []string {
	if k == nil {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	seen := make(map[Kind]struct{}, len(k.names))
	out := make([]string, 0, len(k.names))
	for _, kind := range k.names {
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		out = append(out, string(kind))
	}
	sort.Strings(out)
	return out
}

// fold must be called with k.mu held; a cases.Caser keeps state between
// calls.
func (k *Kinds) fold(name string) string {
	return k.folder.String(name)
}
