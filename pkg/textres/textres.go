// Package textres resolves text resource keys into display strings. Texts are
// pongo2 templates rendered with caller supplied variables; labels coming from
// backends are passed through a strict HTML sanitizer.
package textres

import (
	"embed"
	"html"
	"log/slog"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
	"github.com/microcosm-cc/bluemonday"
)

// Validation message keys produced by the validation package.
const (
	KeyRequired    = "validation.required"
	KeyDateFormat  = "validation.date_format"
	KeyDateMin     = "validation.date_min"
	KeyDateMax     = "validation.date_max"
	KeyNumber      = "validation.number"
	KeyNumberMin   = "validation.number_min"
	KeyNumberMax   = "validation.number_max"
	KeyMinLength   = "validation.min_length"
	KeyMaxLength   = "validation.max_length"
	KeyPattern     = "validation.pattern"
	KeySaveFailed  = "sync.save_failed"
	KeyFetchFailed = "sync.fetch_failed"
)

var defaultTexts = map[string]string{
	KeyRequired:    "{% if field %}{{ field }} is required{% else %}Field is required{% endif %}",
	KeyDateFormat:  "Invalid date. Use the format {{ format }}.",
	KeyDateMin:     "Date must be on or after {{ min }}.",
	KeyDateMax:     "Date must be on or before {{ max }}.",
	KeyNumber:      "Value must be a number.",
	KeyNumberMin:   "Value must be at least {{ min }}.",
	KeyNumberMax:   "Value must be at most {{ max }}.",
	KeyMinLength:   "Use at least {{ min }} characters.",
	KeyMaxLength:   "Use at most {{ max }} characters.",
	KeyPattern:     "Value has an invalid format.",
	KeySaveFailed:  "Changes could not be saved. They will be retried on the next change.",
	KeyFetchFailed: "The form could not be loaded.",
}

// Defaults returns a copy of the built-in texts.
func Defaults() map[string]string {
	out := make(map[string]string, len(defaultTexts))
	for k, v := range defaultTexts {
		out[k] = v
	}
	return out
}

// noTemplates backs the template set; texts are compiled from strings only.
var noTemplates embed.FS

// Resources renders text resources. The zero value is not usable; call New.
type Resources struct {
	mu        sync.RWMutex
	texts     map[string]string
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template
	logger    *slog.Logger
}

// New returns Resources seeded with the defaults overlaid with texts.
func New(texts map[string]string) *Resources {
	r := &Resources{
		texts:     Defaults(),
		set:       pongo2.NewSet("textres", pongo2.NewFSLoader(noTemplates)),
		templates: make(map[string]*pongo2.Template),
		logger:    slog.Default(),
	}
	for k, v := range texts {
		r.texts[strings.TrimSpace(k)] = v
	}
	return r
}

// WithLogger sets the logger used for template errors and returns r.
func (r *Resources) WithLogger(logger *slog.Logger) *Resources {
	if logger != nil {
		r.logger = logger
	}
	return r
}

// Set adds or replaces a text.
func (r *Resources) Set(key, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key = strings.TrimSpace(key)
	r.texts[key] = text
	delete(r.templates, key)
}

// Has reports whether key is a known text resource.
func (r *Resources) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.texts[strings.TrimSpace(key)]
	return ok
}

// Text renders key with vars. Unknown keys render as the key itself so that
// literal texts can be used wherever a key is expected. Rendering errors are
// logged and the raw text is returned.
func (r *Resources) Text(key string, vars map[string]any) string {
	key = strings.TrimSpace(key)
	r.mu.RLock()
	raw, ok := r.texts[key]
	tpl := r.templates[key]
	r.mu.RUnlock()
	if !ok {
		return key
	}
	if !strings.Contains(raw, "{{") && !strings.Contains(raw, "{%") {
		return raw
	}

	if tpl == nil {
		compiled, err := r.set.FromString("{% autoescape off %}" + raw + "{% endautoescape %}")
		if err != nil {
			r.logger.Warn("textres: compile failed", "key", key, "error", err)
			return raw
		}
		r.mu.Lock()
		r.templates[key] = compiled
		r.mu.Unlock()
		tpl = compiled
	}

	out, err := tpl.Execute(pongo2.Context(vars))
	if err != nil {
		r.logger.Warn("textres: render failed", "key", key, "error", err)
		return raw
	}
	return out
}

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy
)

// Sanitize strips markup from text received from a backend.
func Sanitize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(trimmed)))
}
