// Package vanilla renders component instances as plain HTML forms through a
// go-template engine. The markup carries no script; it is meant for previews
// and server-rendered fallbacks.
package vanilla

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	gotemplate "github.com/goliatone/go-template"

	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
)

var templateNames = []string{
	"page.tmpl", "input.tmpl", "choice.tmpl", "group.tmpl",
	"summary.tmpl", "static.tmpl", "opaque.tmpl",
}

type Option func(*config)

type config struct {
	templateFS fs.FS
	logger     *slog.Logger
}

// WithTemplatesFS supplies templates that take precedence over the embedded
// bundle. Missing files fall back to the embedded ones.
func WithTemplatesFS(files fs.FS) Option {
	return func(cfg *config) {
		cfg.templateFS = files
	}
}

// WithTemplatesDir loads override templates from a directory on disk.
func WithTemplatesDir(path string) Option {
	return func(cfg *config) {
		if strings.TrimSpace(path) == "" {
			return
		}
		cfg.templateFS = os.DirFS(path)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

type Renderer struct {
	engine *gotemplate.Engine
	logger *slog.Logger
}

// New constructs the vanilla renderer and compiles its templates.
func New(options ...Option) (*Renderer, error) {
	var cfg config
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	var files fs.FS = TemplatesFS()
	if cfg.templateFS != nil {
		files = overlayFS{primary: cfg.templateFS, fallback: files}
	}
	engine, err := gotemplate.NewRenderer(
		gotemplate.WithFS(files),
		gotemplate.WithExtension(".tmpl"),
	)
	if err != nil {
		return nil, fmt.Errorf("vanilla renderer: init engine: %w", err)
	}
	logger := cfg.logger
	engine.RegisterPreHook(func(hc *gotemplate.HookContext) error {
		logger.Debug("vanilla renderer: render", "template", hc.TemplateName)
		return nil
	})

	r := &Renderer{engine: engine, logger: logger}
	for _, name := range templateNames {
		if _, err := engine.RenderTemplate(name, nil); err != nil {
			return nil, fmt.Errorf("vanilla renderer: load template %s: %w", name, err)
		}
	}
	return r, nil
}

// overlayFS serves files from primary and falls back to fallback for names
// primary does not have.
type overlayFS struct {
	primary  fs.FS
	fallback fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	f, err := o.primary.Open(name)
	if err == nil {
		return f, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return o.fallback.Open(name)
	}
	return nil, err
}

func (r *Renderer) Name() string {
	return "vanilla"
}

func (r *Renderer) ContentType() string {
	return "text/html; charset=utf-8"
}

// Page is one page of a form session ready to be drawn.
type Page struct {
	ID        string
	Title     string
	Instances []*components.Instance
	// FormErrors are messages not bound to a component.
	FormErrors []string
}

// RenderPage draws every visible instance of page inside a form element.
func (r *Renderer) RenderPage(ctx context.Context, page Page) ([]byte, error) {
	if r == nil || r.engine == nil {
		return nil, fmt.Errorf("vanilla renderer: template engine is nil")
	}
	w := &pageWriter{renderer: r, buf: &bytes.Buffer{}}
	if err := components.Render(ctx, w, page.Instances); err != nil {
		return nil, fmt.Errorf("vanilla renderer: render page %q: %w", page.ID, err)
	}
	out, err := r.execute("page.tmpl", map[string]any{
		"page":        page.ID,
		"title":       page.Title,
		"form_errors": page.FormErrors,
		"body":        w.buf.String(),
	})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// execute renders name with data. The engine hands data to the templates
// through its JSON form, so struct fields appear under their json names.
func (r *Renderer) execute(name string, data map[string]any) (string, error) {
	out, err := r.engine.RenderTemplate(name, data)
	if err != nil {
		return "", fmt.Errorf("vanilla renderer: execute %s: %w", name, err)
	}
	return out, nil
}

// pageWriter implements components.Renderer by appending fragments to buf.
// Group swaps buf while its body renders.
type pageWriter struct {
	renderer *Renderer
	buf      *bytes.Buffer
}

var _ components.Renderer = (*pageWriter)(nil)

func (w *pageWriter) write(name string, data map[string]any) error {
	out, err := w.renderer.execute(name, data)
	if err != nil {
		return err
	}
	w.buf.WriteString(out)
	return nil
}

func fieldContext(inst *components.Instance) map[string]any {
	return map[string]any{
		"id":       inst.ID,
		"binding":  inst.Binding(),
		"label":    labelOf(inst),
		"value":    inst.Value,
		"required": inst.Node.Required,
		"readonly": inst.ReadOnly,
		"invalid":  inst.Messages.HasErrors(),
		"messages": inst.Messages,
	}
}

func (w *pageWriter) Input(_ context.Context, inst *components.Instance) error {
	data := fieldContext(inst)
	data["multiline"] = inst.Kind == layout.KindTextArea
	data["type"] = "text"
	node := inst.Node
	if node.Min != nil || node.Max != nil || strings.EqualFold(node.Format, "number") {
		data["type"] = "number"
	}
	return w.write("input.tmpl", data)
}

func (w *pageWriter) Date(_ context.Context, inst *components.Instance) error {
	data := fieldContext(inst)
	data["type"] = "date"
	return w.write("input.tmpl", data)
}

type choiceOption struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Selected bool   `json:"selected"`
}

func (w *pageWriter) Choice(_ context.Context, inst *components.Instance) error {
	data := fieldContext(inst)
	selected := map[string]bool{}
	switch inst.Kind {
	case layout.KindCheckboxes:
		data["control"] = "checkbox"
		for _, v := range strings.Split(inst.Value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				selected[v] = true
			}
		}
	case layout.KindRadioButtons:
		data["control"] = "radio"
		selected[inst.Value] = inst.Value != ""
	default:
		data["control"] = "select"
		selected[inst.Value] = inst.Value != ""
	}
	data["options"] = choiceOptions(inst.Options.Options, selected)
	data["loading"] = inst.Options.Loading
	return w.write("choice.tmpl", data)
}

func choiceOptions(opts []options.Option, selected map[string]bool) []choiceOption {
	out := make([]choiceOption, 0, len(opts))
	for _, opt := range opts {
		label := opt.Label
		if label == "" {
			label = opt.Value
		}
		out = append(out, choiceOption{Value: opt.Value, Label: label, Selected: selected[opt.Value]})
	}
	return out
}

func (w *pageWriter) Group(ctx context.Context, inst *components.Instance, body func(context.Context) error) error {
	outer := w.buf
	w.buf = &bytes.Buffer{}
	err := body(ctx)
	inner := w.buf.String()
	w.buf = outer
	if err != nil {
		return err
	}
	return w.write("group.tmpl", map[string]any{
		"id":        inst.ID,
		"label":     inst.Label,
		"repeating": inst.Repeating(),
		"body":      inner,
	})
}

func (w *pageWriter) Summary(_ context.Context, inst *components.Instance) error {
	return w.write("summary.tmpl", map[string]any{
		"id":    inst.ID,
		"lines": inst.Lines,
	})
}

func (w *pageWriter) Static(_ context.Context, inst *components.Instance) error {
	return w.write("static.tmpl", map[string]any{
		"id":    inst.ID,
		"kind":  string(inst.Kind),
		"label": labelOf(inst),
	})
}

func (w *pageWriter) Opaque(_ context.Context, inst *components.Instance) error {
	props := ""
	if len(inst.Node.Props) > 0 {
		raw, err := json.Marshal(inst.Node.Props)
		if err != nil {
			return fmt.Errorf("vanilla renderer: encode props of %q: %w", inst.ID, err)
		}
		props = string(raw)
	}
	return w.write("opaque.tmpl", map[string]any{
		"id":    inst.ID,
		"type":  inst.Node.Type,
		"label": labelOf(inst),
		"value": inst.Value,
		"props": props,
	})
}

func labelOf(inst *components.Instance) string {
	if strings.TrimSpace(inst.Label) != "" {
		return inst.Label
	}
	return inst.Node.ID
}
