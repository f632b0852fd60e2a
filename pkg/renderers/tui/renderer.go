// Package tui fills forms in a terminal. The Renderer draws the component
// instances of the current page as prompts and writes answers back through
// the form session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

// Form is the session a Renderer drives. *orchestrator.Orchestrator
// satisfies it.
type Form interface {
	SetValue(key, value string) error
	Blur(ctx context.Context, key string) error
	Render() []*components.Instance
	Page() string
	Pages() []string
	Next(ctx context.Context) (orchestrator.NavResult, error)
	Previous(ctx context.Context) (orchestrator.NavResult, error)
	NavigateTo(ctx context.Context, page string) (orchestrator.NavResult, error)
	Submit(ctx context.Context) (orchestrator.SubmitResult, error)
}

var _ Form = (*orchestrator.Orchestrator)(nil)

// Renderer implements components.Renderer with terminal prompts.
type Renderer struct {
	form   Form
	driver PromptDriver
	theme  *Theme
	logger *slog.Logger
}

var _ components.Renderer = (*Renderer)(nil)

// New constructs a TUI renderer for form. Prompts use survey unless a driver
// is configured.
func New(form Form, opts ...Option) (*Renderer, error) {
	if form == nil {
		return nil, ErrNoForm
	}
	r := &Renderer{form: form}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(nil)
	}
	if r.theme == nil {
		theme := DefaultTheme()
		r.theme = &theme
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

// Input prompts for text and text area components.
func (r *Renderer) Input(ctx context.Context, inst *components.Instance) error {
	if inst.ReadOnly {
		return r.show(ctx, inst)
	}
	var (
		value string
		err   error
	)
	if inst.Kind == layout.KindTextArea {
		value, err = r.driver.TextArea(ctx, TextAreaConfig{
			Message: r.label(inst),
			Default: inst.Value,
			Help:    r.help(inst),
		})
	} else {
		value, err = r.driver.Input(ctx, InputConfig{
			Message: r.label(inst),
			Default: inst.Value,
			Help:    r.help(inst),
		})
	}
	if err != nil {
		return translateSurveyErr(err)
	}
	return r.commit(ctx, inst, strings.TrimSpace(value))
}

// Choice prompts with the resolved option set. Checkboxes allow several
// answers, stored comma separated.
func (r *Renderer) Choice(ctx context.Context, inst *components.Instance) error {
	if inst.ReadOnly {
		return r.show(ctx, inst)
	}
	opts := inst.Options.Options
	if len(opts) == 0 {
		msg := "no options available"
		if inst.Options.Loading {
			msg = "options are loading"
		}
		return r.driver.Info(ctx, r.theme.Muted.Render(fmt.Sprintf("%s: %s", r.label(inst), msg)))
	}
	labels := make([]string, len(opts))
	for i, opt := range opts {
		labels[i] = opt.Label
		if labels[i] == "" {
			labels[i] = opt.Value
		}
	}

	if inst.Kind == layout.KindCheckboxes {
		selected := strings.Split(inst.Value, ",")
		var defaults []int
		for i, opt := range opts {
			if slices.Contains(selected, opt.Value) {
				defaults = append(defaults, i)
			}
		}
		picked, err := r.driver.MultiSelect(ctx, SelectConfig{
			Message:  r.label(inst),
			Options:  labels,
			Defaults: defaults,
			Help:     r.help(inst),
		})
		if err != nil {
			return translateSurveyErr(err)
		}
		values := make([]string, 0, len(picked))
		for _, idx := range picked {
			if idx >= 0 && idx < len(opts) {
				values = append(values, opts[idx].Value)
			}
		}
		return r.commit(ctx, inst, strings.Join(values, ","))
	}

	current := -1
	for i, opt := range opts {
		if opt.Value == inst.Value {
			current = i
		}
	}
	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      r.label(inst),
		Options:      labels,
		DefaultIndex: current,
		Help:         r.help(inst),
	})
	if err != nil {
		return translateSurveyErr(err)
	}
	if idx < 0 || idx >= len(opts) {
		return nil
	}
	return r.commit(ctx, inst, opts[idx].Value)
}

// Date prompts for a calendar date and rejects input that does not parse.
func (r *Renderer) Date(ctx context.Context, inst *components.Instance) error {
	if inst.ReadOnly {
		return r.show(ctx, inst)
	}
	format := validation.DisplayFormat(validation.DateLayout)
	help := strings.TrimSpace("Format " + format + ". " + r.help(inst))
	value, err := r.driver.Input(ctx, InputConfig{
		Message: r.label(inst),
		Default: inst.Value,
		Help:    help,
		Validator: func(s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil
			}
			if _, err := time.Parse(validation.DateLayout, s); err != nil {
				return fmt.Errorf("expected a date as %s", format)
			}
			return nil
		},
	})
	if err != nil {
		return translateSurveyErr(err)
	}
	return r.commit(ctx, inst, strings.TrimSpace(value))
}

// Group prints the group heading, then its contents.
func (r *Renderer) Group(ctx context.Context, inst *components.Instance, body func(context.Context) error) error {
	if label := inst.Label; label != "" {
		if err := r.driver.Info(ctx, r.theme.Heading.Render(label)); err != nil {
			return err
		}
	}
	return body(ctx)
}

// Summary prints the values a summary refers to.
func (r *Renderer) Summary(ctx context.Context, inst *components.Instance) error {
	for _, line := range inst.Lines {
		label := line.Label
		if label == "" {
			label = line.Binding
		}
		value := line.Value
		if value == "" {
			value = r.theme.Muted.Render("(empty)")
		}
		if err := r.driver.Info(ctx, fmt.Sprintf("%s: %s", label, value)); err != nil {
			return err
		}
	}
	return nil
}

// Static prints headers and paragraphs. Buttons are replaced by the
// navigation menu.
func (r *Renderer) Static(ctx context.Context, inst *components.Instance) error {
	switch inst.Kind {
	case layout.KindNavigationButtons, layout.KindButton:
		return nil
	case layout.KindHeader:
		return r.driver.Info(ctx, r.theme.Heading.Render(r.label(inst)))
	default:
		if inst.Label == "" {
			return nil
		}
		return r.driver.Info(ctx, r.theme.Info.Render(inst.Label))
	}
}

// Opaque prints components the terminal cannot edit.
func (r *Renderer) Opaque(ctx context.Context, inst *components.Instance) error {
	text := fmt.Sprintf("[%s] %s", inst.Node.Type, r.label(inst))
	if inst.Value != "" {
		text += ": " + inst.Value
	}
	return r.driver.Info(ctx, r.theme.Muted.Render(text))
}

func (r *Renderer) show(ctx context.Context, inst *components.Instance) error {
	return r.driver.Info(ctx, fmt.Sprintf("%s: %s", r.label(inst), inst.Value))
}

func (r *Renderer) commit(ctx context.Context, inst *components.Instance, value string) error {
	key := inst.Binding()
	if key == "" || value == inst.Value {
		return nil
	}
	if err := r.form.SetValue(key, value); err != nil {
		return err
	}
	if err := r.form.Blur(ctx, key); err != nil {
		r.logger.Warn("tui: save after edit failed", "key", key, "error", err)
		return r.driver.Info(ctx, r.theme.Warning.Render("Could not save yet, will retry: "+key))
	}
	return nil
}

func (r *Renderer) label(inst *components.Instance) string {
	label := inst.Label
	if label == "" {
		label = inst.Node.ID
	}
	if inst.Node.Required {
		label += " *"
	}
	return label
}

// help lists the messages of the instance; survey shows it on '?'.
func (r *Renderer) help(inst *components.Instance) string {
	m := inst.Messages
	parts := make([]string, 0, len(m.Errors)+len(m.Warnings)+len(m.Info))
	parts = append(parts, m.Errors...)
	parts = append(parts, m.Warnings...)
	parts = append(parts, m.Info...)
	return strings.Join(parts, " ")
}

// messages prints the errors and warnings of every visible instance.
func (r *Renderer) messages(ctx context.Context, instances []*components.Instance) error {
	var errs []error
	components.Visit(instances, func(inst *components.Instance) {
		for _, text := range inst.Messages.Errors {
			errs = append(errs, r.driver.Info(ctx, r.theme.Error.Render(r.label(inst)+": "+text)))
		}
		for _, text := range inst.Messages.Warnings {
			errs = append(errs, r.driver.Info(ctx, r.theme.Warning.Render(r.label(inst)+": "+text)))
		}
	})
	return errors.Join(errs...)
}
