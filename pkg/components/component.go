package components

import (
	"context"
	"strings"

	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/validation"
	"github.com/goliatone/go-formruntime/pkg/visibility"
)

// Renderer draws component instances. Components dispatch to the method
// matching their variant.
type Renderer interface {
	Input(ctx context.Context, inst *Instance) error
	Choice(ctx context.Context, inst *Instance) error
	Date(ctx context.Context, inst *Instance) error
	// Group draws the group chrome and calls body to draw its contents.
	Group(ctx context.Context, inst *Instance, body func(context.Context) error) error
	Summary(ctx context.Context, inst *Instance) error
	Static(ctx context.Context, inst *Instance) error
	Opaque(ctx context.Context, inst *Instance) error
}

// Check carries what components need to validate an instance.
type Check struct {
	Validator *validation.Validator
	Rules     validation.RuleSet
	// SkipRequired reports whether the required check is suppressed for key.
	SkipRequired func(key string) bool
}

// Component is the capability set shared by every variant.
type Component interface {
	Kind() layout.Kind
	Render(ctx context.Context, r Renderer, inst *Instance) error
	// Validate returns the client messages of the instance's value binding.
	// ok is false for variants that hold no value.
	Validate(check Check, inst *Instance) (msgs validation.Messages, ok bool)
	IsHidden(engine *visibility.Engine, node *layout.Node, ctx visibility.Context) bool
}

// For returns the variant implementing kind.
func For(kind layout.Kind) Component {
	switch kind {
	case layout.KindInput, layout.KindTextArea:
		return inputComponent{base{kind}}
	case layout.KindDropdown, layout.KindRadioButtons, layout.KindCheckboxes:
		return choiceComponent{base{kind}}
	case layout.KindDatepicker:
		return dateComponent{base{kind}}
	case layout.KindGroup:
		return groupComponent{base{kind}}
	case layout.KindSummary:
		return summaryComponent{base{kind}}
	case layout.KindHeader, layout.KindParagraph, layout.KindNavigationButtons, layout.KindButton:
		return staticComponent{base{kind}}
	default:
		return opaqueComponent{base{layout.KindOpaque}}
	}
}

type base struct {
	kind layout.Kind
}

func (b base) Kind() layout.Kind { return b.kind }

func (base) Validate(Check, *Instance) (validation.Messages, bool) {
	return validation.Messages{}, false
}

func (base) IsHidden(engine *visibility.Engine, node *layout.Node, ctx visibility.Context) bool {
	if engine == nil {
		return false
	}
	return engine.IsHidden(node, ctx)
}

type inputComponent struct{ base }

func (inputComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Input(ctx, inst)
}

func (inputComponent) Validate(check Check, inst *Instance) (validation.Messages, bool) {
	node := inst.Node
	rules := validation.Rules{
		Required:  node.Required,
		Pattern:   node.Pattern,
		MinLength: node.MinLength,
		MaxLength: node.MaxLength,
		Min:       node.Min,
		Max:       node.Max,
	}
	if node.Min != nil || node.Max != nil || strings.EqualFold(node.Format, "number") {
		rules.Type = validation.TypeNumber
	}
	return validateValue(check, inst, rules)
}

type choiceComponent struct{ base }

func (choiceComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Choice(ctx, inst)
}

func (choiceComponent) Validate(check Check, inst *Instance) (validation.Messages, bool) {
	return validateValue(check, inst, validation.Rules{Required: inst.Node.Required})
}

type dateComponent struct{ base }

func (dateComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Date(ctx, inst)
}

func (dateComponent) Validate(check Check, inst *Instance) (validation.Messages, bool) {
	node := inst.Node
	rules := validation.Rules{
		Required: node.Required,
		Type:     validation.TypeDate,
		MinDate:  node.MinDate,
		MaxDate:  node.MaxDate,
	}
	if node.TimeStamp != nil && *node.TimeStamp {
		rules.TimeStamp = true
	}
	return validateValue(check, inst, rules)
}

type groupComponent struct{ base }

func (groupComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Group(ctx, inst, func(ctx context.Context) error {
		if inst.Repeating() {
			for _, row := range inst.Rows {
				if err := Render(ctx, r, row); err != nil {
					return err
				}
			}
			return nil
		}
		return Render(ctx, r, inst.Children)
	})
}

type summaryComponent struct{ base }

func (summaryComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Summary(ctx, inst)
}

type staticComponent struct{ base }

func (staticComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Static(ctx, inst)
}

type opaqueComponent struct{ base }

func (opaqueComponent) Render(ctx context.Context, r Renderer, inst *Instance) error {
	return r.Opaque(ctx, inst)
}

func validateValue(check Check, inst *Instance, rules validation.Rules) (validation.Messages, bool) {
	key := inst.Binding()
	if key == "" || check.Validator == nil {
		return validation.Messages{}, false
	}
	if base, ok := check.Rules.For(key); ok {
		rules = base.Overlay(rules)
	}
	if rules.Label == "" {
		rules.Label = inst.Label
	}
	if rules.Required && check.SkipRequired != nil && check.SkipRequired(key) {
		rules.Required = false
	}
	return check.Validator.ValidateField(key, inst.Value, rules), true
}

// Render draws every visible instance in order.
func Render(ctx context.Context, r Renderer, instances []*Instance) error {
	for _, inst := range instances {
		if inst == nil || inst.Hidden {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := inst.Component().Render(ctx, r, inst); err != nil {
			return err
		}
	}
	return nil
}
