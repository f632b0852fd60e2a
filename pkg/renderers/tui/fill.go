package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
)

type action int

const (
	actionPrevious action = iota
	actionNext
	actionSubmit
	actionReview
	actionQuit
)

var actionLabels = map[action]string{
	actionPrevious: "Previous page",
	actionNext:     "Next page",
	actionSubmit:   "Submit",
	actionReview:   "Review this page again",
	actionQuit:     "Quit",
}

// Run prompts page by page until the form is submitted or the user quits.
// Quitting returns ErrAborted.
func (r *Renderer) Run(ctx context.Context) (orchestrator.SubmitResult, error) {
	if ctx == nil {
		return orchestrator.SubmitResult{}, errors.New("tui: context is required")
	}
	for {
		if err := ctx.Err(); err != nil {
			return orchestrator.SubmitResult{}, err
		}
		if err := r.page(ctx); err != nil {
			return orchestrator.SubmitResult{}, err
		}

		actions := r.actions()
		labels := make([]string, len(actions))
		for i, a := range actions {
			labels[i] = actionLabels[a]
		}
		idx, err := r.driver.Select(ctx, SelectConfig{Message: "What next?", Options: labels})
		if err != nil {
			return orchestrator.SubmitResult{}, translateSurveyErr(err)
		}
		if idx < 0 || idx >= len(actions) {
			continue
		}

		switch actions[idx] {
		case actionPrevious:
			if _, err := r.form.Previous(ctx); err != nil {
				return orchestrator.SubmitResult{}, err
			}
		case actionNext:
			nav, err := r.form.Next(ctx)
			if err != nil {
				return orchestrator.SubmitResult{}, err
			}
			if !nav.Moved && nav.Focus != nil {
				if err := r.blocked(ctx, "Cannot continue", nav.Focus); err != nil {
					return orchestrator.SubmitResult{}, err
				}
			}
		case actionSubmit:
			ok, err := r.driver.Confirm(ctx, ConfirmConfig{Message: "Submit the form?", Default: true})
			if err != nil {
				return orchestrator.SubmitResult{}, translateSurveyErr(err)
			}
			if !ok {
				continue
			}
			result, err := r.form.Submit(ctx)
			if err != nil {
				return result, err
			}
			if result.Advanced {
				return result, r.driver.Info(ctx, r.theme.Title.Render("Submitted."))
			}
			if err := r.blocked(ctx, "Cannot submit yet", result.Focus); err != nil {
				return result, err
			}
		case actionQuit:
			return orchestrator.SubmitResult{}, ErrAborted
		}
	}
}

func (r *Renderer) page(ctx context.Context) error {
	pages := r.form.Pages()
	current := r.form.Page()
	title := fmt.Sprintf("%s (%d/%d)", current, slices.Index(pages, current)+1, len(pages))
	if err := r.driver.Info(ctx, r.theme.Title.Render(title)); err != nil {
		return err
	}
	instances := r.form.Render()
	if err := r.messages(ctx, instances); err != nil {
		return err
	}
	return components.Render(ctx, r, instances)
}

func (r *Renderer) actions() []action {
	pages := r.form.Pages()
	idx := slices.Index(pages, r.form.Page())
	var out []action
	if idx > 0 {
		out = append(out, actionPrevious)
	}
	if idx >= 0 && idx < len(pages)-1 {
		out = append(out, actionNext)
	} else {
		out = append(out, actionSubmit)
	}
	return append(out, actionReview, actionQuit)
}

// blocked reports why a move was refused and opens the page holding the
// first invalid component.
func (r *Renderer) blocked(ctx context.Context, prefix string, focus *orchestrator.Focus) error {
	if focus == nil {
		return r.driver.Info(ctx, r.theme.Error.Render(prefix+": the form has errors"))
	}
	target := focus.Binding
	if target == "" {
		target = focus.ComponentID
	}
	if err := r.driver.Info(ctx, r.theme.Error.Render(fmt.Sprintf("%s: %s needs attention", prefix, target))); err != nil {
		return err
	}
	if focus.Page != "" && focus.Page != r.form.Page() {
		if _, err := r.form.NavigateTo(ctx, focus.Page); err != nil {
			return err
		}
	}
	return nil
}
