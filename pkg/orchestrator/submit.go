package orchestrator

import (
	"context"
	"fmt"
	"slices"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

// Submit validates every page on the client. Any error stops the submit
// before a network call and points Focus at the first invalid component.
// Otherwise the document is saved, the instance validated remotely and,
// when the backend reports no outstanding issue of any severity, the process
// task completed.
//
// Stateless sessions end after the save.
func (o *Orchestrator) Submit(ctx context.Context) (SubmitResult, error) {
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return SubmitResult{}, err
	}
	if focus, invalid := o.validatePagesLocked(o.resolved.Order); invalid {
		result := SubmitResult{Issues: o.validations.All(), Focus: focus}
		o.mu.Unlock()
		o.logger.Info("orchestrator: submit blocked by client validation", "page", focus.Page, "binding", focus.Binding)
		return result, nil
	}
	o.setStateLocked(StateSubmitPending)
	key := o.key
	task := o.instance.CurrentTask()
	o.mu.Unlock()

	if err := o.saveAll(ctx, TriggerSubmit); err != nil {
		o.abortSubmit()
		return SubmitResult{}, err
	}

	if !key.Stateless() {
		issues, err := o.backend.ValidateInstance(ctx, key.InstanceID)
		if err != nil {
			o.abortSubmit()
			return SubmitResult{}, fmt.Errorf("orchestrator: validate instance: %w", err)
		}

		o.mu.Lock()
		o.seq++
		byKey := validation.MapIssues(issues, key.DataElementID)
		if updated := o.validations.ReplaceServer(byKey, o.seq); len(updated) > 0 {
			o.bus.publish(Signal{Kind: SignalValidationsChanged, Keys: updated, Seq: o.seq})
		}
		if len(byKey) > 0 {
			focus := o.firstInvalidLocked(o.resolved.Order)
			result := SubmitResult{Issues: o.validations.All(), Focus: focus}
			o.setStateLocked(StateReady)
			o.mu.Unlock()
			o.logger.Info("orchestrator: submit blocked by server issues", "issues", len(issues))
			return result, nil
		}
		o.mu.Unlock()

		if err := o.backend.CompleteProcessTask(ctx, key.InstanceID, task); err != nil {
			o.abortSubmit()
			return SubmitResult{}, fmt.Errorf("orchestrator: complete task %q: %w", task, err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.setStateLocked(StateCompleted)
	o.bus.publish(Signal{Kind: SignalCompleted, Page: o.page})
	o.logger.Info("orchestrator: submitted", "key", key.String(), "task", task)
	return SubmitResult{Advanced: true}, nil
}

func (o *Orchestrator) abortSubmit() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSubmitPending {
		o.setStateLocked(StateReady)
	}
}

// Next moves to the following page.
func (o *Orchestrator) Next(ctx context.Context) (NavResult, error) {
	return o.step(ctx, 1)
}

// Previous moves to the preceding page.
func (o *Orchestrator) Previous(ctx context.Context) (NavResult, error) {
	return o.step(ctx, -1)
}

func (o *Orchestrator) step(ctx context.Context, offset int) (NavResult, error) {
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return NavResult{}, err
	}
	current := o.page
	target, ok := o.resolved.Neighbour(current, offset)
	o.mu.Unlock()
	if !ok {
		return NavResult{Page: current}, nil
	}
	return o.NavigateTo(ctx, target)
}

// NavigateTo saves the document and opens page. Moving forward is refused
// while the current page has client errors when the layout settings ask
// for page validation. A save that fails in transport does not block the
// move.
func (o *Orchestrator) NavigateTo(ctx context.Context, page string) (NavResult, error) {
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return NavResult{}, err
	}
	current := o.page
	if _, ok := o.resolved.Page(page); !ok {
		o.mu.Unlock()
		return NavResult{Page: current}, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	if page == current {
		o.mu.Unlock()
		return NavResult{Page: current}, nil
	}
	forward := slices.Index(o.resolved.Order, page) > slices.Index(o.resolved.Order, current)
	if forward && o.resolved.ValidatesOnNavigate() {
		if focus, invalid := o.validatePagesLocked([]string{current}); invalid {
			o.mu.Unlock()
			return NavResult{Page: current, Focus: focus}, nil
		}
	}
	o.mu.Unlock()

	if err := o.saveAll(ctx, TriggerNavigate); err != nil && !backend.IsTransport(err) {
		return NavResult{Page: current}, err
	}

	o.mu.Lock()
	o.page = page
	cacheKey := o.resolved.CacheKey
	o.bus.publish(Signal{Kind: SignalPageChanged, Page: page})
	o.refreshOptionsLocked()
	o.mu.Unlock()

	if err := o.layouts.Remember(ctx, cacheKey, page); err != nil {
		o.logger.Warn("orchestrator: remember page failed", "page", page, "error", err)
	}
	return NavResult{Moved: true, Page: page}, nil
}

// ValidatePage runs the client rules of page and reports where the first
// error is, if any.
func (o *Orchestrator) ValidatePage(page string) (*Focus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resolved == nil {
		return nil, false
	}
	return o.validatePagesLocked([]string{page})
}

// validatePagesLocked replaces the client messages of the visible bindings
// of pages and returns the first invalid component in page order.
func (o *Orchestrator) validatePagesLocked(pages []string) (*Focus, bool) {
	built := o.pageInstances()
	check := o.check(false)
	results := make(map[string]validation.Messages)
	for _, id := range pages {
		for key, msgs := range components.Validate(built[id], check) {
			results[key] = validation.Merge(results[key], msgs)
		}
	}
	changed := make([]string, 0, len(results))
	for key, msgs := range results {
		o.validations.SetClient(key, msgs)
		changed = append(changed, key)
	}
	if len(changed) > 0 {
		o.bus.publish(Signal{Kind: SignalValidationsChanged, Keys: dedupe(changed)})
	}
	for _, id := range pages {
		var first *components.Instance
		components.Visit(built[id], func(i *components.Instance) {
			if first == nil && i.Binding() != "" && results[i.Binding()].HasErrors() {
				first = i
			}
		})
		if first != nil {
			return &Focus{Page: id, ComponentID: first.ID, Binding: first.Binding()}, true
		}
	}
	return nil, false
}

func (o *Orchestrator) firstInvalidLocked(pages []string) *Focus {
	built := o.pageInstances()
	for _, id := range pages {
		if inst, ok := components.FirstInvalid(built[id], o.validations); ok {
			return &Focus{Page: id, ComponentID: inst.ID, Binding: inst.Binding()}
		}
	}
	if o.validations.For(validation.FormLevel).HasErrors() {
		return &Focus{Page: o.page}
	}
	return nil
}
