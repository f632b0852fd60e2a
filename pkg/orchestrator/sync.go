package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/validation"
	"github.com/goliatone/go-formruntime/pkg/visibility"
)

// SetValue commits value to key. An empty value removes the key. The key is
// validated on the client and, with autosave on, its debounce timer is
// restarted so that rapid edits collapse into one save.
func (o *Orchestrator) SetValue(key, value string) error {
	key = strings.TrimSpace(key)
	if _, err := binding.ParsePath(key); err != nil {
		return fmt.Errorf("orchestrator: set value: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.editableLocked(); err != nil {
		return err
	}
	if value == "" {
		delete(o.doc, key)
	} else {
		o.doc[key] = value
	}
	o.dirty[key] = struct{}{}
	o.bus.publish(Signal{Kind: SignalValueChanged, Keys: []string{key}})

	o.validateKeysLocked(append([]string{key}, o.dependentsLocked(key)...)...)
	o.scheduleLocked(key)
	o.refreshOptionsLocked()
	return nil
}

// Blur saves key immediately when it has unsaved edits or the previous save
// failed. Its pending debounce is cancelled.
func (o *Orchestrator) Blur(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	o.mu.Lock()
	if err := o.editableLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if t, ok := o.timers[key]; ok {
		t.Stop()
		delete(o.timers, key)
	}
	_, pending := o.dirty[key]
	run := o.autoSaveLocked() && (pending || o.lastFailed)
	o.mu.Unlock()
	if !run {
		return nil
	}
	return o.save(ctx, TriggerBlur, []string{key})
}

// SaveAll cancels pending debounces and saves the whole document. It always
// issues a save, with autosave on or off.
func (o *Orchestrator) SaveAll(ctx context.Context) error {
	return o.saveAll(ctx, TriggerManual)
}

func (o *Orchestrator) saveAll(ctx context.Context, trigger Trigger) error {
	o.mu.Lock()
	keys := make([]string, 0, len(o.timers)+len(o.dirty))
	for key, t := range o.timers {
		t.Stop()
		delete(o.timers, key)
		keys = append(keys, key)
	}
	for key := range o.dirty {
		keys = append(keys, key)
	}
	o.mu.Unlock()
	return o.save(ctx, trigger, dedupe(keys))
}

func (o *Orchestrator) editableLocked() error {
	switch {
	case o.closed:
		return ErrClosed
	case o.state == StateReady, o.state == StateSaving:
		return nil
	default:
		return fmt.Errorf("%w: state %s", ErrNotReady, o.state)
	}
}

// scheduleLocked restarts the debounce timer of key. Without autosave the
// edit waits for the next full save.
func (o *Orchestrator) scheduleLocked(key string) {
	if !o.autoSaveLocked() {
		return
	}
	if t, ok := o.timers[key]; ok {
		t.Stop()
	}
	o.timers[key] = o.clock.AfterFunc(o.debounce, func() { o.fire(key) })
}

func (o *Orchestrator) fire(key string) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	delete(o.timers, key)
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if err := o.save(o.ctx, TriggerDebounce, []string{key}); err != nil {
			o.logger.Warn("orchestrator: autosave failed", "key", key, "error", err)
		}
	}()
}

// save sends the current snapshot, minus hidden bindings. The response is
// applied only when no newer save response was applied already.
func (o *Orchestrator) save(ctx context.Context, trigger Trigger, keys []string) error {
	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return ErrClosed
	case o.state != StateReady && o.state != StateSaving && o.state != StateSubmitPending:
		o.mu.Unlock()
		return fmt.Errorf("%w: state %s", ErrNotReady, o.state)
	}

	o.seq++
	task := Task{ID: uuid.NewString(), Seq: o.seq, Trigger: trigger, Keys: keys}
	doc, err := binding.Unflatten(o.payloadLocked())
	if err != nil {
		o.logger.Warn("orchestrator: dropping malformed paths from save", "task", task.ID, "error", err)
	}
	task.Doc = doc
	sent := o.dirty
	o.dirty = make(map[string]struct{})
	o.inflight++
	if o.state == StateReady {
		o.setStateLocked(StateSaving)
	}
	key := o.key
	o.mu.Unlock()

	o.logger.Debug("orchestrator: save", "task", task.ID, "seq", task.Seq, "trigger", task.Trigger, "keys", task.Keys)
	issues, err := o.backend.SaveFormData(ctx, key, task.Doc)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.inflight--
	defer o.settleLocked()

	if err != nil {
		return o.saveFailedLocked(task, sent, err)
	}
	if task.Seq < o.appliedSeq {
		o.logger.Debug("orchestrator: discarding stale save response", "task", task.ID, "seq", task.Seq, "applied", o.appliedSeq)
		return nil
	}
	o.appliedSeq = task.Seq
	if task.Seq > o.failedSeq {
		o.lastFailed = false
	}
	byKey := validation.MapIssues(issues, key.DataElementID)
	if updated := o.validations.ReplaceServer(byKey, task.Seq); len(updated) > 0 {
		o.bus.publish(Signal{Kind: SignalValidationsChanged, Keys: updated, Seq: task.Seq, TaskID: task.ID})
	}
	return nil
}

func (o *Orchestrator) saveFailedLocked(task Task, sent map[string]struct{}, err error) error {
	for k := range sent {
		o.dirty[k] = struct{}{}
	}
	wrapped := fmt.Errorf("orchestrator: save %s: %w", task.Trigger, err)
	switch backend.KindOf(err) {
	case backend.KindAuthRequired, backend.KindClient:
		o.logger.Error("orchestrator: save rejected", "task", task.ID, "seq", task.Seq, "error", err)
		o.setStateLocked(StateFailed)
	default:
		o.logger.Warn("orchestrator: save failed", "task", task.ID, "seq", task.Seq, "error", err)
		if task.Seq > o.appliedSeq {
			o.lastFailed = true
			o.failedSeq = max(o.failedSeq, task.Seq)
		}
	}
	o.bus.publish(Signal{Kind: SignalSaveFailed, Seq: task.Seq, TaskID: task.ID, Trigger: task.Trigger, Keys: task.Keys, Err: wrapped})
	return wrapped
}

func (o *Orchestrator) settleLocked() {
	if o.inflight == 0 && o.state == StateSaving {
		o.setStateLocked(StateReady)
	}
}

// payloadLocked returns the document without bindings owned only by hidden
// components.
func (o *Orchestrator) payloadLocked() binding.FlatMap {
	_, hidden := components.BindingKeys(o.allInstancesLocked())
	if len(hidden) == 0 {
		return o.doc.Clone()
	}
	return o.doc.Without(hidden...)
}

// validateKeysLocked re-runs the client rules of the given bindings on every
// page and clears client messages of bindings that became hidden.
func (o *Orchestrator) validateKeysLocked(keys ...string) {
	if o.resolved == nil {
		return
	}
	all := o.allInstancesLocked()
	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	results := make(map[string]validation.Messages, len(keys))
	seen := make(map[string]bool, len(keys))
	check := o.check(true)
	components.Visit(all, func(inst *components.Instance) {
		key := inst.Binding()
		if _, ok := wanted[key]; !ok {
			return
		}
		msgs, ok := inst.Component().Validate(check, inst)
		if !ok {
			return
		}
		seen[key] = true
		results[key] = validation.Merge(results[key], msgs)
	})
	for _, key := range keys {
		o.validations.SetClient(key, results[key])
		if !seen[key] {
			o.validations.ConsumeSkipRequired(key)
		}
	}

	_, hidden := components.BindingKeys(all)
	if len(hidden) > 0 {
		o.validations.ClearClient(func(key string) bool {
			for _, h := range hidden {
				if binding.Within(key, h) {
					return true
				}
			}
			return false
		})
	}
	o.bus.publish(Signal{Kind: SignalValidationsChanged, Keys: keys})
}

// dependentsLocked returns the filled-in bindings under components whose
// visibility rules read key.
func (o *Orchestrator) dependentsLocked(key string) []string {
	if o.resolved == nil {
		return nil
	}
	var out []string
	for _, top := range o.allInstancesLocked() {
		top.Walk(func(inst *components.Instance) bool {
			if !readsBinding(inst, key) {
				return true
			}
			components.Visit([]*components.Instance{inst}, func(child *components.Instance) {
				if b := child.Binding(); b != "" && b != key && o.doc[b] != "" {
					out = append(out, b)
				}
			})
			return false
		})
	}
	return dedupe(out)
}

func readsBinding(inst *components.Instance, key string) bool {
	for _, dep := range visibility.Dependencies(inst.Node) {
		if binding.ResolveInGroups(dep, inst.Frames) == key {
			return true
		}
	}
	return false
}

func dedupe(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	out := keys[:1]
	for _, k := range keys[1:] {
		if k != out[len(out)-1] {
			out = append(out, k)
		}
	}
	return out
}
