package orchestrator

import (
	"strings"

	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
)

func (o *Orchestrator) onOptionsLoaded(ev options.Loaded) {
	if ev.Err != nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.resolved == nil {
		return
	}
	o.bus.publish(Signal{Kind: SignalOptionsLoaded, Message: ev.Key})
	o.refreshOptionsLocked()
}

// refreshOptionsLocked applies option effects on the current page: a
// preselected option fills an empty choice once, and a selection missing
// from a freshly loaded set is cleared without reporting it as a missing
// required value.
func (o *Orchestrator) refreshOptionsLocked() {
	if o.resolved == nil {
		return
	}
	var changed []string
	for _, inst := range o.renderLocked() {
		inst.Walk(func(i *components.Instance) bool {
			if i.Hidden {
				return false
			}
			if !isChoice(i.Kind) || !hasOptionSource(i.Node) || i.Options.Loading || i.Binding() == "" {
				return true
			}
			if key, ok := o.preselectLocked(i); ok {
				changed = append(changed, key)
				return true
			}
			if key, ok := o.resetLocked(i); ok {
				changed = append(changed, key)
			}
			return true
		})
	}
	if len(changed) == 0 {
		return
	}
	o.validateKeysLocked(changed...)
	for _, key := range changed {
		o.scheduleLocked(key)
	}
}

func (o *Orchestrator) preselectLocked(inst *components.Instance) (string, bool) {
	idx := inst.Node.PreselectedOptionIndex
	if idx == nil || inst.Value != "" || o.preselected[inst.ID] {
		return "", false
	}
	if *idx < 0 || *idx >= len(inst.Options.Options) {
		return "", false
	}
	o.preselected[inst.ID] = true
	key := inst.Binding()
	o.doc[key] = inst.Options.Options[*idx].Value
	o.dirty[key] = struct{}{}
	o.bus.publish(Signal{Kind: SignalValueChanged, Keys: []string{key}})
	return key, true
}

func (o *Orchestrator) resetLocked(inst *components.Instance) (string, bool) {
	if inst.Value == "" {
		return "", false
	}
	key := inst.Binding()
	kept := keptSelection(inst.Kind, inst.Options, inst.Value)
	if kept == inst.Value {
		return "", false
	}
	o.logger.Info("orchestrator: clearing selection missing from options", "key", key, "value", inst.Value)
	if kept == "" {
		delete(o.doc, key)
	} else {
		o.doc[key] = kept
	}
	o.dirty[key] = struct{}{}
	o.validations.SkipRequiredOnce(key)
	o.bus.publish(Signal{Kind: SignalValueReset, Keys: []string{key}})
	return key, true
}

func hasOptionSource(node *layout.Node) bool {
	return strings.TrimSpace(node.OptionsID) != "" || len(node.Options) > 0 || node.Source != nil
}

// keptSelection returns the part of value still offered by set. Checkbox
// values hold a comma separated list.
func keptSelection(kind layout.Kind, set options.Set, value string) string {
	if kind != layout.KindCheckboxes {
		if options.NeedsReset(set, value) {
			return ""
		}
		return value
	}
	parts := strings.Split(value, ",")
	kept := parts[:0]
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" && set.Contains(part) {
			kept = append(kept, part)
		}
	}
	if len(kept) == len(parts) {
		return value
	}
	return strings.Join(kept, ",")
}
