package components

import (
	"sort"

	"github.com/goliatone/go-formruntime/pkg/validation"
)

// Visit calls fn for every visible instance, skipping hidden subtrees.
func Visit(instances []*Instance, fn func(*Instance)) {
	for _, inst := range instances {
		inst.Walk(func(i *Instance) bool {
			if i.Hidden {
				return false
			}
			fn(i)
			return true
		})
	}
}

// Validate runs the client rules of every visible instance and returns the
// messages keyed by binding.
func Validate(instances []*Instance, check Check) map[string]validation.Messages {
	out := make(map[string]validation.Messages)
	Visit(instances, func(inst *Instance) {
		msgs, ok := inst.Component().Validate(check, inst)
		if !ok {
			return
		}
		out[inst.Binding()] = validation.Merge(out[inst.Binding()], msgs)
	})
	return out
}

// PageValid reports whether no visible instance holds an error in state.
func PageValid(instances []*Instance, state *validation.State) bool {
	_, invalid := FirstInvalid(instances, state)
	return !invalid
}

// FirstInvalid returns the first visible instance, in layout order, whose
// binding holds an error in state.
func FirstInvalid(instances []*Instance, state *validation.State) (*Instance, bool) {
	var first *Instance
	Visit(instances, func(inst *Instance) {
		if first != nil {
			return
		}
		key := inst.Binding()
		if key == "" {
			return
		}
		if state.For(key).HasErrors() {
			first = inst
		}
	})
	return first, first != nil
}

// BindingKeys returns the concrete bindings of visible and hidden instances.
// A key bound by any visible instance is never reported as hidden.
func BindingKeys(instances []*Instance) (visible, hidden []string) {
	seenVisible := make(map[string]struct{})
	seenHidden := make(map[string]struct{})
	for _, inst := range instances {
		inst.Walk(func(i *Instance) bool {
			for _, key := range i.Bindings {
				if i.Hidden {
					seenHidden[key] = struct{}{}
				} else {
					seenVisible[key] = struct{}{}
				}
			}
			return true
		})
	}
	for key := range seenVisible {
		visible = append(visible, key)
	}
	for key := range seenHidden {
		if _, ok := seenVisible[key]; ok {
			continue
		}
		hidden = append(hidden, key)
	}
	sort.Strings(visible)
	sort.Strings(hidden)
	return visible, hidden
}
