package components

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/textres"
	"github.com/goliatone/go-formruntime/pkg/validation"
	"github.com/goliatone/go-formruntime/pkg/visibility"
)

// Instance is a layout node resolved for one repetition context.
type Instance struct {
	// ID is the node id, suffixed with the row indices inside repeating
	// groups (pet-kind-0-1).
	ID     string
	Node   *layout.Node
	Kind   layout.Kind
	Frames []binding.Frame
	// Bindings maps binding keys (simpleBinding, group, ...) to concrete
	// document paths.
	Bindings map[string]string
	Label    string
	Value    string
	Hidden   bool
	ReadOnly bool
	Options  options.Set
	Messages validation.Messages
	// Children holds the contents of a non-repeating group.
	Children []*Instance
	// Rows holds one instance list per entry of a repeating group.
	Rows [][]*Instance
	// Lines holds the rendered values a summary refers to.
	Lines []SummaryLine
	// ConfigErr is set when a binding template cannot be resolved for this
	// repetition. The affected binding is left unbound.
	ConfigErr error
}

// SummaryLine is one label/value pair shown by a summary component.
type SummaryLine struct {
	Binding string
	Label   string
	Value   string
}

// Component returns the variant implementing the instance.
func (i *Instance) Component() Component { return For(i.Kind) }

// Binding returns the concrete simple binding of the instance.
func (i *Instance) Binding() string {
	if i == nil {
		return ""
	}
	return i.Bindings["simpleBinding"]
}

// Repeating reports whether the instance is a repeating group.
func (i *Instance) Repeating() bool { return i != nil && i.Node.Repeating() }

// Walk visits i and every descendant, rows included, depth first. Returning
// false skips the descendants of the visited instance.
func (i *Instance) Walk(fn func(*Instance) bool) {
	if i == nil || !fn(i) {
		return
	}
	for _, child := range i.Children {
		child.Walk(fn)
	}
	for _, row := range i.Rows {
		for _, child := range row {
			child.Walk(fn)
		}
	}
}

// OptionSource resolves option sets; *options.Resolver satisfies it.
type OptionSource interface {
	Get(req options.Request, doc binding.FlatMap) options.Set
}

// Scope is the input of a tree build.
type Scope struct {
	Page *layout.Page
	// Pages lets summaries reach components on other pages.
	Pages map[string]*layout.Page
	Doc   binding.FlatMap
	State *validation.State
}

// TreeOption customises a Tree.
type TreeOption func(*Tree)

// WithVisibility sets the visibility engine.
func WithVisibility(engine *visibility.Engine) TreeOption {
	return func(t *Tree) {
		if engine != nil {
			t.visibility = engine
		}
	}
}

// WithOptions sets the option source used by choice components.
func WithOptions(source OptionSource) TreeOption {
	return func(t *Tree) {
		if source != nil {
			t.options = source
		}
	}
}

// WithTexts sets the text resources used for labels.
func WithTexts(texts *textres.Resources) TreeOption {
	return func(t *Tree) {
		if texts != nil {
			t.texts = texts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) TreeOption {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Tree builds component instances from layout pages.
type Tree struct {
	visibility *visibility.Engine
	options    OptionSource
	texts      *textres.Resources
	logger     *slog.Logger
}

// NewTree constructs a Tree.
func NewTree(opts ...TreeOption) *Tree {
	t := &Tree{}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.visibility == nil {
		t.visibility = visibility.New()
	}
	if t.texts == nil {
		t.texts = textres.New(nil)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Build resolves the top-level nodes of scope.Page. Descendants of hidden
// nodes are hidden too.
func (t *Tree) Build(scope Scope) []*Instance {
	if scope.Page == nil {
		return nil
	}
	out := make([]*Instance, 0, len(scope.Page.Nodes))
	for _, node := range scope.Page.Nodes {
		out = append(out, t.build(scope, node, nil, false))
	}
	return out
}

func (t *Tree) build(scope Scope, node *layout.Node, frames []binding.Frame, parentHidden bool) *Instance {
	inst := &Instance{
		ID:       instanceID(node.ID, frames),
		Node:     node,
		Kind:     node.Kind,
		Frames:   frames,
		ReadOnly: node.ReadOnly,
	}
	inst.Bindings, inst.ConfigErr = resolveBindings(node, frames)
	if inst.ConfigErr != nil {
		t.logger.Error("components: unresolved binding template", "component", inst.ID, "error", inst.ConfigErr)
	}
	inst.Label = t.label(node)
	inst.Hidden = parentHidden || inst.Component().IsHidden(t.visibility, node, visibility.Context{Doc: scope.Doc, Frames: frames})
	if key := inst.Binding(); key != "" {
		inst.Value = scope.Doc[key]
		if scope.State != nil {
			inst.Messages = scope.State.For(key)
		}
	}

	switch inst.Component().(type) {
	case choiceComponent:
		inst.Options = t.optionSet(inst, scope.Doc)
	case summaryComponent:
		inst.Lines = t.summarize(scope, node)
	}

	if node.Kind != layout.KindGroup {
		return inst
	}
	if node.Repeating() {
		group := node.Binding("group")
		if binding.HasPlaceholders(group) {
			group = inst.Bindings["group"]
		}
		count := 0
		if group != "" {
			count = binding.Count(scope.Doc, binding.ResolveInGroups(group, frames))
		}
		if count > node.MaxCount {
			count = node.MaxCount
		}
		inst.Rows = make([][]*Instance, 0, count)
		for i := 0; i < count; i++ {
			inner := appendFrame(frames, binding.Frame{Binding: group, Index: i})
			row := make([]*Instance, 0, len(node.Nodes))
			for _, child := range node.Nodes {
				row = append(row, t.build(scope, child, inner, inst.Hidden))
			}
			inst.Rows = append(inst.Rows, row)
		}
		return inst
	}
	for _, child := range node.Nodes {
		inst.Children = append(inst.Children, t.build(scope, child, frames, inst.Hidden))
	}
	return inst
}

func (t *Tree) label(node *layout.Node) string {
	key := strings.TrimSpace(node.TextResourceBindings["title"])
	if key == "" {
		return ""
	}
	return t.texts.Text(key, nil)
}

func (t *Tree) optionSet(inst *Instance, doc binding.FlatMap) options.Set {
	node := inst.Node
	req := options.Request{
		Consumer: inst.Binding(),
		ID:       node.OptionsID,
		Mapping:  node.Mapping,
		Static:   node.Options,
		Source:   node.Source,
		Frames:   inst.Frames,
	}
	if t.options == nil {
		set, _ := options.Local(req, doc)
		return set
	}
	return t.options.Get(req, doc)
}

func (t *Tree) summarize(scope Scope, node *layout.Node) []SummaryLine {
	ref := propString(node, "componentRef")
	if ref == "" {
		return nil
	}
	target := findNode(scope, propString(node, "pageRef"), ref)
	if target == nil {
		t.logger.Warn("components: summary reference not found", "component", node.ID, "ref", ref)
		return nil
	}
	var lines []SummaryLine
	var walk func(n *layout.Node, frames []binding.Frame)
	walk = func(n *layout.Node, frames []binding.Frame) {
		bound, _ := resolveBindings(n, frames)
		if concrete := bound["simpleBinding"]; concrete != "" {
			lines = append(lines, SummaryLine{Binding: concrete, Label: t.label(n), Value: scope.Doc[concrete]})
		}
		if n.Repeating() {
			group := n.Binding("group")
			if binding.HasPlaceholders(group) {
				group = bound["group"]
			}
			count := 0
			if group != "" {
				count = binding.Count(scope.Doc, binding.ResolveInGroups(group, frames))
			}
			for i := 0; i < count; i++ {
				inner := appendFrame(frames, binding.Frame{Binding: group, Index: i})
				for _, child := range n.Nodes {
					walk(child, inner)
				}
			}
			return
		}
		for _, child := range n.Nodes {
			walk(child, frames)
		}
	}
	walk(target, nil)
	return lines
}

func findNode(scope Scope, pageRef, id string) *layout.Node {
	if page := scope.Pages[pageRef]; page != nil {
		if n, ok := page.Node(id); ok {
			return n
		}
	}
	if scope.Page != nil {
		if n, ok := scope.Page.Node(id); ok {
			return n
		}
	}
	ids := make([]string, 0, len(scope.Pages))
	for pid := range scope.Pages {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	for _, pid := range ids {
		if n, ok := scope.Pages[pid].Node(id); ok {
			return n
		}
	}
	return nil
}

func propString(node *layout.Node, key string) string {
	v, ok := node.Props[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// resolveBindings maps the declared bindings of node onto the repetition
// described by frames. Index placeholders are substituted first; a template
// that needs more levels than frames provide stays unbound and is reported.
func resolveBindings(node *layout.Node, frames []binding.Frame) (map[string]string, error) {
	out := make(map[string]string, len(node.DataModelBindings))
	var first error
	for _, key := range sortedBindingKeys(node.DataModelBindings) {
		path := strings.TrimSpace(node.DataModelBindings[key])
		if path == "" {
			continue
		}
		if binding.HasPlaceholders(path) {
			resolved, err := binding.Resolve(path, binding.Indices(frames))
			if err != nil {
				if first == nil {
					first = fmt.Errorf("binding %q: %w", key, err)
				}
				continue
			}
			path = resolved
		}
		out[key] = binding.ResolveInGroups(path, frames)
	}
	return out, first
}

func sortedBindingKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func instanceID(id string, frames []binding.Frame) string {
	if len(frames) == 0 {
		return id
	}
	var b strings.Builder
	b.WriteString(id)
	for _, f := range frames {
		fmt.Fprintf(&b, "-%d", f.Index)
	}
	return b.String()
}

func appendFrame(frames []binding.Frame, frame binding.Frame) []binding.Frame {
	out := make([]binding.Frame, 0, len(frames)+1)
	out = append(out, frames...)
	return append(out, frame)
}
