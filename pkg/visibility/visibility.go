package visibility

import (
	"log/slog"
	"sync"

	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/visibility/expr"
)

// Context is the input to a visibility rule: the flat form document and the
// repetitions enclosing the node being rendered, outermost first.
type Context struct {
	Doc    binding.FlatMap
	Frames []binding.Frame
}

// Indices returns the index chain of the enclosing repetitions.
func (c Context) Indices() []int { return binding.Indices(c.Frames) }

// Lookup resolves identifiers against the document, mapping group-relative
// bindings onto the current repetition.
func (c Context) Lookup(identifier string) (string, bool) {
	key := binding.ResolveInGroups(identifier, c.Frames)
	value, ok := c.Doc[key]
	return value, ok
}

// Evaluator determines whether a rule holds in a context.
type Evaluator interface {
	Eval(rule string, ctx Context) (bool, error)
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(rule string, ctx Context) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(rule string, ctx Context) (bool, error) {
	return fn(rule, ctx)
}

// Option customises an Engine.
type Option func(*Engine)

// WithEvaluator replaces the built-in expression evaluator.
func WithEvaluator(evaluator Evaluator) Option {
	return func(e *Engine) {
		if evaluator != nil {
			e.evaluator = evaluator
		}
	}
}

// WithLogger sets the logger used to report rule errors.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine evaluates node visibility. It is safe for concurrent use.
type Engine struct {
	evaluator Evaluator
	logger    *slog.Logger
	parsed    sync.Map
}

// New constructs an Engine backed by the expr package unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.evaluator == nil {
		e.evaluator = EvaluatorFunc(e.evalExpr)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Eval substitutes index placeholders in rule and evaluates it.
func (e *Engine) Eval(rule string, ctx Context) (bool, error) {
	concrete, err := binding.Resolve(rule, ctx.Indices())
	if err != nil {
		return false, err
	}
	return e.evaluator.Eval(concrete, ctx)
}

func (e *Engine) evalExpr(rule string, ctx Context) (bool, error) {
	if cached, ok := e.parsed.Load(rule); ok {
		return cached.(*expr.Expr).Eval(ctx.Lookup)
	}
	parsed, err := expr.Parse(rule)
	if err != nil {
		return false, err
	}
	e.parsed.Store(rule, parsed)
	return parsed.Eval(ctx.Lookup)
}

// IsHidden reports whether node itself is hidden: its hidden condition holds
// or its visibility rule does not. Rules that fail to evaluate are logged and
// leave the node visible. Ancestor visibility is not considered here.
func (e *Engine) IsHidden(node *layout.Node, ctx Context) bool {
	if node == nil {
		return false
	}
	if !node.Hidden.Empty() {
		hidden, err := e.Eval(string(node.Hidden), ctx)
		if err != nil {
			e.logger.Warn("visibility: hidden rule failed", "component", node.ID, "rule", string(node.Hidden), "error", err)
		} else if hidden {
			return true
		}
	}
	if !node.VisibilityRule.Empty() {
		visible, err := e.Eval(string(node.VisibilityRule), ctx)
		if err != nil {
			e.logger.Warn("visibility: visibility rule failed", "component", node.ID, "rule", string(node.VisibilityRule), "error", err)
		} else if !visible {
			return true
		}
	}
	return false
}

// Dependencies lists the bindings referenced by a node's visibility rules, so
// callers can re-evaluate only when one of them changes.
func Dependencies(node *layout.Node) []string {
	if node == nil {
		return nil
	}
	var out []string
	for _, rule := range []layout.Condition{node.Hidden, node.VisibilityRule} {
		if rule.Empty() {
			continue
		}
		parsed, err := expr.Parse(string(rule))
		if err != nil {
			continue
		}
		out = append(out, parsed.Identifiers()...)
	}
	return out
}
