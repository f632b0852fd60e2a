package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/components"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/session"
	"github.com/goliatone/go-formruntime/pkg/textres"
	"github.com/goliatone/go-formruntime/pkg/validation"
	"github.com/goliatone/go-formruntime/pkg/visibility"
)

// DefaultDebounce is the delay between the last edit of a binding and its
// autosave.
const DefaultDebounce = 200 * time.Millisecond

// Config identifies the form session.
type Config struct {
	// App is the application metadata. When App.ID is empty and the backend
	// implements backend.Bootstrapper, it is fetched during Start.
	App layout.AppMetadata
	// Instance is the instance being filled in. Ignored for stateless
	// applications. When nil, InstanceID is fetched during Start.
	Instance   *layout.Instance
	InstanceID string
	// PartyID selects the party stateless data is read on behalf of.
	PartyID string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache sets the session cache. It is never shared implicitly between
// orchestrators.
func WithCache(cache *session.Cache) Option {
	return func(o *Orchestrator) {
		if cache != nil {
			o.cache = cache
		}
	}
}

// WithPageStore sets where the last visited page is persisted.
func WithPageStore(store layout.PageStore) Option {
	return func(o *Orchestrator) {
		if store != nil {
			o.pageStore = store
		}
	}
}

// WithKinds overrides the component kind registry.
func WithKinds(kinds *layout.Kinds) Option {
	return func(o *Orchestrator) {
		if kinds != nil {
			o.kinds = kinds
		}
	}
}

// WithTexts sets the text resources used for labels and messages.
func WithTexts(texts *textres.Resources) Option {
	return func(o *Orchestrator) {
		if texts != nil {
			o.texts = texts
		}
	}
}

// WithRules adds data-model rules applied on top of component rules.
func WithRules(rules validation.RuleSet) Option {
	return func(o *Orchestrator) {
		if rules != nil {
			o.rules = rules
		}
	}
}

// WithClock replaces the clock scheduling debounced saves.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithDebounce sets the autosave delay.
func WithDebounce(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithVisibility sets the visibility engine.
func WithVisibility(engine *visibility.Engine) Option {
	return func(o *Orchestrator) {
		if engine != nil {
			o.visibility = engine
		}
	}
}

// WithValidator sets the client validator.
func WithValidator(v *validation.Validator) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.validator = v
		}
	}
}

// Orchestrator owns one form session.
type Orchestrator struct {
	backend    backend.Backend
	cfg        Config
	cache      *session.Cache
	pageStore  layout.PageStore
	kinds      *layout.Kinds
	texts      *textres.Resources
	rules      validation.RuleSet
	clock      Clock
	debounce   time.Duration
	logger     *slog.Logger
	visibility *visibility.Engine
	validator  *validation.Validator

	layouts  *layout.Resolver
	options  *options.Resolver
	tree     *components.Tree
	analysis *components.Tree
	bus      *signalBus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	started     bool
	closed      bool
	app         layout.AppMetadata
	instance    *layout.Instance
	key         backend.DataKey
	resolved    *layout.Resolved
	doc         binding.FlatMap
	page        string
	validations *validation.State
	seq         uint64
	appliedSeq  uint64
	inflight    int
	timers      map[string]Timer
	dirty       map[string]struct{}
	lastFailed  bool
	failedSeq   uint64
	preselected map[string]bool
}

// New constructs an Orchestrator over b. Start loads the session.
func New(b backend.Backend, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:     b,
		cfg:         cfg,
		doc:         make(binding.FlatMap),
		validations: validation.NewState(),
		timers:      make(map[string]Timer),
		dirty:       make(map[string]struct{}),
		preselected: make(map[string]bool),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.applyDefaults()
	return o
}

func (o *Orchestrator) applyDefaults() {
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.cache == nil {
		o.cache = session.New()
	}
	if o.pageStore == nil {
		o.pageStore = layout.NewMemoryPageStore()
	}
	if o.kinds == nil {
		o.kinds = layout.NewKinds()
	}
	if o.texts == nil {
		o.texts = textres.New(nil).WithLogger(o.logger)
	}
	if o.clock == nil {
		o.clock = realClock{}
	}
	if o.debounce <= 0 {
		o.debounce = DefaultDebounce
	}
	if o.visibility == nil {
		o.visibility = visibility.New(visibility.WithLogger(o.logger))
	}
	if o.validator == nil {
		o.validator = validation.New(validation.WithTexts(o.texts), validation.WithLogger(o.logger))
	}

	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.bus = newSignalBus(o.logger)
	o.layouts = layout.NewResolver(
		layout.WithKinds(o.kinds),
		layout.WithPageStore(o.pageStore),
		layout.WithLogger(o.logger),
	)
	o.options = options.NewResolver(
		options.FetcherFunc(o.fetchOptions),
		options.WithStore(o.cache),
		options.WithLogger(o.logger),
		options.OnLoaded(o.onOptionsLoaded),
	)
	o.tree = components.NewTree(
		components.WithVisibility(o.visibility),
		components.WithOptions(o.options),
		components.WithTexts(o.texts),
		components.WithLogger(o.logger),
	)
	// analysis builds trees for validation and payloads without starting
	// option fetches for pages that are not shown.
	o.analysis = components.NewTree(
		components.WithVisibility(o.visibility),
		components.WithTexts(o.texts),
		components.WithLogger(o.logger),
	)
}

func (o *Orchestrator) fetchOptions(ctx context.Context, id string, params map[string]string) ([]options.Option, error) {
	if o.backend == nil {
		return nil, ErrNotReady
	}
	return o.backend.FetchOptions(ctx, id, params)
}

// Subscribe registers fn for every signal and returns a function removing
// it. Signals are delivered on one goroutine in publish order.
func (o *Orchestrator) Subscribe(fn func(Signal)) func() {
	return o.bus.subscribe(fn)
}

// Flush blocks until every signal published so far was delivered.
func (o *Orchestrator) Flush() { o.bus.flush() }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Page returns the current page id.
func (o *Orchestrator) Page() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.page
}

// Pages returns the page ids in navigation order.
func (o *Orchestrator) Pages() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resolved == nil {
		return nil
	}
	return append([]string(nil), o.resolved.Order...)
}

// Key returns the data key the session reads and writes.
func (o *Orchestrator) Key() backend.DataKey {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.key
}

// AutoSave reports whether edits are saved without an explicit SaveAll.
func (o *Orchestrator) AutoSave() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.autoSaveLocked()
}

// Value returns the value bound to key.
func (o *Orchestrator) Value(key string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc[strings.TrimSpace(key)]
}

// Document returns a copy of the flat form data.
func (o *Orchestrator) Document() binding.FlatMap {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.doc.Clone()
}

// Validations returns the merged client and server messages by binding.
func (o *Orchestrator) Validations() map[string]validation.Messages {
	return o.validations.All()
}

// Render builds the component instances of the current page, annotated with
// visibility, values, options and messages.
func (o *Orchestrator) Render() []*components.Instance {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.renderLocked()
}

// Options returns the option set shown for the choice component bound to
// key on the current page.
func (o *Orchestrator) Options(key string) (options.Set, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	key = strings.TrimSpace(key)
	var (
		set   options.Set
		found bool
	)
	for _, inst := range o.renderLocked() {
		inst.Walk(func(i *components.Instance) bool {
			if !found && isChoice(i.Kind) && i.Binding() == key {
				set, found = i.Options, true
			}
			return !found
		})
	}
	return set, found
}

// Wait blocks until background saves and option fetches have finished.
func (o *Orchestrator) Wait() {
	o.options.Wait()
	o.wg.Wait()
	o.options.Wait()
}

// Close stops pending timers, cancels in-flight work and stops signal
// delivery. The session cannot be used afterwards.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for key, t := range o.timers {
		t.Stop()
		delete(o.timers, key)
	}
	o.mu.Unlock()

	o.cancel()
	o.options.Close()
	o.wg.Wait()
	o.bus.close()
	return nil
}

func (o *Orchestrator) autoSaveLocked() bool {
	return o.resolved != nil && o.resolved.AutoSave
}

func (o *Orchestrator) setStateLocked(s State) {
	if o.state == s {
		return
	}
	o.logger.Debug("orchestrator: state", "from", o.state, "to", s)
	o.state = s
	o.bus.publish(Signal{Kind: SignalStateChanged, State: s})
}

func (o *Orchestrator) currentPageLocked() *layout.Page {
	page, _ := o.resolved.Page(o.page)
	return page
}

// RenderPage builds the component instances of page without navigating to
// it.
func (o *Orchestrator) RenderPage(page string) ([]*components.Instance, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.resolved == nil {
		return nil, ErrNotReady
	}
	p, ok := o.resolved.Page(page)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	return o.tree.Build(components.Scope{
		Page:  p,
		Pages: o.resolved.Pages,
		Doc:   o.doc,
		State: o.validations,
	}), nil
}

func (o *Orchestrator) renderLocked() []*components.Instance {
	if o.resolved == nil {
		return nil
	}
	return o.tree.Build(components.Scope{
		Page:  o.currentPageLocked(),
		Pages: o.resolved.Pages,
		Doc:   o.doc,
		State: o.validations,
	})
}

// pageInstances builds the analysis tree of every page in navigation order.
func (o *Orchestrator) pageInstances() map[string][]*components.Instance {
	out := make(map[string][]*components.Instance, len(o.resolved.Order))
	for _, id := range o.resolved.Order {
		page, _ := o.resolved.Page(id)
		out[id] = o.analysis.Build(components.Scope{
			Page:  page,
			Pages: o.resolved.Pages,
			Doc:   o.doc,
			State: o.validations,
		})
	}
	return out
}

func (o *Orchestrator) allInstancesLocked() []*components.Instance {
	if o.resolved == nil {
		return nil
	}
	pages := o.pageInstances()
	var all []*components.Instance
	for _, id := range o.resolved.Order {
		all = append(all, pages[id]...)
	}
	return all
}

func (o *Orchestrator) check(consumeSkip bool) components.Check {
	c := components.Check{Validator: o.validator, Rules: o.rules}
	if consumeSkip {
		c.SkipRequired = o.validations.ConsumeSkipRequired
	}
	return c
}

func isChoice(kind layout.Kind) bool {
	switch kind {
	case layout.KindDropdown, layout.KindRadioButtons, layout.KindCheckboxes:
		return true
	default:
		return false
	}
}
