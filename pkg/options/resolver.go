package options

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/textres"
)

// Source derives options from a repeating group in the form data. Label and
// Value are bindings relative to Group.
type Source struct {
	Group string `json:"group"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Request describes the options one consumer needs.
type Request struct {
	// Consumer identifies the component instance, usually its concrete
	// binding.
	Consumer string
	ID       string
	// Mapping maps data-model bindings to query parameter names.
	Mapping map[string]string
	Static  []Option
	Source  *Source
	Frames  []binding.Frame
}

// Fetcher retrieves a remote option list.
type Fetcher interface {
	FetchOptions(ctx context.Context, id string, params map[string]string) ([]Option, error)
}

// FetcherFunc adapts a function into a Fetcher.
type FetcherFunc func(ctx context.Context, id string, params map[string]string) ([]Option, error)

// FetchOptions delegates to the underlying function.
func (fn FetcherFunc) FetchOptions(ctx context.Context, id string, params map[string]string) ([]Option, error) {
	return fn(ctx, id, params)
}

// Store caches option lists by lookup key for the lifetime of a session.
type Store interface {
	Options(key string) ([]Option, bool)
	PutOptions(key string, opts []Option)
}

// Loaded is delivered once for every lookup key whose fetch finished.
type Loaded struct {
	Key     string
	ID      string
	Options []Option
	Err     error
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithStore replaces the in-memory store.
func WithStore(store Store) ResolverOption {
	return func(r *Resolver) {
		if store != nil {
			r.store = store
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnLoaded registers a callback invoked after each fetch completes. It runs
// on the fetching goroutine.
func OnLoaded(fn func(Loaded)) ResolverOption {
	return func(r *Resolver) {
		if fn != nil {
			r.listeners = append(r.listeners, fn)
		}
	}
}

// Resolver resolves option lists, deduplicating concurrent fetches per lookup
// key.
type Resolver struct {
	fetcher   Fetcher
	store     Store
	logger    *slog.Logger
	listeners []func(Loaded)

	group singleflight.Group

	mu       sync.Mutex
	loading  map[string]bool
	current  map[string]string
	lastSeen map[string][]Option

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewResolver constructs a Resolver that fetches through fetcher.
func NewResolver(fetcher Fetcher, opts ...ResolverOption) *Resolver {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Resolver{
		fetcher:  fetcher,
		loading:  make(map[string]bool),
		current:  make(map[string]string),
		lastSeen: make(map[string][]Option),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.store == nil {
		r.store = NewMemoryStore()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Local resolves requests that need no fetch: static lists, options derived
// from the document, and requests without an options id. ok is false when
// the request needs a Fetcher.
func Local(req Request, doc binding.FlatMap) (Set, bool) {
	switch {
	case len(req.Static) > 0:
		return Set{Options: cloneOptions(req.Static)}, true
	case req.Source != nil:
		return Set{Options: FromSource(*req.Source, doc, req.Frames)}, true
	case strings.TrimSpace(req.ID) == "":
		return Set{}, true
	default:
		return Set{}, false
	}
}

// Key returns the lookup key for req: the options id plus the mapped query
// parameters resolved against doc.
func Key(req Request, doc binding.FlatMap) string {
	params := Params(req, doc)
	if len(params) == 0 {
		return req.ID
	}
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return req.ID + "?" + values.Encode()
}

// Params resolves the mapped query parameters of req against doc.
func Params(req Request, doc binding.FlatMap) map[string]string {
	if len(req.Mapping) == 0 {
		return nil
	}
	params := make(map[string]string, len(req.Mapping))
	for _, field := range sortedKeys(req.Mapping) {
		param := strings.TrimSpace(req.Mapping[field])
		if param == "" {
			continue
		}
		path := field
		if binding.HasPlaceholders(field) {
			resolved, err := binding.Resolve(field, binding.Indices(req.Frames))
			if err == nil {
				path = resolved
			}
		}
		path = binding.ResolveInGroups(path, req.Frames)
		params[param] = doc[path]
	}
	return params
}

// Get returns the options for req without blocking. Remote lists not yet
// cached start a fetch and report Loading with the consumer's previously
// shown options.
func (r *Resolver) Get(req Request, doc binding.FlatMap) Set {
	if set, ok := Local(req, doc); ok {
		return set
	}

	key := Key(req, doc)

	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Consumer != "" {
		r.current[req.Consumer] = key
	}
	if cached, ok := r.store.Options(key); ok && !r.loading[key] {
		if req.Consumer != "" {
			r.lastSeen[req.Consumer] = cached
		}
		return Set{Options: cloneOptions(cached)}
	}
	if !r.loading[key] {
		r.loading[key] = true
		r.wg.Add(1)
		go r.fetchAsync(key, req.ID, Params(req, doc))
	}
	return Set{Options: cloneOptions(r.lastSeen[req.Consumer]), Loading: true}
}

// Load returns the options for req, fetching and waiting when needed.
func (r *Resolver) Load(ctx context.Context, req Request, doc binding.FlatMap) ([]Option, error) {
	if len(req.Static) > 0 {
		return cloneOptions(req.Static), nil
	}
	if req.Source != nil {
		return FromSource(*req.Source, doc, req.Frames), nil
	}
	key := Key(req, doc)
	if req.Consumer != "" {
		r.mu.Lock()
		r.current[req.Consumer] = key
		r.mu.Unlock()
	}
	if cached, ok := r.store.Options(key); ok {
		return cloneOptions(cached), nil
	}
	opts, err := r.fetch(ctx, key, req.ID, Params(req, doc))
	if err != nil {
		return nil, err
	}
	if req.Consumer != "" {
		r.mu.Lock()
		r.lastSeen[req.Consumer] = opts
		r.mu.Unlock()
	}
	return cloneOptions(opts), nil
}

// Current returns the lookup key most recently requested by consumer.
func (r *Resolver) Current(consumer string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.current[consumer]
	return key, ok
}

// Consumers returns the consumers whose current lookup key is key.
func (r *Resolver) Consumers(key string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for consumer, k := range r.current {
		if k == key {
			out = append(out, consumer)
		}
	}
	sort.Strings(out)
	return out
}

// Loading reports whether a fetch for key is in flight.
func (r *Resolver) Loading(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading[key]
}

// Wait blocks until in-flight fetches finish.
func (r *Resolver) Wait() { r.wg.Wait() }

// Close cancels in-flight fetches and waits for them.
func (r *Resolver) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Resolver) fetchAsync(key, id string, params map[string]string) {
	defer r.wg.Done()
	opts, err := r.fetch(r.ctx, key, id, params)

	r.mu.Lock()
	delete(r.loading, key)
	if err == nil {
		for consumer, k := range r.current {
			if k == key {
				r.lastSeen[consumer] = opts
			}
		}
	}
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn("options: fetch failed", "id", id, "key", key, "error", err)
	}
	event := Loaded{Key: key, ID: id, Options: cloneOptions(opts), Err: err}
	for _, fn := range listeners {
		fn(event)
	}
}

func (r *Resolver) fetch(ctx context.Context, key, id string, params map[string]string) ([]Option, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("options: no fetcher configured for %q", id)
	}
	result, err, _ := r.group.Do(key, func() (any, error) {
		if cached, ok := r.store.Options(key); ok {
			return cached, nil
		}
		r.logger.Debug("options: fetch", "id", id, "key", key)
		fetched, err := r.fetcher.FetchOptions(ctx, id, params)
		if err != nil {
			return nil, fmt.Errorf("options: fetch %q: %w", id, err)
		}
		cleaned := sanitize(fetched)
		r.store.PutOptions(key, cleaned)
		return cleaned, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Option), nil
}

func sanitize(opts []Option) []Option {
	out := make([]Option, 0, len(opts))
	for _, opt := range opts {
		out = append(out, Option{
			Value: strings.TrimSpace(opt.Value),
			Label: textres.Sanitize(opt.Label),
		})
	}
	return out
}

// FromSource builds options from the entries of a repeating group.
func FromSource(src Source, doc binding.FlatMap, frames []binding.Frame) []Option {
	group := binding.ResolveInGroups(src.Group, frames)
	count := binding.Count(doc, group)
	out := make([]Option, 0, count)
	for i := 0; i < count; i++ {
		inner := append(append([]binding.Frame(nil), frames...), binding.Frame{Binding: src.Group, Index: i})
		value := doc[binding.ResolveInGroups(src.Value, inner)]
		if value == "" {
			continue
		}
		label := doc[binding.ResolveInGroups(src.Label, inner)]
		if label == "" {
			label = value
		}
		out = append(out, Option{Value: value, Label: textres.Sanitize(label)})
	}
	return out
}

// NeedsReset reports whether selected must be cleared because a freshly
// loaded set no longer contains it.
func NeedsReset(set Set, selected string) bool {
	if set.Loading || selected == "" {
		return false
	}
	return !set.Contains(selected)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	sets map[string][]Option
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sets: make(map[string][]Option)}
}

// Options implements Store.
func (s *MemoryStore) Options(key string) ([]Option, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opts, ok := s.sets[key]
	return opts, ok
}

// PutOptions implements Store.
func (s *MemoryStore) PutOptions(key string, opts []Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[key] = cloneOptions(opts)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
