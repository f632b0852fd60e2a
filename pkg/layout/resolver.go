package layout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
)

// ErrNoPages is returned when a layout set resolves to an empty bundle.
var ErrNoPages = errors.New("layout: layout set has no pages")

// PageStore persists the last visited page per cache key.
type PageStore interface {
	LastPage(ctx context.Context, key string) (string, bool, error)
	SaveLastPage(ctx context.Context, key, page string) error
}

// MemoryPageStore is an in-process PageStore.
type MemoryPageStore struct {
	mu    sync.RWMutex
	pages map[string]string
}

// NewMemoryPageStore returns an empty store.
func NewMemoryPageStore() *MemoryPageStore {
	return &MemoryPageStore{pages: make(map[string]string)}
}

// LastPage implements PageStore.
func (s *MemoryPageStore) LastPage(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[key]
	return page, ok, nil
}

// SaveLastPage implements PageStore.
func (s *MemoryPageStore) SaveLastPage(_ context.Context, key, page string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[key] = page
	return nil
}

// Resolved is a layout set ready to render.
type Resolved struct {
	SetID       string
	Pages       map[string]*Page
	Order       []string
	Navigation  map[string]map[string]any
	Settings    *Settings
	AutoSave    bool
	CurrentPage string
	CacheKey    string
}

// Page returns the page with id.
func (r *Resolved) Page(id string) (*Page, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.Pages[id]
	return p, ok
}

// ValidatesOnNavigate reports whether page changes are guarded by page
// validation.
func (r *Resolved) ValidatesOnNavigate() bool {
	if r == nil || r.Settings == nil {
		return false
	}
	for _, t := range r.Settings.Pages.Triggers {
		if strings.EqualFold(t, "validatePage") {
			return true
		}
	}
	return false
}

// Neighbour returns the page offset steps away from current in navigation
// order.
func (r *Resolved) Neighbour(current string, offset int) (string, bool) {
	if r == nil {
		return "", false
	}
	idx := slices.Index(r.Order, current)
	if idx < 0 {
		return "", false
	}
	next := idx + offset
	if next < 0 || next >= len(r.Order) {
		return "", false
	}
	return r.Order[next], true
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithKinds overrides the component kind registry.
func WithKinds(kinds *Kinds) ResolverOption {
	return func(r *Resolver) {
		if kinds != nil {
			r.kinds = kinds
		}
	}
}

// WithPageStore sets the store for last visited pages.
func WithPageStore(store PageStore) ResolverOption {
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

// Resolver selects layout sets and initial pages.
type Resolver struct {
	kinds  *Kinds
	store  PageStore
	logger *slog.Logger
}

// NewResolver constructs a Resolver with in-memory defaults.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.kinds == nil {
		r.kinds = NewKinds()
	}
	if r.store == nil {
		r.store = NewMemoryPageStore()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Kinds exposes the registry used for normalization.
func (r *Resolver) Kinds() *Kinds { return r.kinds }

// Load resolves a fetched bundle into pages, navigation order and the page to
// open first.
func (r *Resolver) Load(ctx context.Context, app AppMetadata, instance *Instance, sets *LayoutSets, bundle Bundle, settings *Settings) (*Resolved, error) {
	if len(bundle.Pages) == 0 {
		return nil, ErrNoPages
	}

	res := &Resolved{
		SetID:      SelectLayoutSet(app, instance, sets),
		Pages:      bundle.Pages,
		Order:      PageOrder(bundle, settings),
		Navigation: make(map[string]map[string]any, len(bundle.Pages)),
		Settings:   settings,
		AutoSave:   bundle.AutoSave == nil || *bundle.AutoSave,
		CacheKey:   CacheKey(app, instance),
	}
	for id, page := range bundle.Pages {
		if page.Navigation != nil {
			res.Navigation[id] = page.Navigation
		}
	}

	// Without a remembered page the session opens on the first page by name.
	res.CurrentPage = slices.Min(res.Order)
	if res.CacheKey != "" {
		last, ok, err := r.store.LastPage(ctx, res.CacheKey)
		switch {
		case err != nil:
			r.logger.Warn("layout: last page lookup failed", "key", res.CacheKey, "error", err)
		case ok:
			if _, exists := bundle.Pages[last]; exists {
				res.CurrentPage = last
			}
		}
	}
	return res, nil
}

// Remember persists page as the last visited page for key.
func (r *Resolver) Remember(ctx context.Context, key, page string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	if err := r.store.SaveLastPage(ctx, key, page); err != nil {
		return fmt.Errorf("layout: remember page: %w", err)
	}
	return nil
}

// CacheKey is the key under which the last visited page is stored: the
// instance id, or the application id for stateless forms.
func CacheKey(app AppMetadata, instance *Instance) string {
	if instance != nil && strings.TrimSpace(instance.ID) != "" {
		return instance.ID
	}
	return app.ID
}

// PageOrder returns the navigation order: the settings order restricted to
// existing pages, or every page sorted by id.
func PageOrder(bundle Bundle, settings *Settings) []string {
	if settings != nil && len(settings.Pages.Order) > 0 {
		order := make([]string, 0, len(settings.Pages.Order))
		for _, id := range settings.Pages.Order {
			if _, ok := bundle.Pages[id]; ok && !slices.Contains(order, id) {
				order = append(order, id)
			}
		}
		if len(order) > 0 {
			return order
		}
	}
	order := make([]string, 0, len(bundle.Pages))
	for id := range bundle.Pages {
		order = append(order, id)
	}
	sort.Strings(order)
	return order
}

// SelectLayoutSet picks the layout set for the current process task.
// Stateless applications use the set named by onEntry.show. The default set
// ("") is used when none matches.
func SelectLayoutSet(app AppMetadata, instance *Instance, sets *LayoutSets) string {
	if sets == nil || len(sets.Sets) == 0 {
		return ""
	}
	if app.Stateless() {
		return strings.TrimSpace(app.OnEntry.Show)
	}
	task := instance.CurrentTask()
	if task == "" {
		return ""
	}
	dataType, _ := app.FormDataType(task)
	for _, set := range sets.Sets {
		if dataType.ID != "" && set.DataType == dataType.ID {
			return set.ID
		}
		if slices.Contains(set.Tasks, task) {
			return set.ID
		}
	}
	return ""
}

// StatelessDataType returns the data type of the stateless layout set.
func StatelessDataType(app AppMetadata, sets *LayoutSets) (DataType, bool) {
	if !app.Stateless() || sets == nil {
		return DataType{}, false
	}
	show := strings.TrimSpace(app.OnEntry.Show)
	for _, set := range sets.Sets {
		if set.ID == show {
			if dt, ok := app.DataTypeByID(set.DataType); ok {
				return dt, true
			}
			return DataType{ID: set.DataType}, set.DataType != ""
		}
	}
	return DataType{}, false
}
