// Package memory provides an in-process backend.Backend. Calls can be
// scripted to block or fail so that tests control the order in which
// responses complete.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

var (
	_ backend.Backend      = (*Backend)(nil)
	_ backend.Bootstrapper = (*Backend)(nil)
)

// Hook runs before an operation is served. n counts calls of the operation
// starting at 1. A non-nil error fails the call.
type Hook func(ctx context.Context, n int) error

// Validator computes the issues returned by SaveFormData and
// ValidateInstance for a document.
type Validator func(doc map[string]any) []validation.Issue

// Save records one SaveFormData call.
type Save struct {
	Key backend.DataKey
	Doc map[string]any
}

// Option customises a Backend.
type Option func(*Backend)

// WithApp sets the application metadata served by FetchApplicationMetadata.
func WithApp(app layout.AppMetadata) Option {
	return func(b *Backend) { b.app = app }
}

// WithInstance registers an instance.
func WithInstance(inst layout.Instance) Option {
	return func(b *Backend) {
		b.instances[inst.ID] = &inst
	}
}

// WithLayoutSets sets the layout sets. Without it FetchLayoutSets reports
// not found.
func WithLayoutSets(sets *layout.LayoutSets) Option {
	return func(b *Backend) { b.sets = sets }
}

// WithLayout registers the layout of a layout set ("" for the default).
func WithLayout(setID string, bundle layout.Bundle) Option {
	return func(b *Backend) { b.layouts[setID] = bundle }
}

// WithSettings registers layout settings for a layout set.
func WithSettings(setID string, settings *layout.Settings) Option {
	return func(b *Backend) { b.settings[setID] = settings }
}

// WithData seeds the document stored under key.
func WithData(key backend.DataKey, doc map[string]any) Option {
	return func(b *Backend) { b.data[key.String()] = cloneDoc(doc) }
}

// WithOptions registers a static option list.
func WithOptions(id string, opts []options.Option) Option {
	return func(b *Backend) {
		b.optionFns[id] = func(map[string]string) ([]options.Option, error) { return opts, nil }
	}
}

// WithOptionsFunc registers an option list computed from the query
// parameters.
func WithOptionsFunc(id string, fn func(params map[string]string) ([]options.Option, error)) Option {
	return func(b *Backend) {
		if fn != nil {
			b.optionFns[id] = fn
		}
	}
}

// WithValidator sets the validator used for saves and instance validation.
func WithValidator(v Validator) Option {
	return func(b *Backend) { b.validator = v }
}

// Backend is an in-memory backend.Backend. It is safe for concurrent use.
type Backend struct {
	mu        sync.Mutex
	app       layout.AppMetadata
	instances map[string]*layout.Instance
	sets      *layout.LayoutSets
	layouts   map[string]layout.Bundle
	settings  map[string]*layout.Settings
	data      map[string]map[string]any
	optionFns map[string]func(map[string]string) ([]options.Option, error)
	validator Validator

	hooks     map[string]Hook
	calls     map[string]int
	saves     []Save
	completed []string
	fetches   []string
}

// New returns a Backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		instances: make(map[string]*layout.Instance),
		layouts:   make(map[string]layout.Bundle),
		settings:  make(map[string]*layout.Settings),
		data:      make(map[string]map[string]any),
		optionFns: make(map[string]func(map[string]string) ([]options.Option, error)),
		hooks:     make(map[string]Hook),
		calls:     make(map[string]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// FromDirectory builds a Backend serving the layouts of dir.
func FromDirectory(dir *layout.Directory, opts ...Option) *Backend {
	b := New()
	if dir != nil {
		b.sets = dir.Sets
		for setID, bundle := range dir.Bundles {
			b.layouts[setID] = bundle
		}
		for setID, settings := range dir.Settings {
			b.settings[setID] = settings
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Script installs a hook for op, replacing any previous one.
func (b *Backend) Script(op string, hook Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if hook == nil {
		delete(b.hooks, op)
		return
	}
	b.hooks[op] = hook
}

// Fail makes every call of op fail with err.
func (b *Backend) Fail(op string, err error) {
	b.Script(op, func(context.Context, int) error { return err })
}

// Calls returns the number of calls made to op.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Saves returns the recorded SaveFormData calls.
func (b *Backend) Saves() []Save {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Save, len(b.saves))
	for i, s := range b.saves {
		out[i] = Save{Key: s.Key, Doc: cloneDoc(s.Doc)}
	}
	return out
}

// Completed returns the instance/task pairs completed so far.
func (b *Backend) Completed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.completed...)
}

// OptionFetches returns the option ids fetched so far, in call order.
func (b *Backend) OptionFetches() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.fetches...)
}

// Data returns the stored document for key.
func (b *Backend) Data(key backend.DataKey) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.data[key.String()]
	return cloneDoc(doc), ok
}

func (b *Backend) enter(ctx context.Context, op string) error {
	b.mu.Lock()
	b.calls[op]++
	n := b.calls[op]
	hook := b.hooks[op]
	b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return backend.TransportError(op, err)
	}
	if hook == nil {
		return nil
	}
	if err := hook(ctx, n); err != nil {
		var be *backend.Error
		if errors.As(err, &be) {
			return err
		}
		return backend.TransportError(op, err)
	}
	return nil
}

// FetchApplicationMetadata implements backend.Bootstrapper.
func (b *Backend) FetchApplicationMetadata(ctx context.Context) (layout.AppMetadata, error) {
	if err := b.enter(ctx, "fetchApplicationMetadata"); err != nil {
		return layout.AppMetadata{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.app, nil
}

// FetchInstance implements backend.Bootstrapper.
func (b *Backend) FetchInstance(ctx context.Context, instanceID string) (*layout.Instance, error) {
	if err := b.enter(ctx, "fetchInstance"); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	inst, ok := b.instances[instanceID]
	if !ok {
		return nil, notFound("fetchInstance", instanceID)
	}
	cp := *inst
	return &cp, nil
}

// FetchLayoutSets implements backend.Backend.
func (b *Backend) FetchLayoutSets(ctx context.Context) (*layout.LayoutSets, error) {
	if err := b.enter(ctx, backend.OpFetchLayoutSets); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sets == nil {
		return nil, notFound(backend.OpFetchLayoutSets, "layout sets")
	}
	cp := *b.sets
	return &cp, nil
}

// FetchLayout implements backend.Backend.
func (b *Backend) FetchLayout(ctx context.Context, layoutSetID string) (layout.Bundle, error) {
	if err := b.enter(ctx, backend.OpFetchLayout); err != nil {
		return layout.Bundle{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bundle, ok := b.layouts[layoutSetID]
	if !ok {
		return layout.Bundle{}, notFound(backend.OpFetchLayout, layoutSetID)
	}
	return bundle, nil
}

// FetchLayoutSettings implements backend.Backend.
func (b *Backend) FetchLayoutSettings(ctx context.Context, layoutSetID string) (*layout.Settings, error) {
	if err := b.enter(ctx, backend.OpFetchLayoutSettings); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	settings, ok := b.settings[layoutSetID]
	if !ok || settings == nil {
		return nil, notFound(backend.OpFetchLayoutSettings, layoutSetID)
	}
	cp := *settings
	return &cp, nil
}

// FetchFormData implements backend.Backend. Unknown keys yield an empty
// document.
func (b *Backend) FetchFormData(ctx context.Context, key backend.DataKey) (any, error) {
	if err := key.Validate(); err != nil {
		return nil, &backend.Error{Kind: backend.KindClient, Op: backend.OpFetchFormData, Err: err}
	}
	if err := b.enter(ctx, backend.OpFetchFormData); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.data[key.String()]
	if !ok {
		return map[string]any{}, nil
	}
	return cloneDoc(doc), nil
}

// SaveFormData implements backend.Backend.
func (b *Backend) SaveFormData(ctx context.Context, key backend.DataKey, doc map[string]any) ([]validation.Issue, error) {
	if err := key.Validate(); err != nil {
		return nil, &backend.Error{Kind: backend.KindClient, Op: backend.OpSaveFormData, Err: err}
	}
	snapshot := cloneDoc(doc)
	b.mu.Lock()
	b.saves = append(b.saves, Save{Key: key, Doc: snapshot})
	b.mu.Unlock()
	if err := b.enter(ctx, backend.OpSaveFormData); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key.String()] = snapshot
	if b.validator == nil {
		return nil, nil
	}
	issues := b.validator(cloneDoc(snapshot))
	for i := range issues {
		if issues[i].DataElementID == "" {
			issues[i].DataElementID = key.DataElementID
		}
	}
	return issues, nil
}

// FetchOptions implements backend.Backend.
func (b *Backend) FetchOptions(ctx context.Context, optionsID string, params map[string]string) ([]options.Option, error) {
	b.mu.Lock()
	b.fetches = append(b.fetches, optionsID+"?"+encodeParams(params))
	fn, ok := b.optionFns[optionsID]
	b.mu.Unlock()
	if err := b.enter(ctx, backend.OpFetchOptions); err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound(backend.OpFetchOptions, optionsID)
	}
	return fn(params)
}

// ValidateInstance implements backend.Backend. Every stored document of the
// instance is validated.
func (b *Backend) ValidateInstance(ctx context.Context, instanceID string) ([]validation.Issue, error) {
	if err := b.enter(ctx, backend.OpValidateInstance); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.validator == nil {
		return nil, nil
	}
	prefix := instanceID + "/"
	var keys []string
	for key := range b.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	var issues []validation.Issue
	for _, key := range keys {
		for _, issue := range b.validator(cloneDoc(b.data[key])) {
			if issue.DataElementID == "" {
				issue.DataElementID = strings.TrimPrefix(key, prefix)
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}

// CompleteProcessTask implements backend.Backend.
func (b *Backend) CompleteProcessTask(ctx context.Context, instanceID, taskID string) error {
	if err := b.enter(ctx, backend.OpCompleteProcessTask); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed = append(b.completed, instanceID+":"+taskID)
	if inst, ok := b.instances[instanceID]; ok {
		inst.Process = &layout.ProcessState{}
	}
	return nil
}

func notFound(op, what string) error {
	return &backend.Error{Kind: backend.KindNotFound, Status: 404, Op: op, Err: fmt.Errorf("%s not found", what)}
}

func encodeParams(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return values.Encode()
}

func cloneDoc(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return doc
	}
	return out
}
