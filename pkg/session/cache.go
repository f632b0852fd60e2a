// Package session holds caches whose lifetime is one form session. A Cache is
// created by the caller and handed to the runtime; it is never global.
package session

import (
	"sync"

	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
)

// Cache stores option lists by lookup key and layout resources by layout set.
// It is safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	options  map[string][]options.Option
	sets     *layout.LayoutSets
	setsOK   bool
	bundles  map[string]layout.Bundle
	settings map[string]*layout.Settings
}

// New returns an empty cache.
func New() *Cache {
	c := &Cache{}
	c.Reset()
	return c
}

// Reset drops every cached entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = make(map[string][]options.Option)
	c.sets = nil
	c.setsOK = false
	c.bundles = make(map[string]layout.Bundle)
	c.settings = make(map[string]*layout.Settings)
}

// Options implements options.Store.
func (c *Cache) Options(key string) ([]options.Option, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	opts, ok := c.options[key]
	return opts, ok
}

// PutOptions implements options.Store.
func (c *Cache) PutOptions(key string, opts []options.Option) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options[key] = append([]options.Option(nil), opts...)
}

// LayoutSets returns the cached layout sets. A cached nil means the
// application has none.
func (c *Cache) LayoutSets() (*layout.LayoutSets, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sets, c.setsOK
}

// PutLayoutSets caches the layout sets, nil included.
func (c *Cache) PutLayoutSets(sets *layout.LayoutSets) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = sets
	c.setsOK = true
}

// Bundle returns the cached bundle for setID.
func (c *Cache) Bundle(setID string) (layout.Bundle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bundles[setID]
	return b, ok
}

// PutBundle caches a bundle.
func (c *Cache) PutBundle(setID string, bundle layout.Bundle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bundles[setID] = bundle
}

// Settings returns the cached settings for setID. A cached nil means the
// layout set has no settings.
func (c *Cache) Settings(setID string) (*layout.Settings, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.settings[setID]
	return s, ok
}

// PutSettings caches settings, nil included.
func (c *Cache) PutSettings(setID string, settings *layout.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[setID] = settings
}

var _ options.Store = (*Cache)(nil)
