// Package formruntime binds declarative form layouts to a form data document
// and keeps that document in sync with an application backend. The root
// package offers shortcuts over the pkg/ packages for the common cases.
package formruntime

import (
	"io/fs"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/backend/httpclient"
	"github.com/goliatone/go-formruntime/pkg/backend/memory"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
	"github.com/goliatone/go-formruntime/pkg/renderers/vanilla"
)

// Backend aliases backend.Backend so callers can implement it against the
// root package.
type Backend = backend.Backend

// Config identifies the form session; alias of orchestrator.Config.
type Config = orchestrator.Config

// Session aliases the orchestrator driving one form.
type Session = orchestrator.Orchestrator

// Directory aliases a layout tree loaded from disk.
type Directory = layout.Directory

// NewSession creates a form session over b. Call Start before using it and
// Close when done.
func NewSession(b Backend, cfg Config, options ...orchestrator.Option) *Session {
	return orchestrator.New(b, cfg, options...)
}

// NewHTTPBackend returns a backend talking to the application at baseURL.
func NewHTTPBackend(baseURL string, options ...httpclient.Option) (Backend, error) {
	return httpclient.New(baseURL, options...)
}

// LoadLayouts reads the layout files of fsys using the built-in component
// kinds.
func LoadLayouts(fsys fs.FS) (*Directory, error) {
	return layout.LoadFS(fsys, layout.NewKinds())
}

// NewLocalBackend serves the layouts of fsys from memory, as the serve
// command does. Options add the application, instance and data.
func NewLocalBackend(fsys fs.FS, options ...memory.Option) (*memory.Backend, error) {
	dir, err := LoadLayouts(fsys)
	if err != nil {
		return nil, err
	}
	return memory.FromDirectory(dir, options...), nil
}

// EmbeddedTemplates exposes the built-in HTML templates so callers can copy
// or extend them without importing the renderer package directly.
func EmbeddedTemplates() fs.FS {
	return vanilla.TemplatesFS()
}
