package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goliatone/go-formruntime/internal/config"
	"github.com/goliatone/go-formruntime/internal/pagestore"
	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/backend/httpclient"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
	"github.com/goliatone/go-formruntime/pkg/textres"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

// session is an orchestrator plus the resources it was built from.
type session struct {
	form    *orchestrator.Orchestrator
	backend backend.Backend
	local   *localForm
	closers []func() error
}

func (s *session) Close() error {
	var first error
	if s.form != nil {
		first = s.form.Close()
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openSession builds a form session from cfg: a remote backend when a base
// URL is configured, otherwise the local layout directory.
func openSession(cfg config.Config, opts *RootOptions, persistPages bool) (*session, error) {
	logger := opts.logger()
	kinds := layout.NewKinds()
	s := &session{}

	ocfg := orchestrator.Config{PartyID: cfg.PartyID, InstanceID: cfg.InstanceID}
	if cfg.BaseURL != "" {
		client, err := httpclient.New(cfg.BaseURL,
			httpclient.WithTimeout(cfg.Timeout),
			httpclient.WithLogger(logger),
			httpclient.WithKinds(kinds),
		)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid base URL", err)
		}
		if cfg.InstanceID == "" {
			logger.Debug("no instance configured, expecting a stateless application")
		}
		s.backend = client
	} else {
		local, err := loadLocalForm(cfg.LayoutDir, cfg.DataFile, cfg.AppID, cfg.PartyID, kinds)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load layouts", err)
		}
		s.local = local
		s.backend = local.backend()
		ocfg = orchestrator.Config{App: local.app, Instance: &local.instance, PartyID: cfg.PartyID}
	}

	formOpts := []orchestrator.Option{
		orchestrator.WithKinds(kinds),
		orchestrator.WithDebounce(cfg.Debounce),
		orchestrator.WithLogger(logger),
	}
	if len(cfg.Texts) > 0 {
		formOpts = append(formOpts, orchestrator.WithTexts(textres.New(cfg.Texts).WithLogger(logger)))
	}
	if cfg.Schema != "" {
		rules, err := loadRules(cfg.Schema)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to load schema", err)
		}
		logger.Debug("loaded validation rules", "schema", cfg.Schema, "bindings", len(rules))
		formOpts = append(formOpts, orchestrator.WithRules(rules))
	}
	if persistPages && cfg.PageDB != "" {
		store, err := openPageStore(cfg.PageDB)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open page database", err)
		}
		s.closers = append(s.closers, store.Close)
		formOpts = append(formOpts, orchestrator.WithPageStore(store))
	}

	s.form = orchestrator.New(s.backend, ocfg, formOpts...)
	return s, nil
}

func loadRules(path string) (validation.RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	schema, err := validation.ParseSchema(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return validation.RulesFromSchema(schema), nil
}

func openPageStore(path string) (*pagestore.Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return pagestore.Open(path)
}
