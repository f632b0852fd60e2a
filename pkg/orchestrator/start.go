package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/layout"
)

// Start loads layout sets, then the layout, its settings and the form data
// concurrently. The session is Ready only when all of them resolved; absent
// layout sets and settings are accepted.
func (o *Orchestrator) Start(ctx context.Context) (Outcome, error) {
	if ctx == nil {
		return OutcomeFailed, errors.New("orchestrator: context is required")
	}
	if o.backend == nil {
		return OutcomeFailed, errors.New("orchestrator: backend is required")
	}

	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return OutcomeFailed, ErrClosed
	case o.started:
		o.mu.Unlock()
		return OutcomeFailed, ErrStarted
	}
	o.started = true
	o.setStateLocked(StateFetching)
	o.mu.Unlock()

	app, instance, err := o.bootstrap(ctx)
	if err != nil {
		return o.fetchFailed(err)
	}

	sets, err := o.layoutSets(ctx)
	if err != nil {
		return o.fetchFailed(err)
	}
	setID := layout.SelectLayoutSet(app, instance, sets)

	key, err := dataKey(app, instance, sets, setID, o.cfg.PartyID)
	if err != nil {
		return o.fetchFailed(err)
	}

	var (
		bundle   layout.Bundle
		settings *layout.Settings
		raw      any
		dataErr  error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		bundle, err = o.layoutBundle(gctx, setID)
		return err
	})
	g.Go(func() error {
		var err error
		settings, err = o.layoutSettings(gctx, setID)
		return err
	})
	g.Go(func() error {
		raw, dataErr = o.backend.FetchFormData(gctx, key)
		if dataErr != nil {
			return fmt.Errorf("orchestrator: fetch form data: %w", dataErr)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		if key.Stateless() && isForbidden(dataErr) {
			return o.redirect(dataErr)
		}
		return o.fetchFailed(err)
	}

	resolved, err := o.layouts.Load(ctx, app, instance, sets, bundle, settings)
	if err != nil {
		return o.fetchFailed(fmt.Errorf("orchestrator: resolve layout: %w", err))
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return OutcomeFailed, ErrClosed
	}
	o.app = app
	o.instance = instance
	o.key = key
	o.resolved = resolved
	o.doc = binding.Flatten(raw)
	o.page = resolved.CurrentPage
	o.logger.Info("orchestrator: session ready",
		"layoutSet", resolved.SetID,
		"key", key.String(),
		"page", o.page,
		"autoSave", resolved.AutoSave,
	)
	o.setStateLocked(StateReady)
	o.bus.publish(Signal{Kind: SignalPageChanged, Page: o.page})
	o.refreshOptionsLocked()
	return OutcomeReady, nil
}

func (o *Orchestrator) bootstrap(ctx context.Context) (layout.AppMetadata, *layout.Instance, error) {
	app := o.cfg.App
	instance := o.cfg.Instance
	boot, canBoot := o.backend.(backend.Bootstrapper)
	if app.ID == "" && canBoot {
		fetched, err := boot.FetchApplicationMetadata(ctx)
		if err != nil {
			return app, nil, fmt.Errorf("orchestrator: fetch application metadata: %w", err)
		}
		app = fetched
	}
	if app.Stateless() {
		return app, nil, nil
	}
	if instance == nil && o.cfg.InstanceID != "" {
		if !canBoot {
			return app, nil, fmt.Errorf("orchestrator: backend cannot fetch instance %q", o.cfg.InstanceID)
		}
		fetched, err := boot.FetchInstance(ctx, o.cfg.InstanceID)
		if err != nil {
			return app, nil, fmt.Errorf("orchestrator: fetch instance: %w", err)
		}
		instance = fetched
	}
	if instance == nil {
		return app, nil, errors.New("orchestrator: instance is required for applications with state")
	}
	return app, instance, nil
}

func (o *Orchestrator) layoutSets(ctx context.Context) (*layout.LayoutSets, error) {
	if sets, ok := o.cache.LayoutSets(); ok {
		return sets, nil
	}
	sets, err := o.backend.FetchLayoutSets(ctx)
	switch {
	case backend.IsNotFound(err):
		sets = nil
	case err != nil:
		return nil, fmt.Errorf("orchestrator: fetch layout sets: %w", err)
	}
	o.cache.PutLayoutSets(sets)
	return sets, nil
}

func (o *Orchestrator) layoutBundle(ctx context.Context, setID string) (layout.Bundle, error) {
	if bundle, ok := o.cache.Bundle(setID); ok {
		return bundle, nil
	}
	bundle, err := o.backend.FetchLayout(ctx, setID)
	if err != nil {
		return layout.Bundle{}, fmt.Errorf("orchestrator: fetch layout %q: %w", setID, err)
	}
	o.cache.PutBundle(setID, bundle)
	return bundle, nil
}

func (o *Orchestrator) layoutSettings(ctx context.Context, setID string) (*layout.Settings, error) {
	if settings, ok := o.cache.Settings(setID); ok {
		return settings, nil
	}
	settings, err := o.backend.FetchLayoutSettings(ctx, setID)
	switch {
	case backend.IsNotFound(err):
		settings = nil
	case err != nil:
		return nil, fmt.Errorf("orchestrator: fetch layout settings %q: %w", setID, err)
	}
	o.cache.PutSettings(setID, settings)
	return settings, nil
}

// dataKey addresses the form data of the selected layout set: a data
// element of the instance, or the stateless data type.
func dataKey(app layout.AppMetadata, instance *layout.Instance, sets *layout.LayoutSets, setID, partyID string) (backend.DataKey, error) {
	if app.Stateless() {
		dt, ok := layout.StatelessDataType(app, sets)
		if !ok {
			return backend.DataKey{}, fmt.Errorf("orchestrator: no data type for stateless layout set %q", app.OnEntry.Show)
		}
		anonymous := dt.AppLogic != nil && dt.AppLogic.AllowAnonymous
		return backend.StatelessKey(dt.ID, partyID, anonymous), nil
	}

	dataType := ""
	if sets != nil {
		for _, set := range sets.Sets {
			if set.ID == setID && setID != "" {
				dataType = set.DataType
			}
		}
	}
	if dataType == "" {
		dt, ok := app.FormDataType(instance.CurrentTask())
		if !ok {
			return backend.DataKey{}, fmt.Errorf("orchestrator: no form data type for task %q", instance.CurrentTask())
		}
		dataType = dt.ID
	}
	elementID, ok := instance.DataElementID(dataType)
	if !ok {
		return backend.DataKey{}, fmt.Errorf("orchestrator: instance %q has no data element of type %q", instance.ID, dataType)
	}
	return backend.InstanceKey(instance.ID, elementID), nil
}

func isForbidden(err error) bool {
	var be *backend.Error
	return errors.As(err, &be) && be.Status == http.StatusForbidden
}

func (o *Orchestrator) redirect(err error) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logger.Info("orchestrator: stateless data requires login", "upgradeLevel", RedirectUpgradeLevel, "error", err)
	o.setStateLocked(StateIdle)
	o.bus.publish(Signal{Kind: SignalRedirect, UpgradeLevel: RedirectUpgradeLevel, Err: err})
	return OutcomeRedirect, nil
}

func (o *Orchestrator) fetchFailed(err error) (Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logger.Error("orchestrator: initial load failed", "error", err)
	o.setStateLocked(StateFailed)
	o.bus.publish(Signal{Kind: SignalFetchFailed, Err: err})
	return OutcomeFailed, err
}
