package orchestrator_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-formruntime/pkg/backend"
	"github.com/goliatone/go-formruntime/pkg/backend/memory"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/options"
	"github.com/goliatone/go-formruntime/pkg/orchestrator"
	"github.com/goliatone/go-formruntime/pkg/validation"
)

const bundleJSON = `{
  "intro": {"data": {"layout": [
    {"id": "name", "type": "Input", "required": true, "dataModelBindings": {"simpleBinding": "applicant.name"}},
    {"id": "has-pets", "type": "RadioButtons", "dataModelBindings": {"simpleBinding": "applicant.hasPets"},
     "options": [{"value": "yes", "label": "Yes"}, {"value": "no", "label": "No"}]},
    {"id": "pets", "type": "Group", "maxCount": 3, "children": ["pet-name"],
     "hidden": "applicant.hasPets != 'yes'", "dataModelBindings": {"group": "pets"}},
    {"id": "pet-name", "type": "Input", "dataModelBindings": {"simpleBinding": "pets.name"}},
    {"id": "country", "type": "Dropdown", "dataModelBindings": {"simpleBinding": "address.country"},
     "options": [{"value": "NO", "label": "Norway"}, {"value": "SE", "label": "Sweden"}]},
    {"id": "city", "type": "Dropdown", "required": true, "optionsId": "cities",
     "mapping": {"address.country": "country"}, "dataModelBindings": {"simpleBinding": "address.city"}}
  ]}},
  "notes": {"data": {"layout": [
    {"id": "comment", "type": "TextArea", "dataModelBindings": {"simpleBinding": "details.comment"}}
  ]}},
  "review": {"data": {"layout": [
    {"id": "recap", "type": "Summary", "componentRef": "name", "pageRef": "intro"}
  ]}}
}`

var (
	app = layout.AppMetadata{
		ID: "acme/permit",
		DataTypes: []layout.DataType{
			{ID: "model", TaskID: "Task_1", AppLogic: &layout.AppLogic{ClassRef: "Acme.Model"}},
		},
	}
	instance = layout.Instance{
		ID:      "1337/7f3c",
		Process: &layout.ProcessState{CurrentTask: &layout.ProcessTask{ElementID: "Task_1"}},
		Data:    []layout.DataElement{{ID: "d1", DataType: "model"}},
	}
	dataKey  = backend.InstanceKey("1337/7f3c", "d1")
	settings = &layout.Settings{Pages: layout.PageSettings{Order: []string{"intro", "notes", "review"}}}
)

func cities(params map[string]string) ([]options.Option, error) {
	switch params["country"] {
	case "NO":
		return []options.Option{{Value: "osl", Label: "Oslo"}, {Value: "brg", Label: "Bergen"}}, nil
	case "SE":
		return []options.Option{{Value: "sto", Label: "Stockholm"}}, nil
	default:
		return nil, nil
	}
}

func fullDoc() map[string]any {
	return map[string]any{
		"applicant": map[string]any{"name": "Ada", "hasPets": "no"},
		"pets":      []any{map[string]any{"name": "Rex"}},
		"address":   map[string]any{"country": "NO", "city": "osl"},
	}
}

func parseBundle(t *testing.T, raw string) layout.Bundle {
	t.Helper()
	bundle, err := layout.ParseBundle([]byte(raw), nil)
	require.NoError(t, err)
	return bundle
}

func newBackend(t *testing.T, doc map[string]any, opts ...memory.Option) *memory.Backend {
	t.Helper()
	base := []memory.Option{
		memory.WithApp(app),
		memory.WithInstance(instance),
		memory.WithLayout("", parseBundle(t, bundleJSON)),
		memory.WithSettings("", settings),
		memory.WithOptionsFunc("cities", cities),
	}
	if doc != nil {
		base = append(base, memory.WithData(dataKey, doc))
	}
	return memory.New(append(base, opts...)...)
}

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) orchestrator.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{at: c.now.Add(d), fn: fn}
	c.timers = append(c.timers, t)
	return &fakeHandle{clock: c, timer: t}
}

// Advance moves time forward and runs due callbacks in deadline order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.at.After(c.now) {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.fn()
	}
}

type fakeHandle struct {
	clock *fakeClock
	timer *fakeTimer
}

func (h *fakeHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	wasActive := !h.timer.stopped
	h.timer.stopped = true
	return wasActive
}

type recorder struct {
	mu      sync.Mutex
	signals []orchestrator.Signal
}

func record(o *orchestrator.Orchestrator) *recorder {
	r := &recorder{}
	o.Subscribe(func(s orchestrator.Signal) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.signals = append(r.signals, s)
	})
	return r
}

func (r *recorder) of(kind orchestrator.SignalKind) []orchestrator.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []orchestrator.Signal
	for _, s := range r.signals {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}

func start(t *testing.T, b backend.Backend, opts ...orchestrator.Option) *orchestrator.Orchestrator {
	t.Helper()
	o := orchestrator.New(b, orchestrator.Config{InstanceID: instance.ID}, opts...)
	t.Cleanup(func() { _ = o.Close() })
	outcome, err := o.Start(context.Background())
	require.NoError(t, err)
	require.Equal(t, orchestrator.OutcomeReady, outcome)
	o.Wait()
	return o
}

func TestStartLoadsInstanceSession(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	assert.Equal(t, orchestrator.StateReady, o.State())
	assert.Equal(t, "intro", o.Page())
	assert.Equal(t, []string{"intro", "notes", "review"}, o.Pages())
	assert.Equal(t, dataKey, o.Key())
	assert.Equal(t, "Ada", o.Value("applicant.name"))
	assert.Equal(t, "osl", o.Value("address.city"))

	set, ok := o.Options("address.city")
	require.True(t, ok)
	assert.False(t, set.Loading)
	assert.Equal(t, []options.Option{{Value: "osl", Label: "Oslo"}, {Value: "brg", Label: "Bergen"}}, set.Options)
}

func TestStartAcceptsMissingSettings(t *testing.T) {
	t.Parallel()

	mem := memory.New(
		memory.WithApp(app),
		memory.WithInstance(instance),
		memory.WithLayout("", parseBundle(t, bundleJSON)),
		memory.WithOptionsFunc("cities", cities),
		memory.WithData(dataKey, fullDoc()),
	)
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	assert.Equal(t, 1, mem.Calls(backend.OpFetchLayoutSettings))
	assert.Equal(t, []string{"intro", "notes", "review"}, o.Pages())
	assert.Equal(t, "intro", o.Page())
}

func TestStartOpensFirstPageByNameWithoutRememberedPage(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc(), memory.WithSettings("", &layout.Settings{Pages: layout.PageSettings{
		Order: []string{"review", "intro", "notes"},
	}}))
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	assert.Equal(t, []string{"review", "intro", "notes"}, o.Pages())
	assert.Equal(t, "intro", o.Page())
}

func TestStartOpensRememberedPage(t *testing.T) {
	t.Parallel()

	store := layout.NewMemoryPageStore()
	require.NoError(t, store.SaveLastPage(context.Background(), instance.ID, "notes"))

	o := start(t, newBackend(t, fullDoc()), orchestrator.WithPageStore(store), orchestrator.WithClock(newFakeClock()))
	assert.Equal(t, "notes", o.Page())
}

func TestStartFailsOnTransportError(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	mem.Fail(backend.OpFetchLayout, errors.New("connection refused"))

	o := orchestrator.New(mem, orchestrator.Config{InstanceID: instance.ID})
	t.Cleanup(func() { _ = o.Close() })
	rec := record(o)

	outcome, err := o.Start(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsTransport(err))
	assert.Equal(t, orchestrator.OutcomeFailed, outcome)
	assert.Equal(t, orchestrator.StateFailed, o.State())

	o.Flush()
	assert.Len(t, rec.of(orchestrator.SignalFetchFailed), 1)
}

func TestStatelessForbiddenRedirects(t *testing.T) {
	t.Parallel()

	stateless := layout.AppMetadata{
		ID:        "acme/quote",
		DataTypes: []layout.DataType{{ID: "quote", AppLogic: &layout.AppLogic{ClassRef: "Acme.Quote"}}},
		OnEntry:   &layout.OnEntry{Show: "quote-form"},
	}
	mem := memory.New(
		memory.WithApp(stateless),
		memory.WithLayoutSets(&layout.LayoutSets{Sets: []layout.LayoutSet{{ID: "quote-form", DataType: "quote"}}}),
		memory.WithLayout("quote-form", parseBundle(t, bundleJSON)),
	)
	mem.Fail(backend.OpFetchFormData, backend.StatusError(backend.OpFetchFormData, 403, errors.New("login required")))

	o := orchestrator.New(mem, orchestrator.Config{PartyID: "500"})
	t.Cleanup(func() { _ = o.Close() })
	rec := record(o)

	outcome, err := o.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, orchestrator.OutcomeRedirect, outcome)
	assert.Equal(t, orchestrator.StateIdle, o.State())

	o.Flush()
	redirects := rec.of(orchestrator.SignalRedirect)
	require.Len(t, redirects, 1)
	assert.Equal(t, orchestrator.RedirectUpgradeLevel, redirects[0].UpgradeLevel)
	assert.Empty(t, rec.of(orchestrator.SignalFetchFailed))
}

func TestRapidEditsCoalesceIntoOneSave(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(clock))

	require.NoError(t, o.SetValue("applicant.name", "A"))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, o.SetValue("applicant.name", "AB"))
	clock.Advance(150 * time.Millisecond)
	o.Wait()
	assert.Empty(t, mem.Saves(), "debounce restarted by the second edit")

	clock.Advance(50 * time.Millisecond)
	o.Wait()

	saves := mem.Saves()
	require.Len(t, saves, 1)
	applicant := saves[0].Doc["applicant"].(map[string]any)
	assert.Equal(t, "AB", applicant["name"])
	assert.Equal(t, orchestrator.StateReady, o.State())
}

func TestOutOfOrderSaveResponsesKeepNewest(t *testing.T) {
	t.Parallel()

	gates := map[int]chan struct{}{1: make(chan struct{}), 2: make(chan struct{}), 3: make(chan struct{})}
	mem := newBackend(t, fullDoc(), memory.WithValidator(func(doc map[string]any) []validation.Issue {
		name, _ := doc["applicant"].(map[string]any)["name"].(string)
		if name == "final" {
			return nil
		}
		return []validation.Issue{{Field: "applicant.name", Code: "stale", Description: "rejected " + name, Severity: validation.SeverityError}}
	}))
	mem.Script(backend.OpSaveFormData, func(ctx context.Context, n int) error {
		select {
		case <-gates[n]:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	done := make(chan error, 3)
	for i, value := range []string{"first", "second", "final"} {
		require.NoError(t, o.SetValue("applicant.name", value))
		go func() { done <- o.Blur(context.Background(), "applicant.name") }()
		want := i + 1
		require.Eventually(t, func() bool { return len(mem.Saves()) == want }, time.Second, time.Millisecond)
	}
	assert.Equal(t, orchestrator.StateSaving, o.State())

	for _, n := range []int{3, 1, 2} {
		close(gates[n])
		require.NoError(t, <-done)
	}

	got := o.Validations()["applicant.name"]
	assert.False(t, got.HasErrors(), "stale responses must not override the newest: %+v", got)
	assert.Equal(t, orchestrator.StateReady, o.State())
}

func TestOlderSaveSuccessKeepsNewerFailure(t *testing.T) {
	t.Parallel()

	slow := make(chan struct{})
	mem := newBackend(t, fullDoc())
	mem.Script(backend.OpSaveFormData, func(ctx context.Context, n int) error {
		switch n {
		case 1:
			select {
			case <-slow:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case 2:
			return errors.New("offline")
		default:
			return nil
		}
	})
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))
	ctx := context.Background()

	require.NoError(t, o.SetValue("applicant.name", "Grace"))
	done := make(chan error, 1)
	go func() { done <- o.Blur(ctx, "applicant.name") }()
	require.Eventually(t, func() bool { return mem.Calls(backend.OpSaveFormData) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, o.SetValue("details.comment", "late"))
	err := o.Blur(ctx, "details.comment")
	require.Error(t, err)
	assert.True(t, backend.IsTransport(err))

	close(slow)
	require.NoError(t, <-done)

	// The newer save failed, so a blur without local edits still retries.
	require.NoError(t, o.Blur(ctx, "applicant.name"))
	assert.Equal(t, 3, mem.Calls(backend.OpSaveFormData))
}

func TestNoEditsOrSavesBeforeHydration(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	mem := newBackend(t, fullDoc())
	mem.Script(backend.OpFetchFormData, func(ctx context.Context, _ int) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	o := orchestrator.New(mem, orchestrator.Config{InstanceID: instance.ID}, orchestrator.WithClock(newFakeClock()))
	t.Cleanup(func() { _ = o.Close() })

	started := make(chan error, 1)
	go func() {
		_, err := o.Start(context.Background())
		started <- err
	}()
	require.Eventually(t, func() bool {
		return o.State() == orchestrator.StateFetching && mem.Calls(backend.OpFetchFormData) == 1
	}, time.Second, time.Millisecond)

	ctx := context.Background()
	assert.ErrorIs(t, o.SetValue("applicant.name", "early"), orchestrator.ErrNotReady)
	assert.ErrorIs(t, o.Blur(ctx, "applicant.name"), orchestrator.ErrNotReady)
	assert.ErrorIs(t, o.SaveAll(ctx), orchestrator.ErrNotReady)
	assert.Zero(t, mem.Calls(backend.OpSaveFormData))

	close(release)
	require.NoError(t, <-started)
	o.Wait()
	assert.Equal(t, orchestrator.StateReady, o.State())
	assert.Equal(t, "Ada", o.Value("applicant.name"))
	assert.Zero(t, mem.Calls(backend.OpSaveFormData))
}

func TestRevealedComponentsAreRevalidated(t *testing.T) {
	t.Parallel()

	raw := `{"data": {"layout": [
	  {"id": "show", "type": "Input", "dataModelBindings": {"simpleBinding": "applicant.show"}},
	  {"id": "age", "type": "Input", "pattern": "^[0-9]+$", "hidden": "applicant.show != 'yes'",
	   "dataModelBindings": {"simpleBinding": "applicant.age"}}
	]}}`
	mem := memory.New(
		memory.WithApp(app),
		memory.WithInstance(instance),
		memory.WithLayout("", parseBundle(t, raw)),
		memory.WithData(dataKey, map[string]any{"applicant": map[string]any{"show": "no", "age": "ten"}}),
	)
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))
	assert.Empty(t, o.Validations()["applicant.age"].Errors)

	require.NoError(t, o.SetValue("applicant.show", "yes"))
	assert.Equal(t, []string{"Value has an invalid format."}, o.Validations()["applicant.age"].Errors)

	require.NoError(t, o.SetValue("applicant.show", "no"))
	assert.Empty(t, o.Validations()["applicant.age"].Errors)
}

func TestHiddenBindingsAreNotSaved(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	require.NoError(t, o.SaveAll(context.Background()))
	require.NoError(t, o.SetValue("applicant.hasPets", "yes"))
	require.NoError(t, o.SaveAll(context.Background()))

	saves := mem.Saves()
	require.Len(t, saves, 2)
	assert.NotContains(t, saves[0].Doc, "pets")
	assert.Equal(t, []any{map[string]any{"name": "Rex"}}, saves[1].Doc["pets"])
	assert.Equal(t, "Rex", o.Value("pets[0].name"), "hidden data stays in the local document")
}

func TestOptionResetSkipsRequiredOnce(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))
	rec := record(o)

	require.NoError(t, o.SetValue("address.country", "SE"))
	o.Wait()

	assert.Equal(t, "", o.Value("address.city"))
	assert.False(t, o.Validations()["address.city"].HasErrors())

	o.Flush()
	resets := rec.of(orchestrator.SignalValueReset)
	require.Len(t, resets, 1)
	assert.Equal(t, []string{"address.city"}, resets[0].Keys)

	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	require.NotNil(t, result.Focus)
	assert.Equal(t, "address.city", result.Focus.Binding)
}

func TestSubmitBlockedByClientValidationMakesNoCalls(t *testing.T) {
	t.Parallel()

	doc := fullDoc()
	delete(doc["applicant"].(map[string]any), "name")
	mem := newBackend(t, doc)
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	require.NotNil(t, result.Focus)
	assert.Equal(t, orchestrator.Focus{Page: "intro", ComponentID: "name", Binding: "applicant.name"}, *result.Focus)
	assert.True(t, result.Issues["applicant.name"].HasErrors())

	assert.Zero(t, mem.Calls(backend.OpSaveFormData))
	assert.Zero(t, mem.Calls(backend.OpValidateInstance))
	assert.Zero(t, mem.Calls(backend.OpCompleteProcessTask))
	assert.Equal(t, orchestrator.StateReady, o.State())
}

func TestSubmitCompletesTask(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))
	rec := record(o)

	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, orchestrator.StateCompleted, o.State())
	assert.Equal(t, []string{"1337/7f3c:Task_1"}, mem.Completed())
	assert.Len(t, mem.Saves(), 1)

	o.Flush()
	assert.Len(t, rec.of(orchestrator.SignalCompleted), 1)
}

func TestSubmitStopsOnServerErrors(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc(), memory.WithValidator(func(map[string]any) []validation.Issue {
		return []validation.Issue{
			{Field: "address.city", Code: "closed", Description: "No permits in this city", Severity: validation.SeverityError},
			{Field: "applicant.name", Code: "check", Description: "Spelling looks unusual", Severity: validation.SeverityWarning},
		}
	}))
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, []string{"No permits in this city"}, result.Issues["address.city"].Errors)
	assert.Equal(t, []string{"Spelling looks unusual"}, result.Issues["applicant.name"].Warnings)
	require.NotNil(t, result.Focus)
	assert.Equal(t, "city", result.Focus.ComponentID)
	assert.Empty(t, mem.Completed())
	assert.Equal(t, orchestrator.StateReady, o.State())
}

func TestSubmitStopsOnServerWarnings(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc(), memory.WithValidator(func(map[string]any) []validation.Issue {
		return []validation.Issue{
			{Field: "applicant.name", Code: "check", Description: "Spelling looks unusual", Severity: validation.SeverityWarning},
			{Field: "address.city", Code: "done", Description: "Resolved earlier", Severity: validation.SeverityFixed},
		}
	}))
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	result, err := o.Submit(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, []string{"Spelling looks unusual"}, result.Issues["applicant.name"].Warnings)
	assert.Empty(t, result.Issues["address.city"])
	assert.Empty(t, mem.Completed())
	assert.Equal(t, orchestrator.StateReady, o.State())
}

func TestTransportSaveFailureIsRetried(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))
	rec := record(o)

	mem.Fail(backend.OpSaveFormData, errors.New("offline"))
	require.NoError(t, o.SetValue("applicant.name", "Grace"))
	err := o.Blur(context.Background(), "applicant.name")
	require.Error(t, err)
	assert.True(t, backend.IsTransport(err))
	assert.Equal(t, orchestrator.StateReady, o.State())
	assert.Equal(t, "Grace", o.Value("applicant.name"))

	mem.Script(backend.OpSaveFormData, nil)
	require.NoError(t, o.Blur(context.Background(), "applicant.name"))
	require.Len(t, mem.Saves(), 2)
	stored, ok := mem.Data(dataKey)
	require.True(t, ok)
	assert.Equal(t, "Grace", stored["applicant"].(map[string]any)["name"])

	o.Flush()
	assert.Len(t, rec.of(orchestrator.SignalSaveFailed), 1)
}

func TestRejectedSaveFailsSession(t *testing.T) {
	t.Parallel()

	mem := newBackend(t, fullDoc())
	o := start(t, mem, orchestrator.WithClock(newFakeClock()))

	mem.Fail(backend.OpSaveFormData, backend.StatusError(backend.OpSaveFormData, 401, errors.New("session expired")))
	err := o.SaveAll(context.Background())
	require.Error(t, err)
	assert.True(t, backend.IsAuthRequired(err))
	assert.Equal(t, orchestrator.StateFailed, o.State())
	assert.ErrorIs(t, o.SetValue("applicant.name", "x"), orchestrator.ErrNotReady)
}

func TestNavigationValidatesAndRemembersPage(t *testing.T) {
	t.Parallel()

	doc := fullDoc()
	delete(doc["applicant"].(map[string]any), "name")
	store := layout.NewMemoryPageStore()
	mem := memory.New(
		memory.WithApp(app),
		memory.WithInstance(instance),
		memory.WithLayout("", parseBundle(t, bundleJSON)),
		memory.WithSettings("", &layout.Settings{Pages: layout.PageSettings{
			Order:    []string{"intro", "notes", "review"},
			Triggers: []string{"validatePage"},
		}}),
		memory.WithOptionsFunc("cities", cities),
		memory.WithData(dataKey, doc),
	)
	o := start(t, mem, orchestrator.WithPageStore(store), orchestrator.WithClock(newFakeClock()))
	ctx := context.Background()

	nav, err := o.Next(ctx)
	require.NoError(t, err)
	assert.False(t, nav.Moved)
	require.NotNil(t, nav.Focus)
	assert.Equal(t, "applicant.name", nav.Focus.Binding)
	assert.Zero(t, mem.Calls(backend.OpSaveFormData))

	require.NoError(t, o.SetValue("applicant.name", "Ada"))
	nav, err = o.Next(ctx)
	require.NoError(t, err)
	assert.True(t, nav.Moved)
	assert.Equal(t, "notes", o.Page())
	assert.Equal(t, 1, mem.Calls(backend.OpSaveFormData))

	last, ok, err := store.LastPage(ctx, instance.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "notes", last)

	nav, err = o.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.NavResult{Moved: true, Page: "intro"}, nav)

	_, err = o.NavigateTo(ctx, "missing")
	assert.ErrorIs(t, err, orchestrator.ErrUnknownPage)
}

func TestAutoSaveDisabledWaitsForFullSave(t *testing.T) {
	t.Parallel()

	raw := `{"data": {"autoSave": false, "layout": [
	  {"id": "name", "type": "Input", "dataModelBindings": {"simpleBinding": "applicant.name"}}
	]}}`
	clock := newFakeClock()
	mem := memory.New(
		memory.WithApp(app),
		memory.WithInstance(instance),
		memory.WithLayout("", parseBundle(t, raw)),
		memory.WithData(dataKey, fullDoc()),
	)
	o := start(t, mem, orchestrator.WithClock(clock))
	require.False(t, o.AutoSave())

	require.NoError(t, o.SetValue("applicant.name", "Edsger"))
	clock.Advance(time.Second)
	o.Wait()
	require.NoError(t, o.Blur(context.Background(), "applicant.name"))
	assert.Empty(t, mem.Saves())

	require.NoError(t, o.SaveAll(context.Background()))
	assert.Len(t, mem.Saves(), 1)
}

func TestSetValueRejectsMalformedPath(t *testing.T) {
	t.Parallel()

	o := start(t, newBackend(t, fullDoc()), orchestrator.WithClock(newFakeClock()))
	assert.Error(t, o.SetValue("pets[x].name", "Rex"))
	assert.Error(t, o.SetValue("[0]", "Rex"))
}
