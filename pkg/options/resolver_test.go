package options_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/options"
)

type gatedFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	gates   map[string]chan struct{}
	results map[string][]options.Option
}

func newGatedFetcher() *gatedFetcher {
	return &gatedFetcher{
		calls:   make(map[string]int),
		gates:   make(map[string]chan struct{}),
		results: make(map[string][]options.Option),
	}
}

func (f *gatedFetcher) gate(country string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[country] = ch
	return ch
}

func (f *gatedFetcher) FetchOptions(ctx context.Context, id string, params map[string]string) ([]options.Option, error) {
	country := params["country"]
	f.mu.Lock()
	f.calls[id+":"+country]++
	gate := f.gates[country]
	result := f.results[country]
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, nil
}

func (f *gatedFetcher) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func waitLoaded(t *testing.T, ch <-chan options.Loaded) options.Loaded {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for options to load")
		return options.Loaded{}
	}
}

func TestStaticOptionsAreSynchronous(t *testing.T) {
	t.Parallel()

	r := options.NewResolver(nil)
	defer r.Close()

	static := []options.Option{{Value: "a", Label: "A"}}
	set := r.Get(options.Request{Consumer: "x", Static: static}, nil)
	if set.Loading {
		t.Fatalf("static options must not report loading")
	}
	if diff := cmp.Diff(static, set.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentConsumersShareOneFetch(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	fetcher.results["NO"] = []options.Option{{Value: "osl", Label: "<i>Oslo</i>"}}
	gate := fetcher.gate("NO")

	loaded := make(chan options.Loaded, 4)
	r := options.NewResolver(fetcher, options.OnLoaded(func(l options.Loaded) { loaded <- l }))
	defer r.Close()

	doc := binding.FlatMap{"address.country": "NO"}
	mapping := map[string]string{"address.country": "country"}

	a := r.Get(options.Request{Consumer: "a", ID: "cities", Mapping: mapping}, doc)
	b := r.Get(options.Request{Consumer: "b", ID: "cities", Mapping: mapping}, doc)
	if !a.Loading || !b.Loading {
		t.Fatalf("expected both consumers to see loading, got %+v %+v", a, b)
	}
	if len(a.Options) != 0 {
		t.Fatalf("expected no previous options, got %+v", a.Options)
	}

	close(gate)
	ev := waitLoaded(t, loaded)
	r.Wait()

	if ev.Key != "cities?country=NO" {
		t.Fatalf("loaded key = %q", ev.Key)
	}
	if got := fetcher.count("cities:NO"); got != 1 {
		t.Fatalf("fetch count = %d, want 1", got)
	}
	select {
	case extra := <-loaded:
		t.Fatalf("loading completed twice for one key: %+v", extra)
	default:
	}

	set := r.Get(options.Request{Consumer: "a", ID: "cities", Mapping: mapping}, doc)
	want := []options.Option{{Value: "osl", Label: "Oslo"}}
	if set.Loading {
		t.Fatalf("expected loaded set")
	}
	if diff := cmp.Diff(want, set.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a", "b"}, r.Consumers(ev.Key)); diff != "" {
		t.Fatalf("consumers mismatch (-want +got):\n%s", diff)
	}
}

func TestStaleMappingIsNeverShown(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	fetcher.results["NO"] = []options.Option{{Value: "osl", Label: "Oslo"}}
	fetcher.results["SE"] = []options.Option{{Value: "sto", Label: "Stockholm"}}
	slow := fetcher.gate("NO")

	loaded := make(chan options.Loaded, 4)
	r := options.NewResolver(fetcher, options.OnLoaded(func(l options.Loaded) { loaded <- l }))
	defer r.Close()

	req := options.Request{Consumer: "city", ID: "cities", Mapping: map[string]string{"country": "country"}}

	first := r.Get(req, binding.FlatMap{"country": "NO"})
	if !first.Loading {
		t.Fatalf("expected loading for first mapping")
	}

	second := r.Get(req, binding.FlatMap{"country": "SE"})
	if !second.Loading {
		t.Fatalf("expected loading for second mapping")
	}
	ev := waitLoaded(t, loaded)
	if ev.Key != "cities?country=SE" {
		t.Fatalf("expected SE to load first, got %q", ev.Key)
	}

	close(slow)
	ev = waitLoaded(t, loaded)
	if ev.Key != "cities?country=NO" {
		t.Fatalf("expected stale NO completion, got %q", ev.Key)
	}
	if consumers := r.Consumers(ev.Key); len(consumers) != 0 {
		t.Fatalf("stale key still has consumers: %v", consumers)
	}

	current, _ := r.Current("city")
	if current != "cities?country=SE" {
		t.Fatalf("current key = %q", current)
	}
	got := r.Get(req, binding.FlatMap{"country": "SE"})
	if diff := cmp.Diff(fetcher.results["SE"], got.Options); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadingShowsPreviousOptions(t *testing.T) {
	t.Parallel()

	fetcher := newGatedFetcher()
	fetcher.results["NO"] = []options.Option{{Value: "osl", Label: "Oslo"}}
	fetcher.results["DK"] = []options.Option{{Value: "cph", Label: "Copenhagen"}}

	r := options.NewResolver(fetcher)
	defer r.Close()

	req := options.Request{Consumer: "city", ID: "cities", Mapping: map[string]string{"country": "country"}}
	if _, err := r.Load(context.Background(), req, binding.FlatMap{"country": "NO"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	gate := fetcher.gate("DK")
	set := r.Get(req, binding.FlatMap{"country": "DK"})
	if !set.Loading {
		t.Fatalf("expected loading")
	}
	if diff := cmp.Diff(fetcher.results["NO"], set.Options); diff != "" {
		t.Fatalf("expected previous options while loading (-want +got):\n%s", diff)
	}
	close(gate)
	r.Wait()
}

func TestNeedsReset(t *testing.T) {
	t.Parallel()

	set := options.Set{Options: []options.Option{{Value: "a"}, {Value: "b"}}}
	if options.NeedsReset(set, "a") {
		t.Fatalf("present value must not reset")
	}
	if !options.NeedsReset(set, "z") {
		t.Fatalf("missing value must reset")
	}
	if options.NeedsReset(set, "") {
		t.Fatalf("empty selection must not reset")
	}
	if options.NeedsReset(options.Set{Loading: true}, "z") {
		t.Fatalf("loading set must not reset")
	}
}

func TestFromSource(t *testing.T) {
	t.Parallel()

	doc := binding.FlatMap{
		"pets[0].id":   "p1",
		"pets[0].name": "Rex",
		"pets[1].id":   "p2",
		"pets[2].name": "No id",
	}
	got := options.FromSource(options.Source{Group: "pets", Label: "pets.name", Value: "pets.id"}, doc, nil)
	want := []options.Option{{Value: "p1", Label: "Rex"}, {Value: "p2", Label: "p2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("source options mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyIsStableAcrossMappingOrder(t *testing.T) {
	t.Parallel()

	doc := binding.FlatMap{"a": "1", "b": "two words"}
	k1 := options.Key(options.Request{ID: "x", Mapping: map[string]string{"a": "p", "b": "q"}}, doc)
	k2 := options.Key(options.Request{ID: "x", Mapping: map[string]string{"b": "q", "a": "p"}}, doc)
	if k1 != k2 || k1 != "x?p=1&q=two+words" {
		t.Fatalf("keys differ or unexpected: %q %q", k1, k2)
	}
	if got := options.Key(options.Request{ID: "x"}, doc); got != "x" {
		t.Fatalf("unmapped key = %q", got)
	}
}
