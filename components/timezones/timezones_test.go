package timezones

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/options"
)

func TestLoadZones_DedupesSortsAndIgnoresComments(t *testing.T) {
	input := strings.NewReader(`
# Comment
America/New_York
Europe/Paris
America/New_York

UTC
`)

	zones, err := LoadZones(input)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := []string{"America/New_York", "Europe/Paris", "UTC"}
	if diff := cmp.Diff(want, zones); diff != "" {
		t.Fatalf("zones mismatch (-want +got):\n%s", diff)
	}
}

func TestDefaultZones_ContainsCommonEntries(t *testing.T) {
	zones, err := DefaultZones()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(zones) < 200 {
		t.Fatalf("expected a reasonably sized list, got %d", len(zones))
	}
	for _, expected := range []string{"America/New_York", "Europe/Paris", "UTC"} {
		if !slices.Contains(zones, expected) {
			t.Fatalf("expected zone %q to be present", expected)
		}
	}
}

func TestSearch(t *testing.T) {
	tests := []struct {
		name  string
		zones []string
		query string
		limit int
		opts  Options
		want  []string
	}{
		{
			name:  "case insensitive contains",
			zones: []string{"Europe/Paris", "America/New_York", "UTC"},
			query: "eUrOpE/p",
			opts:  NewOptions(),
			want:  []string{"Europe/Paris"},
		},
		{
			name:  "prefix before contains",
			zones: []string{"x/a/b", "a/b", "a/b/c", "c/d"},
			query: "a/b",
			opts:  NewOptions(),
			want:  []string{"a/b", "a/b/c", "x/a/b"},
		},
		{
			name:  "empty query returns top zones",
			zones: []string{"a", "b", "c", "d"},
			opts:  NewOptions(WithDefaultLimit(2), WithMaxLimit(3)),
			want:  []string{"a", "b"},
		},
		{
			name:  "empty query returns nothing",
			zones: []string{"a", "b"},
			opts:  NewOptions(WithEmptySearchMode(EmptySearchNone)),
		},
		{
			name:  "limit clamped to max",
			zones: []string{"a1", "a2", "a3", "a4"},
			query: "a",
			limit: 10,
			opts:  NewOptions(WithMaxLimit(3)),
			want:  []string{"a1", "a2", "a3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Search(tt.zones, tt.query, tt.limit, tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Search mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSourceLookupUsesMappedParams(t *testing.T) {
	src := New(WithZones([]string{"America/New_York", "Europe/Oslo", "Europe/Paris"}), WithSearchParam("zone"))

	got, err := src.Lookup(map[string]string{"zone": "new", "limit": "5"})
	if err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	want := []options.Option{{Value: "America/New_York", Label: "America/New York"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	if _, err := src.Lookup(map[string]string{"limit": "many"}); err == nil {
		t.Fatalf("expected error for malformed limit")
	}
}

func TestFetcherServesOptionResolver(t *testing.T) {
	src := New(WithZones([]string{"Europe/Oslo", "Europe/Paris", "Asia/Tokyo"}))
	resolver := options.NewResolver(src.Fetcher())
	defer resolver.Close()

	req := options.Request{
		Consumer: "profile.zone",
		ID:       OptionsID,
		Mapping:  map[string]string{"profile.zoneSearch": "q"},
	}
	got, err := resolver.Load(context.Background(), req, binding.FlatMap{"profile.zoneSearch": "europe"})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := []options.Option{
		{Value: "Europe/Oslo", Label: "Europe/Oslo"},
		{Value: "Europe/Paris", Label: "Europe/Paris"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("options mismatch (-want +got):\n%s", diff)
	}

	if _, err := src.Fetcher()(context.Background(), "cities", nil); err == nil {
		t.Fatalf("expected error for foreign options id")
	}
}
