package visibility_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formruntime/pkg/binding"
	"github.com/goliatone/go-formruntime/pkg/layout"
	"github.com/goliatone/go-formruntime/pkg/visibility"
)

func TestIsHidden(t *testing.T) {
	t.Parallel()

	doc := binding.FlatMap{
		"applicant.hasPets":      "true",
		"people[0].age":          "12",
		"people[1].age":          "40",
		"people[1].pets[0].kind": "dog",
	}

	tests := []struct {
		name   string
		node   *layout.Node
		frames []binding.Frame
		want   bool
	}{
		{name: "no rules", node: &layout.Node{ID: "a"}, want: false},
		{name: "static hidden", node: &layout.Node{ID: "a", Hidden: "true"}, want: true},
		{name: "static shown", node: &layout.Node{ID: "a", Hidden: "false"}, want: false},
		{name: "hidden expression", node: &layout.Node{ID: "a", Hidden: "applicant.hasPets == false"}, want: false},
		{name: "visibility rule false", node: &layout.Node{ID: "a", VisibilityRule: "!applicant.hasPets"}, want: true},
		{
			name:   "explicit placeholder",
			node:   &layout.Node{ID: "a", Hidden: "people[{0}].age < 18"},
			frames: []binding.Frame{{Binding: "people", Index: 0}},
			want:   true,
		},
		{
			name:   "sequential placeholder",
			node:   &layout.Node{ID: "a", Hidden: "people[{i}].age < 18"},
			frames: []binding.Frame{{Binding: "people", Index: 1}},
			want:   false,
		},
		{
			name: "group relative binding",
			node: &layout.Node{ID: "a", Hidden: "people.pets.kind == 'dog'"},
			frames: []binding.Frame{
				{Binding: "people", Index: 1},
				{Binding: "people.pets", Index: 0},
			},
			want: true,
		},
		{name: "broken rule stays visible", node: &layout.Node{ID: "a", Hidden: "a = b"}, want: false},
		{name: "placeholder without group stays visible", node: &layout.Node{ID: "a", Hidden: "x[{0}] == 1"}, want: false},
	}

	engine := visibility.New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := engine.IsHidden(tt.node, visibility.Context{Doc: doc, Frames: tt.frames})
			if got != tt.want {
				t.Fatalf("IsHidden = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCustomEvaluator(t *testing.T) {
	t.Parallel()

	var seen []string
	engine := visibility.New(visibility.WithEvaluator(visibility.EvaluatorFunc(func(rule string, _ visibility.Context) (bool, error) {
		seen = append(seen, rule)
		return true, nil
	})))

	node := &layout.Node{ID: "a", Hidden: "flag[{0}]"}
	if !engine.IsHidden(node, visibility.Context{Frames: []binding.Frame{{Binding: "flag", Index: 3}}}) {
		t.Fatalf("expected hidden")
	}
	if diff := cmp.Diff([]string{"flag[3]"}, seen); diff != "" {
		t.Fatalf("evaluated rules mismatch (-want +got):\n%s", diff)
	}
}

func TestDependencies(t *testing.T) {
	t.Parallel()

	node := &layout.Node{Hidden: "a == 1 && b", VisibilityRule: "c != 'x'"}
	if diff := cmp.Diff([]string{"a", "b", "c"}, visibility.Dependencies(node)); diff != "" {
		t.Fatalf("dependencies mismatch (-want +got):\n%s", diff)
	}
}
