package validation_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formruntime/pkg/validation"
)

const modelSchema = `
type: object
required: [applicant]
properties:
  applicant:
    type: object
    required: [name]
    properties:
      name:
        type: string
        title: Name
        minLength: 2
        maxLength: 40
      born:
        type: string
        format: date
  people:
    type: array
    items:
      type: object
      properties:
        age:
          type: integer
          minimum: 0
          maximum: 130
        updated:
          type: string
          format: date-time
        code:
          type: string
          pattern: '^[A-Z]{2}$'
`

func TestRulesFromSchema(t *testing.T) {
	t.Parallel()

	schema, err := validation.ParseSchema([]byte(modelSchema))
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	rules := validation.RulesFromSchema(schema)

	wantKeys := []string{"applicant.born", "applicant.name", "people.age", "people.code", "people.updated"}
	if diff := cmp.Diff(wantKeys, rules.Keys()); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}

	name, ok := rules.For("applicant.name")
	if !ok {
		t.Fatalf("missing applicant.name")
	}
	wantName := validation.Rules{Required: true, Type: validation.TypeText, MinLength: intPtr(2), MaxLength: intPtr(40), Label: "Name"}
	if diff := cmp.Diff(wantName, name); diff != "" {
		t.Fatalf("name rules (-want +got):\n%s", diff)
	}

	age, ok := rules.For("people[3].age")
	if !ok {
		t.Fatalf("indexed lookup failed")
	}
	wantAge := validation.Rules{Type: validation.TypeNumber, Min: floatPtr(0), Max: floatPtr(130)}
	if diff := cmp.Diff(wantAge, age); diff != "" {
		t.Fatalf("age rules (-want +got):\n%s", diff)
	}

	updated, _ := rules.For("people[0].updated")
	if updated.Type != validation.TypeDate || !updated.TimeStamp {
		t.Fatalf("date-time rules = %+v", updated)
	}
	code, _ := rules.For("people[0].code")
	if code.Pattern != "^[A-Z]{2}$" {
		t.Fatalf("pattern = %q", code.Pattern)
	}
}

func TestRulesOverlay(t *testing.T) {
	t.Parallel()

	base := validation.Rules{Type: validation.TypeText, MaxLength: intPtr(40), Label: "Name"}
	got := base.Overlay(validation.Rules{Required: true, MaxLength: intPtr(10)})
	want := validation.Rules{Required: true, Type: validation.TypeText, MaxLength: intPtr(10), Label: "Name"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("overlay mismatch (-want +got):\n%s", diff)
	}
}
