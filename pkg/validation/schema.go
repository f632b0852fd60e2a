package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"
)

// RuleSet maps index-free binding paths (people.pets.name) to rules.
type RuleSet map[string]Rules

var indexPattern = regexp.MustCompile(`\[\d+\]`)

// For returns the rules of a concrete binding key such as people[0].name.
func (rs RuleSet) For(key string) (Rules, bool) {
	r, ok := rs[indexPattern.ReplaceAllString(key, "")]
	return r, ok
}

// Keys returns the paths in rs sorted.
func (rs RuleSet) Keys() []string {
	keys := make([]string, 0, len(rs))
	for k := range rs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseSchema decodes a data-model JSON schema given as JSON or YAML.
func ParseSchema(data []byte) (*openapi3.Schema, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal(data, &schema); err == nil {
		return &schema, nil
	}
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("validation: parse schema: %w", err)
	}
	converted, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("validation: convert schema: %w", err)
	}
	if err := json.Unmarshal(converted, &schema); err != nil {
		return nil, fmt.Errorf("validation: decode schema: %w", err)
	}
	return &schema, nil
}

// RulesFromSchema derives rules for every scalar property reachable from
// schema. Unresolved references are skipped.
func RulesFromSchema(schema *openapi3.Schema) RuleSet {
	out := make(RuleSet)
	if schema == nil {
		return out
	}
	collectRules(out, "", schema, false)
	return out
}

func collectRules(out RuleSet, prefix string, schema *openapi3.Schema, required bool) {
	switch {
	case schemaIs(schema, openapi3.TypeObject) || len(schema.Properties) > 0:
		requiredSet := make(map[string]bool, len(schema.Required))
		for _, name := range schema.Required {
			requiredSet[name] = true
		}
		names := make([]string, 0, len(schema.Properties))
		for name := range schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			ref := schema.Properties[name]
			if ref == nil || ref.Value == nil {
				continue
			}
			collectRules(out, joinSchemaPath(prefix, name), ref.Value, requiredSet[name])
		}
	case schemaIs(schema, openapi3.TypeArray):
		if schema.Items != nil && schema.Items.Value != nil && prefix != "" {
			collectRules(out, prefix, schema.Items.Value, false)
		}
	default:
		if prefix == "" {
			return
		}
		out[prefix] = scalarRules(schema, required)
	}
}

func scalarRules(schema *openapi3.Schema, required bool) Rules {
	r := Rules{Required: required, Pattern: schema.Pattern, Label: strings.TrimSpace(schema.Title)}
	switch {
	case schemaIs(schema, openapi3.TypeNumber) || schemaIs(schema, openapi3.TypeInteger):
		r.Type = TypeNumber
		if schema.Min != nil {
			v := *schema.Min
			r.Min = &v
		}
		if schema.Max != nil {
			v := *schema.Max
			r.Max = &v
		}
	case schema.Format == "date":
		r.Type = TypeDate
	case schema.Format == "date-time":
		r.Type = TypeDate
		r.TimeStamp = true
	default:
		r.Type = TypeText
		if schema.MinLength != 0 {
			v := int(schema.MinLength)
			r.MinLength = &v
		}
		if schema.MaxLength != nil {
			v := int(*schema.MaxLength)
			r.MaxLength = &v
		}
	}
	return r
}

func schemaIs(schema *openapi3.Schema, typ string) bool {
	if schema.Type == nil {
		return false
	}
	for _, t := range schema.Type.Slice() {
		if t == typ {
			return true
		}
	}
	return false
}

func joinSchemaPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
