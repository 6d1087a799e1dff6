package mcp

import (
	"log/slog"
	"regexp"
)

// TranslateSchema converts a JSON-Schema fragment into the local Schema.
// It is total: shapes it does not understand come back as the tagged
// AnySchema placeholder, never an error, so one odd tool cannot sink the
// whole catalog load.
func TranslateSchema(raw map[string]interface{}) *Schema {
	if raw == nil {
		return AnySchema
	}

	// Compositions take precedence over "type".
	if variants, ok := rawSlice(raw, "oneOf"); ok {
		return translateUnion(variants)
	}
	if variants, ok := rawSlice(raw, "anyOf"); ok {
		return translateUnion(variants)
	}
	if parts, ok := rawSlice(raw, "allOf"); ok {
		return translateIntersection(parts)
	}

	switch raw["type"] {
	case "string":
		return translateString(raw)
	case "number":
		return translateNumeric(raw, KindNumber)
	case "integer":
		return translateNumeric(raw, KindInteger)
	case "boolean":
		return &Schema{Kind: KindBoolean}
	case "null":
		return &Schema{Kind: KindNull}
	case "array":
		return translateArray(raw)
	case "object":
		return translateObject(raw)
	}

	// Bare {"enum": [...]} without a type is common in the wild.
	if enum := stringSlice(raw["enum"]); len(enum) > 0 {
		return &Schema{Kind: KindString, Enum: enum}
	}

	return AnySchema
}

func translateString(raw map[string]interface{}) *Schema {
	s := &Schema{Kind: KindString}
	s.MinLength = intPtr(raw["minLength"])
	s.MaxLength = intPtr(raw["maxLength"])
	s.Enum = stringSlice(raw["enum"])
	if p, ok := raw["pattern"].(string); ok {
		re, err := regexp.Compile(p)
		if err != nil {
			slog.Debug("schema: unusable pattern, ignoring", "pattern", p, "error", err)
		} else {
			s.Pattern = re
		}
	}
	return s
}

func translateNumeric(raw map[string]interface{}, kind SchemaKind) *Schema {
	s := &Schema{Kind: kind}
	s.Minimum = floatPtr(raw["minimum"])
	s.Maximum = floatPtr(raw["maximum"])
	return s
}

func translateArray(raw map[string]interface{}) *Schema {
	s := &Schema{Kind: KindArray}
	if items, ok := raw["items"].(map[string]interface{}); ok {
		s.Items = TranslateSchema(items)
	}
	s.MinItems = intPtr(raw["minItems"])
	s.MaxItems = intPtr(raw["maxItems"])
	return s
}

func translateObject(raw map[string]interface{}) *Schema {
	s := &Schema{Kind: KindObject, Properties: map[string]*Schema{}}

	if props, ok := raw["properties"].(map[string]interface{}); ok {
		for name, p := range props {
			if pm, ok := p.(map[string]interface{}); ok {
				s.Properties[name] = TranslateSchema(pm)
			} else {
				s.Properties[name] = AnySchema
			}
		}
	}
	s.Required = stringSlice(raw["required"])

	// additionalProperties defaults to passthrough; only an explicit false
	// makes the object strict.
	s.Passthrough = true
	if ap, ok := raw["additionalProperties"].(bool); ok {
		s.Passthrough = ap
	}
	return s
}

func translateUnion(variants []map[string]interface{}) *Schema {
	s := &Schema{Kind: KindUnion}
	for _, v := range variants {
		s.Variants = append(s.Variants, TranslateSchema(v))
	}
	if len(s.Variants) == 0 {
		return AnySchema
	}
	return s
}

// translateIntersection merges allOf object parts into a single object:
// properties and required lists are unioned, strictness wins over
// passthrough. Non-object parts degrade the whole thing to AnySchema.
func translateIntersection(parts []map[string]interface{}) *Schema {
	merged := &Schema{Kind: KindObject, Properties: map[string]*Schema{}, Passthrough: true}
	for _, p := range parts {
		t := TranslateSchema(p)
		if t.Kind != KindObject {
			return AnySchema
		}
		for name, prop := range t.Properties {
			merged.Properties[name] = prop
		}
		merged.Required = appendMissing(merged.Required, t.Required)
		if !t.Passthrough {
			merged.Passthrough = false
		}
	}
	return merged
}

// --- raw JSON helpers ---

func rawSlice(raw map[string]interface{}, key string) ([]map[string]interface{}, bool) {
	items, ok := raw[key].([]interface{})
	if !ok || len(items) == 0 {
		return nil, false
	}
	var out []map[string]interface{}
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func stringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intPtr(v interface{}) *int {
	if f, ok := v.(float64); ok {
		n := int(f)
		return &n
	}
	return nil
}

func floatPtr(v interface{}) *float64 {
	if f, ok := v.(float64); ok {
		return &f
	}
	return nil
}

func appendMissing(dst []string, src []string) []string {
	for _, s := range src {
		found := false
		for _, d := range dst {
			if d == s {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, s)
		}
	}
	return dst
}
