package mcp

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// SchemaKind discriminates the local schema variants.
type SchemaKind string

const (
	KindString  SchemaKind = "string"
	KindNumber  SchemaKind = "number"
	KindInteger SchemaKind = "integer"
	KindBoolean SchemaKind = "boolean"
	KindNull    SchemaKind = "null"
	KindArray   SchemaKind = "array"
	KindObject  SchemaKind = "object"
	KindUnion   SchemaKind = "union"

	// KindAny is the tagged passthrough for schema shapes the translator
	// does not understand. Callers can distinguish "validated" from
	// "accepted unchecked" by checking for it.
	KindAny SchemaKind = "any"
)

// Schema is the local structural-validation representation of a tool's input
// shape.
type Schema struct {
	Kind SchemaKind

	// String constraints.
	MinLength *int
	MaxLength *int
	Pattern   *regexp.Regexp
	Enum      []string

	// Numeric bounds (number and integer).
	Minimum *float64
	Maximum *float64

	// Array constraints.
	Items    *Schema
	MinItems *int
	MaxItems *int

	// Object constraints. Passthrough allows properties beyond Properties
	// (additionalProperties true); otherwise unknown keys are rejected.
	Properties  map[string]*Schema
	Required    []string
	Passthrough bool

	// Union variants (oneOf / anyOf). A value is valid if any variant
	// accepts it.
	Variants []*Schema
}

// AnySchema is the shared accept-anything placeholder.
var AnySchema = &Schema{Kind: KindAny}

// Validate checks value against the schema. KindAny accepts everything.
func (s *Schema) Validate(value interface{}) error {
	switch s.Kind {
	case KindAny:
		return nil

	case KindNull:
		if value != nil {
			return fmt.Errorf("expected null, got %T", value)
		}
		return nil

	case KindBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
		return nil

	case KindString:
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
		if s.MinLength != nil && len(str) < *s.MinLength {
			return fmt.Errorf("string shorter than %d", *s.MinLength)
		}
		if s.MaxLength != nil && len(str) > *s.MaxLength {
			return fmt.Errorf("string longer than %d", *s.MaxLength)
		}
		if s.Pattern != nil && !s.Pattern.MatchString(str) {
			return fmt.Errorf("string does not match pattern %s", s.Pattern)
		}
		if len(s.Enum) > 0 {
			for _, e := range s.Enum {
				if str == e {
					return nil
				}
			}
			return fmt.Errorf("%q is not one of the allowed values", str)
		}
		return nil

	case KindNumber, KindInteger:
		n, ok := asFloat(value)
		if !ok {
			return fmt.Errorf("expected %s, got %T", s.Kind, value)
		}
		if s.Kind == KindInteger && n != float64(int64(n)) {
			return fmt.Errorf("expected integer, got %v", n)
		}
		if s.Minimum != nil && n < *s.Minimum {
			return fmt.Errorf("%v below minimum %v", n, *s.Minimum)
		}
		if s.Maximum != nil && n > *s.Maximum {
			return fmt.Errorf("%v above maximum %v", n, *s.Maximum)
		}
		return nil

	case KindArray:
		arr, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
		if s.MinItems != nil && len(arr) < *s.MinItems {
			return fmt.Errorf("array shorter than %d items", *s.MinItems)
		}
		if s.MaxItems != nil && len(arr) > *s.MaxItems {
			return fmt.Errorf("array longer than %d items", *s.MaxItems)
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := s.Items.Validate(item); err != nil {
					return fmt.Errorf("item %d: %w", i, err)
				}
			}
		}
		return nil

	case KindObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
		for _, req := range s.Required {
			if _, ok := obj[req]; !ok {
				return fmt.Errorf("missing required property %q", req)
			}
		}
		for k, v := range obj {
			prop, ok := s.Properties[k]
			if !ok {
				if s.Passthrough {
					continue
				}
				return fmt.Errorf("unknown property %q", k)
			}
			if err := prop.Validate(v); err != nil {
				return fmt.Errorf("property %q: %w", k, err)
			}
		}
		return nil

	case KindUnion:
		for _, variant := range s.Variants {
			if variant.Validate(value) == nil {
				return nil
			}
		}
		return fmt.Errorf("value matches no union variant")

	default:
		return fmt.Errorf("unknown schema kind %q", s.Kind)
	}
}

func asFloat(value interface{}) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
