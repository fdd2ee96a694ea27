package validation

import (
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema.
type Schema struct {
	schema *gojsonschema.Schema
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Compile parses a JSON schema document.
func Compile(definition string) (*Schema, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(definition))
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: s}, nil
}

// MustCompile is like Compile but panics on an invalid schema.
func MustCompile(definition string) *Schema {
	s, err := Compile(definition)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate checks doc, which may be a struct, a map or raw JSON bytes.
func (s *Schema) Validate(doc interface{}) (*ValidationResult, error) {
	var loader gojsonschema.JSONLoader
	switch d := doc.(type) {
	case []byte:
		loader = gojsonschema.NewBytesLoader(d)
	case string:
		loader = gojsonschema.NewStringLoader(d)
	default:
		loader = gojsonschema.NewGoLoader(d)
	}

	result, err := s.schema.Validate(loader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, re := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldOf(re),
			Message: re.Description(),
			Code:    re.Type(),
		})
	}
	sort.SliceStable(out.Errors, func(i, j int) bool {
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}

// FieldMap returns the first message per field.
func (r *ValidationResult) FieldMap() map[string]string {
	fields := make(map[string]string, len(r.Errors))
	for _, e := range r.Errors {
		if _, seen := fields[e.Field]; !seen {
			fields[e.Field] = e.Message
		}
	}
	return fields
}

// fieldOf reports the missing property for "required" errors, which
// gojsonschema attributes to the parent object.
func fieldOf(re gojsonschema.ResultError) string {
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			if re.Field() == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
				return prop
			}
			return re.Field() + "." + prop
		}
	}
	return re.Field()
}
