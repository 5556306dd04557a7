package schema

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ValidationError reports a schema mismatch discovered while validating raw
// model output. It is distinct from a parse error: the text was valid JSON
// but did not conform to the target shape.
type ValidationError struct {
	Schema  string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("schema validation failed for %s: field %q %s", e.Schema, e.Field, e.Message)
	}
	return fmt.Sprintf("schema validation failed for %s: %s", e.Schema, e.Message)
}

// ParseError reports raw output that could not be decoded as JSON at all.
type ParseError struct {
	Schema  string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %s: malformed output: %s", e.Schema, e.Message)
}

// Validator is the parse-and-validate collaborator boundary. It accepts raw
// model output and a schema descriptor and returns a typed value (a pointer
// to the schema's struct type) or an error.
type Validator interface {
	ParseAndValidate(raw []byte, s Schema) (any, error)
}

// DefaultValidator decodes raw JSON into a fresh instance of the schema's
// prototype and checks the required properties derived from the reflected
// schema are present.
type DefaultValidator struct{}

// NewValidator returns the default validator.
func NewValidator() *DefaultValidator {
	return &DefaultValidator{}
}

// ParseAndValidate implements Validator.
func (v *DefaultValidator) ParseAndValidate(raw []byte, s Schema) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, &ParseError{Schema: s.Name, Message: "empty output"}
	}

	// Decode into a generic map first so a JSON syntax error is reported as
	// a parse failure rather than a validation failure.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &ParseError{Schema: s.Name, Message: err.Error()}
	}

	if js, err := s.Reflect(); err == nil {
		for _, required := range js.Required {
			val, ok := fields[required]
			if !ok || string(bytes.TrimSpace(val)) == "null" {
				return nil, &ValidationError{Schema: s.Name, Field: required, Message: "is required"}
			}
		}
	}

	instance, err := s.NewInstance()
	if err != nil {
		return nil, &ValidationError{Schema: s.Name, Message: err.Error()}
	}
	if err := json.Unmarshal(trimmed, instance); err != nil {
		return nil, &ValidationError{Schema: s.Name, Message: err.Error()}
	}
	return instance, nil
}

// ExtractJSON strips markdown code-fence wrappers from raw model output,
// returning the inner payload. Output without fences is returned unchanged.
func ExtractJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop an optional language tag on the opening fence, e.g. ```json
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		first := strings.TrimSpace(trimmed[:idx])
		if first == "" || !strings.ContainsAny(first, "{[") {
			trimmed = trimmed[idx+1:]
		}
	}
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
