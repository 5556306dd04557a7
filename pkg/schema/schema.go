// Package schema defines the target-schema descriptor used for validated
// generation, plus the parse-and-validate collaborator boundary. A Schema
// pairs a display name with a Go prototype; the JSON shape is derived from
// the prototype by reflection so that prompts, validation, and cache
// fingerprints all agree on a single serialized form.
package schema

import (
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// Schema describes the shape a generated answer must conform to.
// Prototype must be a non-nil pointer to a struct; a fresh instance of the
// pointed-to type is allocated for every validation, so a single Schema is
// safe to share across concurrent requests.
type Schema struct {
	// Name identifies the schema in prompts, cache keys, and logs.
	Name string

	// Prototype is a pointer to the target struct type, e.g. new(Recipe).
	Prototype any
}

// New builds a Schema for the given prototype. The name defaults to the
// struct type name when empty.
func New(name string, prototype any) Schema {
	if name == "" {
		if t := structType(prototype); t != nil {
			name = t.Name()
		}
	}
	return Schema{Name: name, Prototype: prototype}
}

// Reflect derives the JSON Schema for the prototype. The result is inlined
// (no $ref indirection) so it can be embedded directly in a prompt.
func (s Schema) Reflect() (*jsonschema.Schema, error) {
	t := structType(s.Prototype)
	if t == nil {
		return nil, fmt.Errorf("schema %q: prototype must be a pointer to a struct, got %T", s.Name, s.Prototype)
	}
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	return reflector.Reflect(s.Prototype), nil
}

// ShapeJSON returns the serialized JSON Schema of the prototype.
func (s Schema) ShapeJSON() ([]byte, error) {
	js, err := s.Reflect()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(js)
	if err != nil {
		return nil, fmt.Errorf("schema %q: serialize shape: %w", s.Name, err)
	}
	return data, nil
}

// NewInstance allocates a fresh zero value of the prototype's struct type,
// returned as a pointer suitable for JSON decoding.
func (s Schema) NewInstance() (any, error) {
	t := structType(s.Prototype)
	if t == nil {
		return nil, fmt.Errorf("schema %q: prototype must be a pointer to a struct, got %T", s.Name, s.Prototype)
	}
	return reflect.New(t).Interface(), nil
}

// structType resolves the struct type behind a *T prototype, or nil when the
// prototype is not a pointer to a struct.
func structType(prototype any) reflect.Type {
	if prototype == nil {
		return nil
	}
	t := reflect.TypeOf(prototype)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil
	}
	return t.Elem()
}
