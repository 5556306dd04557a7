package schema

import (
	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// ExampleJSON synthesizes a concrete filled-in instance of the schema. It is
// appended to retry prompts to give the model a second, more concrete hint
// after an attempt produced non-conforming output.
func ExampleJSON(s Schema) ([]byte, error) {
	js, err := s.Reflect()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(exampleValue(js), "", "  ")
}

func exampleValue(js *jsonschema.Schema) any {
	if js == nil {
		return nil
	}
	if len(js.Examples) > 0 {
		return js.Examples[0]
	}
	if js.Default != nil {
		return js.Default
	}
	if len(js.Enum) > 0 {
		return js.Enum[0]
	}

	switch js.Type {
	case "object":
		obj := map[string]any{}
		if js.Properties != nil {
			for pair := js.Properties.Oldest(); pair != nil; pair = pair.Next() {
				obj[pair.Key] = exampleValue(pair.Value)
			}
		}
		return obj
	case "array":
		if js.Items != nil {
			return []any{exampleValue(js.Items)}
		}
		return []any{}
	case "string":
		return "example"
	case "integer":
		return 1
	case "number":
		return 1.5
	case "boolean":
		return true
	default:
		return nil
	}
}
