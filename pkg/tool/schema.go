package tool

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// buildSchema renders the ordered field list as an object schema that rejects
// undeclared properties. Property order follows declaration order.
func buildSchema(d Definition) *jsonschema.Schema {
	s := &jsonschema.Schema{
		Type:                 "object",
		Properties:           jsonschema.NewProperties(),
		AdditionalProperties: jsonschema.FalseSchema,
	}
	for _, f := range d.Fields {
		prop := &jsonschema.Schema{Description: f.Description}
		switch f.Type {
		case StringArray:
			prop.Type = "array"
			prop.Items = &jsonschema.Schema{Type: "string"}
		default:
			prop.Type = "string"
		}
		s.Properties.Set(f.Name, prop)
		if f.Required {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// marshalSchema encodes a schema; invopop keeps the ordered property map intact.
func marshalSchema(s *jsonschema.Schema) (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
