package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"slices"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"

	"github.com/wilhg/summon/pkg/errmodel"
)

// compileSchema compiles an in-memory schema document registered under the tool name.
func compileSchema(name string, schema []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	// anonymous in-memory schema from parsed JSON
	var doc any
	if err := json.Unmarshal(schema, &doc); err != nil {
		return nil, err
	}
	url := "mem://tools/" + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	return c.Compile(url)
}

// Validate checks raw call arguments against the tool's compiled schema and
// narrows them into an Input. It is the only place untrusted input is checked.
// Empty or null arguments are treated as an empty object.
func Validate(t *Tool, raw json.RawMessage) (Input, error) {
	if t == nil {
		return Input{}, errmodel.Validation("bad_tool", "tool is nil", nil)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Input{}, errmodel.InvalidInput(t.Name, "", "object", "arguments are not valid JSON: "+err.Error())
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Input{}, errmodel.InvalidInput(t.Name, "", "object", "arguments must be a JSON object")
	}
	if err := t.compiled.Validate(doc); err != nil {
		return Input{}, t.describeFailure(err)
	}
	return t.narrow(obj), nil
}

// narrow converts decoded JSON values into declared Go types. Validation has
// already run, so every present field has the right shape.
func (t *Tool) narrow(obj map[string]any) Input {
	in := Input{values: make(map[string]any, len(obj))}
	for _, f := range t.Fields {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}
		switch f.Type {
		case String:
			s, _ := v.(string)
			in.values[f.Name] = s
		case StringArray:
			items, _ := v.([]any)
			ss := make([]string, 0, len(items))
			for _, it := range items {
				s, _ := it.(string)
				ss = append(ss, s)
			}
			in.values[f.Name] = ss
		}
	}
	return in
}

// describeFailure maps a validation error tree to the first offending field in
// declaration order, so the reported field is stable across calls.
func (t *Tool) describeFailure(err error) *errmodel.Error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return errmodel.InvalidInput(t.Name, "", "", err.Error())
	}
	bestField, bestExpected, bestRank := "", "", math.MaxInt
	for _, leaf := range leaves(ve) {
		field, expected := t.locate(leaf)
		rank := slices.IndexFunc(t.Fields, func(f Field) bool { return f.Name == field })
		if rank < 0 {
			rank = len(t.Fields)
		}
		if rank < bestRank {
			bestField, bestExpected, bestRank = field, expected, rank
		}
	}
	return errmodel.InvalidInput(t.Name, bestField, bestExpected, ve.Error())
}

func (t *Tool) locate(leaf *jsonschema.ValidationError) (field, expected string) {
	switch k := leaf.ErrorKind.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			field = k.Missing[0]
		}
	case *kind.AdditionalProperties:
		if len(k.Properties) > 0 {
			return k.Properties[0], "absent"
		}
	default:
		if len(leaf.InstanceLocation) > 0 {
			field = leaf.InstanceLocation[0]
		}
	}
	if f, ok := t.Field(field); ok {
		expected = f.Type.Expected()
	} else if field != "" {
		expected = "absent"
	}
	return field, expected
}

func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}
