// Package tool defines schema-described callable tools and the per-session
// registry that holds them.
//
// A Definition declares its input as an ordered list of fields. At
// registration the fields are rendered into a JSON Schema document (property
// order preserved for discovery responses) and compiled once; every call is
// validated against the compiled schema before its Handler runs, so handlers
// only ever see well-typed input through Input.
package tool

import (
	"context"
	"encoding/json"
	"slices"
)

// FieldType is the declared type of an input field.
type FieldType string

const (
	// String is a JSON string.
	String FieldType = "string"
	// StringArray is an ordered JSON array of strings.
	StringArray FieldType = "string_array"
)

// Expected renders the type the way validation errors report it.
func (t FieldType) Expected() string {
	switch t {
	case String:
		return "string"
	case StringArray:
		return "array of string"
	default:
		return string(t)
	}
}

func (t FieldType) valid() bool { return t == String || t == StringArray }

// Field describes one named input parameter.
type Field struct {
	Name        string
	Type        FieldType
	Description string
	Required    bool
}

// Content is one block of a tool result. Only "text" blocks are produced.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is returned verbatim to the caller.
type Result struct {
	Content []Content `json:"content"`
}

// Text builds a Result holding a single text block.
func Text(s string) Result {
	return Result{Content: []Content{{Type: "text", Text: s}}}
}

// String concatenates the text blocks of the result.
func (r Result) String() string {
	var out string
	for _, c := range r.Content {
		out += c.Text
	}
	return out
}

// Handler formats a result from validated input. Handlers must be
// deterministic, must not block and cannot fail.
type Handler func(ctx context.Context, in Input) Result

// Definition declares a tool before registration.
type Definition struct {
	Name        string
	Description string
	Fields      []Field
	Handler     Handler
}

// Field returns the declared field by name.
func (d Definition) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Input is the validated argument set of one call, narrowed to the declared types.
type Input struct {
	values map[string]any
}

// NewInput builds an Input from already-typed values (string or []string).
// It is meant for tests and fixtures; production input comes from Validator.
func NewInput(values map[string]any) Input {
	in := Input{values: make(map[string]any, len(values))}
	for k, v := range values {
		switch t := v.(type) {
		case string:
			in.values[k] = t
		case []string:
			in.values[k] = slices.Clone(t)
		}
	}
	return in
}

// Has reports whether the caller supplied the field.
func (in Input) Has(name string) bool {
	_, ok := in.values[name]
	return ok
}

// String returns a string field, or "" when absent.
func (in Input) String(name string) string {
	s, _ := in.values[name].(string)
	return s
}

// Strings returns a copy of a string-array field, or nil when absent.
func (in Input) Strings(name string) []string {
	ss, _ := in.values[name].([]string)
	return slices.Clone(ss)
}

// Params returns a copy of the exact parameter mapping passed to the handler.
func (in Input) Params() map[string]any {
	out := make(map[string]any, len(in.values))
	for k, v := range in.values {
		if ss, ok := v.([]string); ok {
			out[k] = slices.Clone(ss)
			continue
		}
		out[k] = v
	}
	return out
}

// MarshalJSON renders the parameters as a JSON object.
func (in Input) MarshalJSON() ([]byte, error) {
	return json.Marshal(in.values)
}
