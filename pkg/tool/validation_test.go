package tool

import (
	"encoding/json"
	"testing"

	"github.com/wilhg/summon/pkg/errmodel"
)

func registered(t *testing.T) *Tool {
	t.Helper()
	r := NewRegistry()
	if err := r.Register(echoDef("echo")); err != nil {
		t.Fatal(err)
	}
	tl, err := r.Get("echo")
	if err != nil {
		t.Fatal(err)
	}
	return tl
}

func TestValidate_NarrowsTypes(t *testing.T) {
	tl := registered(t)
	in, err := Validate(tl, json.RawMessage(`{"msg":"hi","tags":["a","b"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if in.String("msg") != "hi" {
		t.Fatalf("msg=%q", in.String("msg"))
	}
	tags := in.Strings("tags")
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Fatalf("tags=%v", tags)
	}
	tags[0] = "mutated"
	if in.Strings("tags")[0] != "a" {
		t.Fatal("Strings must return a copy")
	}
	if p := in.Params(); len(p) != 2 {
		t.Fatalf("params=%v", p)
	}
}

func TestValidate_OptionalFieldAbsent(t *testing.T) {
	tl := registered(t)
	in, err := Validate(tl, json.RawMessage(`{"msg":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if in.Has("tags") || in.Strings("tags") != nil {
		t.Fatalf("unexpected tags: %v", in.Params())
	}
}

func TestValidate_Failures(t *testing.T) {
	tl := registered(t)
	cases := []struct {
		name     string
		raw      string
		field    string
		expected string
	}{
		{"missing required", `{}`, "msg", "string"},
		{"null arguments", `null`, "msg", "string"},
		{"wrong type", `{"msg":42}`, "msg", "string"},
		{"array item type", `{"msg":"x","tags":["a",1]}`, "tags", "array of string"},
		{"array as string", `{"msg":"x","tags":"a"}`, "tags", "array of string"},
		{"unknown field", `{"msg":"x","extra":"y"}`, "extra", "absent"},
		{"not an object", `["msg"]`, "", "object"},
		{"not json", `{`, "", "object"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Validate(tl, json.RawMessage(c.raw))
			if !errmodel.IsCode(err, errmodel.CodeInvalidInput) {
				t.Fatalf("expected invalid_input, got %v", err)
			}
			if got := errmodel.Field(err, "field"); got != c.field {
				t.Fatalf("field=%q want %q (%v)", got, c.field, err)
			}
			if got := errmodel.Field(err, "expected"); got != c.expected {
				t.Fatalf("expected=%q want %q", got, c.expected)
			}
			if errmodel.Field(err, "tool") != "echo" {
				t.Fatalf("tool missing from context: %v", errmodel.From(err).Context)
			}
		})
	}
}

func TestValidate_NoCoercion(t *testing.T) {
	tl := registered(t)
	if _, err := Validate(tl, json.RawMessage(`{"msg":true}`)); err == nil {
		t.Fatal("boolean must not be coerced to string")
	}
	if _, err := Validate(tl, json.RawMessage(`{"msg":["hi"]}`)); err == nil {
		t.Fatal("array must not be coerced to string")
	}
}
