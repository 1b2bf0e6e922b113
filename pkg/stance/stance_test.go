package stance

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/wilhg/summon/pkg/errmodel"
	"github.com/wilhg/summon/pkg/tool"
)

func call(t *testing.T, v Variant, name, args string) (tool.Result, error) {
	t.Helper()
	reg, err := NewRegistry(v)
	if err != nil {
		t.Fatal(err)
	}
	tl, err := reg.Get(name)
	if err != nil {
		return tool.Result{}, err
	}
	in, err := tool.Validate(tl, json.RawMessage(args))
	if err != nil {
		return tool.Result{}, err
	}
	return tl.Handler(context.Background(), in), nil
}

func TestSummon(t *testing.T) {
	res, err := call(t, Minimal, "summon", `{"who":"Ada Lovelace","where":"1843 notes","doing":"annotating"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.String(), "You are Ada Lovelace at 1843 notes doing annotating"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("content=%+v", res.Content)
	}
}

func TestSummon_MissingField(t *testing.T) {
	_, err := call(t, Extended, "summon", `{"who":"x","where":"y"}`)
	if !errmodel.IsCode(err, errmodel.CodeInvalidInput) || errmodel.Field(err, "field") != "doing" {
		t.Fatalf("err=%v", err)
	}
}

func TestRitual(t *testing.T) {
	res, err := call(t, Extended, "ritual", `{"threshold":"doubt","sequence":["light a candle","state the intention"],"invocation":"it is done"}`)
	if err != nil {
		t.Fatal(err)
	}
	text := res.String()
	if !strings.Contains(text, "1. light a candle\n2. state the intention") {
		t.Fatalf("numbered steps missing: %q", text)
	}
	if !strings.HasSuffix(text, `"it is done"`) {
		t.Fatalf("invocation not quoted at end: %q", text)
	}
	want := "You cross the threshold of doubt.\n\n1. light a candle\n2. state the intention\n\n\"it is done\""
	if text != want {
		t.Fatalf("got %q want %q", text, want)
	}
}

func TestRitual_EmptySequenceAndLiteralInvocation(t *testing.T) {
	res, err := call(t, Extended, "ritual", `{"threshold":"dawn","sequence":[],"invocation":"say \"yes\"\nagain"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.String(), "You cross the threshold of dawn.\n\n\"say \"yes\"\nagain\""; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestRitual_SequenceMustBeArray(t *testing.T) {
	_, err := call(t, Extended, "ritual", `{"threshold":"doubt","sequence":"light a candle","invocation":"go"}`)
	if errmodel.Field(err, "field") != "sequence" || errmodel.Field(err, "expected") != "array of string" {
		t.Fatalf("err=%v", err)
	}
}

func TestAlterState(t *testing.T) {
	res, err := call(t, Extended, "alter_state", `{"state":"lucid"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.String(); got != "Your state shifts: you are now lucid" {
		t.Fatalf("got %q", got)
	}
	res, err = call(t, Extended, "alter_state", `{"state":"lucid","anchor":"the metronome"}`)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.String(); got != "Your state shifts: you are now lucid, held by the metronome" {
		t.Fatalf("got %q", got)
	}
}

func TestVariants(t *testing.T) {
	for _, tc := range []struct {
		v    Variant
		want []string
	}{
		{Minimal, []string{"summon"}},
		{Extended, []string{"summon", "alter_state", "ritual"}},
	} {
		reg, err := NewRegistry(tc.v)
		if err != nil {
			t.Fatal(err)
		}
		var got []string
		for _, tl := range reg.List() {
			got = append(got, tl.Name)
		}
		if strings.Join(got, ",") != strings.Join(tc.want, ",") {
			t.Fatalf("%s: got %v want %v", tc.v, got, tc.want)
		}
		if err := reg.Register(Summon.Definition()); err == nil {
			t.Fatalf("%s: registry accepts tools after construction", tc.v)
		}
	}

	if _, err := call(t, Minimal, "ritual", `{}`); !errmodel.IsCode(err, errmodel.CodeUnknownTool) {
		t.Fatalf("minimal variant exposes ritual: %v", err)
	}

	a, _ := NewRegistry(Extended)
	b, _ := NewRegistry(Extended)
	if a == b {
		t.Fatal("registries shared between sessions")
	}
}

func TestParseVariant(t *testing.T) {
	for in, want := range map[string]Variant{"": Extended, "minimal": Minimal, " Extended ": Extended} {
		got, err := ParseVariant(in)
		if err != nil || got != want {
			t.Errorf("ParseVariant(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	if _, err := ParseVariant("maximal"); err == nil {
		t.Error("expected error")
	}
}

func TestKind(t *testing.T) {
	for _, k := range All {
		if k.Definition().Name != k.String() {
			t.Errorf("%v: definition name %q", k, k.Definition().Name)
		}
		if issues := tool.Lint(k.Definition()); len(issues) > 0 {
			t.Errorf("%v: lint %v", k, issues)
		}
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for unknown kind")
		}
	}()
	_ = Kind(42).Definition()
}

func TestDescribe(t *testing.T) {
	reg, _ := NewRegistry(Extended)
	entries, total := Describe(reg, nil)
	if len(entries) != 3 || entries[0].Name != "summon" || entries[2].Name != "ritual" {
		t.Fatalf("entries=%+v", entries)
	}
	sum := 0
	for _, e := range entries {
		if e.DescriptionTokens <= 0 || e.SchemaTokens <= 0 {
			t.Fatalf("zero estimate: %+v", e)
		}
		sum += e.DescriptionTokens + e.SchemaTokens
	}
	if sum != total {
		t.Fatalf("total=%d want %d", total, sum)
	}
	if entries[0].DescriptionTokens != RuneEstimator(summonDescription) {
		t.Fatal("rune estimator not applied")
	}
}

func TestNewTikTokenEstimator(t *testing.T) {
	est, err := NewTikTokenEstimator("gpt-4")
	if err != nil {
		t.Skipf("tiktoken not available for model: %v", err)
	}
	if got := est("You are Ada Lovelace at 1843 notes doing annotating"); got <= 0 {
		t.Fatalf("got %d tokens, want > 0", got)
	}
}
