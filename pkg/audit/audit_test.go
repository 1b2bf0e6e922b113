package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/wilhg/summon/pkg/store/entstore"
)

func sameJSON(t *testing.T, want string, got []byte) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("want: %v", err)
	}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("got %s: %v", got, err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Fatalf("json mismatch:\nwant %s\n got %s", want, got)
	}
}

func TestNewRecord(t *testing.T) {
	rec := NewRecord("octocat", "sess-1", "summon", map[string]any{"who": "a"})
	if rec.ID == "" || rec.Kind != KindToolInvocation {
		t.Fatalf("record=%+v", rec)
	}
	if rec.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp not UTC: %v", rec.Timestamp)
	}
	if !strings.HasSuffix(rec.TimestampISO(), "Z") {
		t.Fatalf("timestamp=%s", rec.TimestampISO())
	}

	other := NewRecord("octocat", "sess-1", "summon", nil)
	if rec.ID == other.ID {
		t.Fatalf("ids collide: %s", rec.ID)
	}
	raw, err := other.ParametersJSON()
	if err != nil {
		t.Fatalf("parameters: %v", err)
	}
	sameJSON(t, `{}`, raw)
}

func TestLogSink_OneJSONLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	rec := NewRecord("octocat", "sess-1", "ritual", map[string]any{
		"threshold":  "dusk",
		"sequence":   []string{"light a candle", "state the intention"},
		"invocation": "open",
	})
	if err := sink.Write(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(context.Background(), NewRecord("octocat", "sess-1", "summon", nil)); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %d: %s", len(lines), buf.String())
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	for k, want := range map[string]any{
		"msg":       "audit",
		"kind":      "tool_invocation",
		"principal": "octocat",
		"session":   "sess-1",
		"tool":      "ritual",
		"timestamp": rec.TimestampISO(),
	} {
		if got[k] != want {
			t.Errorf("%s=%v want %v", k, got[k], want)
		}
	}
	params, ok := got["parameters"].(map[string]any)
	if !ok {
		t.Fatalf("parameters should be an object: %v", got["parameters"])
	}
	if !reflect.DeepEqual(params["sequence"], []any{"light a candle", "state the intention"}) {
		t.Fatalf("sequence=%v", params["sequence"])
	}
}

func TestMulti_AttemptsEverySink(t *testing.T) {
	var calls []string
	boom := errors.New("boom")
	sink := Multi(
		SinkFunc(func(context.Context, Record) error { calls = append(calls, "a"); return boom }),
		nil,
		SinkFunc(func(context.Context, Record) error { calls = append(calls, "b"); return nil }),
	)
	err := sink.Write(context.Background(), NewRecord("p", "s", "t", nil))
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if !slices.Equal(calls, []string{"a", "b"}) {
		t.Fatalf("calls=%v", calls)
	}

	if err := Discard.Write(context.Background(), Record{}); err != nil {
		t.Fatalf("discard: %v", err)
	}
}

func TestStoreSink_AppendsDurably(t *testing.T) {
	ctx := context.Background()
	st, err := entstore.Open(ctx, "sqlite:file:audit_sink?mode=memory&cache=shared&_pragma=foreign_keys(ON)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sink := NewStoreSink(st)
	rec := NewRecord("octocat", "sess-9", "alter_state", map[string]any{"state": "lucid"})
	if err := sink.Write(ctx, rec); err != nil {
		t.Fatal(err)
	}
	// a retried write of the same record is absorbed
	if err := sink.Write(ctx, rec); err != nil {
		t.Fatalf("retry: %v", err)
	}

	got, err := st.ListAudit(ctx, "octocat", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("want 1 record, got %d", len(got))
	}
	if got[0].RecordID != rec.ID || got[0].Tool != "alter_state" || got[0].SessionID != "sess-9" {
		t.Fatalf("stored=%+v", got[0])
	}
	sameJSON(t, `{"state":"lucid"}`, got[0].Parameters)
	if !got[0].Timestamp.Equal(rec.Timestamp) {
		t.Fatalf("timestamp=%v want %v", got[0].Timestamp, rec.Timestamp)
	}
}
