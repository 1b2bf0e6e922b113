package otel

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInit_StdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), Config{ServiceName: "summon-test", UseStdout: true, Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	_, span := Tracer().Start(context.Background(), "tool.invoke")
	span.End()

	// Shutdown flushes the batcher.
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "tool.invoke") {
		t.Fatalf("exported spans missing tool.invoke: %q", buf.String())
	}
}

func TestInit_DefaultsWithoutExporter(t *testing.T) {
	t.Setenv("SUMMON_VERSION", "9.9.9")
	shutdown, err := Init(context.Background(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	if Tracer() == nil {
		t.Fatal("nil tracer")
	}
}
