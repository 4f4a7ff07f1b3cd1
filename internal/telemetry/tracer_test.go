package telemetry

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitTracerNone(t *testing.T) {
	for _, mode := range []string{"", ModeNone} {
		shutdown, err := InitTracer("reviewsheet", mode, discardLogger())
		if err != nil {
			t.Fatalf("InitTracer(%q) error = %v", mode, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Errorf("shutdown() error = %v", err)
		}
	}
}

func TestInitTracerUnknownMode(t *testing.T) {
	if _, err := InitTracer("reviewsheet", "jaeger", discardLogger()); err == nil {
		t.Fatal("InitTracer() should reject unknown modes")
	}
}

func TestInitTracerStdoutExportsSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var buf bytes.Buffer
	shutdown, err := initTracer("reviewsheet-test", ModeStdout, &buf, discardLogger())
	if err != nil {
		t.Fatalf("initTracer() error = %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "webhook.process")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "webhook.process") {
		t.Errorf("exported output missing span name: %s", out)
	}
	if !strings.Contains(out, "reviewsheet-test") {
		t.Errorf("exported output missing service name: %s", out)
	}
}
