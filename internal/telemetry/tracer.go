package telemetry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Tracing modes accepted by InitTracer.
const (
	ModeNone   = "none"
	ModeStdout = "stdout"
)

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// InitTracer initializes OpenTelemetry tracing. Mode "" or "none" leaves the
// global no-op provider in place.
func InitTracer(serviceName, mode string, logger *slog.Logger) (ShutdownFunc, error) {
	return initTracer(serviceName, mode, os.Stdout, logger)
}

func initTracer(serviceName, mode string, w io.Writer, logger *slog.Logger) (ShutdownFunc, error) {
	switch mode {
	case "", ModeNone:
		return func(context.Context) error { return nil }, nil
	case ModeStdout:
	default:
		return nil, fmt.Errorf("unknown tracing mode %q", mode)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized", slog.String("service", serviceName), slog.String("mode", mode))

	return tp.Shutdown, nil
}
