package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Lllllllleong/mangasensei"

const (
	// ExporterNone leaves the global no-op tracer provider in place.
	ExporterNone = "none"
	// ExporterLog writes finished spans to the structured log at debug level.
	ExporterLog = "log"
)

// TracingConfig selects where finished spans go.
type TracingConfig struct {
	Exporter    string
	ServiceName string
}

// NewTracerProvider builds an SDK tracer provider for cfg. It returns nil for
// ExporterNone.
func NewTracerProvider(cfg TracingConfig, logger *slog.Logger) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	switch cfg.Exporter {
	case "", ExporterNone:
		return nil, nil
	case ExporterLog:
		if logger == nil {
			logger = slog.Default()
		}
		exporter = &logExporter{logger: logger}
	default:
		return nil, fmt.Errorf("unknown tracing exporter %q", cfg.Exporter)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "manga-sensei"
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	), nil
}

// StartSpan starts a span on the global tracer provider.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type logExporter struct {
	logger *slog.Logger
}

func (e *logExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		args := []any{
			"span", s.Name(),
			"traceId", s.SpanContext().TraceID().String(),
			"spanId", s.SpanContext().SpanID().String(),
			"duration", s.EndTime().Sub(s.StartTime()),
			"status", s.Status().Code.String(),
		}
		if s.Status().Description != "" {
			args = append(args, "statusDescription", s.Status().Description)
		}
		for _, kv := range s.Attributes() {
			args = append(args, string(kv.Key), kv.Value.Emit())
		}
		e.logger.DebugContext(ctx, "Span finished.", args...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error { return nil }
