// Package telemetry sets up OpenTelemetry tracing for draft runs.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DraftKeyKey   = "coursesync.draft.key"
	RevisionKey   = "coursesync.draft.revision"
	FileNameKey   = "coursesync.file.name"
	FilePurpose   = "coursesync.file.purpose"
	ErrorKindKey  = "coursesync.error.kind"
	TotalFilesKey = "coursesync.files.total"
)

type Config struct {
	Enabled     bool
	ServiceName string
	// Endpoint overrides OTEL_EXPORTER_OTLP_ENDPOINT when set.
	Endpoint string
	Insecure bool
}

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// NewTracer returns an OTLP/HTTP backed tracer, or a no-op tracer when
// tracing is disabled.
//
// nolint:ireturn
func NewTracer(ctx context.Context, cfg Config) (trace.Tracer, Shutdown, error) {
	if !cfg.Enabled {
		return noop.NewTracerProvider().Tracer(cfg.ServiceName), func(context.Context) error { return nil }, nil
	}

	r, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return nil, nil, err
	}

	var opts []otlptracehttp.Option
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp.Tracer(cfg.ServiceName), tp.Shutdown, nil
}

// Noop returns a tracer that records nothing.
//
// nolint:ireturn
func Noop() trace.Tracer {
	return noop.NewTracerProvider().Tracer("coursesync")
}

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}
