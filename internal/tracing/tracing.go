// Package tracing is a thin wrapper around OpenTelemetry. The kernel opens a
// span for boot, for each self-test and for every run of the scheduler so a
// session can be replayed from the exported trace. With tracing disabled the
// global no-op provider makes every call free.
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentation = "github.com/joshuapare/rvoskit"

// ShutdownFunc flushes and stops the installed provider.
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// defaultOutput receives spans when no output file is configured. Stdout
// carries command results, so spans stay off it.
var defaultOutput io.Writer = os.Stderr

// Init installs a stdout exporter writing to outputFile, or to os.Stderr
// when outputFile is empty.
func Init(serviceName, serviceVersion, sessionID, outputFile string) (ShutdownFunc, error) {
	w := defaultOutput
	var closer io.Closer
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return noop, err
		}
		w, closer = f, f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return noop, err
	}

	shutdown, err := InitWithExporter(serviceName, serviceVersion, sessionID, exporter)
	if err != nil || closer == nil {
		return shutdown, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := closer.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// InitWithExporter installs exporter behind a synchronous span processor as
// the global tracer provider.
func InitWithExporter(serviceName, serviceVersion, sessionID string, exporter sdktrace.SpanExporter) (ShutdownFunc, error) {
	if exporter == nil {
		return noop, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
			attribute.String("session.id", sessionID),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Span wraps an OpenTelemetry span so callers need not import the SDK.
type Span struct {
	span trace.Span
}

// StartSpan starts an internal span named name under ctx.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	return ctx, &Span{span: span}
}

// SetInt records an integer attribute.
func (s *Span) SetInt(key string, v int64) *Span {
	if s != nil {
		s.span.SetAttributes(attribute.Int64(key, v))
	}
	return s
}

// SetString records a string attribute.
func (s *Span) SetString(key, v string) *Span {
	if s != nil {
		s.span.SetAttributes(attribute.String(key, v))
	}
	return s
}

// Event adds a timestamped event with string attributes.
func (s *Span) Event(name string, kv ...string) {
	if s == nil {
		return
	}
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// End records err (or OK) as the span status and ends the span.
func End(s *Span, err error) {
	if s == nil {
		return
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
