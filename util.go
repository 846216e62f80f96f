package eventset

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/rbaliyan/eventset"

const (
	spanKeyNamespace = "eventset.namespace"
	spanKeyHandler   = "eventset.handler"
	spanKeyCount     = "eventset.count"
	spanKeyOp        = "eventset.op"
)

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// typeName describes a handler for logs and errors
func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}

// startSpan starts a span when tracing is enabled, otherwise returns a no-op span
func startSpan(ctx context.Context, enabled bool, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if !enabled {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on the span and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// safeCall runs fn and converts a panic into a *PanicError
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}
