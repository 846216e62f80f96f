package eventset

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/rbaliyan/eventset"

// metrics holds OpenTelemetry instruments. A nil *metrics records nothing.
type metrics struct {
	discovered metric.Int64Counter
	lifecycle  metric.Int64Counter
	failures   metric.Int64Counter
}

func newMetrics(enabled bool) *metrics {
	if !enabled {
		return nil
	}
	meter := otel.Meter(meterName)
	m := &metrics{}
	m.discovered, _ = meter.Int64Counter("eventset.discovered",
		metric.WithDescription("Number of event handlers instantiated by discovery"),
		metric.WithUnit("{handler}"),
	)
	m.lifecycle, _ = meter.Int64Counter("eventset.lifecycle.calls",
		metric.WithDescription("Number of Register/Unregister calls"),
		metric.WithUnit("{call}"),
	)
	m.failures, _ = meter.Int64Counter("eventset.failures",
		metric.WithDescription("Number of failed discoveries and lifecycle calls"),
		metric.WithUnit("{error}"),
	)
	return m
}

func (m *metrics) recordDiscovered(ctx context.Context, ns Namespace, n int) {
	if m == nil || m.discovered == nil {
		return
	}
	m.discovered.Add(ctx, int64(n), metric.WithAttributes(attribute.String("namespace", ns.String())))
}

func (m *metrics) recordCall(ctx context.Context, ns Namespace, op string) {
	if m == nil || m.lifecycle == nil {
		return
	}
	m.lifecycle.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", ns.String()),
		attribute.String("op", op),
	))
}

func (m *metrics) recordFailure(ctx context.Context, ns Namespace, op string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("namespace", ns.String()),
		attribute.String("op", op),
	))
}
