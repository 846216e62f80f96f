package eventset

import (
	"context"
	"iter"

	"go.opentelemetry.io/otel/attribute"
)

// Events is an ordered collection of event handlers.
// The order is the order the handlers were discovered or passed to NewEvents.
// Events is not safe for concurrent use.
type Events struct {
	namespace Namespace
	names     []string
	events    []Event
	opts      *options
	metrics   *metrics
}

// NewEvents builds a collection from a literal list of handlers.
// Handlers are named after their dynamic type.
func NewEvents(ns Namespace, events []Event, opts ...Option) *Events {
	o := newOptions(opts...)
	e := newEvents(ns, o, newMetrics(o.metricsEnabled), len(events))
	for _, ev := range events {
		if ev == nil {
			continue
		}
		e.add(typeName(ev), ev)
	}
	return e
}

func newEvents(ns Namespace, o *options, m *metrics, capacity int) *Events {
	return &Events{
		namespace: ns,
		names:     make([]string, 0, capacity),
		events:    make([]Event, 0, capacity),
		opts:      o,
		metrics:   m,
	}
}

func (e *Events) add(name string, ev Event) {
	e.names = append(e.names, name)
	e.events = append(e.events, ev)
}

// Namespace the collection was discovered from
func (e *Events) Namespace() Namespace {
	return e.namespace
}

// Len returns the number of handlers
func (e *Events) Len() int {
	return len(e.events)
}

// At returns the handler at index i
func (e *Events) At(i int) Event {
	return e.events[i]
}

// Names returns a copy of the handler names in stored order
func (e *Events) Names() []string {
	names := make([]string, len(e.names))
	copy(names, e.names)
	return names
}

// All iterates over handler names and handlers in stored order
func (e *Events) All() iter.Seq2[string, Event] {
	return func(yield func(string, Event) bool) {
		for i, ev := range e.events {
			if !yield(e.names[i], ev) {
				return
			}
		}
	}
}

// RegisterAll calls Register on every handler in stored order.
// The first error stops the walk and is returned as a *LifecycleError.
// ctx carries trace context; it does not interrupt the walk.
func (e *Events) RegisterAll(ctx context.Context) error {
	return e.each(ctx, OpRegister, Event.Register)
}

// UnregisterAll calls Unregister on every handler in stored order.
// The first error stops the walk and is returned as a *LifecycleError.
// ctx carries trace context; it does not interrupt the walk.
func (e *Events) UnregisterAll(ctx context.Context) error {
	return e.each(ctx, OpUnregister, Event.Unregister)
}

func (e *Events) each(ctx context.Context, op string, call func(Event) error) (err error) {
	ctx, span := startSpan(ctx, e.opts.tracingEnabled, "eventset."+op+"_all",
		attribute.String(spanKeyNamespace, e.namespace.String()),
		attribute.String(spanKeyOp, op),
		attribute.Int(spanKeyCount, len(e.events)),
	)
	defer func() { endSpan(span, err) }()

	for i, ev := range e.events {
		var callErr error
		if e.opts.recoveryEnabled {
			callErr = safeCall(func() error { return call(ev) })
		} else {
			callErr = call(ev)
		}
		e.metrics.recordCall(ctx, e.namespace, op)
		if callErr != nil {
			e.metrics.recordFailure(ctx, e.namespace, op)
			e.opts.logger.Debug("handler failed",
				"namespace", e.namespace,
				"op", op,
				"handler", e.names[i],
				"index", i,
				"error", callErr)
			return &LifecycleError{Op: op, Name: e.names[i], Index: i, Err: callErr}
		}
		e.opts.logger.Debug("handler done", "namespace", e.namespace, "op", op, "handler", e.names[i])
	}
	return nil
}
