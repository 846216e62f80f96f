package eventset

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/attribute"
)

// entry is one registered constructor
type entry struct {
	name    string
	factory Factory
	// skip marks a candidate whose type does not implement Event; its constructor never runs
	skip bool
}

// Registry holds event factories grouped by namespace.
// A Registry is the scope of discovery: Discover only sees factories added
// to the same Registry. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	namespaces map[Namespace][]entry
	opts       *options
	metrics    *metrics
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts...)
	return &Registry{
		namespaces: make(map[Namespace][]entry),
		opts:       o,
		metrics:    newMetrics(o.metricsEnabled),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry used by the package-level functions
func Default() *Registry {
	return defaultRegistry
}

// Add registers a factory under ns with the given name.
// Names are unique within a namespace.
func (r *Registry) Add(ns Namespace, name string, factory Factory) error {
	if factory == nil {
		return ErrNilFactory
	}
	return r.add(ns, entry{name: name, factory: factory})
}

func (r *Registry) add(ns Namespace, e entry) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if e.name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.namespaces[ns] {
		if existing.name == e.name {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateFactory, ns, e.name)
		}
	}
	r.namespaces[ns] = append(r.namespaces[ns], e)
	r.opts.logger.Debug("factory added", "namespace", ns, "name", e.name)
	return nil
}

// Namespaces returns the registered namespaces, sorted
func (r *Registry) Namespaces() []Namespace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]Namespace, 0, len(r.namespaces))
	for ns := range r.namespaces {
		list = append(list, ns)
	}
	slices.Sort(list)
	return list
}

// Names returns the factory names registered under ns in registration order
func (r *Registry) Names(ns Namespace) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := r.namespaces[ns]
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Discover builds one handler per factory registered under ns, in
// registration order. Candidates whose type lacks Register or Unregister
// are skipped without being constructed. If a factory fails or panics
// Discover returns an *InstantiationError and no collection. A namespace without factories
// yields an empty collection.
func (r *Registry) Discover(ctx context.Context, ns Namespace) (events *Events, err error) {
	ctx, span := startSpan(ctx, r.opts.tracingEnabled, "eventset.discover",
		attribute.String(spanKeyNamespace, ns.String()))
	defer func() { endSpan(span, err) }()

	r.mu.RLock()
	entries := slices.Clone(r.namespaces[ns])
	r.mu.RUnlock()

	events = newEvents(ns, r.opts, r.metrics, len(entries))
	for _, e := range entries {
		if e.skip {
			r.opts.logger.Debug("skipping type without Register/Unregister", "namespace", ns, "name", e.name)
			continue
		}
		ev, err := r.instantiate(e)
		if err != nil {
			r.metrics.recordFailure(ctx, ns, "discover")
			r.opts.logger.Debug("discovery failed", "namespace", ns, "name", e.name, "error", err)
			return nil, &InstantiationError{Namespace: ns, Name: e.name, Err: err}
		}
		events.add(e.name, ev)
	}

	r.metrics.recordDiscovered(ctx, ns, events.Len())
	span.SetAttributes(attribute.Int(spanKeyCount, events.Len()))
	r.opts.logger.Debug("discovered events", "namespace", ns, "count", events.Len())
	return events, nil
}

// instantiate runs the factory of e, converting a panic into an error
func (r *Registry) instantiate(e entry) (Event, error) {
	var ev Event
	err := safeCall(func() (err error) {
		ev, err = e.factory()
		return err
	})
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, fmt.Errorf("factory %q returned nil", e.name)
	}
	return ev, nil
}

// Add registers a factory in the default registry
func Add(ns Namespace, name string, factory Factory) error {
	return defaultRegistry.Add(ns, name, factory)
}

// Discover builds the handlers registered under ns in the default registry
func Discover(ctx context.Context, ns Namespace) (*Events, error) {
	return defaultRegistry.Discover(ctx, ns)
}
