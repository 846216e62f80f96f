// Package plugin binds an event namespace to a host plugin lifecycle.
//
// A Plugin discovers its namespace once, registers every event when the
// host enables it and unregisters them when the host disables it:
//
//	p, err := plugin.New(plugin.Metadata{
//		Name:     "round-tracker",
//		Version:  "1.0.0",
//		Priority: plugin.High,
//	}, "round.events")
//
//	if err := p.Enable(ctx); err != nil { ... }
//	defer p.Disable(ctx)
//
// A Loader stands in for the host when several plugins are run together.
package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/rbaliyan/eventset"
	"github.com/rbaliyan/eventset/config"
)

// Plugin owns the event collection of one namespace
type Plugin struct {
	meta     Metadata
	ns       eventset.Namespace
	registry *eventset.Registry
	cfg      config.Config
	logger   *slog.Logger

	mu      sync.Mutex
	events  *eventset.Events
	enabled bool
}

type pluginOptions struct {
	registry *eventset.Registry
	cfg      *config.Config
	logger   *slog.Logger
}

// Option configures a Plugin
type Option func(*pluginOptions)

// WithRegistry sets the registry to discover from. Defaults to eventset.Default().
func WithRegistry(r *eventset.Registry) Option {
	return func(o *pluginOptions) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithConfig sets the configuration. Defaults to config.Defaults().
func WithConfig(cfg config.Config) Option {
	return func(o *pluginOptions) {
		o.cfg = &cfg
	}
}

// WithLogger sets the logger, overriding the level chosen from Config.Debug
func WithLogger(l *slog.Logger) Option {
	return func(o *pluginOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates a plugin for namespace ns. Nothing is discovered until Enable.
func New(meta Metadata, ns eventset.Namespace, opts ...Option) (*Plugin, error) {
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if ns == "" {
		return nil, eventset.ErrEmptyNamespace
	}

	o := &pluginOptions{registry: eventset.Default()}
	for _, opt := range opts {
		opt(o)
	}
	cfg := config.Defaults()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	logger := o.logger
	if logger == nil {
		logger = newLogger(cfg)
	}

	return &Plugin{
		meta:     meta,
		ns:       ns,
		registry: o.registry,
		cfg:      cfg,
		logger:   logger.With("plugin", meta.Name),
	}, nil
}

func newLogger(cfg config.Config) *slog.Logger {
	if !cfg.Debug {
		return eventset.Logger("plugin")
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("component", "plugin")
}

// Metadata returns the plugin metadata
func (p *Plugin) Metadata() Metadata {
	return p.meta
}

// Namespace returns the namespace the plugin discovers
func (p *Plugin) Namespace() eventset.Namespace {
	return p.ns
}

// Config returns the plugin configuration
func (p *Plugin) Config() config.Config {
	return p.cfg
}

// Enabled reports whether the last Enable succeeded and Disable has not run since
func (p *Plugin) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Events returns the discovered collection, or nil before the first Enable
func (p *Plugin) Events() *eventset.Events {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events
}

// Enable discovers the namespace on first use and registers every event.
// A later Enable reuses the same collection. On a registration failure
// events registered before the failing one stay registered.
func (p *Plugin) Enable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.events == nil {
		events, err := p.registry.Discover(ctx, p.ns)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", p.meta.Name, err)
		}
		p.events = events
		p.logger.Debug("discovered events", "namespace", p.ns, "events", events.Names())
	}

	if err := p.events.RegisterAll(ctx); err != nil {
		return fmt.Errorf("plugin %s: %w", p.meta.Name, err)
	}
	p.enabled = true
	p.logger.Info("plugin enabled", "version", p.meta.Version, "events", p.events.Len())
	return nil
}

// Disable unregisters every event of the collection built by Enable.
// It is a no-op before Enable.
func (p *Plugin) Disable(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.events == nil {
		return nil
	}
	p.enabled = false
	if err := p.events.UnregisterAll(ctx); err != nil {
		return fmt.Errorf("plugin %s: %w", p.meta.Name, err)
	}
	p.logger.Info("plugin disabled")
	return nil
}
