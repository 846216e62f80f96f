package eventset

import (
	"log/slog"
)

// options holds configuration shared by a Registry and the collections it builds (unexported)
type options struct {
	logger          *slog.Logger
	tracingEnabled  bool
	metricsEnabled  bool
	recoveryEnabled bool
}

// Option configures a Registry
type Option func(*options)

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracing enables/disables OpenTelemetry spans around discovery and lifecycle calls
func WithTracing(enabled bool) Option {
	return func(o *options) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables OpenTelemetry counters
func WithMetrics(enabled bool) Option {
	return func(o *options) {
		o.metricsEnabled = enabled
	}
}

// WithRecovery enables/disables panic recovery in Register and Unregister.
// When enabled a panicking handler stops the walk with a *PanicError.
// When disabled the panic propagates to the caller.
// Factories are always recovered.
func WithRecovery(enabled bool) Option {
	return func(o *options) {
		o.recoveryEnabled = enabled
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		logger:          Logger("eventset"),
		tracingEnabled:  true,
		metricsEnabled:  true,
		recoveryEnabled: true,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
