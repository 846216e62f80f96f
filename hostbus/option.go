package hostbus

import (
	"log/slog"

	"golang.org/x/time/rate"
)

// busOptions holds configuration for a bus (unexported)
type busOptions struct {
	codec           Codec
	logger          *slog.Logger
	tracingEnabled  bool
	metricsEnabled  bool
	recoveryEnabled bool
	onError         func(topic string, err error)
}

// Option configures a Bus
type Option func(*busOptions)

// WithCodec sets the payload codec used by Publish. Default is JSON.
func WithCodec(c Codec) Option {
	return func(o *busOptions) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the logger for the bus
func WithLogger(l *slog.Logger) Option {
	return func(o *busOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracing enables/disables OpenTelemetry spans. Default is true.
func WithTracing(enabled bool) Option {
	return func(o *busOptions) {
		o.tracingEnabled = enabled
	}
}

// WithMetrics enables/disables OpenTelemetry counters. Default is true.
func WithMetrics(enabled bool) Option {
	return func(o *busOptions) {
		o.metricsEnabled = enabled
	}
}

// WithRecovery enables/disables panic recovery in handlers. Default is true.
func WithRecovery(enabled bool) Option {
	return func(o *busOptions) {
		o.recoveryEnabled = enabled
	}
}

// WithErrorHandler sets a callback for handler and decode errors.
// Handler errors are not retried.
func WithErrorHandler(fn func(topic string, err error)) Option {
	return func(o *busOptions) {
		if fn != nil {
			o.onError = fn
		}
	}
}

func newBusOptions(opts ...Option) *busOptions {
	o := &busOptions{
		codec:           JSON{},
		logger:          Logger("hostbus"),
		tracingEnabled:  true,
		metricsEnabled:  true,
		recoveryEnabled: true,
		onError:         func(string, error) {},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// subscribeOptions configures one subscription (unexported)
type subscribeOptions struct {
	limiter *rate.Limiter
}

// SubscribeOption configures a subscription
type SubscribeOption func(*subscribeOptions)

// WithRateLimit limits handler invocations to rps per second with the given
// burst. Messages over the limit wait for a token.
func WithRateLimit(rps float64, burst int) SubscribeOption {
	return func(o *subscribeOptions) {
		if rps > 0 {
			if burst < 1 {
				burst = 1
			}
			o.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}
