package channel

import (
	"log/slog"
	"time"

	"github.com/rbaliyan/eventset/hostbus"
)

// DefaultBufferSize is the per-stream buffer size
var DefaultBufferSize uint = 64

// options holds configuration for transport (unexported)
type options struct {
	bufferSize uint
	timeout    time.Duration
	onError    func(error)
	logger     *slog.Logger
}

// Option configures the channel transport
type Option func(*options)

// WithBufferSize sets the buffer size of each stream.
// Zero makes Publish wait for the subscriber to receive.
func WithBufferSize(size uint) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// WithTimeout sets the timeout for sending to each stream.
// Set to 0 for no timeout (block until delivered or ctx is done).
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithErrorHandler sets the error handler callback.
// Called when a message is dropped for a slow subscriber.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) {
		if fn != nil {
			o.onError = fn
		}
	}
}

// WithLogger sets the logger for transport
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func newOptions(opts ...Option) *options {
	o := &options{
		bufferSize: DefaultBufferSize,
		onError:    func(error) {},
		logger:     hostbus.Logger("transport>channel"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
