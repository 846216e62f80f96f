package hostbus

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Transport errors
var (
	ErrTransportClosed   = errors.New("transport closed")
	ErrTransportRequired = errors.New("transport is required: use channel.New() or similar")
	ErrTopicRequired     = errors.New("topic is required")
	ErrHandlerRequired   = errors.New("handler is required")
	ErrBusClosed         = errors.New("bus is closed")
	ErrPublishTimeout    = errors.New("publish timeout")
	ErrEncodeFailure     = errors.New("message encode failed")
	ErrDecodeFailure     = errors.New("message decode failed")
)

// Transport moves encoded messages between publishers and subscribers.
// Implementations must be safe for concurrent use.
//
// Implementations: channel (in-process), redis (Pub/Sub), nats (core
// subjects), kafka (topics).
type Transport interface {
	// Publish sends data to every stream subscribed to topic.
	Publish(ctx context.Context, topic string, data []byte) error

	// Subscribe opens a stream of data published to topic.
	Subscribe(ctx context.Context, topic string) (Stream, error)

	// Close releases transport resources. Open streams stop delivering.
	Close(ctx context.Context) error
}

// Stream delivers raw messages for one subscription.
type Stream interface {
	// Messages returns the delivery channel. It is closed when the stream closes.
	Messages() <-chan []byte

	// Close stops delivery. Safe to call more than once.
	Close(ctx context.Context) error
}

var counter uint64

// NewID generates a new unique ID
func NewID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return strconv.FormatUint(atomic.AddUint64(&counter, 1), 10)
}

// Logger returns a logger with the given component name
func Logger(component string) *slog.Logger {
	return slog.Default().With("component", component)
}
