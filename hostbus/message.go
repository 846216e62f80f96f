package hostbus

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Message is the envelope carried over a transport.
// Data holds the payload encoded with the codec named by ContentType.
type Message struct {
	ID          string            `msgpack:"id"`
	Topic       string            `msgpack:"topic"`
	ContentType string            `msgpack:"ct"`
	Data        []byte            `msgpack:"data"`
	Time        time.Time         `msgpack:"time"`
	Metadata    map[string]string `msgpack:"meta,omitempty"`
}

// Decode decodes the payload into v using the codec for the message's content type.
func (m *Message) Decode(v any) error {
	c, ok := CodecFor(m.ContentType)
	if !ok {
		return fmt.Errorf("%w: unknown content type %q", ErrDecodeFailure, m.ContentType)
	}
	if err := c.Decode(m.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return nil
}

// injectTrace stores the span context from ctx in the message metadata
func (m *Message) injectTrace(ctx context.Context) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]string, len(carrier))
	}
	for k, v := range carrier {
		m.Metadata[k] = v
	}
}

// extractTrace returns ctx carrying the publisher's span context
func (m *Message) extractTrace(ctx context.Context) context.Context {
	if len(m.Metadata) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(m.Metadata))
}

func encodeMessage(m *Message) ([]byte, error) {
	data, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}
	return data, nil
}

func decodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	return &m, nil
}
