package hostbus

import (
	"context"
	"sync/atomic"

	"google.golang.org/protobuf/proto"
)

// On subscribes a typed handler to topic. Payloads are decoded into T with
// the codec named by each message's content type.
//
// Example:
//
//	sub, err := hostbus.On(bus, "player.joined", func(ctx context.Context, p PlayerJoined) error {
//	    fmt.Println("welcome", p.Nickname)
//	    return nil
//	})
//	defer sub.Close()
func On[T any](b *Bus, topic string, fn func(ctx context.Context, v T) error, opts ...SubscribeOption) (*Subscription, error) {
	if b == nil {
		return nil, ErrBusClosed
	}
	if fn == nil {
		return nil, ErrHandlerRequired
	}
	return b.Subscribe(context.Background(), topic, func(ctx context.Context, msg *Message) error {
		var v T
		// proto payloads decode into a freshly allocated message
		if pm, ok := any(v).(proto.Message); ok {
			v = pm.ProtoReflect().Type().New().Interface().(T)
			if err := msg.Decode(v); err != nil {
				return err
			}
			return fn(ctx, v)
		}
		if err := msg.Decode(&v); err != nil {
			return err
		}
		return fn(ctx, v)
	}, opts...)
}

// Emit publishes a typed payload to topic
func Emit[T any](ctx context.Context, b *Bus, topic string, v T) error {
	if b == nil {
		return ErrBusClosed
	}
	return b.Publish(ctx, topic, v)
}

var defaultBus atomic.Pointer[Bus]

// SetDefault sets the process-wide bus returned by Default.
// Event handlers built by zero-argument factories use it to subscribe.
func SetDefault(b *Bus) {
	defaultBus.Store(b)
}

// Default returns the process-wide bus, or nil if none was set
func Default() *Bus {
	return defaultBus.Load()
}
