package hostbus

import (
	"context"
	"maps"
)

type contextKey int

const (
	deliveryKey contextKey = iota
	metadataKey
)

// delivery is what a handler context knows about the message being handled
type delivery struct {
	msgID    string
	topic    string
	subID    string
	metadata map[string]string
}

func contextWithDelivery(ctx context.Context, msg *Message, subID string) context.Context {
	return context.WithValue(ctx, deliveryKey, &delivery{
		msgID:    msg.ID,
		topic:    msg.Topic,
		subID:    subID,
		metadata: msg.Metadata,
	})
}

// ContextMessageID returns the id of the message being handled
func ContextMessageID(ctx context.Context) string {
	if d, ok := ctx.Value(deliveryKey).(*delivery); ok {
		return d.msgID
	}
	return ""
}

// ContextTopic returns the topic of the message being handled
func ContextTopic(ctx context.Context) string {
	if d, ok := ctx.Value(deliveryKey).(*delivery); ok {
		return d.topic
	}
	return ""
}

// ContextSubscriptionID returns the id of the subscription handling the message
func ContextSubscriptionID(ctx context.Context) string {
	if d, ok := ctx.Value(deliveryKey).(*delivery); ok {
		return d.subID
	}
	return ""
}

// ContextMetadata returns the metadata of the message being handled, or
// the metadata set with ContextWithMetadata on the publishing side.
// The returned map must not be modified.
func ContextMetadata(ctx context.Context) map[string]string {
	if d, ok := ctx.Value(deliveryKey).(*delivery); ok {
		return d.metadata
	}
	if m, ok := ctx.Value(metadataKey).(map[string]string); ok {
		return m
	}
	return nil
}

// ContextWithMetadata returns a context whose published messages carry m.
// Keys set earlier on ctx are kept unless m overrides them.
func ContextWithMetadata(ctx context.Context, m map[string]string) context.Context {
	if len(m) == 0 {
		return ctx
	}
	merged := make(map[string]string, len(m))
	if prev, ok := ctx.Value(metadataKey).(map[string]string); ok {
		maps.Copy(merged, prev)
	}
	maps.Copy(merged, m)
	return context.WithValue(ctx, metadataKey, merged)
}
