package hostbus

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const instrumentationName = "github.com/rbaliyan/eventset/hostbus"

const (
	spanKeyMessageID      = "message.id"
	spanKeyTopic          = "message.topic"
	spanKeySubscriptionID = "subscription.id"
)

const (
	busRunning = 1
	busStopped = 0
)

// Handler processes one message. Errors are reported to the bus error
// handler and are not retried.
type Handler func(ctx context.Context, msg *Message) error

// Bus is the host event bus plugins subscribe to.
// It owns a transport and runs each subscription's handler on its own goroutine.
type Bus struct {
	status    int32
	transport Transport
	opts      *busOptions

	mu   sync.Mutex
	subs map[string]*Subscription

	tracer    trace.Tracer
	published metric.Int64Counter
	handled   metric.Int64Counter
	failed    metric.Int64Counter
}

// New creates a bus over the given transport
func New(t Transport, opts ...Option) (*Bus, error) {
	if t == nil {
		return nil, ErrTransportRequired
	}
	o := newBusOptions(opts...)
	b := &Bus{
		status:    busRunning,
		transport: t,
		opts:      o,
		subs:      make(map[string]*Subscription),
	}
	if o.tracingEnabled {
		b.tracer = otel.Tracer(instrumentationName)
	}
	if o.metricsEnabled {
		meter := otel.Meter(instrumentationName)
		b.published, _ = meter.Int64Counter("hostbus.published",
			metric.WithDescription("Number of messages published"),
			metric.WithUnit("{message}"))
		b.handled, _ = meter.Int64Counter("hostbus.handled",
			metric.WithDescription("Number of messages handled"),
			metric.WithUnit("{message}"))
		b.failed, _ = meter.Int64Counter("hostbus.failed",
			metric.WithDescription("Number of handler and decode failures"),
			metric.WithUnit("{message}"))
	}
	return b, nil
}

func (b *Bus) isOpen() bool {
	return atomic.LoadInt32(&b.status) == busRunning
}

// Publish encodes v with the bus codec and sends it to topic
func (b *Bus) Publish(ctx context.Context, topic string, v any) (err error) {
	if !b.isOpen() {
		return ErrBusClosed
	}
	if topic == "" {
		return ErrTopicRequired
	}

	msg := &Message{
		ID:          NewID(),
		Topic:       topic,
		ContentType: b.opts.codec.ContentType(),
		Time:        time.Now().UTC(),
	}
	if m, ok := ctx.Value(metadataKey).(map[string]string); ok {
		msg.Metadata = maps.Clone(m)
	}

	if b.tracer != nil {
		var span trace.Span
		ctx, span = b.tracer.Start(ctx, "hostbus.publish "+topic,
			trace.WithSpanKind(trace.SpanKindProducer),
			trace.WithAttributes(
				attribute.String(spanKeyTopic, topic),
				attribute.String(spanKeyMessageID, msg.ID),
			))
		defer func() { endSpan(span, err) }()
		msg.injectTrace(ctx)
	}

	if msg.Data, err = b.opts.codec.Encode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailure, err)
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if err := b.transport.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	if b.published != nil {
		b.published.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
	}
	b.opts.logger.Debug("published", "topic", topic, "msg_id", msg.ID)
	return nil
}

// Subscribe runs h for every message published to topic until the
// subscription or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string, h Handler, opts ...SubscribeOption) (*Subscription, error) {
	if !b.isOpen() {
		return nil, ErrBusClosed
	}
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if h == nil {
		return nil, ErrHandlerRequired
	}

	so := &subscribeOptions{}
	for _, opt := range opts {
		opt(so)
	}

	stream, err := b.transport.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	// The consume loop outlives the caller's ctx; it stops on Close.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{
		id:      NewID(),
		topic:   topic,
		bus:     b,
		stream:  stream,
		handler: h,
		limiter: so.limiter,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go sub.consume(loopCtx)

	b.opts.logger.Debug("subscribed", "topic", topic, "subscriber", sub.id)
	return sub, nil
}

// Close closes every subscription and the transport
func (b *Bus) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&b.status, busRunning, busStopped) {
		return nil
	}

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.transport.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	b.opts.logger.Debug("bus closed")
	return errors.Join(errs...)
}

// Subscriptions returns the number of open subscriptions
func (b *Bus) Subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Bus) forget(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

func (b *Bus) reportError(ctx context.Context, topic string, err error) {
	if b.failed != nil {
		b.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", topic)))
	}
	b.opts.logger.Warn("handler failed", "topic", topic, "error", err)
	b.opts.onError(topic, err)
}

// Subscription is an open subscription on a Bus.
// Close it to unsubscribe.
type Subscription struct {
	id      string
	topic   string
	bus     *Bus
	stream  Stream
	handler Handler
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}
	closed  int32
}

// ID of the subscription
func (s *Subscription) ID() string {
	return s.id
}

// Topic the subscription listens to
func (s *Subscription) Topic() string {
	return s.topic
}

// Close unsubscribes and waits for an in-flight handler to return.
// Safe to call more than once. Must not be called from the subscription's own handler.
func (s *Subscription) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.cancel()
	err := s.stream.Close(context.Background())
	<-s.done
	s.bus.forget(s.id)
	s.bus.opts.logger.Debug("unsubscribed", "topic", s.topic, "subscriber", s.id)
	return err
}

func (s *Subscription) consume(ctx context.Context) {
	defer close(s.done)
	msgs := s.stream.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return
				}
			}
			s.deliver(ctx, data)
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, data []byte) {
	b := s.bus
	msg, err := decodeMessage(data)
	if err != nil {
		b.reportError(ctx, s.topic, err)
		return
	}

	ctx = contextWithDelivery(msg.extractTrace(ctx), msg, s.id)
	var span trace.Span
	if b.tracer != nil {
		ctx, span = b.tracer.Start(ctx, "hostbus.handle "+s.topic,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String(spanKeyTopic, s.topic),
				attribute.String(spanKeyMessageID, msg.ID),
				attribute.String(spanKeySubscriptionID, s.id),
			))
	}

	if b.opts.recoveryEnabled {
		err = s.safeHandle(ctx, msg)
	} else {
		err = s.handler(ctx, msg)
	}

	if span != nil {
		endSpan(span, err)
	}
	if err != nil {
		b.reportError(ctx, s.topic, err)
		return
	}
	if b.handled != nil {
		b.handled.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", s.topic)))
	}
}

func (s *Subscription) safeHandle(ctx context.Context, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.bus.opts.logger.Error("handler panic recovered",
				"topic", s.topic,
				"msg_id", msg.ID,
				"error", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, msg)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
