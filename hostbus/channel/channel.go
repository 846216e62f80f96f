// Package channel provides an in-memory host bus transport using Go channels.
//
// Channel transport delivers within a single process only:
//
//   - Messages are lost on process restart
//   - Messages published to a topic with no subscribers are dropped
//   - With WithTimeout set, a message is dropped for a subscriber that is too slow
//
// It is the transport a single game-server process uses, and the one tests use.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbaliyan/eventset/hostbus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Transport implements hostbus.Transport using Go channels
type Transport struct {
	status     int32
	mu         sync.RWMutex
	topics     map[string]map[string]*stream
	bufferSize uint
	timeout    time.Duration
	opts       *options

	droppedCounter metric.Int64Counter
}

// stream implements hostbus.Stream
type stream struct {
	id       string
	topic    string
	t        *Transport
	mu       sync.RWMutex
	ch       chan []byte
	closed   int32
	closedCh chan struct{}
}

func (s *stream) Messages() <-chan []byte {
	return s.ch
}

func (s *stream) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	// Unblock senders before taking the write lock
	close(s.closedCh)
	s.t.remove(s)
	s.mu.Lock()
	close(s.ch)
	s.mu.Unlock()
	return nil
}

// New creates a new channel-based transport
func New(opts ...Option) *Transport {
	o := newOptions(opts...)

	meter := otel.Meter("hostbus.transport.channel")
	droppedCounter, _ := meter.Int64Counter("hostbus.transport.channel.dropped",
		metric.WithDescription("Number of messages dropped by channel transport"),
		metric.WithUnit("{message}"),
	)

	return &Transport{
		status:         1,
		topics:         make(map[string]map[string]*stream),
		bufferSize:     o.bufferSize,
		timeout:        o.timeout,
		opts:           o,
		droppedCounter: droppedCounter,
	}
}

func (t *Transport) isOpen() bool {
	return atomic.LoadInt32(&t.status) == 1
}

// Subscribe opens a stream for topic
func (t *Transport) Subscribe(ctx context.Context, topic string) (hostbus.Stream, error) {
	if !t.isOpen() {
		return nil, hostbus.ErrTransportClosed
	}
	if topic == "" {
		return nil, hostbus.ErrTopicRequired
	}

	s := &stream{
		id:       hostbus.NewID(),
		topic:    topic,
		t:        t,
		ch:       make(chan []byte, t.bufferSize),
		closedCh: make(chan struct{}),
	}

	t.mu.Lock()
	subs, ok := t.topics[topic]
	if !ok {
		subs = make(map[string]*stream)
		t.topics[topic] = subs
	}
	subs[s.id] = s
	t.mu.Unlock()

	t.opts.logger.Debug("subscribed", "topic", topic, "stream", s.id)
	return s, nil
}

func (t *Transport) remove(s *stream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if subs, ok := t.topics[s.topic]; ok {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(t.topics, s.topic)
		}
	}
}

// Subscribers returns the number of open streams for topic
func (t *Transport) Subscribers(topic string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.topics[topic])
}

// Publish sends data to every open stream of topic
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if !t.isOpen() {
		return hostbus.ErrTransportClosed
	}

	t.mu.RLock()
	targets := make([]*stream, 0, len(t.topics[topic]))
	for _, s := range t.topics[topic] {
		targets = append(targets, s)
	}
	t.mu.RUnlock()

	if len(targets) == 0 {
		t.opts.logger.Debug("dropping message, no subscribers", "topic", topic)
		t.recordDrop(ctx, topic, "no_subscribers")
		return nil
	}

	for _, s := range targets {
		if err := t.send(ctx, s, data); err != nil {
			if err == hostbus.ErrPublishTimeout {
				t.opts.logger.Debug("message dropped, subscriber too slow", "topic", topic, "stream", s.id)
				t.recordDrop(ctx, topic, "timeout")
				t.opts.onError(err)
				continue
			}
			return err
		}
	}
	return nil
}

func (t *Transport) send(ctx context.Context, s *stream, data []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if atomic.LoadInt32(&s.closed) == 1 {
		return nil
	}

	var timeout <-chan time.Time
	if t.timeout > 0 {
		timer := time.NewTimer(t.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case s.ch <- data:
		return nil
	case <-s.closedCh:
		return nil
	case <-timeout:
		return hostbus.ErrPublishTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) recordDrop(ctx context.Context, topic, reason string) {
	if t.droppedCounter == nil {
		return
	}
	t.droppedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("reason", reason),
	))
}

// Close shuts down the transport and closes every stream
func (t *Transport) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.status, 1, 0) {
		return nil
	}

	t.mu.RLock()
	var all []*stream
	for _, subs := range t.topics {
		for _, s := range subs {
			all = append(all, s)
		}
	}
	t.mu.RUnlock()

	for _, s := range all {
		s.Close(ctx)
	}
	t.opts.logger.Debug("transport closed")
	return nil
}

// Compile-time check.
var _ hostbus.Transport = (*Transport)(nil)
