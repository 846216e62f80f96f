// Package redis provides a Redis Pub/Sub host bus transport using go-redis.
//
// Redis Pub/Sub is fire-and-forget: messages published while nobody is
// subscribed are lost, and every subscriber receives its own copy.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/eventset/hostbus"
	"github.com/redis/go-redis/v9"
)

// ErrClientRequired is returned when no client is provided
var ErrClientRequired = errors.New("redis client is required")

// DefaultChannelPrefix is prepended to bus topics
var DefaultChannelPrefix = "hostbus:"

// Client is the subset of the go-redis API used by the transport.
// *redis.Client, *redis.ClusterClient and redis.UniversalClient satisfy it.
type Client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Transport implements hostbus.Transport over Redis Pub/Sub
type Transport struct {
	status     int32
	client     Client
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// Option configures the Redis transport
type Option func(*Transport)

// WithChannelPrefix sets the prefix of Redis channel names
func WithChannelPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithBufferSize sets the per-stream buffer size
func WithBufferSize(size int) Option {
	return func(t *Transport) {
		if size >= 0 {
			t.bufferSize = size
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// New creates a Redis transport. The client is not closed by the transport.
func New(client Client, opts ...Option) (*Transport, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	t := &Transport{
		status:     1,
		client:     client,
		prefix:     DefaultChannelPrefix,
		bufferSize: 64,
		logger:     hostbus.Logger("transport>redis"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Transport) isOpen() bool {
	return atomic.LoadInt32(&t.status) == 1
}

func (t *Transport) channelName(topic string) string {
	return t.prefix + topic
}

// Publish publishes data on the channel for topic
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if !t.isOpen() {
		return hostbus.ErrTransportClosed
	}
	if topic == "" {
		return hostbus.ErrTopicRequired
	}
	receivers, err := t.client.Publish(ctx, t.channelName(topic), data).Result()
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	t.logger.Debug("published", "topic", topic, "receivers", receivers)
	return nil
}

// Subscribe subscribes to the channel for topic. It returns once Redis
// has confirmed the subscription.
func (t *Transport) Subscribe(ctx context.Context, topic string) (hostbus.Stream, error) {
	if !t.isOpen() {
		return nil, hostbus.ErrTransportClosed
	}
	if topic == "" {
		return nil, hostbus.ErrTopicRequired
	}

	ps := t.client.Subscribe(ctx, t.channelName(topic))
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	s := &stream{
		ps:       ps,
		ch:       make(chan []byte, t.bufferSize),
		closedCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.forward(ps.Channel())

	t.logger.Debug("subscribed", "topic", topic)
	return s, nil
}

// Close marks the transport closed. Open streams must be closed by their owners.
func (t *Transport) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.status, 1, 0) {
		return nil
	}
	t.logger.Debug("transport closed")
	return nil
}

type stream struct {
	ps       *redis.PubSub
	ch       chan []byte
	closedCh chan struct{}
	closed   int32
	wg       sync.WaitGroup
}

func (s *stream) Messages() <-chan []byte {
	return s.ch
}

func (s *stream) forward(in <-chan *redis.Message) {
	defer s.wg.Done()
	for {
		select {
		case <-s.closedCh:
			return
		case msg, ok := <-in:
			if !ok {
				return
			}
			select {
			case s.ch <- []byte(msg.Payload):
			case <-s.closedCh:
				return
			}
		}
	}
}

func (s *stream) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	close(s.closedCh)
	err := s.ps.Close()
	s.wg.Wait()
	close(s.ch)
	return err
}

// Compile-time check.
var _ hostbus.Transport = (*Transport)(nil)
