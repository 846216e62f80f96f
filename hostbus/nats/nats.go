// Package nats provides a NATS core host bus transport.
//
// NATS core subjects are broadcast: every subscriber receives every
// message published after it subscribed. Nothing is persisted.
package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/rbaliyan/eventset/hostbus"
)

// ErrConnRequired is returned when no connection is provided
var ErrConnRequired = errors.New("nats connection is required")

// DefaultSubjectPrefix is prepended to bus topics
var DefaultSubjectPrefix = "hostbus."

// Transport implements hostbus.Transport over NATS core subjects
type Transport struct {
	status     int32
	conn       *nats.Conn
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// Option configures the NATS transport
type Option func(*Transport)

// WithSubjectPrefix sets the prefix of NATS subjects
func WithSubjectPrefix(prefix string) Option {
	return func(t *Transport) {
		t.prefix = prefix
	}
}

// WithBufferSize sets the per-stream buffer size
func WithBufferSize(size int) Option {
	return func(t *Transport) {
		if size > 0 {
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

// New creates a NATS transport. The connection is not closed by the transport.
func New(conn *nats.Conn, opts ...Option) (*Transport, error) {
	if conn == nil {
		return nil, ErrConnRequired
	}
	t := &Transport{
		status:     1,
		conn:       conn,
		prefix:     DefaultSubjectPrefix,
		bufferSize: 64,
		logger:     hostbus.Logger("transport>nats"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Transport) isOpen() bool {
	return atomic.LoadInt32(&t.status) == 1
}

func (t *Transport) subject(topic string) string {
	return t.prefix + topic
}

// Publish publishes data on the subject for topic
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if !t.isOpen() {
		return hostbus.ErrTransportClosed
	}
	if topic == "" {
		return hostbus.ErrTopicRequired
	}
	if err := t.conn.Publish(t.subject(topic), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	t.logger.Debug("published", "topic", topic)
	return nil
}

// Subscribe subscribes to the subject for topic. The subscription is
// flushed to the server before Subscribe returns.
func (t *Transport) Subscribe(ctx context.Context, topic string) (hostbus.Stream, error) {
	if !t.isOpen() {
		return nil, hostbus.ErrTransportClosed
	}
	if topic == "" {
		return nil, hostbus.ErrTopicRequired
	}

	in := make(chan *nats.Msg, t.bufferSize)
	sub, err := t.conn.ChanSubscribe(t.subject(topic), in)
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := t.conn.FlushWithContext(ctx); err != nil {
		sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}

	s := &stream{
		sub:      sub,
		ch:       make(chan []byte, t.bufferSize),
		closedCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.forward(in)

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
	sub      *nats.Subscription
	ch       chan []byte
	closedCh chan struct{}
	closed   int32
	wg       sync.WaitGroup
}

func (s *stream) Messages() <-chan []byte {
	return s.ch
}

// forward exits on closedCh; ChanSubscribe never closes its channel.
func (s *stream) forward(in <-chan *nats.Msg) {
	defer s.wg.Done()
	for {
		select {
		case <-s.closedCh:
			return
		case msg := <-in:
			select {
			case s.ch <- msg.Data:
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
	err := s.sub.Unsubscribe()
	if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
		err = nil
	}
	s.wg.Wait()
	close(s.ch)
	return err
}

// Compile-time check.
var _ hostbus.Transport = (*Transport)(nil)
