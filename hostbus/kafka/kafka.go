// Package kafka provides a Kafka host bus transport using IBM/sarama.
//
// Every subscription consumes all partitions of its topic from the newest
// offset, so each subscriber sees every message published after it
// subscribed (broadcast). Offsets are not committed; a restarted server
// starts from the newest offset again.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/IBM/sarama"
	"github.com/rbaliyan/eventset/hostbus"
)

// ErrProducerRequired is returned when no producer is provided
var ErrProducerRequired = errors.New("kafka producer is required")

// ErrConsumerRequired is returned by Subscribe on a publish-only transport
var ErrConsumerRequired = errors.New("kafka consumer is required to subscribe")

// DefaultTopicPrefix is prepended to bus topics
var DefaultTopicPrefix = "hostbus."

// Transport implements hostbus.Transport using Kafka topics
type Transport struct {
	status     int32
	producer   sarama.SyncProducer
	consumer   sarama.Consumer
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// Option configures the Kafka transport
type Option func(*Transport)

// WithConsumer sets the consumer used by Subscribe.
// Without a consumer the transport is publish-only.
func WithConsumer(c sarama.Consumer) Option {
	return func(t *Transport) {
		t.consumer = c
	}
}

// WithTopicPrefix sets the prefix of Kafka topic names
func WithTopicPrefix(prefix string) Option {
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

// New creates a Kafka transport.
//
// Recommended producer settings:
//
//	config := sarama.NewConfig()
//	config.Producer.Return.Successes = true // required by SyncProducer
//	config.Producer.RequiredAcks = sarama.WaitForLocal
func New(producer sarama.SyncProducer, opts ...Option) (*Transport, error) {
	if producer == nil {
		return nil, ErrProducerRequired
	}
	t := &Transport{
		status:     1,
		producer:   producer,
		prefix:     DefaultTopicPrefix,
		bufferSize: 64,
		logger:     hostbus.Logger("transport>kafka"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *Transport) isOpen() bool {
	return atomic.LoadInt32(&t.status) == 1
}

func (t *Transport) topicName(topic string) string {
	return t.prefix + topic
}

// Publish sends data to the Kafka topic for topic
func (t *Transport) Publish(ctx context.Context, topic string, data []byte) error {
	if !t.isOpen() {
		return hostbus.ErrTransportClosed
	}
	if topic == "" {
		return hostbus.ErrTopicRequired
	}
	partition, offset, err := t.producer.SendMessage(&sarama.ProducerMessage{
		Topic: t.topicName(topic),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("kafka send: %w", err)
	}
	t.logger.Debug("published", "topic", topic, "partition", partition, "offset", offset)
	return nil
}

// Subscribe consumes every partition of topic from the newest offset
func (t *Transport) Subscribe(ctx context.Context, topic string) (hostbus.Stream, error) {
	if !t.isOpen() {
		return nil, hostbus.ErrTransportClosed
	}
	if topic == "" {
		return nil, hostbus.ErrTopicRequired
	}
	if t.consumer == nil {
		return nil, ErrConsumerRequired
	}

	name := t.topicName(topic)
	partitions, err := t.consumer.Partitions(name)
	if err != nil {
		return nil, fmt.Errorf("kafka partitions %s: %w", name, err)
	}

	s := &stream{
		ch:       make(chan []byte, t.bufferSize),
		closedCh: make(chan struct{}),
		logger:   t.logger,
	}
	for _, p := range partitions {
		pc, err := t.consumer.ConsumePartition(name, p, sarama.OffsetNewest)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("kafka consume %s/%d: %w", name, p, err)
		}
		s.pcs = append(s.pcs, pc)
		s.wg.Add(1)
		go s.forward(pc)
	}

	t.logger.Debug("subscribed", "topic", topic, "partitions", len(partitions))
	return s, nil
}

// Close closes the producer and the consumer
func (t *Transport) Close(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&t.status, 1, 0) {
		return nil
	}
	var errs []error
	if err := t.producer.Close(); err != nil {
		errs = append(errs, err)
	}
	if t.consumer != nil {
		if err := t.consumer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.logger.Debug("transport closed")
	return errors.Join(errs...)
}

// stream implements hostbus.Stream over a set of partition consumers
type stream struct {
	ch       chan []byte
	closedCh chan struct{}
	closed   int32
	pcs      []sarama.PartitionConsumer
	wg       sync.WaitGroup
	logger   *slog.Logger
}

func (s *stream) Messages() <-chan []byte {
	return s.ch
}

func (s *stream) forward(pc sarama.PartitionConsumer) {
	defer s.wg.Done()
	errs := pc.Errors()
	for {
		select {
		case <-s.closedCh:
			return
		case err, ok := <-errs:
			if !ok {
				// a nil channel never fires
				errs = nil
				continue
			}
			s.logger.Warn("partition consumer error", "error", err)
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			select {
			case s.ch <- msg.Value:
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
	var errs []error
	for _, pc := range s.pcs {
		if err := pc.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.wg.Wait()
	close(s.ch)
	return errors.Join(errs...)
}

// Compile-time check.
var _ hostbus.Transport = (*Transport)(nil)
