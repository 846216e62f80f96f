package kafka

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/rbaliyan/eventset/hostbus"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNewRequiresProducer(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrProducerRequired) {
		t.Errorf("expected ErrProducerRequired, got %v", err)
	}
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "hostbus.player.joined" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		if !bytes.Equal(value, []byte("payload")) {
			return errors.New("unexpected value")
		}
		return nil
	})

	tr, err := New(producer, quiet())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := tr.Publish(ctx, "player.joined", []byte("payload")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if err := tr.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestPublishFailure(t *testing.T) {
	ctx := context.Background()
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	tr, _ := New(producer, quiet())
	defer tr.Close(ctx)
	if err := tr.Publish(ctx, "x", []byte("x")); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected ErrOutOfBrokers, got %v", err)
	}
}

func TestSubscribe(t *testing.T) {
	ctx := context.Background()
	consumer := mocks.NewConsumer(t, nil)
	consumer.SetTopicMetadata(map[string][]int32{"game.round": {0, 1}})
	consumer.ExpectConsumePartition("game.round", 0, sarama.OffsetNewest).
		YieldMessage(&sarama.ConsumerMessage{Value: []byte("p0")})
	consumer.ExpectConsumePartition("game.round", 1, sarama.OffsetNewest).
		YieldMessage(&sarama.ConsumerMessage{Value: []byte("p1")})

	tr, err := New(mocks.NewSyncProducer(t, nil), WithConsumer(consumer), WithTopicPrefix("game."), quiet())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tr.Close(ctx)

	s, err := tr.Subscribe(ctx, "round")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case data := <-s.Messages():
			got[string(data)] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if !got["p0"] || !got["p1"] {
		t.Errorf("expected both partitions, got %v", got)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("stream Close failed: %v", err)
	}
	if _, ok := <-s.Messages(); ok {
		t.Error("expected closed stream")
	}
}

func TestSubscribeWithoutConsumer(t *testing.T) {
	ctx := context.Background()
	tr, _ := New(mocks.NewSyncProducer(t, nil), quiet())
	defer tr.Close(ctx)
	if _, err := tr.Subscribe(ctx, "x"); !errors.Is(err, ErrConsumerRequired) {
		t.Errorf("expected ErrConsumerRequired, got %v", err)
	}
}

func TestClosedTransport(t *testing.T) {
	ctx := context.Background()
	tr, _ := New(mocks.NewSyncProducer(t, nil), quiet())
	tr.Close(ctx)
	if err := tr.Publish(ctx, "x", nil); err != hostbus.ErrTransportClosed {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if _, err := tr.Subscribe(ctx, "x"); err != hostbus.ErrTransportClosed {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
}

// drainedConsumer has a closed error channel and an open message channel
type drainedConsumer struct {
	sarama.PartitionConsumer
	msgs       chan *sarama.ConsumerMessage
	errs       chan *sarama.ConsumerError
	errsCalled int32
}

func (c *drainedConsumer) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

func (c *drainedConsumer) Errors() <-chan *sarama.ConsumerError {
	atomic.AddInt32(&c.errsCalled, 1)
	return c.errs
}

func TestForwardAfterErrorsClosed(t *testing.T) {
	pc := &drainedConsumer{
		msgs: make(chan *sarama.ConsumerMessage),
		errs: make(chan *sarama.ConsumerError),
	}
	close(pc.errs)

	s := &stream{
		ch:       make(chan []byte),
		closedCh: make(chan struct{}),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	s.wg.Add(1)
	go s.forward(pc)

	for _, v := range []string{"a", "b", "c"} {
		pc.msgs <- &sarama.ConsumerMessage{Value: []byte(v)}
		select {
		case data := <-s.ch:
			if string(data) != v {
				t.Errorf("expected %q, got %q", v, data)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}
	close(s.closedCh)
	s.wg.Wait()

	if n := atomic.LoadInt32(&pc.errsCalled); n != 1 {
		t.Errorf("expected error channel to be read once, got %d", n)
	}
}
