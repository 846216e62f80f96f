package redis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rbaliyan/eventset/hostbus"
	"github.com/redis/go-redis/v9"
)

func quiet() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestNewRequiresClient(t *testing.T) {
	if _, err := New(nil); !errors.Is(err, ErrClientRequired) {
		t.Errorf("expected ErrClientRequired, got %v", err)
	}
}

func TestSubscribePublish(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	tr, err := New(client, quiet())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tr.Close(ctx)

	s, err := tr.Subscribe(ctx, "player.left")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer s.Close(ctx)

	if n := len(mr.PubSubChannels("hostbus:*")); n != 1 {
		t.Fatalf("expected 1 channel, got %d", n)
	}

	if err := tr.Publish(ctx, "player.left", []byte("payload")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	select {
	case data := <-s.Messages():
		if !bytes.Equal(data, []byte("payload")) {
			t.Errorf("unexpected data %q", data)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestStreamClose(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	tr, _ := New(client, quiet(), WithChannelPrefix("test:"))
	defer tr.Close(ctx)

	s, err := tr.Subscribe(ctx, "x")
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if _, ok := <-s.Messages(); ok {
		t.Error("expected closed stream")
	}
}

func TestBusOverRedis(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	tr, _ := New(client, quiet())
	bus, err := hostbus.New(tr,
		hostbus.WithCodec(hostbus.MsgPack{}),
		hostbus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		hostbus.WithTracing(false),
		hostbus.WithMetrics(false),
	)
	if err != nil {
		t.Fatalf("hostbus.New failed: %v", err)
	}
	defer bus.Close(ctx)

	got := make(chan string, 1)
	sub, err := hostbus.On(bus, "chat", func(ctx context.Context, line string) error {
		got <- line
		return nil
	})
	if err != nil {
		t.Fatalf("On failed: %v", err)
	}
	defer sub.Close()

	if err := hostbus.Emit(ctx, bus, "chat", "gg"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	select {
	case line := <-got:
		if line != "gg" {
			t.Errorf("expected gg, got %q", line)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestClosedTransport(t *testing.T) {
	ctx := context.Background()
	_, client := newClient(t)
	tr, _ := New(client, quiet())
	tr.Close(ctx)
	if err := tr.Publish(ctx, "x", nil); err != hostbus.ErrTransportClosed {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if _, err := tr.Subscribe(ctx, "x"); err != hostbus.ErrTransportClosed {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
}

func TestPublishUnreachable(t *testing.T) {
	ctx := context.Background()
	mr, client := newClient(t)
	tr, _ := New(client, quiet())
	defer tr.Close(ctx)
	mr.Close()
	if err := tr.Publish(ctx, "x", []byte("x")); err == nil {
		t.Error("expected error publishing to stopped server")
	}
}
