// Command eventset-demo runs the sample plugin against a host bus and
// plays a short scripted round.
//
//	eventset-demo -transport channel
//	eventset-demo -transport redis -addr localhost:6379
//	eventset-demo -transport nats -addr nats://localhost:4222
//	eventset-demo -transport kafka -addr localhost:9092
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	natsgo "github.com/nats-io/nats.go"
	"github.com/rbaliyan/eventset/config"
	"github.com/rbaliyan/eventset/hostbus"
	"github.com/rbaliyan/eventset/hostbus/channel"
	"github.com/rbaliyan/eventset/hostbus/kafka"
	"github.com/rbaliyan/eventset/hostbus/nats"
	"github.com/rbaliyan/eventset/hostbus/redis"
	"github.com/rbaliyan/eventset/internal/sample/events"
	"github.com/rbaliyan/eventset/plugin"
	goredis "github.com/redis/go-redis/v9"
)

// APIVersion is the host API version the demo loader exposes
const APIVersion = "1.0.0"

func main() {
	transport := flag.String("transport", "channel", "host bus transport: channel, redis, nats or kafka")
	addr := flag.String("addr", "", "transport address (comma separated brokers for kafka)")
	rounds := flag.Int("rounds", 2, "number of rounds to play")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *transport, *addr, *rounds); err != nil {
		slog.Error("demo failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, kind, addr string, rounds int) error {
	t, cleanup, err := newTransport(kind, addr)
	if err != nil {
		return err
	}
	defer cleanup()

	bus, err := hostbus.New(t, hostbus.WithCodec(hostbus.MsgPack{}))
	if err != nil {
		return err
	}
	defer bus.Close(context.Background())
	hostbus.SetDefault(bus)

	p, err := plugin.New(plugin.Metadata{
		Name:               "sample",
		Author:             "eventset",
		Description:        "Tracks players and rounds on the host bus",
		Version:            "1.0.0",
		RequiredAPIVersion: APIVersion,
		Priority:           plugin.High,
	}, events.Namespace, plugin.WithConfig(cfg))
	if err != nil {
		return err
	}

	loader, err := plugin.NewLoader(APIVersion)
	if err != nil {
		return err
	}
	if err := loader.Load(p); err != nil {
		return err
	}
	if err := loader.EnableAll(ctx); err != nil {
		return err
	}
	defer func() {
		if err := loader.DisableAll(context.Background()); err != nil {
			slog.Error("disable plugins", "error", err)
		}
	}()

	return play(ctx, bus, rounds)
}

func play(ctx context.Context, bus *hostbus.Bus, rounds int) error {
	players := []string{"alice", "bob", "carol"}
	for i, name := range players {
		if err := hostbus.Emit(ctx, bus, events.TopicPlayerJoined, events.PlayerJoined{Nickname: name, Slot: i + 1}); err != nil {
			return err
		}
	}
	for round := 1; round <= rounds; round++ {
		if err := hostbus.Emit(ctx, bus, events.TopicRoundStarted, events.RoundStarted{Round: round}); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(200 * time.Millisecond):
		}
		winner := players[round%len(players)]
		if err := hostbus.Emit(ctx, bus, events.TopicRoundEnded, events.RoundEnded{Round: round, Winner: winner}); err != nil {
			return err
		}
	}
	for _, name := range players {
		if err := hostbus.Emit(ctx, bus, events.TopicPlayerLeft, events.PlayerLeft{Nickname: name}); err != nil {
			return err
		}
	}
	// let subscribers drain before the plugin is disabled
	select {
	case <-ctx.Done():
	case <-time.After(200 * time.Millisecond):
	}
	return nil
}

func newTransport(kind, addr string) (hostbus.Transport, func(), error) {
	nop := func() {}
	switch kind {
	case "channel":
		return channel.New(), nop, nil

	case "redis":
		if addr == "" {
			addr = "localhost:6379"
		}
		client := goredis.NewClient(&goredis.Options{Addr: addr})
		t, err := redis.New(client)
		if err != nil {
			client.Close()
			return nil, nop, err
		}
		return t, func() { client.Close() }, nil

	case "nats":
		if addr == "" {
			addr = natsgo.DefaultURL
		}
		nc, err := natsgo.Connect(addr)
		if err != nil {
			return nil, nop, fmt.Errorf("nats connect: %w", err)
		}
		t, err := nats.New(nc)
		if err != nil {
			nc.Close()
			return nil, nop, err
		}
		return t, nc.Close, nil

	case "kafka":
		if addr == "" {
			addr = "localhost:9092"
		}
		brokers := strings.Split(addr, ",")
		sc := sarama.NewConfig()
		sc.Producer.Return.Successes = true
		sc.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(brokers, sc)
		if err != nil {
			return nil, nop, fmt.Errorf("kafka producer: %w", err)
		}
		consumer, err := sarama.NewConsumer(brokers, sc)
		if err != nil {
			producer.Close()
			return nil, nop, fmt.Errorf("kafka consumer: %w", err)
		}
		// the transport closes producer and consumer
		t, err := kafka.New(producer, kafka.WithConsumer(consumer))
		if err != nil {
			producer.Close()
			consumer.Close()
			return nil, nop, err
		}
		return t, nop, nil

	default:
		return nil, nop, fmt.Errorf("unknown transport %q", kind)
	}
}
