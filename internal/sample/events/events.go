// Package events holds the handlers of the sample plugin.
//
// Every handler is added to the default registry under Namespace from
// init, so importing the package is enough for discovery to find them.
// Handlers subscribe to the default host bus when registered.
package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rbaliyan/eventset"
	"github.com/rbaliyan/eventset/hostbus"
)

// Namespace of the sample handlers
const Namespace eventset.Namespace = "sample.events"

// Host bus topics
const (
	TopicPlayerJoined = "player.joined"
	TopicPlayerLeft   = "player.left"
	TopicRoundStarted = "round.started"
	TopicRoundEnded   = "round.ended"
)

// ErrNoBus is returned when a handler is built before hostbus.SetDefault
var ErrNoBus = errors.New("no default host bus")

var logger = eventset.Logger("sample")

func init() {
	eventset.MustProvide[PlayerTracker](eventset.Default(), Namespace)
	eventset.MustProvide[RoundClock](eventset.Default(), Namespace)
	// announcer has no Unregister and is skipped at discovery
	if err := eventset.AddCandidate(eventset.Default(), Namespace, "announcer", func() *announcer { return &announcer{} }); err != nil {
		panic(err)
	}
}

// PlayerJoined is published when a player connects
type PlayerJoined struct {
	Nickname string `json:"nickname" msgpack:"nickname"`
	Slot     int    `json:"slot" msgpack:"slot"`
}

// PlayerLeft is published when a player disconnects
type PlayerLeft struct {
	Nickname string `json:"nickname" msgpack:"nickname"`
}

// RoundStarted is published at the start of a round
type RoundStarted struct {
	Round int `json:"round" msgpack:"round"`
}

// RoundEnded is published at the end of a round
type RoundEnded struct {
	Round  int    `json:"round" msgpack:"round"`
	Winner string `json:"winner" msgpack:"winner"`
}

// subscriptions is the set of bus subscriptions a handler holds while registered
type subscriptions struct {
	bus  *hostbus.Bus
	mu   sync.Mutex
	subs []*hostbus.Subscription
}

func (s *subscriptions) bind() error {
	s.bus = hostbus.Default()
	if s.bus == nil {
		return ErrNoBus
	}
	return nil
}

// open runs subscribe once; a second Register keeps the existing subscriptions
func (s *subscriptions) open(subscribe func(b *hostbus.Bus) ([]*hostbus.Subscription, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs != nil {
		return nil
	}
	subs, err := subscribe(s.bus)
	if err != nil {
		for _, sub := range subs {
			sub.Close()
		}
		return err
	}
	s.subs = subs
	return nil
}

func (s *subscriptions) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, sub := range s.subs {
		errs = append(errs, sub.Close())
	}
	s.subs = nil
	return errors.Join(errs...)
}

// PlayerTracker keeps the number of connected players
type PlayerTracker struct {
	subscriptions
	online atomic.Int64
}

// Init binds the tracker to the default bus
func (t *PlayerTracker) Init() error {
	return t.bind()
}

// Register subscribes to player joins and leaves
func (t *PlayerTracker) Register() error {
	return t.open(func(b *hostbus.Bus) ([]*hostbus.Subscription, error) {
		joined, err := hostbus.On(b, TopicPlayerJoined, t.onJoined)
		if err != nil {
			return nil, err
		}
		left, err := hostbus.On(b, TopicPlayerLeft, t.onLeft)
		if err != nil {
			return []*hostbus.Subscription{joined}, err
		}
		return []*hostbus.Subscription{joined, left}, nil
	})
}

// Unregister closes the subscriptions
func (t *PlayerTracker) Unregister() error {
	return t.close()
}

// Online returns the number of connected players
func (t *PlayerTracker) Online() int64 {
	return t.online.Load()
}

func (t *PlayerTracker) onJoined(ctx context.Context, p PlayerJoined) error {
	n := t.online.Add(1)
	logger.Info("player joined", "nickname", p.Nickname, "slot", p.Slot, "online", n)
	return nil
}

func (t *PlayerTracker) onLeft(ctx context.Context, p PlayerLeft) error {
	n := t.online.Add(-1)
	logger.Info("player left", "nickname", p.Nickname, "online", n)
	return nil
}

// RoundClock follows the current round
type RoundClock struct {
	subscriptions
	round   atomic.Int64
	running atomic.Bool
}

// Init binds the clock to the default bus
func (c *RoundClock) Init() error {
	return c.bind()
}

// Register subscribes to round starts and ends
func (c *RoundClock) Register() error {
	return c.open(func(b *hostbus.Bus) ([]*hostbus.Subscription, error) {
		started, err := hostbus.On(b, TopicRoundStarted, c.onStarted)
		if err != nil {
			return nil, err
		}
		ended, err := hostbus.On(b, TopicRoundEnded, c.onEnded)
		if err != nil {
			return []*hostbus.Subscription{started}, err
		}
		return []*hostbus.Subscription{started, ended}, nil
	})
}

// Unregister closes the subscriptions
func (c *RoundClock) Unregister() error {
	return c.close()
}

// Round returns the last started round and whether it is still running
func (c *RoundClock) Round() (int, bool) {
	return int(c.round.Load()), c.running.Load()
}

func (c *RoundClock) onStarted(ctx context.Context, r RoundStarted) error {
	c.round.Store(int64(r.Round))
	c.running.Store(true)
	logger.Info("round started", "round", r.Round)
	return nil
}

func (c *RoundClock) onEnded(ctx context.Context, r RoundEnded) error {
	c.running.Store(false)
	logger.Info("round ended", "round", r.Round, "winner", r.Winner)
	return nil
}

// announcer greets on Register but has no way to stop
type announcer struct{}

func (*announcer) Register() error {
	logger.Info("sample plugin ready")
	return nil
}
