package eventset

import (
	"context"
	"errors"
	"testing"
)

type counterEvent struct {
	initialised bool
	registered  int
}

func (c *counterEvent) Register() error {
	c.registered++
	return nil
}

func (c *counterEvent) Unregister() error {
	c.registered--
	return nil
}

type initEvent struct {
	counterEvent
}

func (i *initEvent) Init() error {
	i.initialised = true
	return nil
}

var errInitFailed = errors.New("init failed")

type failingInitEvent struct {
	counterEvent
}

func (*failingInitEvent) Init() error {
	return errInitFailed
}

func TestProvide(t *testing.T) {
	ctx := context.Background()
	r := testRegistry()

	if err := Provide[counterEvent](r, "ns"); err != nil {
		t.Fatalf("Provide failed: %v", err)
	}
	if err := Provide[initEvent](r, "ns"); err != nil {
		t.Fatalf("Provide failed: %v", err)
	}
	if err := Provide[counterEvent](r, "ns"); !errors.Is(err, ErrDuplicateFactory) {
		t.Errorf("expected ErrDuplicateFactory, got %v", err)
	}

	events, err := r.Discover(ctx, "ns")
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if events.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", events.Len())
	}
	if name := events.Names()[0]; name != "*eventset.counterEvent" {
		t.Errorf("unexpected name %q", name)
	}
	ie, ok := events.At(1).(*initEvent)
	if !ok {
		t.Fatalf("expected *initEvent, got %T", events.At(1))
	}
	if !ie.initialised {
		t.Error("Init was not called")
	}

	if err := events.RegisterAll(ctx); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}
	if ie.registered != 1 {
		t.Errorf("expected 1 registration, got %d", ie.registered)
	}
}

func TestProvideInitFailure(t *testing.T) {
	r := testRegistry()
	MustProvide[failingInitEvent](r, "ns")

	_, err := r.Discover(context.Background(), "ns")
	if !IsInstantiationError(err) {
		t.Fatalf("expected InstantiationError, got %v", err)
	}
	if !errors.Is(err, errInitFailed) {
		t.Errorf("expected errInitFailed, got %v", err)
	}
}

func TestMustProvidePanicsOnDuplicate(t *testing.T) {
	r := testRegistry()
	MustProvide[counterEvent](r, "ns")
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	MustProvide[counterEvent](r, "ns")
}
