package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rbaliyan/eventset"
	"github.com/rbaliyan/eventset/config"
)

const testNamespace eventset.Namespace = "Test.Events"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMeta(name string, priority LoadPriority) Metadata {
	return Metadata{
		Name:               name,
		Author:             "tests",
		Version:            "1.0.0",
		RequiredAPIVersion: "1.0.0",
		Priority:           priority,
	}
}

// newTestPlugin builds a plugin over a fresh registry holding handlers a and b
func newTestPlugin(t *testing.T, rec *eventset.Recorder) *Plugin {
	t.Helper()
	reg := eventset.NewRegistry(
		eventset.WithLogger(quietLogger()),
		eventset.WithTracing(false),
		eventset.WithMetrics(false),
	)
	for _, name := range []string{"a", "b"} {
		if err := reg.Add(testNamespace, name, rec.Factory(name)); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
	p, err := New(testMeta("test", High), testNamespace, WithRegistry(reg), WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Metadata{Version: "1.0.0"}, testNamespace); !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("expected ErrInvalidMetadata, got %v", err)
	}
	if _, err := New(testMeta("p", Medium), ""); !errors.Is(err, eventset.ErrEmptyNamespace) {
		t.Errorf("expected ErrEmptyNamespace, got %v", err)
	}
}

func TestNewConfig(t *testing.T) {
	p, err := New(testMeta("p", Medium), testNamespace, WithConfig(config.Config{Debug: true}))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !p.Config().Debug {
		t.Error("expected Debug config")
	}
	if !p.logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug logger when Debug is set")
	}

	p, _ = New(testMeta("p", Medium), testNamespace)
	if p.Config() != config.Defaults() {
		t.Errorf("expected build defaults, got %+v", p.Config())
	}
}

func TestEnableDisable(t *testing.T) {
	ctx := context.Background()
	rec := eventset.NewRecorder()
	p := newTestPlugin(t, rec)

	if p.Events() != nil {
		t.Fatal("expected no collection before Enable")
	}
	if err := p.Enable(ctx); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if !p.Enabled() {
		t.Error("expected plugin enabled")
	}
	if diff := cmp.Diff([]string{"a", "b"}, p.Events().Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if err := p.Disable(ctx); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if p.Enabled() {
		t.Error("expected plugin disabled")
	}

	want := []eventset.Call{
		{Op: eventset.OpRegister, Name: "a"},
		{Op: eventset.OpRegister, Name: "b"},
		{Op: eventset.OpUnregister, Name: "a"},
		{Op: eventset.OpUnregister, Name: "b"},
	}
	if diff := cmp.Diff(want, rec.Calls()); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestDisableBeforeEnable(t *testing.T) {
	rec := eventset.NewRecorder()
	p := newTestPlugin(t, rec)
	if err := p.Disable(context.Background()); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if n := len(rec.Calls()); n != 0 {
		t.Errorf("expected no calls, got %d", n)
	}
}

func TestEnableReusesCollection(t *testing.T) {
	ctx := context.Background()
	rec := eventset.NewRecorder()
	p := newTestPlugin(t, rec)

	p.Enable(ctx)
	first := p.Events()
	p.Disable(ctx)
	p.Enable(ctx)
	if p.Events() != first {
		t.Error("expected Enable to reuse the discovered collection")
	}
	if n := rec.Count(eventset.OpRegister, "a"); n != 2 {
		t.Errorf("expected 2 registrations of a, got %d", n)
	}
}

func TestEnableFailure(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")
	rec := eventset.NewRecorder()
	rec.FailOn(eventset.OpRegister, "b", errBoom)
	p := newTestPlugin(t, rec)

	err := p.Enable(ctx)
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}
	if !eventset.IsLifecycleError(err) {
		t.Errorf("expected LifecycleError, got %T", err)
	}
	if p.Enabled() {
		t.Error("plugin should not be enabled after failure")
	}
}

func TestEnableDiscoveryFailure(t *testing.T) {
	reg := eventset.NewRegistry(eventset.WithLogger(quietLogger()), eventset.WithTracing(false), eventset.WithMetrics(false))
	reg.Add(testNamespace, "broken", func() (eventset.Event, error) {
		return nil, errors.New("no bus")
	})
	p, _ := New(testMeta("p", Low), testNamespace, WithRegistry(reg), WithLogger(quietLogger()))

	if err := p.Enable(context.Background()); !eventset.IsInstantiationError(err) {
		t.Fatalf("expected InstantiationError, got %v", err)
	}
	if p.Events() != nil {
		t.Error("expected no collection after failed discovery")
	}
}
