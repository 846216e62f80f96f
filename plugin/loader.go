package plugin

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/rbaliyan/eventset"
	"golang.org/x/mod/semver"
)

// ErrAlreadyLoaded is returned by Load for a module the loader already holds
var ErrAlreadyLoaded = errors.New("plugin already loaded")

// Module is what a Loader drives. *Plugin implements it.
type Module interface {
	Metadata() Metadata
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
}

// Loader plays the host: it checks API compatibility, orders plugins by
// priority and enables or disables them as a group.
type Loader struct {
	apiVersion string
	logger     *slog.Logger

	mu      sync.Mutex
	modules []Module
	// enabled modules in the order they were enabled
	active []Module
}

// LoaderOption configures a Loader
type LoaderOption func(*Loader)

// WithLoaderLogger sets the loader logger
func WithLoaderLogger(l *slog.Logger) LoaderOption {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// NewLoader creates a loader for a host exposing apiVersion
func NewLoader(apiVersion string, opts ...LoaderOption) (*Loader, error) {
	if !semver.IsValid(canonical(apiVersion)) {
		return nil, fmt.Errorf("%w: host api version %q", ErrInvalidMetadata, apiVersion)
	}
	ld := &Loader{
		apiVersion: apiVersion,
		logger:     eventset.Logger("plugin>loader"),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld, nil
}

// APIVersion returns the host API version
func (ld *Loader) APIVersion() string {
	return ld.apiVersion
}

// Load adds modules after checking their metadata. Nothing is added if
// any module is rejected, including a module that is already loaded.
// Modules are kept ordered by priority, highest first; equal priorities
// keep the order they were loaded in.
func (ld *Loader) Load(modules ...Module) error {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	for i, m := range modules {
		meta := m.Metadata()
		if err := meta.Validate(); err != nil {
			return err
		}
		if !meta.CompatibleWith(ld.apiVersion) {
			return fmt.Errorf("%w: %s requires %s, host provides %s",
				ErrIncompatibleAPI, meta.Name, meta.RequiredAPIVersion, ld.apiVersion)
		}
		if slices.Contains(ld.modules, m) || slices.Contains(modules[:i], m) {
			return fmt.Errorf("%w: %s", ErrAlreadyLoaded, meta.Name)
		}
	}

	ld.modules = append(ld.modules, modules...)
	slices.SortStableFunc(ld.modules, func(a, b Module) int {
		return cmp.Compare(b.Metadata().Priority, a.Metadata().Priority)
	})
	for _, m := range modules {
		ld.logger.Debug("plugin loaded", "plugin", m.Metadata().Name, "priority", m.Metadata().Priority)
	}
	return nil
}

// Modules returns the loaded modules in load order
func (ld *Loader) Modules() []Module {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return slices.Clone(ld.modules)
}

// EnableAll enables, in load order, every module not already enabled and
// stops at the first failure. Modules enabled before the failure stay
// enabled; DisableAll disables them.
func (ld *Loader) EnableAll(ctx context.Context) error {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	for _, m := range ld.modules {
		if slices.Contains(ld.active, m) {
			continue
		}
		if err := m.Enable(ctx); err != nil {
			return fmt.Errorf("enable %s: %w", m.Metadata().Name, err)
		}
		ld.active = append(ld.active, m)
	}
	return nil
}

// DisableAll disables the enabled modules in reverse enable order. Every
// module is disabled even if an earlier one fails; the errors are joined.
func (ld *Loader) DisableAll(ctx context.Context) error {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	var errs []error
	for i := len(ld.active) - 1; i >= 0; i-- {
		m := ld.active[i]
		if err := m.Disable(ctx); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", m.Metadata().Name, err))
		}
	}
	ld.active = nil
	return errors.Join(errs...)
}

// Compile-time check.
var _ Module = (*Plugin)(nil)
