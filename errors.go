package eventset

import (
	"errors"
	"fmt"
)

// Registration errors
var (
	ErrEmptyNamespace   = errors.New("namespace is required")
	ErrEmptyName        = errors.New("factory name is required")
	ErrNilFactory       = errors.New("factory is nil")
	ErrDuplicateFactory = errors.New("factory already registered with this name")
)

// InstantiationError is returned by Discover when a factory fails.
// Discovery stops at the first failure and returns no collection.
type InstantiationError struct {
	Namespace Namespace
	Name      string
	Err       error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate %s/%s: %v", e.Namespace, e.Name, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// IsInstantiationError checks if an error is a discovery failure.
func IsInstantiationError(err error) bool {
	var ie *InstantiationError
	return errors.As(err, &ie)
}

// Lifecycle operations reported in LifecycleError.Op
const (
	OpRegister   = "register"
	OpUnregister = "unregister"
)

// LifecycleError is returned by RegisterAll and UnregisterAll when a handler fails.
// Index is the handler's position in the collection; handlers before it
// already ran and are not rolled back.
type LifecycleError struct {
	Op    string
	Name  string
	Index int
	Err   error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("%s %s (#%d): %v", e.Op, e.Name, e.Index, e.Err)
}

func (e *LifecycleError) Unwrap() error {
	return e.Err
}

// IsLifecycleError checks if an error came from a handler's Register or Unregister.
func IsLifecycleError(err error) bool {
	var le *LifecycleError
	return errors.As(err, &le)
}

// PanicError wraps a value recovered from a panicking factory or handler.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
