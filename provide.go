package eventset

import "fmt"

// Constructible is satisfied by *T when *T implements Event.
type Constructible[T any] interface {
	*T
	Event
}

// Provide registers T under ns. The handler is new(T); if *T implements
// Initializer, Init runs before the handler is added to a collection.
// The factory name is the type name of *T.
//
// Example:
//
//	type Greeter struct{}
//
//	func (*Greeter) Register() error   { ... }
//	func (*Greeter) Unregister() error { ... }
//
//	eventset.Provide[Greeter](registry, "myplugin.events")
func Provide[T any, PT Constructible[T]](r *Registry, ns Namespace) error {
	name := fmt.Sprintf("%T", PT(nil))
	return r.Add(ns, name, func() (Event, error) {
		ev := PT(new(T))
		if in, ok := any(ev).(Initializer); ok {
			if err := in.Init(); err != nil {
				return nil, err
			}
		}
		return ev, nil
	})
}

// MustProvide is like Provide but panics on error.
// Intended for init functions.
func MustProvide[T any, PT Constructible[T]](r *Registry, ns Namespace) {
	if err := Provide[T, PT](r, ns); err != nil {
		panic("eventset: " + err.Error())
	}
}

// AddCandidate registers a constructor of *T under ns without requiring
// *T to implement Event at compile time. The check is made on the type
// when the candidate is added: if *T lacks Register or Unregister the
// candidate is kept but skipped at discovery and ctor is never called.
func AddCandidate[T any](r *Registry, ns Namespace, name string, ctor func() *T) error {
	if ctor == nil {
		return ErrNilFactory
	}
	if _, ok := any((*T)(nil)).(Event); !ok {
		return r.add(ns, entry{name: name, skip: true})
	}
	return r.add(ns, entry{name: name, factory: func() (Event, error) {
		v := ctor()
		if v == nil {
			return nil, fmt.Errorf("candidate %q returned nil", name)
		}
		return any(v).(Event), nil
	}})
}
