package eventset

// Event is the capability an event handler must have to be discovered.
// Register subscribes the handler's side effects and Unregister reverses them.
type Event interface {
	Register() error
	Unregister() error
}

// Initializer is implemented by handlers that need setup after construction.
// Provide calls Init on the new instance; an error fails discovery.
type Initializer interface {
	Init() error
}

// Factory builds one event handler. It takes no arguments.
type Factory func() (Event, error)

// Namespace groups event handlers. Namespaces are matched exactly.
type Namespace string

// String returns the namespace as a string
func (n Namespace) String() string {
	return string(n)
}

// Funcs adapts a pair of functions to the Event interface.
// Nil functions are no-ops.
type Funcs struct {
	OnRegister   func() error
	OnUnregister func() error
}

// Register calls OnRegister
func (f Funcs) Register() error {
	if f.OnRegister == nil {
		return nil
	}
	return f.OnRegister()
}

// Unregister calls OnUnregister
func (f Funcs) Unregister() error {
	if f.OnUnregister == nil {
		return nil
	}
	return f.OnUnregister()
}

// Compile-time check.
var _ Event = Funcs{}
