package eventset

import (
	"sync"
)

// Call is one Register or Unregister invocation seen by a Recorder
type Call struct {
	Op   string
	Name string
}

// Recorder records Register and Unregister calls across handlers in the
// order they happen. Useful for testing activation order.
//
// Example:
//
//	rec := eventset.NewRecorder()
//	reg := eventset.NewRegistry()
//	reg.Add("test", "a", rec.Factory("a"))
//	reg.Add("test", "b", rec.Factory("b"))
//	events, _ := reg.Discover(ctx, "test")
//	events.RegisterAll(ctx)
//	rec.Calls() // [{register a} {register b}]
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	fail  map[Call]error
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{fail: make(map[Call]error)}
}

// Handler returns a handler named name that reports to the recorder
func (r *Recorder) Handler(name string) *RecordedEvent {
	return &RecordedEvent{name: name, rec: r}
}

// Factory returns a factory that builds Handler(name)
func (r *Recorder) Factory(name string) Factory {
	return func() (Event, error) {
		return r.Handler(name), nil
	}
}

// FailOn makes the named handler return err for op (OpRegister or OpUnregister).
// The call is still recorded.
func (r *Recorder) FailOn(op, name string, err error) {
	r.mu.Lock()
	r.fail[Call{Op: op, Name: name}] = err
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([]Call, len(r.calls))
	copy(calls, r.calls)
	return calls
}

// Count returns how many times op was called on the named handler
func (r *Recorder) Count(op, name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op && c.Name == name {
			n++
		}
	}
	return n
}

// Reset clears recorded calls and failures
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.fail = make(map[Call]error)
	r.mu.Unlock()
}

func (r *Recorder) record(op, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := Call{Op: op, Name: name}
	r.calls = append(r.calls, c)
	return r.fail[c]
}

// RecordedEvent is a handler that reports its calls to a Recorder
type RecordedEvent struct {
	name string
	rec  *Recorder
}

// Name of the handler
func (e *RecordedEvent) Name() string {
	return e.name
}

// Register records the call
func (e *RecordedEvent) Register() error {
	return e.rec.record(OpRegister, e.name)
}

// Unregister records the call
func (e *RecordedEvent) Unregister() error {
	return e.rec.record(OpUnregister, e.name)
}

// Compile-time check.
var _ Event = (*RecordedEvent)(nil)
