package statemachine

import (
	"context"
	"sync"
)

// Event represents an action applied to a machine. Name is the event kind used
// to pick the handler of the current state.
type Event interface {
	Name() string
}

// Outcome is the verdict of an event action. The zero value is Succeeded so an
// action that has nothing to report counts as a success.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Failed {
		return "failed"
	}
	return "succeeded"
}

// State is one named mode of a machine and decides how events are processed
// while the machine is in it.
type State[S comparable] interface {
	// ID returns the state identity. It must be unique within a machine.
	ID() S
	// OnEvent runs the event action for this state. An error aborts the
	// dispatch without a transition and is returned to the submitter unchanged.
	OnEvent(ctx context.Context, m *Machine[S], event Event) (Outcome, error)
	// OnSuccess returns the state to enter after a successful action.
	OnSuccess(event Event) (S, error)
	// OnFailure returns the state to enter after a failed action.
	OnFailure(event Event) (S, error)
	// TransitState returns the state reported while event is in flight.
	TransitState(event Event) S
}

// HandlerLookup is implemented by states that can tell in advance whether
// they handle an event kind.
type HandlerLookup interface {
	Handles(eventName string) bool
}

// ResultSetter is implemented by events that carry a result slot.
type ResultSetter interface {
	SetResult(v any)
}

// ResultHolder is embedded into events that hand a result back to the
// submitter. Actions write it; the submitter reads it after completion.
type ResultHolder struct {
	mu     sync.Mutex
	result any
}

func (h *ResultHolder) SetResult(v any) {
	h.mu.Lock()
	h.result = v
	h.mu.Unlock()
}

func (h *ResultHolder) Result() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// StringEvent provides a simple string-based event implementation for basic use cases.
type StringEvent string

func (e StringEvent) Name() string {
	return string(e)
}

// eventName is used for records and log lines where the event may be nil.
func eventName(e Event) string {
	if e == nil {
		return "<nil>"
	}
	return e.Name()
}
