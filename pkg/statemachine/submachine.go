package statemachine

import (
	"context"
)

// Submachine is a nested machine driven through its owner. *Machine[T]
// satisfies it for any T.
type Submachine interface {
	OnEvent(ctx context.Context, event Event) error
	Reported() any
}

// SubEventName is the event kind of SubEvent. Outer states that delegate to
// the submachine register a handler under this name.
const SubEventName = "sub"

// SubEvent carries an event for the submachine through the outer machine.
// It is only resolved by outer states whose handler chooses to delegate.
type SubEvent struct {
	Inner Event
}

// NewSubEvent wraps an event destined for the submachine.
func NewSubEvent(inner Event) *SubEvent {
	return &SubEvent{Inner: inner}
}

func (e *SubEvent) Name() string {
	return SubEventName
}

// Result exposes the result of the wrapped event, if it carries one.
func (e *SubEvent) Result() any {
	if r, ok := e.Inner.(interface{ Result() any }); ok {
		return r.Result()
	}
	return nil
}

func (e *SubEvent) String() string {
	return SubEventName + "(" + eventName(e.Inner) + ")"
}

// SendEventToSubmachine dispatches event on the submachine synchronously.
// It is meant to be called from an action of the outer machine, so the outer
// machine's serialization also covers the submachine.
func (m *Machine[S]) SendEventToSubmachine(ctx context.Context, event Event) error {
	if m.sub == nil {
		return ErrNoSubmachine
	}
	return m.sub.OnEvent(ctx, event)
}

// Submachine returns the nested machine, or nil.
func (m *Machine[S]) Submachine() Submachine {
	return m.sub
}

// Substate returns the reported state of the submachine, or nil when the
// machine has none.
func (m *Machine[S]) Substate() any {
	if m.sub == nil {
		return nil
	}
	return m.sub.Reported()
}

// SubstateOf returns the submachine state typed as T.
func SubstateOf[T comparable, S comparable](m *Machine[S]) (T, bool) {
	v, ok := m.Substate().(T)
	return v, ok
}

// Delegate returns an Action that forwards a SubEvent's inner event to the
// submachine. Errors from the submachine abort the outer dispatch.
func Delegate[S comparable]() Action[S] {
	return func(ctx context.Context, m *Machine[S], event Event) (Outcome, error) {
		sub, ok := event.(*SubEvent)
		if !ok {
			return Failed, ErrNotSubEvent
		}
		if err := m.SendEventToSubmachine(ctx, sub.Inner); err != nil {
			return Failed, err
		}
		return Succeeded, nil
	}
}
