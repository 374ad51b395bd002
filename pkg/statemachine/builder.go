package statemachine

import (
	"errors"
	"fmt"
)

// Builder provides a fluent API for building handler tables and the machine
// that owns them.
//
//	m, err := statemachine.NewBuilder(Idle).
//		From(Idle).When("start").Transit(Starting).Do(start).To(Running).Else(Idle).Add().
//		From(Running).When("stop").To(Stopped).Add().
//		State(Stopped).
//		Build()
type Builder[S comparable] struct {
	initial  S
	order    []S
	handlers map[S]map[string]Handler[S]
	errs     []error

	hasFrom      bool
	currentFrom  S
	currentEvent string
	current      Handler[S]
}

// NewBuilder creates a new state machine builder.
func NewBuilder[S comparable](initial S) *Builder[S] {
	b := &Builder[S]{
		initial:  initial,
		handlers: make(map[S]map[string]Handler[S]),
	}
	b.State(initial)
	return b
}

// State registers states that may have no handlers of their own, such as
// terminal states.
func (b *Builder[S]) State(ids ...S) *Builder[S] {
	for _, id := range ids {
		if _, ok := b.handlers[id]; ok {
			continue
		}
		b.handlers[id] = make(map[string]Handler[S])
		b.order = append(b.order, id)
	}
	return b
}

// From sets the state the next handler belongs to.
func (b *Builder[S]) From(state S) *Builder[S] {
	b.reset()
	b.State(state)
	b.hasFrom = true
	b.currentFrom = state
	return b
}

// When sets the event kind the handler reacts to.
func (b *Builder[S]) When(eventName string) *Builder[S] {
	b.currentEvent = eventName
	return b
}

// Do sets the action run for the event.
func (b *Builder[S]) Do(action Action[S]) *Builder[S] {
	b.current.Action = action
	return b
}

// To sets the state entered when the action succeeds.
func (b *Builder[S]) To(state S) *Builder[S] {
	b.State(state)
	b.current.Succeeded = To(state)
	return b
}

// ToFunc sets a computed success target. Computed targets are not checked
// against the registry until dispatch.
func (b *Builder[S]) ToFunc(target Target[S]) *Builder[S] {
	b.current.Succeeded = target
	return b
}

// Else sets the state entered when the action fails. Without Else a failed
// action leaves the machine where it was.
func (b *Builder[S]) Else(state S) *Builder[S] {
	b.State(state)
	b.current.Failed = To(state)
	return b
}

// Transit sets the state reported while the event is in flight.
func (b *Builder[S]) Transit(state S) *Builder[S] {
	b.current.Transit = To(state)
	return b
}

// Add finalizes the current handler. Problems are collected and reported by
// Build.
func (b *Builder[S]) Add() *Builder[S] {
	switch {
	case !b.hasFrom:
		b.errs = append(b.errs, errors.New("statemachine: builder handler has no From state"))
	case b.currentEvent == "":
		b.errs = append(b.errs, fmt.Errorf("statemachine: builder handler in state %v has no event", b.currentFrom))
	case b.current.Succeeded == nil:
		b.errs = append(b.errs, NewMissingHandlerError(fmt.Sprint(b.currentFrom), b.currentEvent, "succeeded"))
	default:
		h := b.current
		if h.Failed == nil {
			h.Failed = To(b.currentFrom)
		}
		table := b.handlers[b.currentFrom]
		if _, dup := table[b.currentEvent]; dup {
			b.errs = append(b.errs, fmt.Errorf("statemachine: duplicate handler for event '%s' in state %v", b.currentEvent, b.currentFrom))
			break
		}
		table[b.currentEvent] = h
	}
	b.reset()
	return b
}

// Transition is a shorthand to add a handler in one call. action may be nil.
func (b *Builder[S]) Transition(from S, eventName string, to S, action Action[S]) *Builder[S] {
	return b.From(from).When(eventName).Do(action).To(to).Add()
}

// States returns the table states built so far, in registration order.
func (b *Builder[S]) States() ([]State[S], error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	states := make([]State[S], 0, len(b.order))
	for _, id := range b.order {
		st, err := NewTableState(id, b.handlers[id])
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}

// Build returns the constructed state machine.
func (b *Builder[S]) Build(opts ...Option) (*Machine[S], error) {
	states, err := b.States()
	if err != nil {
		return nil, err
	}
	return New(b.initial, states, opts...)
}

// reset clears the current handler configuration.
func (b *Builder[S]) reset() {
	var zero S
	b.hasFrom = false
	b.currentFrom = zero
	b.currentEvent = ""
	b.current = Handler[S]{}
}
