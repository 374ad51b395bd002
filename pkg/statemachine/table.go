package statemachine

import (
	"context"
	"fmt"
)

// Action performs the work of an event in one state. Returning an error aborts
// the dispatch; returning Failed routes the machine through the failure target.
type Action[S comparable] func(ctx context.Context, m *Machine[S], event Event) (Outcome, error)

// Target picks the next state for an event.
type Target[S comparable] func(event Event) S

// To returns a Target that always yields s.
func To[S comparable](s S) Target[S] {
	return func(Event) S { return s }
}

// Handler is the behavior of one event kind in one state.
type Handler[S comparable] struct {
	Action    Action[S] // nil means no work, always succeeds
	Succeeded Target[S] // required
	Failed    Target[S] // required
	Transit   Target[S] // nil reports the owning state while in flight
}

// TableState implements State with an explicit table of handlers keyed by
// event name. Event kinds absent from the table fail with
// *MissingHandlerError.
type TableState[S comparable] struct {
	id       S
	handlers map[string]Handler[S]
}

// NewTableState validates the handlers and returns a state. Every handler must
// name both its success and failure targets.
func NewTableState[S comparable](id S, handlers map[string]Handler[S]) (*TableState[S], error) {
	st := &TableState[S]{
		id:       id,
		handlers: make(map[string]Handler[S], len(handlers)),
	}
	for name, h := range handlers {
		if h.Succeeded == nil {
			return nil, NewMissingHandlerError(fmt.Sprint(id), name, "succeeded")
		}
		if h.Failed == nil {
			return nil, NewMissingHandlerError(fmt.Sprint(id), name, "failed")
		}
		st.handlers[name] = h
	}
	return st, nil
}

// MustTableState is like NewTableState but panics on an incomplete handler.
func MustTableState[S comparable](id S, handlers map[string]Handler[S]) *TableState[S] {
	st, err := NewTableState(id, handlers)
	if err != nil {
		panic(err)
	}
	return st
}

func (s *TableState[S]) ID() S {
	return s.id
}

func (s *TableState[S]) Handles(eventName string) bool {
	_, ok := s.handlers[eventName]
	return ok
}

func (s *TableState[S]) OnEvent(ctx context.Context, m *Machine[S], event Event) (Outcome, error) {
	h, err := s.handler(event, "action")
	if err != nil {
		return Failed, err
	}
	if h.Action == nil {
		return Succeeded, nil
	}
	return h.Action(ctx, m, event)
}

func (s *TableState[S]) OnSuccess(event Event) (S, error) {
	h, err := s.handler(event, "succeeded")
	if err != nil {
		return s.id, err
	}
	return h.Succeeded(event), nil
}

func (s *TableState[S]) OnFailure(event Event) (S, error) {
	h, err := s.handler(event, "failed")
	if err != nil {
		return s.id, err
	}
	return h.Failed(event), nil
}

func (s *TableState[S]) TransitState(event Event) S {
	h, ok := s.handlers[event.Name()]
	if !ok || h.Transit == nil {
		return s.id
	}
	return h.Transit(event)
}

func (s *TableState[S]) handler(event Event, op string) (Handler[S], error) {
	h, ok := s.handlers[event.Name()]
	if !ok {
		return Handler[S]{}, NewMissingHandlerError(fmt.Sprint(s.id), event.Name(), op)
	}
	return h, nil
}
