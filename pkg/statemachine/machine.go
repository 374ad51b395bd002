package statemachine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Machine is the transition engine. It holds an immutable registry of states
// and the current state, and runs one event at a time through OnEvent.
//
// Machine does not queue events: overlapping OnEvent calls are rejected with
// ErrConcurrentDispatch. Use caller.Caller to drive a machine from several
// goroutines.
type Machine[S comparable] struct {
	name     string
	initial  State[S]
	states   map[S]State[S]
	order    []S
	observer Observer
	sub      Submachine

	// mu guards current and inFlight; State may be read from any goroutine
	// while an event is being dispatched.
	mu       sync.RWMutex
	current  State[S]
	inFlight Event

	busy atomic.Bool
}

// New creates a machine from its complete set of states. The initial identity
// must belong to one of them. The registry cannot change afterwards.
func New[S comparable](initial S, states []State[S], opts ...Option) (*Machine[S], error) {
	cfg := &config{
		name:     DefaultName,
		observer: NoopObserver{},
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	m := &Machine[S]{
		name:     cfg.name,
		states:   make(map[S]State[S], len(states)),
		order:    make([]S, 0, len(states)),
		observer: cfg.observer,
		sub:      cfg.sub,
	}

	for _, st := range states {
		if st == nil {
			return nil, ErrNilState
		}
		id := st.ID()
		if _, ok := m.states[id]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateState, id)
		}
		m.states[id] = st
		m.order = append(m.order, id)
	}

	initialState, ok := m.states[initial]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrInitialNotRegistered, initial)
	}
	m.initial = initialState
	m.current = initialState

	return m, nil
}

// MustNew is like New but panics on error, following the fail-fast pattern
// used for protocol definitions that are fixed at compile time.
func MustNew[S comparable](initial S, states []State[S], opts ...Option) *Machine[S] {
	m, err := New(initial, states, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

// Name returns the machine name used in records and logs.
func (m *Machine[S]) Name() string {
	return m.name
}

// OnEvent runs event against the current state and performs the resulting
// transition.
//
// Errors returned by the state handlers abort the dispatch without changing
// state and are returned unchanged. A handler naming an unregistered state
// yields *UnknownStateError and the machine stays where it was.
func (m *Machine[S]) OnEvent(ctx context.Context, event Event) error {
	if event == nil {
		return ErrNilEvent
	}
	if !m.busy.CompareAndSwap(false, true) {
		return ErrConcurrentDispatch
	}

	m.mu.Lock()
	m.inFlight = event
	from := m.current
	m.mu.Unlock()

	var (
		start   time.Time
		started bool
	)
	defer func() {
		r := recover()

		m.mu.Lock()
		m.inFlight = nil
		to := m.current.ID()
		m.mu.Unlock()

		if r != nil && started {
			// Observers always see a finished record for a started event.
			m.observer.OnEventFinished(ctx, Record{
				Machine:  m.name,
				Event:    eventName(event),
				From:     from.ID(),
				To:       to,
				Duration: time.Since(start),
				Err:      fmt.Errorf("%w: %v", ErrDispatchPanicked, r),
			})
		}
		m.busy.Store(false)

		if r != nil {
			panic(r)
		}
	}()

	m.observer.OnEventStarted(ctx, m.name, from.ID(), event)
	start = time.Now()
	started = true

	target, outcome, err := m.resolve(ctx, from, event)

	m.mu.Lock()
	if err == nil && target != from.ID() {
		m.current = m.states[target]
	}
	m.inFlight = nil
	to := m.current.ID()
	m.mu.Unlock()

	started = false
	m.observer.OnEventFinished(ctx, Record{
		Machine:  m.name,
		Event:    eventName(event),
		From:     from.ID(),
		To:       to,
		Outcome:  outcome,
		Duration: time.Since(start),
		Err:      err,
	})

	return err
}

// resolve runs the action and asks the state for the next identity.
func (m *Machine[S]) resolve(ctx context.Context, st State[S], event Event) (S, Outcome, error) {
	id := st.ID()

	outcome, err := st.OnEvent(ctx, m, event)
	if err != nil {
		return id, outcome, err
	}

	var target S
	if outcome == Failed {
		target, err = st.OnFailure(event)
	} else {
		outcome = Succeeded
		target, err = st.OnSuccess(event)
	}
	if err != nil {
		return id, outcome, err
	}

	if _, ok := m.states[target]; !ok {
		return id, outcome, NewUnknownStateError(fmt.Sprint(id), event.Name(), fmt.Sprint(target))
	}

	return target, outcome, nil
}

// State returns the externally visible state: the transit state of the
// current state while an event is in flight, the settled state otherwise.
func (m *Machine[S]) State() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.inFlight != nil {
		return m.current.TransitState(m.inFlight)
	}
	return m.current.ID()
}

// Settled returns the current state identity, ignoring any in-flight event.
func (m *Machine[S]) Settled() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.ID()
}

// Reported returns State as an untyped value. It lets a machine serve as
// another machine's Submachine.
func (m *Machine[S]) Reported() any {
	return m.State()
}

// InFlight returns the event being dispatched, if any.
func (m *Machine[S]) InFlight() (Event, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inFlight, m.inFlight != nil
}

// States returns the registered identities in registration order.
func (m *Machine[S]) States() []S {
	out := make([]S, len(m.order))
	copy(out, m.order)
	return out
}

// Lookup returns the registered state for id.
func (m *Machine[S]) Lookup(id S) (State[S], bool) {
	st, ok := m.states[id]
	return st, ok
}

// CanHandle reports whether the current state declares a handler for the
// event kind. States that do not implement HandlerLookup are assumed to
// handle everything.
func (m *Machine[S]) CanHandle(event Event) bool {
	if event == nil {
		return false
	}
	m.mu.RLock()
	st := m.current
	m.mu.RUnlock()

	if hl, ok := st.(HandlerLookup); ok {
		return hl.Handles(event.Name())
	}
	return true
}

// Reset puts the machine back into its initial state. It fails with
// ErrConcurrentDispatch while an event is in flight.
func (m *Machine[S]) Reset() error {
	if !m.busy.CompareAndSwap(false, true) {
		return ErrConcurrentDispatch
	}
	defer m.busy.Store(false)

	m.mu.Lock()
	m.current = m.initial
	m.mu.Unlock()
	return nil
}

func (m *Machine[S]) String() string {
	return m.name
}
