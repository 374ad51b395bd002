// Package statemachine provides the transition engine of machinekit: a finite
// state machine whose states decide, per event kind, what work to do and
// where to go next.
//
// The package revolves around two interfaces, State and Event. An Event only
// names its kind; a State runs the event action, reports success or failure,
// and names the next state for either verdict. The engine handles:
//  1. Recording the in-flight event so readers can see a transit state
//  2. Routing the action verdict to the success or failure target
//  3. Rejecting targets that are not registered (UnknownStateError)
//  4. Reporting every dispatch to an injected Observer
//
// # Architecture
//
// Machine owns an immutable registry map[S]State[S] created at construction
// and a pointer to the current state. OnEvent runs one event at a time and
// rejects overlapping calls; serialization across goroutines is the job of
// the caller package, which owns a machine exclusively.
//
// TableState is the ready-made State: an explicit table from event name to
// Handler. A missing table entry is a MissingHandlerError, never a silent
// failure transition. Builder offers a fluent way to assemble tables:
//
//	const (
//	    Idle    = "idle"
//	    Running = "running"
//	    Stopped = "stopped"
//	)
//
//	m, err := statemachine.NewBuilder(Idle).
//	    Transition(Idle, "start", Running, nil).
//	    Transition(Running, "stop", Stopped, nil).
//	    Build(statemachine.WithName("engine"))
//
//	_ = m.OnEvent(ctx, statemachine.StringEvent("start"))
//
// # Transit states
//
// While an event is in flight, State reports TransitState of the current state
// instead of its identity. This lets observers tell "settled in idle" from
// "idle, but starting" when the two differ. Settled always returns the
// identity.
//
// # Sub-machines
//
// A machine created WithSubmachine owns one nested machine. Outer handlers
// registered for SubEventName use Delegate to forward the wrapped event;
// Substate exposes the nested machine's reported state.
//
// # Error Handling
//
//	if statemachine.IsMissingHandlerError(err) { /* protocol bug */ }
//	if statemachine.IsUnknownStateError(err)   { /* protocol bug */ }
//
// Errors returned by actions are passed through unchanged. A Failed outcome is
// not an error: it is the normal failure path.
package statemachine
