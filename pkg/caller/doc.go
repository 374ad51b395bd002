// Package caller serializes access to a state machine from many goroutines.
//
// A Caller owns a *statemachine.Machine exclusively and runs a single actor
// goroutine that takes submissions from an unbounded FIFO queue and dispatches
// them one at a time, in submission order. Three submission modes share the
// queue:
//
//   - AsyncEvent (and Submit, which adds a future) returns immediately.
//     Failures are logged and passed to the optional ErrorHandler.
//   - SyncEvent blocks until the event has been dispatched and returns its
//     result. The submitter's context is handed to the actions.
//   - DeferEvent queues the event asynchronously after a timeout and returns a
//     cancelable handle.
//
// # Usage
//
//	c, err := caller.New(machine, caller.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(c.Run(ctx))
//
//	if _, err := c.SyncEvent(ctx, statemachine.StringEvent("start")); err != nil {
//	    return err
//	}
//
// # Shutdown
//
// Stop lets the running dispatch finish, then drops queued asynchronous
// events, fails pending synchronous submissions with ErrCallerStopped and
// cancels deferred events. A stopped caller cannot be started again.
//
// # Configuration
//
// Config is loaded from the environment with LoadConfig:
//
//	MACHINE_CALLER_STOP_TIMEOUT  how long Stop waits for the running dispatch (default 5s)
//	MACHINE_CALLER_QUEUE_WARN    queue length that triggers a warning (default 1024)
package caller
