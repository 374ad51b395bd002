package caller

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/machinekit/pkg/async"
	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

type lifecycle int

const (
	idle lifecycle = iota
	running
	stopped
)

// dispatchKey marks contexts handed to actions, so a caller can detect a
// synchronous submission to itself from inside one of its own dispatches.
type dispatchKey struct{}

// Caller owns a state machine exclusively and serializes every event
// submitted to it through a single actor goroutine. Events are dispatched in
// submission order, one at a time, whichever submission mode was used.
type Caller[S comparable] struct {
	id      uuid.UUID
	name    string
	machine *statemachine.Machine[S]
	queue   *fifo
	logger  *slog.Logger
	cfg     Config
	onError ErrorHandler

	mu     sync.Mutex
	state  lifecycle
	cancel context.CancelFunc

	done         chan struct{}
	shutdownOnce sync.Once

	deferredMu sync.Mutex
	deferred   map[uuid.UUID]*DeferredEvent
}

// New wraps m in a Caller. The caller must be the only code touching m from
// now on.
func New[S comparable](m *statemachine.Machine[S], opts ...Option) (*Caller[S], error) {
	if m == nil {
		return nil, ErrNilMachine
	}

	o := &options{
		logger: slog.Default(),
		name:   m.Name(),
		cfg:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	id := uuid.New()
	return &Caller[S]{
		id:      id,
		name:    o.name,
		machine: m,
		queue:   newFIFO(),
		logger: o.logger.With(
			logger.Component("caller"),
			logger.Machine(o.name),
			logger.Caller(id),
		),
		cfg:      o.cfg,
		onError:  o.onError,
		done:     make(chan struct{}),
		deferred: make(map[uuid.UUID]*DeferredEvent),
	}, nil
}

// ID returns the caller identifier used in logs.
func (c *Caller[S]) ID() uuid.UUID {
	return c.id
}

// Name returns the caller name.
func (c *Caller[S]) Name() string {
	return c.name
}

// Start launches the actor goroutine. Events submitted before Start stay
// queued and are dispatched once it runs. A stopped caller cannot be
// restarted.
func (c *Caller[S]) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case running:
		c.mu.Unlock()
		return ErrAlreadyStarted
	case stopped:
		c.mu.Unlock()
		return ErrCallerStopped
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = running
	c.mu.Unlock()

	go c.run(loopCtx)

	c.logger.Info("caller started", logger.State(c.machine.State()))
	return nil
}

// Stop asks the actor to finish the event it is running and exit. Queued
// asynchronous events are dropped, pending synchronous submissions fail with
// ErrCallerStopped and deferred events are canceled. Stop returns
// ErrStopTimeout if the running dispatch outlives Config.StopTimeout.
func (c *Caller[S]) Stop() error {
	c.mu.Lock()
	switch c.state {
	case idle:
		c.state = stopped
		c.mu.Unlock()
		c.shutdown()
		return nil
	case running:
		c.state = stopped
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	c.logger.Info("caller stopping, waiting for the running dispatch")

	timer := time.NewTimer(c.cfg.StopTimeout)
	defer timer.Stop()

	select {
	case <-c.done:
		c.logger.Info("caller stopped", logger.State(c.machine.State()))
		return nil
	case <-timer.C:
		c.logger.Warn("caller stop timed out", logger.Duration(c.cfg.StopTimeout))
		return ErrStopTimeout
	}
}

// Run starts the caller and returns a function suitable for errgroup. The
// function blocks until ctx is canceled, then stops the caller.
func (c *Caller[S]) Run(ctx context.Context) func() error {
	return func() error {
		if err := c.Start(ctx); err != nil {
			return err
		}

		<-ctx.Done()

		return c.Stop()
	}
}

// Done is closed once the actor has exited and the queue has been drained.
func (c *Caller[S]) Done() <-chan struct{} {
	return c.done
}

// AsyncEvent queues event and returns immediately. Dispatch failures are
// logged and passed to the ErrorHandler; they never stop the caller.
func (c *Caller[S]) AsyncEvent(event statemachine.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	it, err := newItem(event, nil)
	if err != nil {
		return err
	}
	return c.enqueue(it)
}

// Submit queues event like AsyncEvent and returns a future resolved with the
// dispatch result.
func (c *Caller[S]) Submit(event statemachine.Event) (*async.Future[any], error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	it, err := newItem(event, nil)
	if err != nil {
		return nil, err
	}
	future, resolve := async.NewPromise[any]()
	it.resolve = resolve
	if err := c.enqueue(it); err != nil {
		return nil, err
	}
	return future, nil
}

// SyncEvent queues event and blocks until it has been dispatched, returning
// the value of the event's Result method if it has one.
//
// If ctx is done before the actor reaches the event, the submission is
// withdrawn and ctx.Err() is returned. Once the actor has claimed it, SyncEvent
// waits for the dispatch to finish; ctx is handed to the actions and they
// decide whether to honor it.
func (c *Caller[S]) SyncEvent(ctx context.Context, event statemachine.Event) (any, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	if id, ok := ctx.Value(dispatchKey{}).(uuid.UUID); ok && id == c.id {
		return nil, ErrReentrantSync
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rv := newRendezvous(ctx, event)
	it, err := newItem(nil, rv)
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(it); err != nil {
		return nil, err
	}

	select {
	case r := <-rv.reply:
		return r.result, r.err
	case <-ctx.Done():
		if rv.withdraw() {
			c.logger.DebugContext(ctx, "sync event withdrawn",
				logger.Event(event.Name()),
				logger.Error(ctx.Err()))
			return nil, ctx.Err()
		}
		r := <-rv.reply
		return r.result, r.err
	}
}

// DeferEvent schedules event to be queued asynchronously after timeout. The
// returned handle can cancel it until the moment it fires.
func (c *Caller[S]) DeferEvent(event statemachine.Event, timeout time.Duration) (*DeferredEvent, error) {
	if event == nil {
		return nil, ErrNilEvent
	}
	if timeout < 0 {
		return nil, ErrInvalidTimeout
	}
	if c.isStopped() {
		return nil, ErrCallerStopped
	}

	d := newDeferredEvent(event, timeout, c.fireDeferred, c.release)

	// Registered and armed under one lock so shutdown never sees an unarmed
	// handle.
	c.deferredMu.Lock()
	c.deferred[d.id] = d
	d.start()
	c.deferredMu.Unlock()

	c.logger.Debug("event deferred",
		logger.Event(event.Name()),
		slog.String("deferred_id", d.id.String()),
		logger.Duration(timeout))

	return d, nil
}

// State returns the externally visible machine state. It may be called from
// any goroutine, including while an event is being dispatched.
func (c *Caller[S]) State() S {
	return c.machine.State()
}

// Settled returns the machine state ignoring any in-flight event.
func (c *Caller[S]) Settled() S {
	return c.machine.Settled()
}

// Substate returns the reported state of the machine's submachine, or nil.
func (c *Caller[S]) Substate() any {
	return c.machine.Substate()
}

// Pending returns the number of queued events not yet claimed by the actor.
func (c *Caller[S]) Pending() int {
	return c.queue.len()
}

// PendingDeferred returns the number of deferred events not yet fired or
// canceled.
func (c *Caller[S]) PendingDeferred() int {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()
	return len(c.deferred)
}

func (c *Caller[S]) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stopped
}

func (c *Caller[S]) enqueue(it item) error {
	n, ok := c.queue.push(it)
	if !ok {
		return ErrCallerStopped
	}
	if c.cfg.QueueWarn > 0 && n == c.cfg.QueueWarn {
		c.logger.Warn("caller queue is growing", logger.QueueLen(n))
	}
	return nil
}

func (c *Caller[S]) fireDeferred(d *DeferredEvent) {
	it, _ := newItem(d.event, nil)
	it.mode = modeDeferred
	if err := c.enqueue(it); err != nil {
		c.logger.Debug("deferred event not delivered",
			logger.Event(d.event.Name()),
			slog.String("deferred_id", d.id.String()),
			logger.Error(err))
	}
}

func (c *Caller[S]) release(id uuid.UUID) {
	c.deferredMu.Lock()
	delete(c.deferred, id)
	c.deferredMu.Unlock()
}

// run is the actor loop.
func (c *Caller[S]) run(ctx context.Context) {
	defer c.shutdown()

	for {
		// Stop only takes effect between items.
		if ctx.Err() != nil {
			return
		}

		it, ok := c.queue.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-c.queue.wait():
			}
			continue
		}

		c.process(ctx, it)
	}
}

func (c *Caller[S]) process(ctx context.Context, it item) {
	switch {
	case it.rendezvous != nil && it.event == nil:
		rv := it.rendezvous
		if !rv.claim() {
			return
		}
		result, err := c.dispatch(rv.ctx, rv.event, it.mode)
		rv.reply <- reply{result: result, err: err}

	case it.event != nil && it.rendezvous == nil:
		// Stop must not abort the running action.
		result, err := c.dispatch(context.WithoutCancel(ctx), it.event, it.mode)
		if it.resolve != nil {
			it.resolve(result, err)
		}
		if err != nil {
			c.logger.ErrorContext(ctx, "async event failed",
				logger.Event(it.event.Name()),
				logger.Mode(it.mode),
				logger.State(c.machine.State()),
				logger.Error(err))
			if c.onError != nil {
				c.onError(ctx, it.event, err)
			}
		}

	default:
		c.logger.ErrorContext(ctx, "dropping malformed queue item", logger.Error(ErrRendezvousMisuse))
	}
}

// dispatch runs one event on the machine, converting panics into
// *PanicError.
func (c *Caller[S]) dispatch(ctx context.Context, event statemachine.Event, mode string) (result any, err error) {
	ctx = context.WithValue(ctx, dispatchKey{}, c.id)
	ctx = logger.WithDispatchID(ctx, uuid.NewString())

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = &PanicError{Value: r, Stack: stack}
			result = nil
			c.logger.ErrorContext(ctx, "recovered panic in dispatch",
				logger.Event(event.Name()),
				logger.Mode(mode),
				slog.Any("panic", r),
				slog.String("stack", string(stack)))
		}
	}()

	c.logger.DebugContext(ctx, "dispatching event",
		logger.Event(event.Name()),
		logger.Mode(mode),
		logger.State(c.machine.State()))

	if err = c.machine.OnEvent(ctx, event); err != nil {
		return nil, err
	}
	return resultOf(event), nil
}

// shutdown closes the queue, fails what is left in it and cancels deferred
// events. It runs once, on the actor goroutine or from Stop on an idle caller.
func (c *Caller[S]) shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		c.state = stopped
		c.mu.Unlock()

		rest := c.queue.close()

		dropped := 0
		for _, it := range rest {
			if it.rendezvous != nil {
				if it.rendezvous.withdraw() {
					it.rendezvous.reply <- reply{err: ErrCallerStopped}
				}
				continue
			}
			if it.resolve != nil {
				it.resolve(nil, ErrCallerStopped)
			}
			dropped++
		}

		canceled := c.cancelDeferred()

		if dropped > 0 || canceled > 0 {
			c.logger.Warn("caller shut down with pending work",
				slog.Int("dropped_events", dropped),
				slog.Int("canceled_deferred", canceled))
		}

		close(c.done)
	})
}

func (c *Caller[S]) cancelDeferred() int {
	c.deferredMu.Lock()
	pending := make([]*DeferredEvent, 0, len(c.deferred))
	for _, d := range c.deferred {
		pending = append(pending, d)
	}
	c.deferredMu.Unlock()

	n := 0
	for _, d := range pending {
		if d.Cancel() {
			n++
		}
	}
	return n
}

func resultOf(event statemachine.Event) any {
	if r, ok := event.(interface{ Result() any }); ok {
		return r.Result()
	}
	return nil
}
