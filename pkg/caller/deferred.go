package caller

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

const (
	deferredPending int32 = iota
	deferredFired
	deferredCanceled
)

// DeferredEvent is a handle to an event scheduled with DeferEvent. Firing and
// canceling race on a single atomic transition, so exactly one of them wins:
// a canceled event is never delivered and a fired one can no longer be
// canceled.
type DeferredEvent struct {
	id      uuid.UUID
	event   statemachine.Event
	timeout time.Duration
	state   atomic.Int32
	timer   *time.Timer
	done    chan struct{}

	fire    func(*DeferredEvent)
	release func(uuid.UUID)
}

func newDeferredEvent(event statemachine.Event, timeout time.Duration, fire func(*DeferredEvent), release func(uuid.UUID)) *DeferredEvent {
	return &DeferredEvent{
		id:      uuid.New(),
		event:   event,
		timeout: timeout,
		done:    make(chan struct{}),
		fire:    fire,
		release: release,
	}
}

func (d *DeferredEvent) start() {
	d.timer = time.AfterFunc(d.timeout, d.onTimer)
}

func (d *DeferredEvent) onTimer() {
	if !d.state.CompareAndSwap(deferredPending, deferredFired) {
		return
	}
	d.release(d.id)
	d.fire(d)
	close(d.done)
}

// Cancel prevents delivery. It returns false if the event already fired or
// was canceled before.
func (d *DeferredEvent) Cancel() bool {
	if !d.state.CompareAndSwap(deferredPending, deferredCanceled) {
		return false
	}
	d.timer.Stop()
	d.release(d.id)
	close(d.done)
	return true
}

// ID returns the handle identifier.
func (d *DeferredEvent) ID() uuid.UUID {
	return d.id
}

// Event returns the scheduled event.
func (d *DeferredEvent) Event() statemachine.Event {
	return d.event
}

// Timeout returns the delay the event was scheduled with.
func (d *DeferredEvent) Timeout() time.Duration {
	return d.timeout
}

// Fired reports whether the event was handed to the queue.
func (d *DeferredEvent) Fired() bool {
	return d.state.Load() == deferredFired
}

// Canceled reports whether Cancel won.
func (d *DeferredEvent) Canceled() bool {
	return d.state.Load() == deferredCanceled
}

// Done is closed once the event has been queued or canceled.
func (d *DeferredEvent) Done() <-chan struct{} {
	return d.done
}
