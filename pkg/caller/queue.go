package caller

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/machinekit/pkg/async"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// Submission modes, used in logs.
const (
	modeAsync    = "async"
	modeSync     = "sync"
	modeDeferred = "deferred"
)

// item is one queue entry: either an asynchronous event or a synchronous
// rendezvous, never both.
type item struct {
	event      statemachine.Event
	rendezvous *rendezvous
	resolve    async.Resolve[any] // optional, async only
	mode       string
}

func newItem(event statemachine.Event, rv *rendezvous) (item, error) {
	if (event == nil) == (rv == nil) {
		return item{}, ErrRendezvousMisuse
	}
	if rv != nil {
		return item{rendezvous: rv, mode: modeSync}, nil
	}
	return item{event: event, mode: modeAsync}, nil
}

const (
	rvPending int32 = iota
	rvClaimed
	rvWithdrawn
)

// rendezvous hands a synchronous submission to the actor and carries the
// outcome back to the waiting submitter.
type rendezvous struct {
	ctx   context.Context
	event statemachine.Event
	state atomic.Int32
	reply chan reply
}

type reply struct {
	result any
	err    error
}

func newRendezvous(ctx context.Context, event statemachine.Event) *rendezvous {
	return &rendezvous{
		ctx:   ctx,
		event: event,
		reply: make(chan reply, 1),
	}
}

// claim is called by the actor before running the event.
func (r *rendezvous) claim() bool {
	return r.state.CompareAndSwap(rvPending, rvClaimed)
}

// withdraw is called by the submitter (or by shutdown) to take back a
// submission the actor has not claimed yet.
func (r *rendezvous) withdraw() bool {
	return r.state.CompareAndSwap(rvPending, rvWithdrawn)
}

// fifo is an unbounded FIFO of items. Producers never block; the actor waits
// on the signal channel, which coalesces wakeups into a buffer of one.
type fifo struct {
	mu     sync.Mutex
	items  []item
	closed bool
	signal chan struct{}
}

func newFIFO() *fifo {
	return &fifo{
		items:  make([]item, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// push appends it and returns the new length. It returns false once the
// queue is closed.
func (q *fifo) push(it item) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return len(q.items), false
	}
	q.items = append(q.items, it)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return len(q.items), true
}

func (q *fifo) pop() (item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return item{}, false
	}
	it := q.items[0]
	// Clear the slot so the backing array does not pin the event.
	q.items[0] = item{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return it, true
}

func (q *fifo) wait() <-chan struct{} {
	return q.signal
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// close rejects further pushes and returns whatever was still queued.
func (q *fifo) close() []item {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	rest := q.items
	q.items = nil
	return rest
}
