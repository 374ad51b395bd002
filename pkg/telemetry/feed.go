package telemetry

import (
	"context"
	"sync"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// Feed is an in-process Observer that fans finished dispatches out to
// subscribers. Records are dropped for subscribers whose buffer is full
// rather than blocking the dispatch. All methods are safe for concurrent use.
type Feed struct {
	subscribers map[*Subscription]struct{}
	bufferSize  int
	closed      bool
	mu          sync.RWMutex
	cleanupWg   sync.WaitGroup
}

// NewFeed creates a feed whose subscribers buffer up to bufferSize records.
// The minimum buffer size is 1.
func NewFeed(bufferSize int) *Feed {
	return &Feed{
		subscribers: make(map[*Subscription]struct{}),
		bufferSize:  max(bufferSize, 1),
	}
}

// Subscribe registers a subscriber. It is removed when ctx is canceled. A
// closed feed returns an already closed subscription.
func (f *Feed) Subscribe(ctx context.Context) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	sub := newSubscription(f.bufferSize)
	if f.closed {
		_ = sub.Close()
		return sub
	}
	f.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		f.cleanupWg.Add(1)
		go func() {
			defer f.cleanupWg.Done()
			select {
			case <-ctx.Done():
				f.unsubscribe(sub)
			case <-sub.closing:
			}
		}()
	}

	return sub
}

func (f *Feed) OnEventStarted(ctx context.Context, machine string, state any, event statemachine.Event) {
}

func (f *Feed) OnEventFinished(ctx context.Context, rec statemachine.Record) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return
	}
	for sub := range f.subscribers {
		sub.send(rec)
	}
}

// Close closes every subscription. It is safe to call Close multiple times.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	for sub := range f.subscribers {
		_ = sub.Close()
	}
	clear(f.subscribers)
	f.mu.Unlock()

	f.cleanupWg.Wait()
	return nil
}

func (f *Feed) unsubscribe(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.subscribers, sub)
	_ = sub.Close()
}

// Subscription receives records from a Feed.
type Subscription struct {
	ch      chan statemachine.Record
	closing chan struct{}
	dropped int
	closed  bool
	mu      sync.Mutex
}

func newSubscription(bufferSize int) *Subscription {
	return &Subscription{
		ch:      make(chan statemachine.Record, bufferSize),
		closing: make(chan struct{}),
	}
}

// C returns the receive channel. It is closed when the subscription closes.
func (s *Subscription) C() <-chan statemachine.Record {
	return s.ch
}

// Dropped returns the number of records lost to a full buffer.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close is idempotent.
func (s *Subscription) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.ch)
		close(s.closing)
		s.closed = true
	}
	return nil
}

func (s *Subscription) send(rec statemachine.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- rec:
	default:
		s.dropped++
	}
}
