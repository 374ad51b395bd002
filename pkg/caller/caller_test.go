package caller_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/machinekit/pkg/caller"
	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

const (
	on   = "on"
	busy = "busy"
)

// tagged is an event that carries a tag, so tests can tell apart several
// events of the same kind.
type tagged struct {
	statemachine.ResultHolder
	name string
	tag  int
}

func (e *tagged) Name() string { return e.name }

func ev(name string, tag int) *tagged {
	return &tagged{name: name, tag: tag}
}

// recorder keeps the tags of dispatched events in order.
type recorder struct {
	mu   sync.Mutex
	tags []int

	running    atomic.Int32
	maxRunning atomic.Int32
}

func (r *recorder) action(ctx context.Context, _ *statemachine.Machine[string], e statemachine.Event) (statemachine.Outcome, error) {
	n := r.running.Add(1)
	defer r.running.Add(-1)
	for {
		prev := r.maxRunning.Load()
		if n <= prev || r.maxRunning.CompareAndSwap(prev, n) {
			break
		}
	}

	t, ok := e.(*tagged)
	if !ok {
		return statemachine.Succeeded, nil
	}
	r.mu.Lock()
	r.tags = append(r.tags, t.tag)
	r.mu.Unlock()
	t.SetResult(t.tag * 10)
	return statemachine.Succeeded, nil
}

func (r *recorder) seen() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.tags))
	copy(out, r.tags)
	return out
}

type fixture struct {
	caller  *caller.Caller[string]
	rec     *recorder
	started chan struct{}
	release chan struct{}
}

// newFixture builds a caller over a machine with a recording "rec" event, a
// failing "fail" event, a panicking "panic" event and a "block" event that
// waits for release.
func newFixture(t *testing.T, opts ...caller.Option) *fixture {
	t.Helper()

	f := &fixture{
		rec:     &recorder{},
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}

	block := func(ctx context.Context, _ *statemachine.Machine[string], _ statemachine.Event) (statemachine.Outcome, error) {
		f.started <- struct{}{}
		<-f.release
		return statemachine.Succeeded, nil
	}
	fail := func(context.Context, *statemachine.Machine[string], statemachine.Event) (statemachine.Outcome, error) {
		return statemachine.Failed, errors.New("action failed")
	}
	boom := func(context.Context, *statemachine.Machine[string], statemachine.Event) (statemachine.Outcome, error) {
		panic("boom")
	}

	m, err := statemachine.NewBuilder(on).
		Transition(on, "rec", on, f.rec.action).
		Transition(on, "fail", on, fail).
		Transition(on, "panic", on, boom).
		From(on).When("block").Transit(busy).Do(block).To(on).Add().
		Build(statemachine.WithName("fixture"))
	require.NoError(t, err)

	opts = append([]caller.Option{caller.WithLogger(logger.Discard())}, opts...)
	c, err := caller.New(m, opts...)
	require.NoError(t, err)
	f.caller = c

	t.Cleanup(func() {
		select {
		case <-f.release:
		default:
			close(f.release)
		}
		_ = c.Stop()
	})

	return f
}

func (f *fixture) unblock() {
	close(f.release)
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := caller.New[string](nil)
	assert.ErrorIs(t, err, caller.ErrNilMachine)

	f := newFixture(t, caller.WithName("named"))
	assert.Equal(t, "named", f.caller.Name())
	assert.NotEmpty(t, f.caller.ID().String())
	assert.Equal(t, on, f.caller.State())
	assert.Nil(t, f.caller.Substate())
}

func TestCaller_FIFO(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	require.NoError(t, f.caller.AsyncEvent(ev("rec", 1)))
	require.NoError(t, f.caller.AsyncEvent(ev("rec", 2)))
	res, err := f.caller.SyncEvent(ctx, ev("rec", 3))
	require.NoError(t, err)

	assert.Equal(t, 30, res)
	assert.Equal(t, []int{1, 2, 3}, f.rec.seen())
}

func TestCaller_QueuesBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.caller.AsyncEvent(ev("rec", 1)))
	require.NoError(t, f.caller.AsyncEvent(ev("rec", 2)))
	assert.Equal(t, 2, f.caller.Pending())

	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))
	assert.ErrorIs(t, f.caller.Start(ctx), caller.ErrAlreadyStarted)

	_, err := f.caller.SyncEvent(ctx, ev("rec", 3))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, f.rec.seen())
	assert.Equal(t, 0, f.caller.Pending())
}

func TestCaller_Exclusive(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perProducer {
				tag := p*perProducer + i
				if i%2 == 0 {
					assert.NoError(t, f.caller.AsyncEvent(ev("rec", tag)))
					continue
				}
				_, err := f.caller.SyncEvent(ctx, ev("rec", tag))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	_, err := f.caller.SyncEvent(ctx, ev("rec", -1))
	require.NoError(t, err)

	assert.Len(t, f.rec.seen(), producers*perProducer+1)
	assert.Equal(t, int32(1), f.rec.maxRunning.Load())
}

func TestCaller_FIFOAcrossModesAndGoroutines(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	// Hold the actor so the three submissions queue up behind it.
	require.NoError(t, f.caller.AsyncEvent(ev("block", 0)))
	<-f.started

	go func() { assert.NoError(t, f.caller.AsyncEvent(ev("rec", 1))) }()
	require.Eventually(t, func() bool { return f.caller.Pending() == 1 }, time.Second, time.Millisecond)

	syncDone := make(chan error, 1)
	go func() {
		_, err := f.caller.SyncEvent(ctx, ev("rec", 2))
		syncDone <- err
	}()
	require.Eventually(t, func() bool { return f.caller.Pending() == 2 }, time.Second, time.Millisecond)

	go func() { assert.NoError(t, f.caller.AsyncEvent(ev("rec", 3))) }()
	require.Eventually(t, func() bool { return f.caller.Pending() == 3 }, time.Second, time.Millisecond)

	f.unblock()
	require.NoError(t, <-syncDone)
	require.Eventually(t, func() bool { return len(f.rec.seen()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, f.rec.seen())
}

func TestCaller_StartStopFromTwoGoroutines(t *testing.T) {
	t.Parallel()

	m, err := statemachine.NewBuilder("idle").
		Transition("idle", "start", "running", nil).
		Transition("running", "stop", "stopped", nil).
		Build(statemachine.WithName("engine"))
	require.NoError(t, err)
	c, err := caller.New(m, caller.WithLogger(logger.Discard()))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Stop() })

	started := make(chan error, 1)
	stopped := make(chan error, 1)
	go func() {
		_, err := c.SyncEvent(ctx, statemachine.StringEvent("start"))
		started <- err
	}()
	go func() {
		if err := <-started; err != nil {
			stopped <- err
			return
		}
		_, err := c.SyncEvent(ctx, statemachine.StringEvent("stop"))
		stopped <- err
	}()

	require.NoError(t, <-stopped)
	assert.Equal(t, "stopped", c.State())
}

func TestCaller_PanicFinishesObservedDispatch(t *testing.T) {
	t.Parallel()

	metrics := &statemachine.Metrics{}
	m, err := statemachine.NewBuilder("on").
		Transition("on", "panic", "on", func(context.Context, *statemachine.Machine[string], statemachine.Event) (statemachine.Outcome, error) {
			panic("boom")
		}).
		Transition("on", "ok", "on", nil).
		Build(statemachine.WithObserver(metrics))
	require.NoError(t, err)
	c, err := caller.New(m, caller.WithLogger(logger.Discard()))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	t.Cleanup(func() { _ = c.Stop() })

	_, err = c.SyncEvent(ctx, statemachine.StringEvent("panic"))
	assert.True(t, caller.IsPanicError(err))
	_, err = c.SyncEvent(ctx, statemachine.StringEvent("ok"))
	require.NoError(t, err)

	snap := metrics.Snapshot()
	assert.Equal(t, int64(2), snap.Started)
	assert.Equal(t, int64(1), snap.Succeeded)
	assert.Equal(t, int64(1), snap.Errored)
	assert.Equal(t, int64(0), snap.InFlight)
}

func TestCaller_PerProducerOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	var wg sync.WaitGroup
	for p := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				assert.NoError(t, f.caller.AsyncEvent(ev("rec", p*1000+i)))
			}
		}()
	}
	wg.Wait()

	_, err := f.caller.SyncEvent(ctx, ev("rec", -1))
	require.NoError(t, err)

	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for _, tag := range f.rec.seen() {
		if tag < 0 {
			continue
		}
		p, i := tag/1000, tag%1000
		assert.Greater(t, i, last[p], "producer %d out of order", p)
		last[p] = i
	}
}

func TestCaller_SyncErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	_, err := f.caller.SyncEvent(ctx, ev("fail", 0))
	assert.EqualError(t, err, "action failed")

	_, err = f.caller.SyncEvent(ctx, ev("missing", 0))
	assert.True(t, statemachine.IsMissingHandlerError(err))

	_, err = f.caller.SyncEvent(ctx, ev("panic", 0))
	assert.True(t, caller.IsPanicError(err))

	_, err = f.caller.SyncEvent(ctx, nil)
	assert.ErrorIs(t, err, caller.ErrNilEvent)

	assert.ErrorIs(t, f.caller.AsyncEvent(nil), caller.ErrNilEvent)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = f.caller.SyncEvent(canceled, ev("rec", 1))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, on, f.caller.State())
}

func TestCaller_AsyncFailuresDoNotStopTheActor(t *testing.T) {
	t.Parallel()

	failures := make(chan error, 2)
	f := newFixture(t, caller.WithErrorHandler(func(_ context.Context, _ statemachine.Event, err error) {
		failures <- err
	}))
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	require.NoError(t, f.caller.AsyncEvent(ev("panic", 0)))
	require.NoError(t, f.caller.AsyncEvent(ev("fail", 0)))

	res, err := f.caller.SyncEvent(ctx, ev("rec", 7))
	require.NoError(t, err)
	assert.Equal(t, 70, res)

	var pe *caller.PanicError
	require.ErrorAs(t, <-failures, &pe)
	assert.Equal(t, "boom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
	assert.EqualError(t, <-failures, "action failed")
}

func TestCaller_Submit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.caller.Start(context.Background()))

	ok, err := f.caller.Submit(ev("rec", 4))
	require.NoError(t, err)
	failed, err := f.caller.Submit(ev("fail", 0))
	require.NoError(t, err)

	res, err := ok.AwaitWithTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 40, res)

	_, err = failed.AwaitWithTimeout(time.Second)
	assert.EqualError(t, err, "action failed")
}

func TestCaller_TransitStateVisible(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	require.NoError(t, f.caller.AsyncEvent(ev("block", 0)))
	<-f.started

	assert.Equal(t, busy, f.caller.State())
	assert.Equal(t, on, f.caller.Settled())

	f.unblock()
	_, err := f.caller.SyncEvent(ctx, ev("rec", 1))
	require.NoError(t, err)
	assert.Equal(t, on, f.caller.State())
}

func TestCaller_SyncWithdrawnOnContext(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.caller.Start(ctx))

	require.NoError(t, f.caller.AsyncEvent(ev("block", 0)))
	<-f.started

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err := f.caller.SyncEvent(short, ev("rec", 1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	f.unblock()
	_, err = f.caller.SyncEvent(ctx, ev("rec", 2))
	require.NoError(t, err)

	assert.Equal(t, []int{2}, f.rec.seen())
}

func TestCaller_ReentrantSync(t *testing.T) {
	t.Parallel()

	var (
		c        *caller.Caller[string]
		innerErr error
	)
	m, err := statemachine.NewBuilder(on).
		Transition(on, "outer", on, func(ctx context.Context, _ *statemachine.Machine[string], _ statemachine.Event) (statemachine.Outcome, error) {
			_, innerErr = c.SyncEvent(ctx, statemachine.StringEvent("outer"))
			return statemachine.Succeeded, nil
		}).
		Build()
	require.NoError(t, err)

	c, err = caller.New(m, caller.WithLogger(logger.Discard()))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer func() { _ = c.Stop() }()

	_, err = c.SyncEvent(context.Background(), statemachine.StringEvent("outer"))
	require.NoError(t, err)
	assert.ErrorIs(t, innerErr, caller.ErrReentrantSync)
}

func TestCaller_Stop(t *testing.T) {
	t.Parallel()

	t.Run("fails pending work", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, caller.WithConfig(caller.Config{StopTimeout: 20 * time.Millisecond}))
		ctx := context.Background()
		require.NoError(t, f.caller.Start(ctx))

		require.NoError(t, f.caller.AsyncEvent(ev("block", 0)))
		<-f.started

		syncErr := make(chan error, 1)
		go func() {
			_, err := f.caller.SyncEvent(ctx, ev("rec", 1))
			syncErr <- err
		}()
		require.Eventually(t, func() bool { return f.caller.Pending() == 1 }, time.Second, time.Millisecond)

		future, err := f.caller.Submit(ev("rec", 2))
		require.NoError(t, err)
		deferred, err := f.caller.DeferEvent(ev("rec", 3), time.Hour)
		require.NoError(t, err)

		assert.ErrorIs(t, f.caller.Stop(), caller.ErrStopTimeout)

		f.unblock()
		<-f.caller.Done()

		assert.ErrorIs(t, <-syncErr, caller.ErrCallerStopped)
		_, err = future.AwaitWithTimeout(time.Second)
		assert.ErrorIs(t, err, caller.ErrCallerStopped)
		assert.True(t, deferred.Canceled())

		assert.Empty(t, f.rec.seen())
		assert.ErrorIs(t, f.caller.AsyncEvent(ev("rec", 4)), caller.ErrCallerStopped)
		_, err = f.caller.SyncEvent(ctx, ev("rec", 5))
		assert.ErrorIs(t, err, caller.ErrCallerStopped)
		_, err = f.caller.DeferEvent(ev("rec", 6), time.Millisecond)
		assert.ErrorIs(t, err, caller.ErrCallerStopped)
		assert.ErrorIs(t, f.caller.Start(ctx), caller.ErrCallerStopped)
		assert.NoError(t, f.caller.Stop())
	})

	t.Run("before start", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		future, err := f.caller.Submit(ev("rec", 1))
		require.NoError(t, err)

		require.NoError(t, f.caller.Stop())
		<-f.caller.Done()

		_, err = future.AwaitWithTimeout(time.Second)
		assert.ErrorIs(t, err, caller.ErrCallerStopped)
	})

	t.Run("parent context canceled", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, f.caller.Start(ctx))

		cancel()
		select {
		case <-f.caller.Done():
		case <-time.After(time.Second):
			t.Fatal("caller did not stop after its context was canceled")
		}
		assert.ErrorIs(t, f.caller.AsyncEvent(ev("rec", 1)), caller.ErrCallerStopped)
	})
}

func TestCaller_Run(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(f.caller.Run(gctx))

	res, err := f.caller.SyncEvent(ctx, ev("rec", 9))
	require.NoError(t, err)
	assert.Equal(t, 90, res)

	cancel()
	require.NoError(t, g.Wait())

	select {
	case <-f.caller.Done():
	default:
		t.Fatal("caller still running after Run returned")
	}
}

func TestCaller_DeferEvent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fires once", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.caller.Start(ctx))

		d, err := f.caller.DeferEvent(ev("rec", 1), 5*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Millisecond, d.Timeout())
		assert.Equal(t, "rec", d.Event().Name())

		<-d.Done()
		assert.True(t, d.Fired())
		assert.False(t, d.Cancel())

		_, err = f.caller.SyncEvent(ctx, ev("rec", 2))
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2}, f.rec.seen())
		assert.Equal(t, 0, f.caller.PendingDeferred())
	})

	t.Run("cancel before timeout", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.caller.Start(ctx))

		d, err := f.caller.DeferEvent(ev("rec", 1), time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, f.caller.PendingDeferred())

		assert.True(t, d.Cancel())
		assert.False(t, d.Cancel())
		assert.True(t, d.Canceled())
		assert.False(t, d.Fired())
		assert.Equal(t, 0, f.caller.PendingDeferred())

		select {
		case <-d.Done():
		default:
			t.Fatal("done not closed after cancel")
		}
	})

	t.Run("cancel races firing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		require.NoError(t, f.caller.Start(ctx))

		const n = 200
		handles := make([]*caller.DeferredEvent, n)
		for i := range n {
			d, err := f.caller.DeferEvent(ev("rec", i), time.Duration(i%3)*time.Millisecond)
			require.NoError(t, err)
			handles[i] = d
		}

		canceled := make(map[int]bool, n)
		for i, d := range handles {
			if i%2 == 0 {
				canceled[i] = d.Cancel()
			}
		}
		for _, d := range handles {
			<-d.Done()
		}

		_, err := f.caller.SyncEvent(ctx, ev("rec", -1))
		require.NoError(t, err)

		delivered := make(map[int]int, n)
		for _, tag := range f.rec.seen() {
			delivered[tag]++
		}
		for i, d := range handles {
			assert.NotEqual(t, d.Fired(), d.Canceled(), "handle %d", i)
			if canceled[i] {
				assert.Zero(t, delivered[i], fmt.Sprintf("canceled event %d delivered", i))
				continue
			}
			assert.Equal(t, 1, delivered[i], "event %d", i)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		_, err := f.caller.DeferEvent(nil, time.Second)
		assert.ErrorIs(t, err, caller.ErrNilEvent)
		_, err = f.caller.DeferEvent(ev("rec", 1), -time.Second)
		assert.ErrorIs(t, err, caller.ErrInvalidTimeout)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("MACHINE_CALLER_STOP_TIMEOUT", "2s")
	t.Setenv("MACHINE_CALLER_QUEUE_WARN", "10")

	cfg, err := caller.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.StopTimeout)
	assert.Equal(t, 10, cfg.QueueWarn)
}
