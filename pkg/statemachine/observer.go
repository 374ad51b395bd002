package statemachine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/machinekit/pkg/logger"
)

// Record describes one completed dispatch.
type Record struct {
	Machine  string
	Event    string
	From     any
	To       any
	Outcome  Outcome
	Duration time.Duration
	Err      error
}

// Changed reports whether the dispatch moved the machine to another state.
func (r Record) Changed() bool {
	return r.Err == nil && r.From != r.To
}

// Observer receives callbacks from a machine for logging and metrics.
//
// Callbacks run on the dispatching goroutine; implementations should be fast
// and must not submit events to the machine they observe.
type Observer interface {
	// OnEventStarted is called before the current state's action runs.
	OnEventStarted(ctx context.Context, machine string, state any, event Event)
	// OnEventFinished is called after every dispatch, including failed ones.
	OnEventFinished(ctx context.Context, rec Record)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnEventStarted(ctx context.Context, machine string, state any, event Event) {}
func (NoopObserver) OnEventFinished(ctx context.Context, rec Record)                            {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil, non-noop observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		switch o.(type) {
		case nil, NoopObserver:
			continue
		}
		filtered = append(filtered, o)
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnEventStarted(ctx context.Context, machine string, state any, event Event) {
	for _, o := range c.observers {
		o.OnEventStarted(ctx, machine, state, event)
	}
}

func (c *CompositeObserver) OnEventFinished(ctx context.Context, rec Record) {
	for _, o := range c.observers {
		o.OnEventFinished(ctx, rec)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs dispatches using the
// provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(l *slog.Logger) Observer {
	if l == nil {
		l = slog.Default()
	}
	return &LoggingObserver{Logger: l}
}

func (o *LoggingObserver) OnEventStarted(ctx context.Context, machine string, state any, event Event) {
	o.Logger.DebugContext(ctx, "event started",
		logger.Machine(machine),
		logger.Event(eventName(event)),
		logger.State(state),
	)
}

func (o *LoggingObserver) OnEventFinished(ctx context.Context, rec Record) {
	attrs := []any{
		logger.Machine(rec.Machine),
		logger.Event(rec.Event),
		slog.Any("from", rec.From),
		slog.Any("to", rec.To),
		slog.String("outcome", rec.Outcome.String()),
		logger.Duration(rec.Duration),
	}
	switch {
	case rec.Err != nil:
		o.Logger.ErrorContext(ctx, "event failed", append(attrs, logger.Error(rec.Err))...)
	case rec.Changed():
		o.Logger.InfoContext(ctx, "state changed", attrs...)
	default:
		o.Logger.DebugContext(ctx, "event finished", attrs...)
	}
}

// Metrics collects simple dispatch counters. It implements Observer and can
// be combined with other observers through WithObserver.
type Metrics struct {
	started     atomic.Int64
	succeeded   atomic.Int64
	failed      atomic.Int64
	errored     atomic.Int64
	transitions atomic.Int64
	totalNanos  atomic.Int64
}

// MetricsSnapshot is an immutable snapshot of Metrics.
type MetricsSnapshot struct {
	Started     int64
	Succeeded   int64
	Failed      int64
	Errored     int64
	Transitions int64
	InFlight    int64
	AvgDuration time.Duration
}

func (m *Metrics) OnEventStarted(ctx context.Context, machine string, state any, event Event) {
	m.started.Add(1)
}

func (m *Metrics) OnEventFinished(ctx context.Context, rec Record) {
	m.totalNanos.Add(int64(rec.Duration))
	switch {
	case rec.Err != nil:
		m.errored.Add(1)
	case rec.Outcome == Failed:
		m.failed.Add(1)
	default:
		m.succeeded.Add(1)
	}
	if rec.Changed() {
		m.transitions.Add(1)
	}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Started:     m.started.Load(),
		Succeeded:   m.succeeded.Load(),
		Failed:      m.failed.Load(),
		Errored:     m.errored.Load(),
		Transitions: m.transitions.Load(),
	}
	finished := s.Succeeded + s.Failed + s.Errored
	s.InFlight = s.Started - finished
	if finished > 0 {
		s.AvgDuration = time.Duration(m.totalNanos.Load() / finished)
	}
	return s
}
