package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// PrometheusObserver exports dispatch metrics:
//
//	machinekit_events_total{machine,event,outcome}
//	machinekit_event_duration_seconds{machine,event}
//	machinekit_events_in_flight{machine}
type PrometheusObserver struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewPrometheusObserver creates the collectors and registers them with reg.
// Collectors already registered by another observer are reused, so several
// machines can share one registry.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "machinekit_events_total",
			Help: "Dispatched events by machine, event kind and outcome.",
		},
		[]string{"machine", "event", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "machinekit_event_duration_seconds",
			Help:    "Time spent dispatching an event.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"machine", "event"},
	)
	inFlight := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "machinekit_events_in_flight",
			Help: "Events currently being dispatched.",
		},
		[]string{"machine"},
	)

	var err error
	if events, err = register(reg, events); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	if inFlight, err = register(reg, inFlight); err != nil {
		return nil, err
	}

	return &PrometheusObserver{
		events:   events,
		duration: duration,
		inFlight: inFlight,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, errors.Join(ErrRegisterCollector, err)
	}
	return c, nil
}

func (o *PrometheusObserver) OnEventStarted(ctx context.Context, machine string, state any, event statemachine.Event) {
	o.inFlight.WithLabelValues(machine).Inc()
}

func (o *PrometheusObserver) OnEventFinished(ctx context.Context, rec statemachine.Record) {
	o.inFlight.WithLabelValues(rec.Machine).Dec()
	o.events.WithLabelValues(rec.Machine, rec.Event, OutcomeOf(rec)).Inc()
	o.duration.WithLabelValues(rec.Machine, rec.Event).Observe(rec.Duration.Seconds())
}
