package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/machinekit/pkg/logger"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// Outcome labels used by every exporter in this package.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeError     = "error"
)

// Transition is the wire form of a finished dispatch.
type Transition struct {
	Machine    string    `json:"machine" yaml:"machine"`
	Event      string    `json:"event" yaml:"event"`
	From       string    `json:"from" yaml:"from"`
	To         string    `json:"to" yaml:"to"`
	Outcome    string    `json:"outcome" yaml:"outcome"`
	DurationMS float64   `json:"duration_ms" yaml:"duration_ms"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	DispatchID string    `json:"dispatch_id,omitempty" yaml:"dispatch_id,omitempty"`
	At         time.Time `json:"at" yaml:"at"`
}

// NewTransition converts a record. The dispatch id is taken from ctx when the
// dispatch was run by a caller.
func NewTransition(ctx context.Context, rec statemachine.Record) Transition {
	t := Transition{
		Machine:    rec.Machine,
		Event:      rec.Event,
		From:       fmt.Sprint(rec.From),
		To:         fmt.Sprint(rec.To),
		Outcome:    OutcomeOf(rec),
		DurationMS: float64(rec.Duration) / float64(time.Millisecond),
		At:         time.Now().UTC(),
	}
	if rec.Err != nil {
		t.Error = rec.Err.Error()
	}
	if id, ok := logger.DispatchIDFromContext(ctx); ok {
		t.DispatchID = id
	}
	return t
}

// OutcomeOf maps a record to its outcome label.
func OutcomeOf(rec statemachine.Record) string {
	switch {
	case rec.Err != nil:
		return OutcomeError
	case rec.Outcome == statemachine.Failed:
		return OutcomeFailed
	default:
		return OutcomeSucceeded
	}
}
