package definition

import (
	"context"
	"time"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// Build creates a machine of table states from def. The submachine, if any,
// is built first and receives the same options; its own name always wins.
//
// Each transition's action waits Delay, honoring ctx, and then reports Failed
// if Fail is set. Transitions on statemachine.SubEventName forward the
// wrapped event to the submachine.
func Build(def *Definition, opts ...statemachine.Option) (*statemachine.Machine[string], error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	machineOpts := make([]statemachine.Option, 0, len(opts)+2)
	machineOpts = append(machineOpts, statemachine.WithName(def.MachineName()))
	machineOpts = append(machineOpts, opts...)

	if def.Submachine != nil {
		// Records of both machines share observers, so they must not share a name.
		subDef := *def.Submachine
		subDef.Name = def.SubmachineName()
		subOpts := append(append([]statemachine.Option{}, opts...), statemachine.WithName(subDef.Name))
		sub, err := Build(&subDef, subOpts...)
		if err != nil {
			return nil, err
		}
		machineOpts = append(machineOpts, statemachine.WithSubmachine(sub))
	}

	b := statemachine.NewBuilder(def.Initial).State(def.StateNames()...)
	for _, tr := range def.Transitions {
		failure := tr.Failure
		if failure == "" {
			failure = tr.From
		}
		transit := tr.Transit
		if transit == "" {
			transit = def.transitOf(tr.From)
		}

		b.From(tr.From).When(tr.Event).Do(action(tr)).To(tr.Success).Else(failure)
		if transit != "" {
			b.Transit(transit)
		}
		b.Add()
	}

	return b.Build(machineOpts...)
}

func action(tr Transition) statemachine.Action[string] {
	if tr.Event == statemachine.SubEventName {
		delegate := statemachine.Delegate[string]()
		return func(ctx context.Context, m *statemachine.Machine[string], event statemachine.Event) (statemachine.Outcome, error) {
			if err := wait(ctx, tr.Delay); err != nil {
				return statemachine.Failed, err
			}
			return delegate(ctx, m, event)
		}
	}
	if tr.Delay == 0 && !tr.Fail {
		return nil
	}
	return func(ctx context.Context, _ *statemachine.Machine[string], _ statemachine.Event) (statemachine.Outcome, error) {
		if err := wait(ctx, tr.Delay); err != nil {
			return statemachine.Failed, err
		}
		if tr.Fail {
			return statemachine.Failed, nil
		}
		return statemachine.Succeeded, nil
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
