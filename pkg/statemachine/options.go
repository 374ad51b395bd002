package statemachine

import (
	"errors"
)

// DefaultName is the name of a machine created without WithName.
const DefaultName = "machine"

// Option configures a state machine during construction.
type Option func(*config) error

type config struct {
	name     string
	observer Observer
	sub      Submachine
}

// WithName sets the machine name used in records and log lines.
func WithName(name string) Option {
	return func(c *config) error {
		if name == "" {
			return errors.New("statemachine: name cannot be empty")
		}
		c.name = name
		return nil
	}
}

// WithObserver injects telemetry hooks. Several observers are combined with
// NewCompositeObserver; nil observers are ignored.
func WithObserver(observers ...Observer) Option {
	return func(c *config) error {
		c.observer = NewCompositeObserver(append([]Observer{c.observer}, observers...)...)
		return nil
	}
}

// WithSubmachine attaches the nested machine the outer machine delegates to.
// The same submachine is kept for the lifetime of the outer machine.
func WithSubmachine(sub Submachine) Option {
	return func(c *config) error {
		if sub == nil {
			return ErrNoSubmachine
		}
		c.sub = sub
		return nil
	}
}
