package caller

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// ErrorHandler is notified about failed asynchronous dispatches, after the
// failure has been logged.
type ErrorHandler func(ctx context.Context, event statemachine.Event, err error)

// Option configures a Caller.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	name    string
	cfg     Config
	onError ErrorHandler
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithName overrides the name used in logs. It defaults to the machine name.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithConfig sets the tuning values.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		if cfg.StopTimeout > 0 {
			o.cfg.StopTimeout = cfg.StopTimeout
		}
		if cfg.QueueWarn >= 0 {
			o.cfg.QueueWarn = cfg.QueueWarn
		}
	}
}

// WithErrorHandler registers a hook for failed asynchronous dispatches.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *options) {
		o.onError = h
	}
}
