package control

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Without it nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithGatherer serves g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(h *Handler) { h.gatherer = g }
}

// WithReadinessChecks adds checks to /readyz.
func WithReadinessChecks(checks ...func(context.Context) error) Option {
	return func(h *Handler) { h.checks = append(h.checks, checks...) }
}
