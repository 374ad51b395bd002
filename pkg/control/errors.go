package control

import (
	"context"
	"errors"
	"net/http"

	"github.com/dmitrymomot/machinekit/pkg/caller"
	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

var (
	ErrInvalidMode       = errors.New("mode must be one of sync, async, defer")
	ErrInvalidDelay      = errors.New("defer mode requires a valid delay")
	ErrInvalidDeferredID = errors.New("invalid deferred event id")
	ErrDeferredNotFound  = errors.New("deferred event not found")
	ErrDeferredFinished  = errors.New("deferred event already fired or canceled")
)

// statusOf maps dispatch errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case statemachine.IsMissingHandlerError(err),
		errors.Is(err, statemachine.ErrNotSubEvent),
		errors.Is(err, statemachine.ErrNoSubmachine):
		return http.StatusUnprocessableEntity
	case errors.Is(err, caller.ErrInvalidTimeout):
		return http.StatusBadRequest
	case errors.Is(err, caller.ErrCallerStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
