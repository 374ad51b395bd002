package caller

import (
	"errors"
	"fmt"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

var (
	ErrCallerStopped    = errors.New("caller stopped")
	ErrAlreadyStarted   = errors.New("caller already started")
	ErrNotStarted       = errors.New("caller not started")
	ErrStopTimeout      = errors.New("caller stop timed out")
	ErrNilMachine       = errors.New("nil state machine")
	ErrNilEvent         = statemachine.ErrNilEvent
	ErrRendezvousMisuse = errors.New("queue item must carry either an event or a rendezvous")
	ErrReentrantSync    = errors.New("synchronous event submitted from inside a dispatch of the same caller")
	ErrInvalidTimeout   = errors.New("deferred event timeout must not be negative")
)

// PanicError wraps a value recovered from a panicking dispatch.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during dispatch: %v", e.Value)
}

// IsPanicError reports whether err wraps a recovered panic.
func IsPanicError(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
