package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNilState             = errors.New("statemachine: state cannot be nil")
	ErrNilEvent             = errors.New("statemachine: event cannot be nil")
	ErrDuplicateState       = errors.New("statemachine: duplicate state identity")
	ErrInitialNotRegistered = errors.New("statemachine: initial state is not registered")
	ErrConcurrentDispatch   = errors.New("statemachine: another event is already in flight")
	ErrNoSubmachine         = errors.New("statemachine: machine has no submachine")
	ErrNotSubEvent          = errors.New("statemachine: event is not a SubEvent")
	ErrDispatchPanicked     = errors.New("statemachine: dispatch panicked")
)

// MissingHandlerError indicates a state has no handler for the attempted
// operation on an event kind. It is a protocol-definition bug and is never
// turned into a failure transition.
type MissingHandlerError struct {
	StateName string
	EventName string
	Op        string // action, succeeded, failed
}

func (e *MissingHandlerError) Error() string {
	return fmt.Sprintf("statemachine: state '%s' has no %s handler for event '%s'", e.StateName, e.Op, e.EventName)
}

func NewMissingHandlerError(stateName, eventName, op string) *MissingHandlerError {
	return &MissingHandlerError{
		StateName: stateName,
		EventName: eventName,
		Op:        op,
	}
}

// UnknownStateError indicates a state handler named a target that is not
// registered with the machine. The machine stays in its current state.
type UnknownStateError struct {
	StateName  string
	EventName  string
	TargetName string
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("statemachine: state '%s' tried to switch into unknown state '%s' on event '%s'", e.StateName, e.TargetName, e.EventName)
}

func NewUnknownStateError(stateName, eventName, targetName string) *UnknownStateError {
	return &UnknownStateError{
		StateName:  stateName,
		EventName:  eventName,
		TargetName: targetName,
	}
}

func IsMissingHandlerError(err error) bool {
	var e *MissingHandlerError
	return errors.As(err, &e)
}

func IsUnknownStateError(err error) bool {
	var e *UnknownStateError
	return errors.As(err, &e)
}
