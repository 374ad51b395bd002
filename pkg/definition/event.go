package definition

import (
	"strings"

	"github.com/dmitrymomot/machinekit/pkg/statemachine"
)

// SubPrefix marks textual events destined for the submachine.
const SubPrefix = "sub:"

// ParseEvent turns a textual event into an Event. "sub:next" becomes a
// SubEvent wrapping "next"; anything else is a plain StringEvent.
func ParseEvent(s string) statemachine.Event {
	if inner, ok := strings.CutPrefix(s, SubPrefix); ok {
		return statemachine.NewSubEvent(statemachine.StringEvent(inner))
	}
	return statemachine.StringEvent(s)
}
