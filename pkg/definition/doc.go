// Package definition loads machines with string identities from YAML.
//
// A definition lists the states, the initial state and one transition per
// (state, event) pair. Actions are synthetic: they wait the configured delay
// and report success unless fail is set, which makes definitions useful for
// demos, tests and protocol drafts.
//
//	name: engine
//	initial: idle
//	states:
//	  - name: idle
//	  - name: starting
//	  - name: running
//	transitions:
//	  - from: idle
//	    event: start
//	    success: running
//	    transit: starting
//	    delay: 200ms
//
// A nested submachine is declared under submachine; transitions on the "sub"
// event forward the wrapped event to it.
//
// Load and Parse validate the document; Build turns it into a
// *statemachine.Machine[string]; Mermaid renders a stateDiagram-v2.
package definition
