// Package machinekit is a finite state machine toolkit with serialized
// concurrent dispatch.
//
// The module is organized as independent packages:
//
//   - pkg/statemachine: the transition engine, handler tables, sub-machines
//     and observers
//   - pkg/caller: the actor that serializes synchronous, asynchronous and
//     deferred event submission onto one machine
//   - pkg/async: futures returned for asynchronous submissions
//   - pkg/definition: YAML machine definitions and mermaid diagrams
//   - pkg/telemetry: prometheus, redis and in-memory transition observers
//   - pkg/control: an HTTP surface over a running caller
//   - pkg/httpserver, pkg/requestid, pkg/logger, pkg/config: supporting
//     infrastructure
//
// The machinekit command (cmd/machinekit) drives definitions from the shell.
package machinekit
