// Package transport defines the contracts protocol bindings implement to plug
// into the servient, plus a Manager that keeps at most one client factory and
// one server per URI scheme and drives their lifecycle.
//
// Key concepts:
// - Client: performs read/write/invoke/subscribe against a form's href
// - ClientFactory: owns the client of one scheme
// - Server: binds ResourceListeners to paths so exposed things become reachable
// - Manager: scheme keyed registry with Registered -> Started -> Stopped states
package transport
