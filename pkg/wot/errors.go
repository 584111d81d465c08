// Package wot holds the error taxonomy shared by the servient packages.
//
// Callers match failures with errors.Is against the sentinels below; every
// package wraps them with context (scheme, affordance name, media type).
package wot

import (
    "errors"
    "fmt"
)

var (
    ErrUnsupportedMediaType = errors.New("unsupported media type")
    ErrDecode               = errors.New("decode error")
    ErrNoTransportForScheme = errors.New("no transport for scheme")
    ErrAffordanceNotFound   = errors.New("affordance not found")
    ErrNoFormForOperation   = errors.New("no form for operation")
    ErrNotObservable        = errors.New("not observable")
    ErrSchemeConflict       = errors.New("scheme already registered")
    // ErrNoHandler is returned when an action is invoked before a handler was set.
    ErrNoHandler = errors.New("no handler")
)

// HandlerError wraps a failure raised by a custom read, write or action handler.
type HandlerError struct {
    Affordance string
    Op         string
    Err        error
}

func (e *HandlerError) Error() string {
    return fmt.Sprintf("%s handler for %q: %v", e.Op, e.Affordance, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// AsHandlerError reports whether err carries a HandlerError.
func AsHandlerError(err error) (*HandlerError, bool) {
    var he *HandlerError
    if errors.As(err, &he) { return he, true }
    return nil, false
}
