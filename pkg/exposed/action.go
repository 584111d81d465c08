package exposed

import (
    "context"
    "fmt"
    "sync"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// ActionHandler runs an action. Its result and error are returned to the
// invoker unchanged, errors wrapped in wot.HandlerError.
type ActionHandler func(ctx context.Context, input any) (any, error)

// Action is the live side of an action affordance. It has no default
// handler; Run fails with wot.ErrNoHandler until one is set.
type Action struct {
    name    string
    mu      sync.RWMutex
    def     td.ActionAffordance
    handler ActionHandler
}

func (a *Action) Name() string { return a.name }

func (a *Action) Definition() td.ActionAffordance {
    a.mu.RLock(); defer a.mu.RUnlock()
    return a.def
}

// Run invokes the handler with input.
func (a *Action) Run(ctx context.Context, input any) (any, error) {
    a.mu.RLock()
    h := a.handler
    a.mu.RUnlock()
    if h == nil { return nil, fmt.Errorf("action %q: %w", a.name, wot.ErrNoHandler) }
    out, err := h(ctx, input)
    if err != nil { return nil, &wot.HandlerError{Affordance: a.name, Op: "action", Err: err} }
    return out, nil
}

func (a *Action) setHandler(h ActionHandler) {
    a.mu.Lock(); a.handler = h; a.mu.Unlock()
}
