package exposed

import (
    "sync"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
)

// Event is the live side of an event affordance.
type Event struct {
    name string
    mu   sync.RWMutex
    def  td.EventAffordance
    subs *hub
}

func (e *Event) Name() string { return e.name }

func (e *Event) Definition() td.EventAffordance {
    e.mu.RLock(); defer e.mu.RUnlock()
    return e.def
}

// Subscribe registers l for future emissions.
func (e *Event) Subscribe(l Listener) *Subscription { return e.subs.subscribe(l) }

// Emit delivers data to every active subscription in subscription order.
func (e *Event) Emit(data any) { e.subs.emit(data) }

// Subscribers returns the number of active subscriptions.
func (e *Event) Subscribers() int { return e.subs.len() }
