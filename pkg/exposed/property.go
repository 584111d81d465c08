package exposed

import (
    "context"
    "fmt"
    "sync"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// ReadHandler overrides how a property value is produced. It runs without
// any runtime lock held and may use the slot freely.
type ReadHandler func(ctx context.Context, slot *Slot) (any, error)

// WriteHandler overrides how a written value is applied. The returned value
// is stored in the slot and announced to observers.
type WriteHandler func(ctx context.Context, value any, slot *Slot) (any, error)

// Property is the live side of a property affordance.
type Property struct {
    name string
    slot Slot

    mu    sync.RWMutex
    def   td.PropertyAffordance
    read  ReadHandler
    write WriteHandler

    observers *hub
}

func newProperty(name string, def td.PropertyAffordance, o options) *Property {
    return &Property{name: name, def: def, observers: newHub(name, o)}
}

func (p *Property) Name() string { return p.name }

// Definition returns the TD side of the property.
func (p *Property) Definition() td.PropertyAffordance {
    p.mu.RLock(); defer p.mu.RUnlock()
    return p.def
}

// Slot exposes the live value cell.
func (p *Property) Slot() *Slot { return &p.slot }

// Get returns the read handler's result when one is installed, otherwise
// the stored value (Unset if there is none).
func (p *Property) Get(ctx context.Context) (any, error) {
    p.mu.RLock()
    h := p.read
    p.mu.RUnlock()
    if h == nil { return p.slot.Load(), nil }
    v, err := h(ctx, &p.slot)
    if err != nil { return nil, &wot.HandlerError{Affordance: p.name, Op: "read", Err: err} }
    return v, nil
}

// Set applies v through the write handler when one is installed, otherwise
// stores it directly. Observers see the stored value.
func (p *Property) Set(ctx context.Context, v any) error {
    p.mu.RLock()
    h := p.write
    p.mu.RUnlock()
    if h != nil {
        out, err := h(ctx, v, &p.slot)
        if err != nil { return &wot.HandlerError{Affordance: p.name, Op: "write", Err: err} }
        v = out
    }
    p.slot.Store(v)
    if p.observable() { p.observers.emit(p.slot.Load()) }
    return nil
}

// Observe subscribes to value changes.
func (p *Property) Observe(l Listener) (*Subscription, error) {
    if !p.observable() { return nil, fmt.Errorf("property %q: %w", p.name, wot.ErrNotObservable) }
    return p.observers.subscribe(l), nil
}

func (p *Property) observable() bool {
    p.mu.RLock(); defer p.mu.RUnlock()
    return p.def.Observable
}

func (p *Property) setReadHandler(h ReadHandler) {
    p.mu.Lock(); p.read = h; p.mu.Unlock()
}

func (p *Property) setWriteHandler(h WriteHandler) {
    p.mu.Lock(); p.write = h; p.mu.Unlock()
}
