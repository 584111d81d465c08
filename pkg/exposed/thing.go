package exposed

import (
    "context"
    "fmt"
    "sync"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// Thing is the server side runtime of one Thing: it holds the authoritative
// state of every affordance and the handlers overriding default behavior.
type Thing struct {
    mu      sync.RWMutex
    desc    *td.Thing
    props   map[string]*Property
    actions map[string]*Action
    events  map[string]*Event

    codecs *content.Registry
    opts   options
    log    *zap.Logger

    exposed   bool
    destroyed bool
    bound     []boundResource
}

type boundResource struct {
    server transport.Server
    path   string
}

// New builds a Thing from a TD or template. Affordances declared in the
// template are created without values or handlers.
func New(tmpl *td.Thing, codecs *content.Registry, opts ...Option) *Thing {
    o := defaultOptions()
    for _, fn := range opts { fn(&o) }
    if tmpl == nil { tmpl = td.New("") }
    desc := tmpl.Clone()
    desc.FillDefaults()
    if codecs == nil { codecs = content.NewRegistry() }
    t := &Thing{
        desc:    desc,
        props:   make(map[string]*Property),
        actions: make(map[string]*Action),
        events:  make(map[string]*Event),
        codecs:  codecs,
        opts:    o,
        log:     o.log.With(zap.String("thing", desc.Title)),
    }
    for _, n := range desc.PropertyNames() {
        t.props[n] = newProperty(n, *desc.Properties[n], o)
    }
    for _, n := range desc.ActionNames() {
        t.actions[n] = &Action{name: n, def: *desc.Actions[n]}
    }
    for _, n := range desc.EventNames() {
        t.events[n] = &Event{name: n, def: *desc.Events[n], subs: newHub(n, o)}
    }
    return t
}

func (t *Thing) ID() string {
    t.mu.RLock(); defer t.mu.RUnlock()
    return t.desc.ID
}

func (t *Thing) Title() string {
    t.mu.RLock(); defer t.mu.RUnlock()
    return t.desc.Title
}

// ThingDescription returns a snapshot of the current TD, forms included.
func (t *Thing) ThingDescription() *td.Thing {
    t.mu.RLock(); defer t.mu.RUnlock()
    return t.desc.Clone()
}

// AddProperty registers a property. Adding a name twice replaces the first
// property, its value, handlers and observers.
func (t *Thing) AddProperty(name string, def td.PropertyAffordance, opts ...PropertyOption) *Thing {
    p := newProperty(name, def, t.opts)
    for _, fn := range opts { fn(p) }
    t.mu.Lock()
    old := t.props[name]
    t.props[name] = p
    d := def
    t.desc.SetProperty(name, &d)
    t.desc.FillDefaults()
    exposed := t.exposed
    t.mu.Unlock()
    if old != nil { old.observers.closeAll() }
    if exposed { t.rebind(kindProperty, name) }
    return t
}

// AddAction registers an action without a handler.
func (t *Thing) AddAction(name string, def td.ActionAffordance) *Thing {
    t.mu.Lock()
    t.actions[name] = &Action{name: name, def: def}
    d := def
    t.desc.SetAction(name, &d)
    t.desc.FillDefaults()
    exposed := t.exposed
    t.mu.Unlock()
    if exposed { t.rebind(kindAction, name) }
    return t
}

// AddEvent registers an event.
func (t *Thing) AddEvent(name string, def td.EventAffordance) *Thing {
    t.mu.Lock()
    old := t.events[name]
    t.events[name] = &Event{name: name, def: def, subs: newHub(name, t.opts)}
    d := def
    t.desc.SetEvent(name, &d)
    t.desc.FillDefaults()
    exposed := t.exposed
    t.mu.Unlock()
    if old != nil { old.subs.closeAll() }
    if exposed { t.rebind(kindEvent, name) }
    return t
}

func (t *Thing) RemoveProperty(name string) error {
    t.mu.Lock()
    p, ok := t.props[name]
    if ok {
        delete(t.props, name)
        t.desc.DeleteProperty(name)
    }
    t.mu.Unlock()
    if !ok { return notFound("property", name) }
    p.observers.closeAll()
    t.unbindPath(affordancePath(t.Title(), kindProperty, name))
    return nil
}

func (t *Thing) RemoveAction(name string) error {
    t.mu.Lock()
    _, ok := t.actions[name]
    if ok {
        delete(t.actions, name)
        t.desc.DeleteAction(name)
    }
    t.mu.Unlock()
    if !ok { return notFound("action", name) }
    t.unbindPath(affordancePath(t.Title(), kindAction, name))
    return nil
}

func (t *Thing) RemoveEvent(name string) error {
    t.mu.Lock()
    e, ok := t.events[name]
    if ok {
        delete(t.events, name)
        t.desc.DeleteEvent(name)
    }
    t.mu.Unlock()
    if !ok { return notFound("event", name) }
    e.subs.closeAll()
    t.unbindPath(affordancePath(t.Title(), kindEvent, name))
    return nil
}

// Property looks up a property by name.
func (t *Thing) Property(name string) (*Property, error) {
    t.mu.RLock(); defer t.mu.RUnlock()
    p, ok := t.props[name]
    if !ok { return nil, notFound("property", name) }
    return p, nil
}

// Action looks up an action by name.
func (t *Thing) Action(name string) (*Action, error) {
    t.mu.RLock(); defer t.mu.RUnlock()
    a, ok := t.actions[name]
    if !ok { return nil, notFound("action", name) }
    return a, nil
}

// Event looks up an event by name.
func (t *Thing) Event(name string) (*Event, error) {
    t.mu.RLock(); defer t.mu.RUnlock()
    e, ok := t.events[name]
    if !ok { return nil, notFound("event", name) }
    return e, nil
}

func (t *Thing) SetPropertyReadHandler(name string, h ReadHandler) error {
    p, err := t.Property(name)
    if err != nil { return err }
    p.setReadHandler(h)
    return nil
}

func (t *Thing) SetPropertyWriteHandler(name string, h WriteHandler) error {
    p, err := t.Property(name)
    if err != nil { return err }
    p.setWriteHandler(h)
    return nil
}

func (t *Thing) SetActionHandler(name string, h ActionHandler) error {
    a, err := t.Action(name)
    if err != nil { return err }
    a.setHandler(h)
    return nil
}

// ReadProperty is Property(name).Get.
func (t *Thing) ReadProperty(ctx context.Context, name string) (any, error) {
    p, err := t.Property(name)
    if err != nil { return nil, err }
    return p.Get(ctx)
}

// WriteProperty is Property(name).Set.
func (t *Thing) WriteProperty(ctx context.Context, name string, v any) error {
    p, err := t.Property(name)
    if err != nil { return err }
    return p.Set(ctx, v)
}

// ReadAllProperties reads every property; the first failure aborts.
func (t *Thing) ReadAllProperties(ctx context.Context) (map[string]any, error) {
    t.mu.RLock()
    names := t.desc.PropertyNames()
    t.mu.RUnlock()
    out := make(map[string]any, len(names))
    for _, n := range names {
        v, err := t.ReadProperty(ctx, n)
        if err != nil { return nil, err }
        out[n] = v
    }
    return out, nil
}

// ObserveProperty subscribes to changes of an observable property.
func (t *Thing) ObserveProperty(name string, l Listener) (*Subscription, error) {
    p, err := t.Property(name)
    if err != nil { return nil, err }
    return p.Observe(l)
}

// InvokeAction is Action(name).Run.
func (t *Thing) InvokeAction(ctx context.Context, name string, input any) (any, error) {
    a, err := t.Action(name)
    if err != nil { return nil, err }
    return a.Run(ctx, input)
}

// SubscribeEvent registers l for an event.
func (t *Thing) SubscribeEvent(name string, l Listener) (*Subscription, error) {
    e, err := t.Event(name)
    if err != nil { return nil, err }
    return e.Subscribe(l), nil
}

// EmitEvent delivers data to the subscribers of an event.
func (t *Thing) EmitEvent(name string, data any) error {
    e, err := t.Event(name)
    if err != nil { return err }
    e.Emit(data)
    return nil
}

// Destroy cancels every subscription and unbinds the Thing from all servers.
// It is safe to call more than once.
func (t *Thing) Destroy() {
    t.mu.Lock()
    if t.destroyed {
        t.mu.Unlock()
        return
    }
    t.destroyed = true
    t.exposed = false
    bound := t.bound
    t.bound = nil
    props := make([]*Property, 0, len(t.props))
    for _, p := range t.props { props = append(props, p) }
    events := make([]*Event, 0, len(t.events))
    for _, e := range t.events { events = append(events, e) }
    t.mu.Unlock()

    for _, p := range props { p.observers.closeAll() }
    for _, e := range events { e.subs.closeAll() }
    for _, b := range bound {
        if !b.server.RemoveResource(b.path) {
            t.log.Debug("resource already gone", zap.String("scheme", b.server.Scheme()), zap.String("path", b.path))
        }
    }
    t.log.Info("thing destroyed", zap.Int("resources", len(bound)))
    if t.opts.onDestroy != nil { t.opts.onDestroy(t) }
}

func (t *Thing) rebind(kind affordanceKind, name string) {
    if err := t.bindAffordance(kind, name); err != nil {
        t.log.Warn("bind failed", zap.String("affordance", name), zap.Error(err))
    }
}

func notFound(kind, name string) error {
    return fmt.Errorf("%s %q: %w", kind, name, wot.ErrAffordanceNotFound)
}
