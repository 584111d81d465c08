// Package consumed is the client side view of a remote Thing. A Thing wraps a
// TD and turns interaction names into transport calls: it picks a form by
// operation, finds the client for the form's scheme and runs payloads
// through the codec registry.
package consumed

import (
    "context"
    "fmt"
    "sort"

    "go.uber.org/multierr"
    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// ClientSource resolves a URI scheme to a transport client.
type ClientSource interface {
    ClientFor(scheme string) (transport.Client, error)
}

// Thing is immutable after construction; it is safe for concurrent use.
type Thing struct {
    desc    *td.Thing
    clients ClientSource
    codecs  *content.Registry
    creds   any
    log     *zap.Logger
}

type Option func(*Thing)

func WithLogger(l *zap.Logger) Option {
    return func(t *Thing) { if l != nil { t.log = l } }
}

// WithCredentials hands creds to each client's security hook.
func WithCredentials(creds any) Option {
    return func(t *Thing) { t.creds = creds }
}

// New builds a consumed Thing over a copy of desc.
func New(desc *td.Thing, clients ClientSource, codecs *content.Registry, opts ...Option) *Thing {
    d := desc.Clone()
    d.FillDefaults()
    if codecs == nil { codecs = content.NewRegistry() }
    t := &Thing{desc: d, clients: clients, codecs: codecs, log: zap.L()}
    for _, fn := range opts { fn(t) }
    t.log = t.log.With(zap.String("thing", d.Title))
    return t
}

func (t *Thing) Title() string { return t.desc.Title }
func (t *Thing) ID() string    { return t.desc.ID }

// ThingDescription returns a copy of the consumed TD.
func (t *Thing) ThingDescription() *td.Thing { return t.desc.Clone() }

// pick returns the first form in document order that carries op and whose
// scheme has a registered client.
func (t *Thing) pick(forms []td.Form, op string) (td.Form, transport.Client, error) {
    var (
        matched bool
        lastErr error
    )
    for _, f := range forms {
        if !f.HasOp(op) { continue }
        matched = true
        href, err := t.desc.ResolveHref(f.Href)
        if err != nil {
            lastErr = multierr.Append(lastErr, err)
            continue
        }
        f.Href = href
        c, err := t.clients.ClientFor(f.Scheme())
        if err != nil {
            lastErr = err
            continue
        }
        if !c.SetSecurity(t.desc.SecuritySchemes(), t.creds) {
            t.log.Warn("security setup rejected", zap.String("scheme", f.Scheme()), zap.String("op", op))
        }
        return f, c, nil
    }
    if !matched { return td.Form{}, nil, fmt.Errorf("%w: %s", wot.ErrNoFormForOperation, op) }
    return td.Form{}, nil, lastErr
}

func (t *Thing) property(name string) (*td.PropertyAffordance, error) {
    p, ok := t.desc.Properties[name]
    if !ok { return nil, fmt.Errorf("property %q: %w", name, wot.ErrAffordanceNotFound) }
    return p, nil
}

func (t *Thing) contentType(f td.Form) string {
    if f.ContentType == "" { return td.DefaultContentType }
    return f.ContentType
}

// ReadProperty reads one property.
func (t *Thing) ReadProperty(ctx context.Context, name string) (*InteractionOutput, error) {
    p, err := t.property(name)
    if err != nil { return nil, err }
    f, c, err := t.pick(p.Forms, td.OpReadProperty)
    if err != nil { return nil, fmt.Errorf("read %q: %w", name, err) }
    t.log.Debug("read property", zap.String("property", name), zap.String("href", f.Href))
    out, err := c.ReadResource(ctx, f)
    if err != nil { return nil, fmt.Errorf("read %q: %w", name, err) }
    if out.Type == "" { out.Type = t.contentType(f) }
    schema := p.DataSchema
    return newOutput(out, &schema, t.codecs), nil
}

// WriteProperty encodes v with the form's media type and writes it.
func (t *Thing) WriteProperty(ctx context.Context, name string, v any) error {
    p, err := t.property(name)
    if err != nil { return err }
    f, c, err := t.pick(p.Forms, td.OpWriteProperty)
    if err != nil { return fmt.Errorf("write %q: %w", name, err) }
    body, err := t.codecs.Encode(t.contentType(f), v)
    if err != nil { return fmt.Errorf("write %q: %w", name, err) }
    t.log.Debug("write property", zap.String("property", name), zap.String("href", f.Href))
    if err := c.WriteResource(ctx, f, body); err != nil { return fmt.Errorf("write %q: %w", name, err) }
    return nil
}

// ReadAllProperties reads every property that has a read form some registered
// client can serve. Observe-only and unreachable properties are left out.
func (t *Thing) ReadAllProperties(ctx context.Context) (map[string]*InteractionOutput, error) {
    var names []string
    for _, n := range t.desc.PropertyNames() {
        if t.readable(t.desc.Properties[n]) { names = append(names, n) }
    }
    return t.ReadMultipleProperties(ctx, names)
}

func (t *Thing) readable(p *td.PropertyAffordance) bool {
    for _, f := range p.Forms {
        if !f.HasOp(td.OpReadProperty) { continue }
        href, err := t.desc.ResolveHref(f.Href)
        if err != nil { continue }
        f.Href = href
        if _, err := t.clients.ClientFor(f.Scheme()); err == nil { return true }
    }
    return false
}

// ReadMultipleProperties reads the named properties one by one. The first
// failure aborts.
func (t *Thing) ReadMultipleProperties(ctx context.Context, names []string) (map[string]*InteractionOutput, error) {
    out := make(map[string]*InteractionOutput, len(names))
    for _, n := range names {
        o, err := t.ReadProperty(ctx, n)
        if err != nil { return nil, err }
        out[n] = o
    }
    return out, nil
}

// WriteMultipleProperties writes each value in name order. All writes are
// attempted; failures are combined.
func (t *Thing) WriteMultipleProperties(ctx context.Context, values map[string]any) error {
    names := make([]string, 0, len(values))
    for n := range values { names = append(names, n) }
    sort.Strings(names)
    var err error
    for _, n := range names { err = multierr.Append(err, t.WriteProperty(ctx, n, values[n])) }
    return err
}

// InvokeAction runs an action. A nil input is sent as an empty payload.
func (t *Thing) InvokeAction(ctx context.Context, name string, input any) (*InteractionOutput, error) {
    a, ok := t.desc.Actions[name]
    if !ok { return nil, fmt.Errorf("action %q: %w", name, wot.ErrAffordanceNotFound) }
    f, c, err := t.pick(a.Forms, td.OpInvokeAction)
    if err != nil { return nil, fmt.Errorf("invoke %q: %w", name, err) }
    in := content.Content{Type: t.contentType(f)}
    if input != nil {
        if in, err = t.codecs.Encode(t.contentType(f), input); err != nil { return nil, fmt.Errorf("invoke %q: %w", name, err) }
    }
    t.log.Debug("invoke action", zap.String("action", name), zap.String("href", f.Href))
    out, err := c.InvokeResource(ctx, f, in)
    if err != nil { return nil, fmt.Errorf("invoke %q: %w", name, err) }
    if out.Type == "" { out.Type = t.contentType(f) }
    return newOutput(out, a.Output, t.codecs), nil
}

// ObserveProperty subscribes to value changes. Observing a property not
// declared observable fails before any transport is touched.
func (t *Thing) ObserveProperty(ctx context.Context, name string, onData func(any), onError func(error)) (*Subscription, error) {
    p, err := t.property(name)
    if err != nil { return nil, err }
    if !p.Observable { return nil, fmt.Errorf("property %q: %w", name, wot.ErrNotObservable) }
    return t.subscribe(ctx, "property", name, p.Forms, td.OpObserveProperty, onData, onError)
}

// SubscribeEvent subscribes to an event. The call returns once the
// subscription is established.
func (t *Thing) SubscribeEvent(ctx context.Context, name string, onData func(any), onError func(error)) (*Subscription, error) {
    e, ok := t.desc.Events[name]
    if !ok { return nil, fmt.Errorf("event %q: %w", name, wot.ErrAffordanceNotFound) }
    return t.subscribe(ctx, "event", name, e.Forms, td.OpSubscribeEvent, onData, onError)
}

func (t *Thing) subscribe(ctx context.Context, kind, name string, forms []td.Form, op string, onData func(any), onError func(error)) (*Subscription, error) {
    f, c, err := t.pick(forms, op)
    if err != nil { return nil, fmt.Errorf("%s %q: %w", kind, name, err) }
    s := newSubscription(kind, name, f, c, t.log)
    fail := func(err error) {
        if onError != nil {
            onError(err)
            return
        }
        t.log.Warn("notification failed", zap.String(kind, name), zap.Error(err))
    }
    h := transport.Handlers{
        Next: func(ct content.Content) {
            if !s.Active() { return }
            if ct.Type == "" { ct.Type = t.contentType(f) }
            var v any
            if len(ct.Body) > 0 {
                var derr error
                if v, derr = t.codecs.Decode(ct); derr != nil {
                    fail(derr)
                    return
                }
            }
            if onData != nil { onData(v) }
        },
        Error:    fail,
        Complete: s.complete,
    }
    ts, err := c.SubscribeResource(ctx, f, h)
    if err != nil { return nil, fmt.Errorf("%s %q: %w", kind, name, err) }
    s.attach(ts)
    t.log.Debug("subscribed", zap.String(kind, name), zap.String("href", f.Href))
    return s, nil
}
