package exposed

import (
    "context"
    "errors"
    "fmt"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
)

var errUnsupportedOp = errors.New("operation not supported on resource")

// resourceListener adapts one affordance of a Thing to a server binding. The
// affordance is looked up on every call so replacing it keeps the path live.
type resourceListener struct {
    thing *Thing
    kind  affordanceKind
    name  string
}

var _ transport.ResourceListener = (*resourceListener)(nil)

func (l *resourceListener) Read(ctx context.Context) (content.Content, error) {
    switch l.kind {
    case kindThing:
        return l.thing.codecs.Encode(content.TypeTD, l.thing.ThingDescription())
    case kindProperty:
        p, err := l.thing.Property(l.name)
        if err != nil { return content.Content{}, err }
        if p.Definition().WriteOnly { return content.Content{}, l.unsupported("read") }
        v, err := p.Get(ctx)
        if err != nil { return content.Content{}, err }
        return l.encode(v)
    default:
        return content.Content{}, l.unsupported("read")
    }
}

func (l *resourceListener) Write(ctx context.Context, c content.Content) error {
    if l.kind != kindProperty { return l.unsupported("write") }
    p, err := l.thing.Property(l.name)
    if err != nil { return err }
    if p.Definition().ReadOnly { return l.unsupported("write") }
    v, err := l.decode(c)
    if err != nil { return err }
    return p.Set(ctx, v)
}

func (l *resourceListener) Invoke(ctx context.Context, c content.Content) (content.Content, error) {
    if l.kind != kindAction { return content.Content{}, l.unsupported("invoke") }
    a, err := l.thing.Action(l.name)
    if err != nil { return content.Content{}, err }
    in, err := l.decode(c)
    if err != nil { return content.Content{}, err }
    out, err := a.Run(ctx, in)
    if err != nil { return content.Content{}, err }
    return l.encode(out)
}

func (l *resourceListener) Subscribe(ctx context.Context, h transport.Handlers) (transport.Subscription, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    forward := func(v any) {
        c, err := l.encode(v)
        if err != nil {
            l.thing.log.Warn("notification dropped", zap.String("affordance", l.name), zap.Error(err))
            if h.Error != nil { h.Error(err) }
            return
        }
        if h.Next != nil { h.Next(c) }
    }
    var (
        sub *Subscription
        err error
    )
    switch l.kind {
    case kindProperty:
        sub, err = l.thing.ObserveProperty(l.name, forward)
    case kindEvent:
        sub, err = l.thing.SubscribeEvent(l.name, forward)
    default:
        return nil, l.unsupported("subscribe")
    }
    if err != nil { return nil, err }
    if h.Complete != nil {
        go func() { <-sub.Done(); h.Complete() }()
    }
    return sub, nil
}

func (l *resourceListener) encode(v any) (content.Content, error) {
    return l.thing.codecs.Encode(l.thing.opts.contentType, wireValue(v))
}

// decode treats an empty body as "no input".
func (l *resourceListener) decode(c content.Content) (any, error) {
    if len(c.Body) == 0 { return nil, nil }
    if c.Type == "" { c.Type = l.thing.opts.contentType }
    return l.thing.codecs.Decode(c)
}

func (l *resourceListener) unsupported(op string) error {
    return fmt.Errorf("%s %q: %w", op, affordancePath(l.thing.Title(), l.kind, l.name), errUnsupportedOp)
}
