package servient

import (
    "context"
    "errors"
    "strings"
    "testing"
    "time"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "go.uber.org/zap/zaptest/observer"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/exposed"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
    "github.com/eclipse/thingweb.node-wot/pkg/transport/mem"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

func newTestServient(t *testing.T) (*Servient, *mem.Network) {
    t.Helper()
    n := mem.NewNetwork()
    s := New(Options{Logger: zap.NewNop()})
    if err := s.AddClientFactory(mem.NewClientFactory(n, zap.NewNop())); err != nil { t.Fatalf("client: %v", err) }
    if err := s.AddServer(mem.NewServer(n, "local")); err != nil { t.Fatalf("server: %v", err) }
    return s, n
}

func TestDuplicateClientSchemeRejected(t *testing.T) {
    core, logs := observer.New(zapcore.WarnLevel)
    s := New(Options{Logger: zap.New(core)})
    first := mem.NewClientFactory(mem.NewNetwork(), nil)
    second := mem.NewClientFactory(mem.NewNetwork(), nil)
    if err := s.AddClientFactory(first); err != nil { t.Fatalf("first: %v", err) }
    if err := s.AddClientFactory(second); !errors.Is(err, wot.ErrSchemeConflict) { t.Fatalf("expected ErrSchemeConflict, got %v", err) }
    c, err := s.ClientFor("mem")
    if err != nil { t.Fatalf("client for: %v", err) }
    if c != first.Client() { t.Fatalf("second registration replaced the first") }
    if logs.FilterMessage("client factory rejected").Len() != 1 { t.Fatalf("conflict not logged") }
}

func TestDuplicateServerSchemeRejected(t *testing.T) {
    s := New(Options{Logger: zap.NewNop()})
    n := mem.NewNetwork()
    if err := s.AddServer(mem.NewServer(n, "a")); err != nil { t.Fatalf("first: %v", err) }
    if err := s.AddServerFactory(mem.ServerFactory{Network: n, Host: "b"}); !errors.Is(err, wot.ErrSchemeConflict) {
        t.Fatalf("expected ErrSchemeConflict, got %v", err)
    }
    if got := s.Servers()[0].BaseURI(); got != "mem://a" { t.Fatalf("active server %q", got) }
}

func TestClientForUnknownScheme(t *testing.T) {
    s := New(Options{Logger: zap.NewNop()})
    if _, err := s.ClientFor("coap"); !errors.Is(err, wot.ErrNoTransportForScheme) { t.Fatalf("got %v", err) }
}

type brokenServer struct{ *mem.Server }

func (brokenServer) Scheme() string                 { return "broken" }
func (brokenServer) Start(context.Context) error    { return errors.New("port in use") }

func TestPartialStartFailure(t *testing.T) {
    s, n := newTestServient(t)
    if err := s.AddServer(brokenServer{mem.NewServer(n, "other")}); err != nil { t.Fatalf("register: %v", err) }
    rt, err := s.Start(context.Background())
    if rt == nil { t.Fatalf("runtime must be returned on partial failure") }
    var se *StartError
    if !errors.As(err, &se) { t.Fatalf("expected StartError, got %v", err) }
    if len(se.Failures) != 1 || se.Failures[0].Scheme != "broken" || se.Failures[0].Direction != transport.DirectionServer {
        t.Fatalf("failures %+v", se.Failures)
    }
    if !strings.Contains(err.Error(), "port in use") { t.Fatalf("message %q", err) }
    if st, _ := s.TransportState(transport.DirectionServer, "mem"); st != transport.StateStarted { t.Fatalf("mem server %s", st) }
    if st, _ := s.TransportState(transport.DirectionServer, "broken"); st != transport.StateRegistered { t.Fatalf("broken server %s", st) }
    // start is idempotent for started bindings
    _, err = s.Start(context.Background())
    if !errors.As(err, &se) || len(se.Failures) != 1 { t.Fatalf("second start: %v", err) }

    if err := s.Shutdown(context.Background()); err != nil { t.Fatalf("shutdown: %v", err) }
    if st, _ := s.TransportState(transport.DirectionClient, "mem"); st != transport.StateStopped { t.Fatalf("client %s", st) }
}

func TestProduceAssignsID(t *testing.T) {
    s, _ := newTestServient(t)
    th, err := s.Produce(td.New("lamp"))
    if err != nil { t.Fatalf("produce: %v", err) }
    if !strings.HasPrefix(th.ID(), "urn:uuid:") { t.Fatalf("id %q", th.ID()) }
    tmpl := td.New("fixed")
    tmpl.ID = "urn:dev:fixed"
    if _, err := s.Produce(tmpl); err != nil { t.Fatalf("produce: %v", err) }
    if _, err := s.Produce(tmpl); !errors.Is(err, ErrThingExists) { t.Fatalf("expected ErrThingExists, got %v", err) }
    if len(s.Things()) != 2 { t.Fatalf("things %d", len(s.Things())) }
    th.Destroy()
    if _, ok := s.Thing(th.ID()); ok { t.Fatalf("destroyed thing still registered") }
}

func TestExposeConsumeEndToEnd(t *testing.T) {
    ctx := context.Background()
    s, _ := newTestServient(t)
    rt, err := s.Start(ctx)
    if err != nil { t.Fatalf("start: %v", err) }
    defer s.Shutdown(ctx)

    th, _ := rt.Produce(td.New("Counter"))
    th.AddProperty("count", td.PropertyAffordance{DataSchema: td.DataSchema{Type: "integer"}, Observable: true}, exposed.WithValue(0)).
        AddProperty("number", td.PropertyAffordance{}).
        AddProperty("number2", td.PropertyAffordance{}).
        AddAction("increment", td.ActionAffordance{}).
        AddEvent("changed", td.EventAffordance{})
    number2, _ := th.Property("number2")
    _ = th.SetPropertyWriteHandler("number", func(_ context.Context, v any, _ *exposed.Slot) (any, error) {
        number2.Slot().Store(v.(float64) * 2)
        return v, nil
    })
    _ = th.SetActionHandler("increment", func(ctx context.Context, in any) (any, error) {
        p, _ := th.Property("count")
        n := p.Slot().Load().(int) + 1
        if err := p.Set(ctx, n); err != nil { return nil, err }
        _ = th.EmitEvent("changed", n)
        return n, nil
    })
    if err := th.Expose(ctx); err != nil { t.Fatalf("expose: %v", err) }

    thing, err := rt.FetchAndConsume(ctx, "mem://local/counter")
    if err != nil { t.Fatalf("fetch: %v", err) }
    if thing.Title() != "Counter" { t.Fatalf("title %q", thing.Title()) }

    events := make(chan any, 1)
    sub, err := thing.SubscribeEvent(ctx, "changed", func(v any) { events <- v }, nil)
    if err != nil { t.Fatalf("subscribe: %v", err) }
    defer sub.Stop(ctx)

    out, err := thing.InvokeAction(ctx, "increment", nil)
    if err != nil { t.Fatalf("invoke: %v", err) }
    if v, _ := out.Value(); v != 1.0 { t.Fatalf("output %v", v) }
    select {
    case v := <-events:
        if v != 1.0 { t.Fatalf("event %v", v) }
    case <-time.After(time.Second):
        t.Fatalf("no event")
    }

    if err := thing.WriteProperty(ctx, "number", 12); err != nil { t.Fatalf("write: %v", err) }
    got, err := thing.ReadProperty(ctx, "number2")
    if err != nil { t.Fatalf("read: %v", err) }
    if v, _ := got.Value(); v != 24.0 { t.Fatalf("number2 %v", v) }

    all, err := thing.ReadAllProperties(ctx)
    if err != nil { t.Fatalf("read all: %v", err) }
    if len(all) != 3 { t.Fatalf("read all returned %d", len(all)) }
}

func TestFetchViaTDScheme(t *testing.T) {
    s := New(Options{Logger: zap.NewNop(), DiscoveryCacheTTL: time.Minute})
    if err := s.AddClientFactory(tdFactory{}); err != nil { t.Fatalf("register: %v", err) }
    rt, err := s.Start(context.Background())
    if err != nil { t.Fatalf("start: %v", err) }
    defer s.Shutdown(context.Background())
    thing, err := rt.FetchAndConsume(context.Background(), "td://foo")
    if err != nil { t.Fatalf("fetch: %v", err) }
    if thing.Title() != "aThing" { t.Fatalf("title %q", thing.Title()) }
}

func TestDiscoveryCacheLimitAndMetrics(t *testing.T) {
    ctx := context.Background()
    core, logs := observer.New(zapcore.InfoLevel)
    s := New(Options{Logger: zap.New(core), DiscoveryCacheTTL: time.Minute})
    if err := s.AddClientFactory(tdFactory{}); err != nil { t.Fatalf("register: %v", err) }
    if _, err := s.Start(ctx); err != nil { t.Fatalf("start: %v", err) }
    if _, err := s.Fetch(ctx, "td://foo"); err != nil { t.Fatalf("fetch: %v", err) }
    if ttl, ok := s.CachedTTL("td://foo"); !ok || ttl <= 0 || ttl > time.Minute { t.Fatalf("cached ttl %v %v", ttl, ok) }
    if _, err := s.Fetch(ctx, "td://foo"); err != nil { t.Fatalf("second fetch: %v", err) }
    if err := s.Shutdown(ctx); err != nil { t.Fatalf("shutdown: %v", err) }
    entries := logs.FilterMessage("discovery cache").All()
    if len(entries) != 1 { t.Fatalf("cache metrics not logged: %v", logs.All()) }
    if f := entries[0].ContextMap(); f["keys"] != uint64(1) || f["hits"] != uint64(1) { t.Fatalf("metrics %v", f) }

    tiny := New(Options{Logger: zap.NewNop(), DiscoveryCacheTTL: time.Minute, DiscoveryCacheMaxBytes: 8})
    _ = tiny.AddClientFactory(tdFactory{})
    if _, err := tiny.Start(ctx); err != nil { t.Fatalf("start: %v", err) }
    defer tiny.Shutdown(ctx)
    if _, err := tiny.Fetch(ctx, "td://foo"); err != nil { t.Fatalf("fetch over a full cache must still succeed: %v", err) }
    if _, ok := tiny.CachedTTL("td://foo"); ok { t.Fatalf("td larger than the cache limit was cached") }
}

type tdClient struct{}

func (tdClient) ReadResource(context.Context, td.Form) (content.Content, error) {
    return content.Content{Type: content.TypeTD, Body: []byte(`{"title":"aThing","properties":{}}`)}, nil
}
func (tdClient) WriteResource(context.Context, td.Form, content.Content) error { return errors.New("unsupported") }
func (tdClient) InvokeResource(context.Context, td.Form, content.Content) (content.Content, error) {
    return content.Content{}, errors.New("unsupported")
}
func (tdClient) UnlinkResource(context.Context, td.Form) error { return errors.New("unsupported") }
func (tdClient) SubscribeResource(context.Context, td.Form, transport.Handlers) (transport.Subscription, error) {
    return nil, errors.New("unsupported")
}
func (tdClient) Start() bool                               { return true }
func (tdClient) Stop() bool                                { return true }
func (tdClient) SetSecurity([]td.SecurityScheme, any) bool { return false }

type tdFactory struct{}

func (tdFactory) Scheme() string           { return "td" }
func (tdFactory) Client() transport.Client { return tdClient{} }
func (tdFactory) Init() bool               { return true }
func (tdFactory) Destroy() bool            { return true }
