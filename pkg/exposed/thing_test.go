package exposed

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

func newTestThing(opts ...Option) *Thing {
    return New(td.New("Test Thing"), content.NewRegistry(), opts...)
}

func rw() td.PropertyAffordance { return td.PropertyAffordance{DataSchema: td.DataSchema{Type: "number"}} }

func observable() td.PropertyAffordance {
    p := rw()
    p.Observable = true
    return p
}

func TestPropertyRoundTrip(t *testing.T) {
    ctx := context.Background()
    th := newTestThing().AddProperty("n", rw())
    for _, v := range []any{float64(1), "s", true, map[string]any{"a": 1.0}} {
        if err := th.WriteProperty(ctx, "n", v); err != nil { t.Fatalf("write %v: %v", v, err) }
        got, err := th.ReadProperty(ctx, "n")
        if err != nil { t.Fatalf("read: %v", err) }
        if m, ok := v.(map[string]any); ok {
            if got.(map[string]any)["a"] != m["a"] { t.Fatalf("got %v want %v", got, v) }
            continue
        }
        if got != v { t.Fatalf("got %v want %v", got, v) }
    }
}

func TestPropertyUnsetOnFirstRead(t *testing.T) {
    th := newTestThing().AddProperty("n", rw()).AddProperty("init", rw(), WithValue(nil))
    v, err := th.ReadProperty(context.Background(), "n")
    if err != nil { t.Fatalf("read: %v", err) }
    if !IsUnset(v) { t.Fatalf("expected Unset, got %#v", v) }
    v, _ = th.ReadProperty(context.Background(), "init")
    if IsUnset(v) || v != nil { t.Fatalf("explicit nil must not read as Unset, got %#v", v) }
}

func TestReadHandlerCounter(t *testing.T) {
    ctx := context.Background()
    th := newTestThing().AddProperty("counter", rw())
    n := 0
    if err := th.SetPropertyReadHandler("counter", func(context.Context, *Slot) (any, error) { n++; return n, nil }); err != nil {
        t.Fatalf("set handler: %v", err)
    }
    for i := 1; i <= 5; i++ {
        v, err := th.ReadProperty(ctx, "counter")
        if err != nil { t.Fatalf("read: %v", err) }
        if v != i { t.Fatalf("read %d: got %v", i, v) }
    }
}

func TestWriteHandlerOldPlusNew(t *testing.T) {
    ctx := context.Background()
    th := newTestThing().AddProperty("sum", rw(), WithValue(2))
    _ = th.SetPropertyWriteHandler("sum", func(_ context.Context, v any, s *Slot) (any, error) {
        return s.Load().(int) + v.(int), nil
    })
    for _, tc := range []struct{ in, want int }{{1, 3}, {2, 5}} {
        if err := th.WriteProperty(ctx, "sum", tc.in); err != nil { t.Fatalf("write: %v", err) }
        got, _ := th.ReadProperty(ctx, "sum")
        if got != tc.want { t.Fatalf("after writing %d got %v want %d", tc.in, got, tc.want) }
    }
}

func TestWriteHandlerUpdatesOtherProperty(t *testing.T) {
    ctx := context.Background()
    th := newTestThing().AddProperty("number", rw()).AddProperty("number2", rw())
    other, _ := th.Property("number2")
    _ = th.SetPropertyWriteHandler("number", func(_ context.Context, v any, s *Slot) (any, error) {
        other.Slot().Store(v.(float64) * 2)
        return v, nil
    })
    if err := th.WriteProperty(ctx, "number", 12.0); err != nil { t.Fatalf("write: %v", err) }
    got, _ := th.ReadProperty(ctx, "number2")
    if got != 24.0 { t.Fatalf("number2 = %v", got) }
}

func TestReadYourOwnWriteInHandler(t *testing.T) {
    ctx := context.Background()
    th := newTestThing().AddProperty("p", rw())
    var seen any
    _ = th.SetPropertyWriteHandler("p", func(_ context.Context, v any, s *Slot) (any, error) {
        s.Store(v)
        seen = s.Load()
        return v, nil
    })
    _ = th.WriteProperty(ctx, "p", 7)
    if seen != 7 { t.Fatalf("handler saw %v", seen) }
}

func TestHandlerErrorPropagates(t *testing.T) {
    boom := errors.New("boom")
    th := newTestThing().AddProperty("p", rw())
    _ = th.SetPropertyReadHandler("p", func(context.Context, *Slot) (any, error) { return nil, boom })
    _, err := th.ReadProperty(context.Background(), "p")
    if !errors.Is(err, boom) { t.Fatalf("expected boom, got %v", err) }
    if he, ok := wot.AsHandlerError(err); !ok || he.Op != "read" { t.Fatalf("expected read HandlerError, got %v", err) }
}

func TestObserveNonObservable(t *testing.T) {
    th := newTestThing().AddProperty("p", rw())
    called := false
    _, err := th.ObserveProperty("p", func(any) { called = true })
    if !errors.Is(err, wot.ErrNotObservable) { t.Fatalf("expected ErrNotObservable, got %v", err) }
    _ = th.WriteProperty(context.Background(), "p", 1)
    if called { t.Fatalf("listener must not run") }
}

func TestObserveProperty(t *testing.T) {
    th := newTestThing().AddProperty("p", observable())
    got := make(chan any, 4)
    sub, err := th.ObserveProperty("p", func(v any) { got <- v })
    if err != nil { t.Fatalf("observe: %v", err) }
    defer sub.Cancel()
    _ = th.WriteProperty(context.Background(), "p", 5)
    select {
    case v := <-got:
        if v != 5 { t.Fatalf("got %v", v) }
    case <-time.After(time.Second):
        t.Fatalf("no notification")
    }
}

func TestActionRun(t *testing.T) {
    th := newTestThing().AddAction("answer", td.ActionAffordance{})
    _ = th.SetActionHandler("answer", func(_ context.Context, in any) (any, error) {
        if in != 23 { return nil, errors.New("bad input") }
        return 42, nil
    })
    out, err := th.InvokeAction(context.Background(), "answer", 23)
    if err != nil { t.Fatalf("invoke: %v", err) }
    if out != 42 { t.Fatalf("got %v", out) }
}

func TestActionWithoutHandler(t *testing.T) {
    th := newTestThing().AddAction("a", td.ActionAffordance{})
    _, err := th.InvokeAction(context.Background(), "a", nil)
    if !errors.Is(err, wot.ErrNoHandler) { t.Fatalf("expected ErrNoHandler, got %v", err) }
}

func TestUnknownAffordance(t *testing.T) {
    th := newTestThing()
    if _, err := th.ReadProperty(context.Background(), "x"); !errors.Is(err, wot.ErrAffordanceNotFound) { t.Fatalf("read: %v", err) }
    if _, err := th.InvokeAction(context.Background(), "x", nil); !errors.Is(err, wot.ErrAffordanceNotFound) { t.Fatalf("invoke: %v", err) }
    if err := th.EmitEvent("x", nil); !errors.Is(err, wot.ErrAffordanceNotFound) { t.Fatalf("emit: %v", err) }
}

func TestEventPerSubscriberOrder(t *testing.T) {
    th := newTestThing().AddEvent("e", td.EventAffordance{})
    const n = 50
    var wg sync.WaitGroup
    results := make([][]int, 3)
    for i := range results {
        i := i
        wg.Add(n)
        sub, err := th.SubscribeEvent("e", func(v any) { results[i] = append(results[i], v.(int)); wg.Done() })
        if err != nil { t.Fatalf("subscribe: %v", err) }
        defer sub.Cancel()
    }
    for k := 0; k < n; k++ { _ = th.EmitEvent("e", k) }
    waitGroup(t, &wg)
    for i, r := range results {
        for k, v := range r {
            if v != k { t.Fatalf("subscriber %d got %v at %d", i, v, k) }
        }
    }
}

func TestPanickingListenerDoesNotBlockOthers(t *testing.T) {
    th := newTestThing().AddEvent("e", td.EventAffordance{})
    s1, _ := th.SubscribeEvent("e", func(any) { panic("listener") })
    defer s1.Cancel()
    got := make(chan any, 1)
    s2, _ := th.SubscribeEvent("e", func(v any) { got <- v })
    defer s2.Cancel()
    _ = th.EmitEvent("e", "x")
    select {
    case v := <-got:
        if v != "x" { t.Fatalf("got %v", v) }
    case <-time.After(time.Second):
        t.Fatalf("second listener starved")
    }
}

func TestCancelStopsDelivery(t *testing.T) {
    th := newTestThing().AddEvent("e", td.EventAffordance{})
    var mu sync.Mutex
    count := 0
    sub, _ := th.SubscribeEvent("e", func(any) { mu.Lock(); count++; mu.Unlock() })
    sub.Cancel()
    sub.Cancel()
    _ = th.EmitEvent("e", 1)
    time.Sleep(20 * time.Millisecond)
    mu.Lock(); defer mu.Unlock()
    if count != 0 { t.Fatalf("canceled listener ran %d times", count) }
    e, _ := th.Event("e")
    if e.Subscribers() != 0 { t.Fatalf("subscription still registered") }
}

func TestDestroyCancelsSubscriptions(t *testing.T) {
    destroyed := make(chan struct{})
    th := newTestThing(WithOnDestroy(func(*Thing) { close(destroyed) })).
        AddEvent("e", td.EventAffordance{}).
        AddProperty("p", observable())
    es, _ := th.SubscribeEvent("e", func(any) {})
    ps, _ := th.ObserveProperty("p", func(any) {})
    th.Destroy()
    th.Destroy()
    for _, s := range []*Subscription{es, ps} {
        select {
        case <-s.Done():
        default:
            t.Fatalf("subscription %s still open", s.ID())
        }
    }
    select {
    case <-destroyed:
    default:
        t.Fatalf("onDestroy not called")
    }
    if err := th.Expose(context.Background()); err == nil { t.Fatalf("expose after destroy must fail") }
}

func TestAddPropertyTwiceReplaces(t *testing.T) {
    th := newTestThing().AddProperty("p", observable(), WithValue(1))
    sub, _ := th.ObserveProperty("p", func(any) {})
    th.AddProperty("p", rw(), WithValue(2))
    v, _ := th.ReadProperty(context.Background(), "p")
    if v != 2 { t.Fatalf("got %v", v) }
    select {
    case <-sub.Done():
    default:
        t.Fatalf("old observers must be closed")
    }
    if n := len(th.ThingDescription().PropertyNames()); n != 1 { t.Fatalf("td has %d properties", n) }
}

func TestRemoveAffordances(t *testing.T) {
    th := newTestThing().AddProperty("p", rw()).AddAction("a", td.ActionAffordance{}).AddEvent("e", td.EventAffordance{})
    if err := th.RemoveProperty("p"); err != nil { t.Fatalf("remove property: %v", err) }
    if err := th.RemoveAction("a"); err != nil { t.Fatalf("remove action: %v", err) }
    if err := th.RemoveEvent("e"); err != nil { t.Fatalf("remove event: %v", err) }
    if err := th.RemoveProperty("p"); !errors.Is(err, wot.ErrAffordanceNotFound) { t.Fatalf("second remove: %v", err) }
    desc := th.ThingDescription()
    if len(desc.Properties)+len(desc.Actions)+len(desc.Events) != 0 { t.Fatalf("td not emptied: %+v", desc) }
}

func TestTemplateAffordances(t *testing.T) {
    tmpl := td.New("tmpl")
    tmpl.SetProperty("p", &td.PropertyAffordance{Observable: true})
    tmpl.SetAction("a", &td.ActionAffordance{})
    th := New(tmpl, nil)
    if _, err := th.Property("p"); err != nil { t.Fatalf("property: %v", err) }
    if _, err := th.Action("a"); err != nil { t.Fatalf("action: %v", err) }
    tmpl.Title = "changed"
    if th.Title() != "tmpl" { t.Fatalf("template must be copied") }
}

func waitGroup(t *testing.T, wg *sync.WaitGroup) {
    t.Helper()
    done := make(chan struct{})
    go func() { wg.Wait(); close(done) }()
    select {
    case <-done:
    case <-time.After(2 * time.Second):
        t.Fatalf("timed out waiting for deliveries")
    }
}
