package discovery

import (
    "context"
    "errors"
    "sync/atomic"
    "testing"
    "time"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/memkv"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

const fixedTD = `{
  "@context": ["https://w3c.github.io/wot/w3c-wot-td-context.jsonld"],
  "@type": ["Thing"],
  "id": "urn:dev:wot:test-thing",
  "title": "aThing",
  "security": [{"scheme": "nosec"}],
  "properties": {
    "aProperty": {
      "type": "integer",
      "readOnly": false,
      "forms": [
        {"href": "testdata://host/athing/properties/aproperty", "mediaType": "application/json"}
      ]
    },
    "aPropertyToObserve": {
      "type": "integer",
      "readOnly": false,
      "observable": true,
      "forms": [
        {"href": "testdata://host/athing/properties/apropertytoobserve", "mediaType": "application/json", "op": ["observeproperty"]}
      ]
    }
  },
  "actions": {
    "anAction": {
      "input": {"type": "integer"},
      "output": {"type": "integer"},
      "forms": [
        {"href": "testdata://host/athing/actions/anaction", "mediaType": "application/json"}
      ]
    }
  },
  "events": {
    "anEvent": {
      "type": "number",
      "forms": [
        {"href": "testdata://host/athing/events/anevent", "mediaType": "application/json"}
      ]
    }
  }
}`

// tdClient serves the same document for every read.
type tdClient struct {
    mediaType string
    reads     atomic.Int32
}

func (c *tdClient) ReadResource(context.Context, td.Form) (content.Content, error) {
    c.reads.Add(1)
    return content.Content{Type: c.mediaType, Body: []byte(fixedTD)}, nil
}
func (c *tdClient) WriteResource(context.Context, td.Form, content.Content) error { return errors.New("not implemented") }
func (c *tdClient) InvokeResource(context.Context, td.Form, content.Content) (content.Content, error) {
    return content.Content{}, errors.New("not implemented")
}
func (c *tdClient) UnlinkResource(context.Context, td.Form) error { return errors.New("not implemented") }
func (c *tdClient) SubscribeResource(context.Context, td.Form, transport.Handlers) (transport.Subscription, error) {
    return transport.SubscriptionFunc(func() {}), nil
}
func (c *tdClient) Start() bool                                 { return true }
func (c *tdClient) Stop() bool                                  { return true }
func (c *tdClient) SetSecurity([]td.SecurityScheme, any) bool   { return false }

type source map[string]transport.Client

func (s source) ClientFor(scheme string) (transport.Client, error) {
    if c, ok := s[scheme]; ok { return c, nil }
    return nil, wot.ErrNoTransportForScheme
}

func TestFetch(t *testing.T) {
    for _, mt := range []string{content.TypeTD, content.TypeJSON, ""} {
        f := NewFetcher(source{"td": &tdClient{mediaType: mt}}, nil, WithLogger(zap.NewNop()))
        thing, err := f.Fetch(context.Background(), "td://foo")
        if err != nil { t.Fatalf("%q: fetch: %v", mt, err) }
        if thing.Title != "aThing" { t.Fatalf("%q: title %q", mt, thing.Title) }
        if _, ok := thing.Properties["aProperty"]; !ok { t.Fatalf("%q: properties missing", mt) }
        if sc := thing.SecuritySchemes(); len(sc) != 1 || sc[0].Scheme != "nosec" { t.Fatalf("%q: inline security %+v", mt, sc) }
    }
}

func TestFetchUnknownScheme(t *testing.T) {
    f := NewFetcher(source{}, nil, WithLogger(zap.NewNop()))
    if _, err := f.Fetch(context.Background(), "coap://foo"); !errors.Is(err, wot.ErrNoTransportForScheme) {
        t.Fatalf("expected ErrNoTransportForScheme, got %v", err)
    }
    if _, err := f.Fetch(context.Background(), "foo"); !errors.Is(err, wot.ErrNoTransportForScheme) {
        t.Fatalf("expected ErrNoTransportForScheme for relative uri, got %v", err)
    }
}

func TestFetchNotATD(t *testing.T) {
    c := &tdClient{mediaType: content.TypeText}
    f := NewFetcher(source{"td": c}, nil, WithLogger(zap.NewNop()))
    thing, err := f.Fetch(context.Background(), "td://foo")
    if err != nil || thing.Title != "aThing" { t.Fatalf("text payload holding a TD: %v %v", thing, err) }
}

func TestFetchCache(t *testing.T) {
    store := memkv.New(memkv.Options{})
    defer store.Close()
    c := &tdClient{mediaType: content.TypeTD}
    f := NewFetcher(source{"td": c}, nil, WithCache(store, time.Minute), WithLogger(zap.NewNop()))
    for i := 0; i < 3; i++ {
        thing, err := f.Fetch(context.Background(), "td://foo")
        if err != nil || thing.Title != "aThing" { t.Fatalf("fetch %d: %v", i, err) }
    }
    if n := c.reads.Load(); n != 1 { t.Fatalf("transport read %d times", n) }
    f.Invalidate("td://foo")
    if _, err := f.Fetch(context.Background(), "td://foo"); err != nil { t.Fatalf("fetch: %v", err) }
    if n := c.reads.Load(); n != 2 { t.Fatalf("invalidate ignored, reads=%d", n) }
}
