// Package discovery resolves a Thing Description from a URI through the
// client registered for the URI's scheme.
package discovery

import (
    "context"
    "encoding/json"
    "fmt"
    "net/url"
    "time"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/memkv"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// ClientSource resolves a URI scheme to a transport client.
type ClientSource interface {
    ClientFor(scheme string) (transport.Client, error)
}

// Fetcher reads TDs, optionally caching the raw documents for a TTL.
type Fetcher struct {
    clients ClientSource
    codecs  *content.Registry
    cache   *memkv.Store
    ttl     time.Duration
    log     *zap.Logger
}

type Option func(*Fetcher)

// WithCache keeps fetched documents in store for ttl. A zero ttl disables
// caching.
func WithCache(store *memkv.Store, ttl time.Duration) Option {
    return func(f *Fetcher) { f.cache, f.ttl = store, ttl }
}

func WithLogger(l *zap.Logger) Option {
    return func(f *Fetcher) { if l != nil { f.log = l } }
}

func NewFetcher(clients ClientSource, codecs *content.Registry, opts ...Option) *Fetcher {
    if codecs == nil { codecs = content.NewRegistry() }
    f := &Fetcher{clients: clients, codecs: codecs, log: zap.L()}
    for _, fn := range opts { fn(f) }
    return f
}

// Fetch reads the TD at uri.
func (f *Fetcher) Fetch(ctx context.Context, uri string) (*td.Thing, error) {
    if f.cacheable() {
        if b, ok := f.cache.Get(uri); ok {
            if thing, err := td.Parse(b); err == nil {
                f.log.Debug("td cache hit", zap.String("uri", uri))
                return thing, nil
            }
            f.cache.Delete(uri)
        }
    }
    u, err := url.Parse(uri)
    if err != nil { return nil, fmt.Errorf("fetch %q: %w", uri, err) }
    if u.Scheme == "" { return nil, fmt.Errorf("fetch %q: %w: missing scheme", uri, wot.ErrNoTransportForScheme) }
    c, err := f.clients.ClientFor(u.Scheme)
    if err != nil { return nil, fmt.Errorf("fetch %q: %w", uri, err) }

    form := td.Form{Href: uri, ContentType: content.TypeTD, Op: td.Ops{td.OpReadProperty}}
    out, err := c.ReadResource(ctx, form)
    if err != nil { return nil, fmt.Errorf("fetch %q: %w", uri, err) }
    thing, err := f.decode(out)
    if err != nil { return nil, fmt.Errorf("fetch %q: %w", uri, err) }
    f.log.Info("td fetched", zap.String("uri", uri), zap.String("title", thing.Title))

    if f.cacheable() {
        if b, err := json.Marshal(thing); err == nil && !f.cache.Set(uri, b, f.ttl) {
            f.log.Debug("td not cached; cache is full", zap.String("uri", uri), zap.Int("bytes", len(b)))
        }
    }
    return thing, nil
}

// Invalidate drops a cached document.
func (f *Fetcher) Invalidate(uri string) {
    if f.cache != nil { f.cache.Delete(uri) }
}

func (f *Fetcher) cacheable() bool { return f.cache != nil && f.ttl > 0 }

// decode accepts TD payloads and plain JSON documents served under another
// media type.
func (f *Fetcher) decode(c content.Content) (*td.Thing, error) {
    if c.Type == "" { c.Type = content.TypeTD }
    v, err := f.codecs.Decode(c)
    if err == nil {
        if thing, ok := v.(*td.Thing); ok { return thing, nil }
    }
    thing, perr := td.Parse(c.Body)
    if perr != nil {
        if err != nil { return nil, err }
        return nil, fmt.Errorf("%w: %s payload is not a TD: %v", wot.ErrDecode, c.Type, perr)
    }
    return thing, nil
}
