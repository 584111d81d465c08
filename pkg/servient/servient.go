// Package servient hosts transport bindings for both consuming and exposing
// Things. A Servient is an explicit context object: build one, register
// bindings, Start it and hand the returned Runtime to application code.
package servient

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
    "go.uber.org/multierr"
    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/consumed"
    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/discovery"
    "github.com/eclipse/thingweb.node-wot/pkg/exposed"
    "github.com/eclipse/thingweb.node-wot/pkg/memkv"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
)

// Options tunes a Servient. Zero values pick the defaults.
type Options struct {
    Logger *zap.Logger
    Codecs *content.Registry

    // ContentType is used for the forms of exposed Things.
    ContentType string
    // EventQueueSize and DeliveryTimeout bound per-subscriber delivery.
    EventQueueSize  int
    DeliveryTimeout time.Duration
    // DiscoveryCacheTTL keeps fetched TDs for this long; 0 disables the cache.
    DiscoveryCacheTTL time.Duration
    // DiscoveryCacheMaxBytes caps the cached TD bytes; 0 means unlimited.
    DiscoveryCacheMaxBytes uint64
}

var ErrThingExists = errors.New("thing id already produced")

type Servient struct {
    opts    Options
    log     *zap.Logger
    codecs  *content.Registry
    mgr     *transport.Manager
    cache   *memkv.Store
    fetcher *discovery.Fetcher

    mu     sync.RWMutex
    things map[string]*exposed.Thing
    creds  map[string]any
}

func New(opts Options) *Servient {
    if opts.Logger == nil { opts.Logger = zap.L() }
    if opts.Codecs == nil { opts.Codecs = content.NewRegistry() }
    if opts.ContentType == "" { opts.ContentType = td.DefaultContentType }
    s := &Servient{
        opts:   opts,
        log:    opts.Logger.Named("servient"),
        codecs: opts.Codecs,
        mgr:    transport.NewManager(opts.Logger.Named("transport")),
        things: make(map[string]*exposed.Thing),
        creds:  make(map[string]any),
    }
    fopts := []discovery.Option{discovery.WithLogger(opts.Logger.Named("discovery"))}
    if opts.DiscoveryCacheTTL > 0 {
        s.cache = memkv.New(memkv.Options{MaxBytes: opts.DiscoveryCacheMaxBytes})
        fopts = append(fopts, discovery.WithCache(s.cache, opts.DiscoveryCacheTTL))
    }
    s.fetcher = discovery.NewFetcher(s.mgr, s.codecs, fopts...)
    return s
}

// Codecs returns the shared codec registry.
func (s *Servient) Codecs() *content.Registry { return s.codecs }

// AddClientFactory registers a client binding. A scheme that is already
// taken is rejected with wot.ErrSchemeConflict; the first factory stays.
func (s *Servient) AddClientFactory(f transport.ClientFactory) error { return s.mgr.AddClientFactory(f) }

// AddServer registers a server binding; duplicates are rejected.
func (s *Servient) AddServer(srv transport.Server) error { return s.mgr.AddServer(srv) }

func (s *Servient) AddServerFactory(f transport.ServerFactory) error { return s.mgr.AddServerFactory(f) }

// ClientFor returns the client registered for scheme.
func (s *Servient) ClientFor(scheme string) (transport.Client, error) { return s.mgr.ClientFor(scheme) }

func (s *Servient) ClientSchemes() []string { return s.mgr.ClientSchemes() }

func (s *Servient) Servers() []transport.Server { return s.mgr.Servers() }

// TransportState reports the lifecycle state of a registered binding.
func (s *Servient) TransportState(dir transport.Direction, scheme string) (transport.State, bool) {
    return s.mgr.State(dir, scheme)
}

// AddCredentials stores credentials handed to the security hook whenever
// the Thing with the given id is consumed.
func (s *Servient) AddCredentials(thingID string, creds any) {
    s.mu.Lock(); defer s.mu.Unlock()
    s.creds[thingID] = creds
}

func (s *Servient) credentialsFor(thingID string) any {
    s.mu.RLock(); defer s.mu.RUnlock()
    return s.creds[thingID]
}

// StartError lists the bindings that failed to start.
type StartError struct {
    Failures []transport.Failure
}

func (e *StartError) Error() string {
    parts := make([]string, len(e.Failures))
    for i, f := range e.Failures { parts[i] = f.Error() }
    return fmt.Sprintf("%d transport(s) failed to start: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *StartError) Unwrap() []error {
    out := make([]error, len(e.Failures))
    for i, f := range e.Failures { out[i] = f }
    return out
}

// Start starts every registered binding. The Runtime is returned even when
// some bindings fail; the error is then a *StartError.
func (s *Servient) Start(ctx context.Context) (*Runtime, error) {
    failures := s.mgr.Start(ctx)
    rt := &Runtime{s: s}
    s.log.Info("servient started",
        zap.Strings("clients", s.mgr.ClientSchemes()),
        zap.Int("servers", len(s.mgr.Servers())),
        zap.Int("failures", len(failures)))
    if len(failures) > 0 { return rt, &StartError{Failures: failures} }
    return rt, nil
}

// Shutdown destroys every produced Thing and stops all bindings best effort.
func (s *Servient) Shutdown(ctx context.Context) error {
    s.mu.Lock()
    things := make([]*exposed.Thing, 0, len(s.things))
    for _, t := range s.things { things = append(things, t) }
    s.mu.Unlock()
    for _, t := range things { t.Destroy() }

    var err error
    for _, f := range s.mgr.Stop(ctx) { err = multierr.Append(err, f) }
    if s.cache != nil {
        m := s.cache.Metrics()
        s.log.Info("discovery cache",
            zap.Uint64("keys", m.Keys),
            zap.Uint64("bytes", m.Bytes),
            zap.Uint64("hits", m.Hits),
            zap.Uint64("misses", m.Misses),
            zap.Uint64("expired", m.Expired))
        s.cache.Close()
    }
    s.log.Info("servient stopped", zap.Int("things", len(things)), zap.Error(err))
    return err
}

// Produce creates an exposed Thing from a template. A missing id is filled
// with a urn:uuid identifier.
func (s *Servient) Produce(tmpl *td.Thing) (*exposed.Thing, error) {
    if tmpl == nil { tmpl = td.New("") }
    desc := tmpl.Clone()
    if desc.ID == "" { desc.ID = "urn:uuid:" + uuid.NewString() }

    s.mu.Lock()
    defer s.mu.Unlock()
    if _, ok := s.things[desc.ID]; ok { return nil, fmt.Errorf("%w: %s", ErrThingExists, desc.ID) }
    t := exposed.New(desc, s.codecs,
        exposed.WithLogger(s.opts.Logger.Named("exposed")),
        exposed.WithQueueSize(s.opts.EventQueueSize),
        exposed.WithDeliveryTimeout(s.opts.DeliveryTimeout),
        exposed.WithContentType(s.opts.ContentType),
        exposed.WithServers(s.mgr.Servers),
        exposed.WithOnDestroy(s.forget),
    )
    s.things[desc.ID] = t
    s.log.Info("thing produced", zap.String("id", desc.ID), zap.String("title", desc.Title))
    return t, nil
}

// ProduceJSON parses a TD or template document and produces it.
func (s *Servient) ProduceJSON(b []byte) (*exposed.Thing, error) {
    desc, err := td.Parse(b)
    if err != nil { return nil, fmt.Errorf("produce: %w", err) }
    return s.Produce(desc)
}

func (s *Servient) forget(t *exposed.Thing) {
    s.mu.Lock(); defer s.mu.Unlock()
    if s.things[t.ID()] == t { delete(s.things, t.ID()) }
}

// Thing returns a produced Thing by id.
func (s *Servient) Thing(id string) (*exposed.Thing, bool) {
    s.mu.RLock(); defer s.mu.RUnlock()
    t, ok := s.things[id]
    return t, ok
}

// Things lists produced Things ordered by id.
func (s *Servient) Things() []*exposed.Thing {
    s.mu.RLock(); defer s.mu.RUnlock()
    ids := make([]string, 0, len(s.things))
    for id := range s.things { ids = append(ids, id) }
    sort.Strings(ids)
    out := make([]*exposed.Thing, len(ids))
    for i, id := range ids { out[i] = s.things[id] }
    return out
}

// Consume builds a consumed Thing over desc.
func (s *Servient) Consume(desc *td.Thing) *consumed.Thing {
    return consumed.New(desc, s.mgr, s.codecs,
        consumed.WithLogger(s.opts.Logger.Named("consumed")),
        consumed.WithCredentials(s.credentialsFor(desc.ID)),
    )
}

// Fetch reads a TD from uri through the client of the uri's scheme.
func (s *Servient) Fetch(ctx context.Context, uri string) (*td.Thing, error) {
    return s.fetcher.Fetch(ctx, uri)
}

// CachedTTL reports whether the TD of uri is cached and how long it stays.
func (s *Servient) CachedTTL(uri string) (time.Duration, bool) {
    if s.cache == nil { return 0, false }
    return s.cache.TTL(uri)
}

// Invalidate drops a cached TD.
func (s *Servient) Invalidate(uri string) { s.fetcher.Invalidate(uri) }
