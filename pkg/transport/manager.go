package transport

import (
    "context"
    "errors"
    "fmt"
    "sort"
    "strings"
    "sync"

    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/eclipse/thingweb.node-wot/pkg/wot"
)

// Manager keeps at most one client factory and one server per scheme and
// moves them through Registered -> Started -> Stopped.
//
// Registration is expected during setup, before Start. A second registration
// for a scheme is rejected and the first one stays active.
type Manager struct {
    mu      sync.RWMutex
    clients map[string]*clientEntry
    servers map[string]*serverEntry
    // registration order, used for deterministic iteration
    clientOrder []string
    serverOrder []string
    log         *zap.Logger
}

type clientEntry struct {
    factory ClientFactory
    state   State
}

type serverEntry struct {
    server Server
    state  State
}

// Failure is one transport that failed to start or stop.
type Failure struct {
    Scheme    string
    Direction Direction
    Err       error
}

func (f Failure) Error() string { return fmt.Sprintf("%s %s: %v", f.Direction, f.Scheme, f.Err) }
func (f Failure) Unwrap() error { return f.Err }

var errReportedFalse = errors.New("transport reported failure")

func NewManager(log *zap.Logger) *Manager {
    if log == nil { log = zap.L() }
    return &Manager{
        clients: make(map[string]*clientEntry),
        servers: make(map[string]*serverEntry),
        log:     log,
    }
}

func normScheme(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// AddClientFactory registers the factory for its scheme.
func (m *Manager) AddClientFactory(f ClientFactory) error {
    scheme := normScheme(f.Scheme())
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, ok := m.clients[scheme]; ok {
        m.log.Warn("client factory rejected", zap.String("scheme", scheme))
        return fmt.Errorf("client %q: %w", scheme, wot.ErrSchemeConflict)
    }
    m.clients[scheme] = &clientEntry{factory: f}
    m.clientOrder = append(m.clientOrder, scheme)
    m.log.Debug("client factory registered", zap.String("scheme", scheme))
    return nil
}

// AddServer registers a server for its scheme.
func (m *Manager) AddServer(s Server) error {
    scheme := normScheme(s.Scheme())
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, ok := m.servers[scheme]; ok {
        m.log.Warn("server rejected", zap.String("scheme", scheme))
        return fmt.Errorf("server %q: %w", scheme, wot.ErrSchemeConflict)
    }
    m.servers[scheme] = &serverEntry{server: s}
    m.serverOrder = append(m.serverOrder, scheme)
    m.log.Debug("server registered", zap.String("scheme", scheme), zap.Int("port", s.Port()))
    return nil
}

// AddServerFactory builds the server right away and registers it.
func (m *Manager) AddServerFactory(f ServerFactory) error {
    m.mu.RLock()
    _, taken := m.servers[normScheme(f.Scheme())]
    m.mu.RUnlock()
    if taken { return fmt.Errorf("server %q: %w", normScheme(f.Scheme()), wot.ErrSchemeConflict) }
    s, err := f.NewServer()
    if err != nil { return fmt.Errorf("server %q: %w", f.Scheme(), err) }
    return m.AddServer(s)
}

// ClientFor returns the client registered for scheme.
func (m *Manager) ClientFor(scheme string) (Client, error) {
    scheme = normScheme(scheme)
    m.mu.RLock()
    e := m.clients[scheme]
    m.mu.RUnlock()
    if e == nil { return nil, fmt.Errorf("%w: %q", wot.ErrNoTransportForScheme, scheme) }
    return e.factory.Client(), nil
}

// HasClient reports whether a client is registered for scheme.
func (m *Manager) HasClient(scheme string) bool {
    m.mu.RLock()
    defer m.mu.RUnlock()
    _, ok := m.clients[normScheme(scheme)]
    return ok
}

// ClientSchemes lists client schemes, sorted.
func (m *Manager) ClientSchemes() []string {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := append([]string(nil), m.clientOrder...)
    sort.Strings(out)
    return out
}

// Servers returns the registered servers in registration order.
func (m *Manager) Servers() []Server {
    m.mu.RLock(); defer m.mu.RUnlock()
    out := make([]Server, 0, len(m.serverOrder))
    for _, s := range m.serverOrder { out = append(out, m.servers[s].server) }
    return out
}

// State returns the lifecycle state of a registered transport.
func (m *Manager) State(dir Direction, scheme string) (State, bool) {
    scheme = normScheme(scheme)
    m.mu.RLock(); defer m.mu.RUnlock()
    switch dir {
    case DirectionClient:
        if e := m.clients[scheme]; e != nil { return e.state, true }
    case DirectionServer:
        if e := m.servers[scheme]; e != nil { return e.state, true }
    }
    return 0, false
}

// Start starts every transport not already started. One failing transport
// does not keep the others from starting; failures are returned sorted by
// direction and scheme. A failed transport stays Registered. Once ctx is
// done, transports not yet started are reported with the context error.
func (m *Manager) Start(ctx context.Context) []Failure {
    var (
        fmu      sync.Mutex
        failures []Failure
    )
    g, gctx := errgroup.WithContext(ctx)
    fail := func(f Failure) { fmu.Lock(); failures = append(failures, f); fmu.Unlock() }

    type pendingClient struct{ scheme string; f ClientFactory }
    type pendingServer struct{ scheme string; s Server }
    var pc []pendingClient
    var psv []pendingServer
    m.mu.RLock()
    for _, scheme := range m.clientOrder {
        if e := m.clients[scheme]; e.state != StateStarted { pc = append(pc, pendingClient{scheme, e.factory}) }
    }
    for _, scheme := range m.serverOrder {
        if e := m.servers[scheme]; e.state != StateStarted { psv = append(psv, pendingServer{scheme, e.server}) }
    }
    m.mu.RUnlock()

    for _, p := range pc {
        p := p
        g.Go(func() error {
            if err := gctx.Err(); err != nil {
                fail(Failure{Scheme: p.scheme, Direction: DirectionClient, Err: err})
                return err
            }
            if err := startClient(p.f); err != nil {
                fail(Failure{Scheme: p.scheme, Direction: DirectionClient, Err: err})
                return nil
            }
            m.setState(DirectionClient, p.scheme, StateStarted)
            return nil
        })
    }
    for _, p := range psv {
        p := p
        g.Go(func() error {
            if err := gctx.Err(); err != nil {
                fail(Failure{Scheme: p.scheme, Direction: DirectionServer, Err: err})
                return err
            }
            if err := p.s.Start(gctx); err != nil {
                fail(Failure{Scheme: p.scheme, Direction: DirectionServer, Err: err})
                return nil
            }
            m.setState(DirectionServer, p.scheme, StateStarted)
            return nil
        })
    }
    if err := g.Wait(); err != nil { m.log.Warn("transport start interrupted", zap.Error(err)) }

    sortFailures(failures)
    for _, f := range failures {
        m.log.Error("transport start failed", zap.String("scheme", f.Scheme), zap.Stringer("direction", f.Direction), zap.Error(f.Err))
    }
    return failures
}

func startClient(f ClientFactory) error {
    if !f.Init() { return fmt.Errorf("init: %w", errReportedFalse) }
    if !f.Client().Start() { return fmt.Errorf("start: %w", errReportedFalse) }
    return nil
}

// Stop stops every transport best effort and marks all of them Stopped.
func (m *Manager) Stop(ctx context.Context) []Failure {
    var failures []Failure
    m.mu.Lock()
    defer m.mu.Unlock()
    for _, scheme := range m.serverOrder {
        e := m.servers[scheme]
        if e.state == StateStarted {
            if err := e.server.Stop(ctx); err != nil {
                failures = append(failures, Failure{Scheme: scheme, Direction: DirectionServer, Err: err})
            }
        }
        e.state = StateStopped
    }
    for _, scheme := range m.clientOrder {
        e := m.clients[scheme]
        if e.state == StateStarted {
            if !e.factory.Client().Stop() {
                failures = append(failures, Failure{Scheme: scheme, Direction: DirectionClient, Err: fmt.Errorf("stop: %w", errReportedFalse)})
            }
            if !e.factory.Destroy() {
                failures = append(failures, Failure{Scheme: scheme, Direction: DirectionClient, Err: fmt.Errorf("destroy: %w", errReportedFalse)})
            }
        }
        e.state = StateStopped
    }
    for _, f := range failures {
        m.log.Warn("transport stop failed", zap.String("scheme", f.Scheme), zap.Stringer("direction", f.Direction), zap.Error(f.Err))
    }
    return failures
}

func (m *Manager) setState(dir Direction, scheme string, st State) {
    m.mu.Lock(); defer m.mu.Unlock()
    switch dir {
    case DirectionClient:
        if e := m.clients[scheme]; e != nil { e.state = st }
    case DirectionServer:
        if e := m.servers[scheme]; e != nil { e.state = st }
    }
}

func sortFailures(fs []Failure) {
    sort.Slice(fs, func(i, j int) bool {
        if fs[i].Direction != fs[j].Direction { return fs[i].Direction < fs[j].Direction }
        return fs[i].Scheme < fs[j].Scheme
    })
}
