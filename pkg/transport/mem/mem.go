// Package mem is an in-process binding for scheme "mem". Servers attach to a
// Network under a host name; clients resolve "mem://<host>/<path>" hrefs to
// the listener bound at that path. Useful for tests and for wiring a consumer
// to a Thing exposed in the same process.
package mem

import (
    "context"
    "errors"
    "fmt"
    "net/url"
    "sort"
    "strings"
    "sync"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
)

const Scheme = "mem"

var (
    ErrNoServer   = errors.New("mem: no server for host")
    ErrNoResource = errors.New("mem: no resource at path")
    ErrHostInUse  = errors.New("mem: host already attached")
    ErrStopped    = errors.New("mem: client not started")
)

// Network connects mem clients to mem servers by host name.
type Network struct {
    mu      sync.Mutex
    servers map[string]*Server
}

func NewNetwork() *Network { return &Network{servers: make(map[string]*Server)} }

// Networks hands out named networks, creating them on first use. Clients and
// servers configured with the same name reach each other.
type Networks struct {
    mu   sync.Mutex
    nets map[string]*Network
}

// DefaultNetwork is the name used when a binding does not pick one.
const DefaultNetwork = "default"

func NewNetworks() *Networks { return &Networks{nets: make(map[string]*Network)} }

// Get returns the network called name; "" means DefaultNetwork.
func (ns *Networks) Get(name string) *Network {
    name = strings.ToLower(strings.TrimSpace(name))
    if name == "" { name = DefaultNetwork }
    ns.mu.Lock(); defer ns.mu.Unlock()
    n, ok := ns.nets[name]
    if !ok {
        n = NewNetwork()
        ns.nets[name] = n
    }
    return n
}

// Names lists the networks created so far.
func (ns *Networks) Names() []string {
    ns.mu.Lock(); defer ns.mu.Unlock()
    out := make([]string, 0, len(ns.nets))
    for n := range ns.nets { out = append(out, n) }
    sort.Strings(out)
    return out
}

func (n *Network) attach(host string, s *Server) error {
    n.mu.Lock(); defer n.mu.Unlock()
    if cur, ok := n.servers[host]; ok && cur != s { return fmt.Errorf("%w: %q", ErrHostInUse, host) }
    n.servers[host] = s
    return nil
}

func (n *Network) detach(host string, s *Server) {
    n.mu.Lock(); defer n.mu.Unlock()
    if n.servers[host] == s { delete(n.servers, host) }
}

func (n *Network) lookup(host string) *Server {
    n.mu.Lock(); defer n.mu.Unlock()
    return n.servers[host]
}

func cleanPath(p string) string { return strings.Trim(p, "/") }

// Server holds resource listeners by path. It is reachable once started.
type Server struct {
    network   *Network
    host      string
    mu        sync.RWMutex
    resources map[string]transport.ResourceListener
}

var _ transport.Server = (*Server)(nil)

// NewServer creates a server for host on network n. A nil n gets a private
// network no client can reach.
func NewServer(n *Network, host string) *Server {
    if n == nil { n = NewNetwork() }
    if host == "" { host = "localhost" }
    return &Server{network: n, host: strings.ToLower(host), resources: make(map[string]transport.ResourceListener)}
}

func (s *Server) Scheme() string { return Scheme }

func (s *Server) AddResource(path string, l transport.ResourceListener) bool {
    path = cleanPath(path)
    s.mu.Lock(); defer s.mu.Unlock()
    if _, ok := s.resources[path]; ok { return false }
    s.resources[path] = l
    return true
}

func (s *Server) RemoveResource(path string) bool {
    path = cleanPath(path)
    s.mu.Lock(); defer s.mu.Unlock()
    if _, ok := s.resources[path]; !ok { return false }
    delete(s.resources, path)
    return true
}

func (s *Server) ListenerFor(path string) (transport.ResourceListener, bool) {
    s.mu.RLock(); defer s.mu.RUnlock()
    l, ok := s.resources[cleanPath(path)]
    return l, ok
}

// Resources returns the number of bound paths.
func (s *Server) Resources() int {
    s.mu.RLock(); defer s.mu.RUnlock()
    return len(s.resources)
}

func (s *Server) Start(ctx context.Context) error {
    if err := ctx.Err(); err != nil { return err }
    return s.network.attach(s.host, s)
}

func (s *Server) Stop(context.Context) error {
    s.network.detach(s.host, s)
    return nil
}

func (s *Server) Port() int { return -1 }

func (s *Server) BaseURI() string { return Scheme + "://" + s.host }

// ServerFactory builds mem servers at registration time.
type ServerFactory struct {
    Network *Network
    Host    string
}

func (f ServerFactory) Scheme() string { return Scheme }

func (f ServerFactory) NewServer() (transport.Server, error) { return NewServer(f.Network, f.Host), nil }

// Client dispatches form operations to the listener bound at the href path.
type Client struct {
    network *Network
    log     *zap.Logger

    mu      sync.RWMutex
    started bool
    creds   any
}

var _ transport.Client = (*Client)(nil)

func (c *Client) resolve(form td.Form) (transport.ResourceListener, error) {
    c.mu.RLock()
    started := c.started
    c.mu.RUnlock()
    if !started { return nil, ErrStopped }
    u, err := url.Parse(form.Href)
    if err != nil { return nil, fmt.Errorf("mem: bad href %q: %w", form.Href, err) }
    if !strings.EqualFold(u.Scheme, Scheme) { return nil, fmt.Errorf("mem: href %q is not %s", form.Href, Scheme) }
    s := c.network.lookup(strings.ToLower(u.Host))
    if s == nil { return nil, fmt.Errorf("%w: %q", ErrNoServer, u.Host) }
    l, ok := s.ListenerFor(u.Path)
    if !ok { return nil, fmt.Errorf("%w: %q", ErrNoResource, u.Path) }
    return l, nil
}

// copyContent detaches payload bytes so neither side can alias the other's buffer.
func copyContent(ct content.Content) content.Content {
    return content.Content{Type: ct.Type, Body: append([]byte(nil), ct.Body...)}
}

func (c *Client) ReadResource(ctx context.Context, form td.Form) (content.Content, error) {
    l, err := c.resolve(form)
    if err != nil { return content.Content{}, err }
    out, err := l.Read(ctx)
    if err != nil { return content.Content{}, err }
    c.log.Debug("read", zap.String("href", form.Href), zap.Int("bytes", len(out.Body)))
    return copyContent(out), nil
}

func (c *Client) WriteResource(ctx context.Context, form td.Form, ct content.Content) error {
    l, err := c.resolve(form)
    if err != nil { return err }
    c.log.Debug("write", zap.String("href", form.Href), zap.Int("bytes", len(ct.Body)))
    return l.Write(ctx, copyContent(ct))
}

func (c *Client) InvokeResource(ctx context.Context, form td.Form, ct content.Content) (content.Content, error) {
    l, err := c.resolve(form)
    if err != nil { return content.Content{}, err }
    out, err := l.Invoke(ctx, copyContent(ct))
    if err != nil { return content.Content{}, err }
    return copyContent(out), nil
}

// UnlinkResource has nothing to release; subscriptions are closed through
// their own handles.
func (c *Client) UnlinkResource(ctx context.Context, form td.Form) error {
    _, err := c.resolve(form)
    return err
}

func (c *Client) SubscribeResource(ctx context.Context, form td.Form, h transport.Handlers) (transport.Subscription, error) {
    l, err := c.resolve(form)
    if err != nil { return nil, err }
    next := h.Next
    h.Next = func(ct content.Content) { if next != nil { next(copyContent(ct)) } }
    return l.Subscribe(ctx, h)
}

func (c *Client) Start() bool {
    c.mu.Lock(); c.started = true; c.mu.Unlock()
    return true
}

func (c *Client) Stop() bool {
    c.mu.Lock(); c.started = false; c.mu.Unlock()
    return true
}

// SetSecurity accepts "nosec" unconditionally and any other scheme only when
// credentials are supplied.
func (c *Client) SetSecurity(schemes []td.SecurityScheme, creds any) bool {
    for _, s := range schemes {
        if s.Scheme != "" && s.Scheme != "nosec" && creds == nil { return false }
    }
    c.mu.Lock(); c.creds = creds; c.mu.Unlock()
    return true
}

// ClientFactory owns the single mem client of a network.
type ClientFactory struct {
    client *Client
}

var _ transport.ClientFactory = (*ClientFactory)(nil)

// NewClientFactory returns a factory whose client talks to network n. A nil
// n gets an empty private network.
func NewClientFactory(n *Network, log *zap.Logger) *ClientFactory {
    if n == nil { n = NewNetwork() }
    if log == nil { log = zap.L() }
    return &ClientFactory{client: &Client{network: n, log: log.Named("mem")}}
}

func (f *ClientFactory) Scheme() string             { return Scheme }
func (f *ClientFactory) Client() transport.Client   { return f.client }
func (f *ClientFactory) Init() bool                 { return true }
func (f *ClientFactory) Destroy() bool              { return f.client.Stop() }
