package transport

import (
    "context"

    "github.com/eclipse/thingweb.node-wot/pkg/content"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
)

// Direction tells client transports from server transports in reports.
type Direction int

const (
    DirectionClient Direction = iota
    DirectionServer
)

func (d Direction) String() string {
    switch d {
    case DirectionClient:
        return "client"
    case DirectionServer:
        return "server"
    default:
        return "unknown"
    }
}

// State is the lifecycle position of a registered transport.
type State int

const (
    StateRegistered State = iota
    StateStarted
    StateStopped
)

func (s State) String() string {
    switch s {
    case StateRegistered:
        return "registered"
    case StateStarted:
        return "started"
    case StateStopped:
        return "stopped"
    default:
        return "unknown"
    }
}

// Handlers receives the notifications of a resource subscription.
// Error and Complete are optional.
type Handlers struct {
    Next     func(content.Content)
    Error    func(error)
    Complete func()
}

// Subscription is a transport level subscription handle.
// Unsubscribe must be safe to call more than once.
type Subscription interface {
    Unsubscribe()
}

// SubscriptionFunc adapts a function to Subscription.
type SubscriptionFunc func()

func (f SubscriptionFunc) Unsubscribe() { f() }

// Client performs operations against the resource a form points to.
type Client interface {
    ReadResource(ctx context.Context, form td.Form) (content.Content, error)
    WriteResource(ctx context.Context, form td.Form, c content.Content) error
    InvokeResource(ctx context.Context, form td.Form, c content.Content) (content.Content, error)
    UnlinkResource(ctx context.Context, form td.Form) error
    // SubscribeResource returns once the subscription is established.
    SubscribeResource(ctx context.Context, form td.Form, h Handlers) (Subscription, error)

    Start() bool
    Stop() bool
    // SetSecurity is the pass/fail security hook; creds may be nil.
    SetSecurity(schemes []td.SecurityScheme, creds any) bool
}

// ClientFactory owns the client of one URI scheme.
type ClientFactory interface {
    Scheme() string
    Client() Client
    Init() bool
    Destroy() bool
}

// ResourceListener is the server side of one bound resource path.
type ResourceListener interface {
    Read(ctx context.Context) (content.Content, error)
    Write(ctx context.Context, c content.Content) error
    Invoke(ctx context.Context, c content.Content) (content.Content, error)
    Subscribe(ctx context.Context, h Handlers) (Subscription, error)
}

// Server exposes resource listeners under paths.
type Server interface {
    Scheme() string
    // AddResource returns false if path is already bound.
    AddResource(path string, l ResourceListener) bool
    RemoveResource(path string) bool
    ListenerFor(path string) (ResourceListener, bool)
    // Start must not keep ctx past its return; it bounds startup only.
    Start(ctx context.Context) error
    Stop(ctx context.Context) error
    // Port is negative when the server is not network bound.
    Port() int
    // BaseURI is the prefix forms are built from, e.g. "mem://localhost".
    BaseURI() string
}

// ServerFactory builds a server at registration time.
type ServerFactory interface {
    Scheme() string
    NewServer() (Server, error)
}
