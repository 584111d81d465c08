package exposed

import (
    "time"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
)

const (
    DefaultQueueSize       = 16
    DefaultDeliveryTimeout = 100 * time.Millisecond
)

type options struct {
    log             *zap.Logger
    queueSize       int
    deliveryTimeout time.Duration
    contentType     string
    servers         func() []transport.Server
    onDestroy       func(*Thing)
}

func defaultOptions() options {
    return options{
        log:             zap.L(),
        queueSize:       DefaultQueueSize,
        deliveryTimeout: DefaultDeliveryTimeout,
        contentType:     td.DefaultContentType,
        servers:         func() []transport.Server { return nil },
    }
}

// Option configures a Thing.
type Option func(*options)

func WithLogger(l *zap.Logger) Option {
    return func(o *options) { if l != nil { o.log = l } }
}

// WithQueueSize sets the per-subscription delivery queue length.
func WithQueueSize(n int) Option {
    return func(o *options) { if n > 0 { o.queueSize = n } }
}

// WithDeliveryTimeout bounds how long an emission waits on one full queue.
func WithDeliveryTimeout(d time.Duration) Option {
    return func(o *options) { if d > 0 { o.deliveryTimeout = d } }
}

// WithContentType sets the media type of the forms Expose generates.
func WithContentType(ct string) Option {
    return func(o *options) { if ct != "" { o.contentType = ct } }
}

// WithServers supplies the server bindings Expose binds resources into.
func WithServers(fn func() []transport.Server) Option {
    return func(o *options) { if fn != nil { o.servers = fn } }
}

// WithOnDestroy registers a callback run at the end of Destroy.
func WithOnDestroy(fn func(*Thing)) Option {
    return func(o *options) { o.onDestroy = fn }
}

// PropertyOption configures a property added with AddProperty.
type PropertyOption func(*Property)

// WithValue gives the property an initial value.
func WithValue(v any) PropertyOption {
    return func(p *Property) { p.slot.Store(v) }
}
