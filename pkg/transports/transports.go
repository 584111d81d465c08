// Package transports builds protocol bindings from configuration and
// registers them with a servient.
package transports

import (
    "errors"
    "fmt"

    "go.uber.org/multierr"
    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/config"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
    "github.com/eclipse/thingweb.node-wot/pkg/transport/mem"
)

var (
    ErrUnknownKind = errors.New("unknown binding kind")
    ErrBadExtra    = errors.New("invalid binding option")
)

// Binding is the client and server side of one configured kind; either may
// be nil.
type Binding struct {
    Kind   string
    Client transport.ClientFactory
    Server transport.ServerFactory
}

// Registrar is the part of the servient bindings are registered with.
type Registrar interface {
    AddClientFactory(transport.ClientFactory) error
    AddServerFactory(transport.ServerFactory) error
}

// NewByKind builds the binding described by c. In-process bindings attach to
// the network named by extra.network, taken from nets.
func NewByKind(c config.BindingConfig, nets *mem.Networks, log *zap.Logger) (Binding, error) {
    if log == nil { log = zap.L() }
    b := Binding{Kind: c.Kind}
    switch c.Kind {
    case "mem", "loopback":
        if nets == nil { return Binding{}, fmt.Errorf("%s: no in-process networks supplied", c.Kind) }
        name, err := extraString(c.Extra, "network")
        if err != nil { return Binding{}, fmt.Errorf("%s: %w", c.Kind, err) }
        n := nets.Get(name)
        if c.Client { b.Client = mem.NewClientFactory(n, log) }
        if c.Server { b.Server = mem.ServerFactory{Network: n, Host: c.Host} }
    default:
        return Binding{}, fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
    }
    return b, nil
}

func extraString(extra map[string]any, key string) (string, error) {
    v, ok := extra[key]
    if !ok || v == nil { return "", nil }
    s, ok := v.(string)
    if !ok { return "", fmt.Errorf("%w: %s must be a string, got %T", ErrBadExtra, key, v) }
    return s, nil
}

// Register builds every configured binding and registers it. Bindings that
// fail are skipped and reported together.
func Register(r Registrar, bindings []config.BindingConfig, nets *mem.Networks, log *zap.Logger) error {
    if log == nil { log = zap.L() }
    var err error
    for _, c := range bindings {
        b, e := NewByKind(c, nets, log)
        if e != nil {
            err = multierr.Append(err, e)
            continue
        }
        if b.Client != nil { err = multierr.Append(err, r.AddClientFactory(b.Client)) }
        if b.Server != nil { err = multierr.Append(err, r.AddServerFactory(b.Server)) }
        log.Info("binding configured", zap.String("kind", b.Kind), zap.Bool("client", b.Client != nil), zap.Bool("server", b.Server != nil))
    }
    return err
}
