package main

import (
    "context"
    "errors"
    "os"
    "os/signal"
    "syscall"
    "time"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/config"
    "github.com/eclipse/thingweb.node-wot/pkg/exposed"
    "github.com/eclipse/thingweb.node-wot/pkg/observability"
    "github.com/eclipse/thingweb.node-wot/pkg/servient"
    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport/mem"
    "github.com/eclipse/thingweb.node-wot/pkg/transports"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("servient starting", zap.String("app", cfg.AppName))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    srv := servient.New(servient.Options{
        Logger:                 logger,
        ContentType:            cfg.Servient.DefaultContentType,
        EventQueueSize:         cfg.Servient.EventQueueSize,
        DeliveryTimeout:        cfg.Servient.DeliveryTimeout,
        DiscoveryCacheTTL:      cfg.Servient.DiscoveryCacheTTL,
        DiscoveryCacheMaxBytes: cfg.Servient.DiscoveryCacheMaxBytes,
    })
    nets := mem.NewNetworks()
    if err := transports.Register(srv, cfg.Bindings, nets, logger); err != nil {
        zap.L().Warn("some bindings were not registered", zap.Error(err))
    }
    for id, creds := range cfg.Credentials { srv.AddCredentials(id, creds) }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    if opts.RunFor > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, opts.RunFor)
        defer cancel()
    }

    rt, err := srv.Start(ctx)
    var se *servient.StartError
    if err != nil && !errors.As(err, &se) {
        zap.L().Error("failed to start servient", zap.Error(err))
        return 1
    }

    code := 0
    if opts.Demo {
        if err := demo(ctx, rt); err != nil {
            zap.L().Error("demo failed", zap.Error(err))
            code = 1
        }
    }

    if code == 0 {
        zap.L().Info("servient is running; press Ctrl+C to exit")
        <-ctx.Done()
    }

    sctx, cancel := context.WithTimeout(context.Background(), cfg.Servient.ShutdownTimeout)
    defer cancel()
    if err := srv.Shutdown(sctx); err != nil {
        zap.L().Warn("shutdown finished with errors", zap.Error(err))
    }
    return code
}

// demo exposes a counter Thing and drives it through a consumed view.
func demo(ctx context.Context, rt *servient.Runtime) error {
    thing, err := rt.Produce(td.New("Counter"))
    if err != nil { return err }
    thing.
        AddProperty("count", td.PropertyAffordance{
            DataSchema: td.DataSchema{Type: "integer", ReadOnly: true},
            Observable: true,
        }, exposed.WithValue(0)).
        AddAction("increment", td.ActionAffordance{Output: &td.DataSchema{Type: "integer"}}).
        AddEvent("changed", td.EventAffordance{Data: &td.DataSchema{Type: "integer"}})

    if err := thing.SetActionHandler("increment", func(ctx context.Context, _ any) (any, error) {
        p, err := thing.Property("count")
        if err != nil { return nil, err }
        n, _ := p.Slot().Load().(int)
        n++
        if err := p.Set(ctx, n); err != nil { return nil, err }
        return n, thing.EmitEvent("changed", n)
    }); err != nil {
        return err
    }
    if err := thing.Expose(ctx); err != nil { return err }

    servers := rt.Servient().Servers()
    if len(servers) == 0 { return errors.New("demo needs a server binding") }
    uri := servers[0].BaseURI() + "/" + exposed.Slug(thing.Title())

    remote, err := rt.FetchAndConsume(ctx, uri)
    if err != nil { return err }
    sub, err := remote.SubscribeEvent(ctx, "changed", func(v any) {
        zap.L().Info("event received", zap.String("event", "changed"), zap.Any("data", v))
    }, nil)
    if err != nil { return err }
    defer func() { _ = sub.Stop(context.Background()) }()

    for i := 0; i < 3; i++ {
        out, err := remote.InvokeAction(ctx, "increment", nil)
        if err != nil { return err }
        v, err := out.Value()
        if err != nil { return err }
        zap.L().Info("action invoked", zap.String("action", "increment"), zap.Any("output", v))
        select {
        case <-ctx.Done():
            return nil
        case <-time.After(200 * time.Millisecond):
        }
    }
    props, err := remote.ReadAllProperties(ctx)
    if err != nil { return err }
    for name, out := range props {
        v, _ := out.Value()
        zap.L().Info("property read", zap.String("property", name), zap.Any("value", v))
    }
    return nil
}
