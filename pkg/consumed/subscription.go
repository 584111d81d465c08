package consumed

import (
    "context"
    "sync"

    "go.uber.org/zap"

    "github.com/eclipse/thingweb.node-wot/pkg/td"
    "github.com/eclipse/thingweb.node-wot/pkg/transport"
)

// Subscription is an established observation or event subscription.
type Subscription struct {
    kind, name string
    form       td.Form
    client     transport.Client
    log        *zap.Logger

    mu       sync.Mutex
    ts       transport.Subscription
    stopped  bool
    done     chan struct{}
    doneOnce sync.Once
}

func newSubscription(kind, name string, f td.Form, c transport.Client, log *zap.Logger) *Subscription {
    return &Subscription{kind: kind, name: name, form: f, client: c, log: log, done: make(chan struct{})}
}

func (s *Subscription) attach(ts transport.Subscription) {
    s.mu.Lock()
    stopped := s.stopped
    s.ts = ts
    s.mu.Unlock()
    // stopped while the transport was still setting up
    if stopped && ts != nil { ts.Unsubscribe() }
}

func (s *Subscription) Name() string { return s.name }

// Active reports whether notifications are still delivered.
func (s *Subscription) Active() bool {
    select {
    case <-s.done:
        return false
    default:
        return true
    }
}

// Done is closed when the subscription is stopped or the remote side
// completes it.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) complete() {
    s.doneOnce.Do(func() { close(s.done) })
}

// Stop releases the transport subscription and unlinks the resource.
// Stopping twice is a no-op.
func (s *Subscription) Stop(ctx context.Context) error {
    s.mu.Lock()
    if s.stopped {
        s.mu.Unlock()
        return nil
    }
    s.stopped = true
    ts := s.ts
    s.mu.Unlock()
    s.complete()
    if ts != nil { ts.Unsubscribe() }
    if err := s.client.UnlinkResource(ctx, s.form); err != nil {
        s.log.Debug("unlink failed", zap.String(s.kind, s.name), zap.Error(err))
        return err
    }
    return nil
}
