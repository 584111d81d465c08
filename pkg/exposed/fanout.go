package exposed

import (
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "go.uber.org/zap"
)

// Listener receives event payloads or property values.
type Listener func(value any)

// Subscription is a cancellable registration of one listener. Every
// subscription owns a queue and a delivery goroutine, so a slow listener
// only delays its own deliveries.
type Subscription struct {
    id       string
    hub      *hub
    listener Listener
    queue    chan any
    done     chan struct{}
    once     sync.Once
    canceled atomic.Bool
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// Cancel removes the subscription. Emissions that start after Cancel
// returns never reach the listener; queued values are discarded.
// Calling Cancel again is a no-op.
func (s *Subscription) Cancel() {
    s.once.Do(func() {
        s.hub.remove(s)
        s.canceled.Store(true)
        close(s.done)
    })
}

// Unsubscribe implements transport.Subscription.
func (s *Subscription) Unsubscribe() { s.Cancel() }

// Done is closed once the subscription is canceled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) run() {
    for {
        select {
        case <-s.done:
            return
        case v := <-s.queue:
            if s.canceled.Load() { return }
            s.deliver(v)
        }
    }
}

func (s *Subscription) deliver(v any) {
    defer func() {
        if r := recover(); r != nil {
            s.hub.log.Warn("listener panicked", zap.String("affordance", s.hub.name), zap.String("subscription", s.id), zap.Any("panic", r))
        }
    }()
    s.listener(v)
}

// hub fans values out to subscriptions in subscription order.
type hub struct {
    name      string
    mu        sync.Mutex
    subs      []*Subscription
    queueSize int
    timeout   time.Duration
    log       *zap.Logger
}

func newHub(name string, o options) *hub {
    return &hub{name: name, queueSize: o.queueSize, timeout: o.deliveryTimeout, log: o.log}
}

func (h *hub) subscribe(l Listener) *Subscription {
    s := &Subscription{
        id:       uuid.NewString(),
        hub:      h,
        listener: l,
        queue:    make(chan any, h.queueSize),
        done:     make(chan struct{}),
    }
    h.mu.Lock()
    h.subs = append(h.subs, s)
    h.mu.Unlock()
    go s.run()
    return s
}

func (h *hub) remove(s *Subscription) {
    h.mu.Lock(); defer h.mu.Unlock()
    for i, x := range h.subs {
        if x == s {
            h.subs = append(h.subs[:i:i], h.subs[i+1:]...)
            return
        }
    }
}

func (h *hub) len() int {
    h.mu.Lock(); defer h.mu.Unlock()
    return len(h.subs)
}

// emit queues v for every active subscription. A subscription whose queue
// stays full for the delivery timeout misses this value.
func (h *hub) emit(v any) {
    h.mu.Lock()
    subs := append([]*Subscription(nil), h.subs...)
    h.mu.Unlock()
    for _, s := range subs {
        select {
        case s.queue <- v:
            continue
        case <-s.done:
            continue
        default:
        }
        t := time.NewTimer(h.timeout)
        select {
        case s.queue <- v:
        case <-s.done:
        case <-t.C:
            h.log.Warn("delivery dropped", zap.String("affordance", h.name), zap.String("subscription", s.id), zap.Duration("timeout", h.timeout))
        }
        t.Stop()
    }
}

// closeAll cancels every subscription.
func (h *hub) closeAll() {
    h.mu.Lock()
    subs := append([]*Subscription(nil), h.subs...)
    h.mu.Unlock()
    for _, s := range subs { s.Cancel() }
}
