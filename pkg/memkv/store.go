package memkv

import (
    "container/heap"
    "sync"
    "sync/atomic"
    "time"
)

type Options struct {
    Shards   int    // default 32
    MaxBytes uint64 // total value bytes; 0 means unlimited
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 32 }
    return o
}

// Store is safe for concurrent use. Values are copied in and out.
type Store struct {
    opts   Options
    shards []shard
    expq   expQueue
    wake   chan struct{}
    closed chan struct{}
    once   sync.Once
    wg     sync.WaitGroup
    nowFn  func() time.Time

    mKeys    atomic.Uint64
    mBytes   atomic.Uint64
    mSets    atomic.Uint64
    mHits    atomic.Uint64
    mMisses  atomic.Uint64
    mDels    atomic.Uint64
    mExpired atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano, 0 = never
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{
        opts:   opts,
        shards: make([]shard, opts.Shards),
        wake:   make(chan struct{}, 1),
        closed: make(chan struct{}),
        nowFn:  time.Now,
    }
    for i := range s.shards { s.shards[i].m = make(map[string]*entry) }
    s.wg.Add(1)
    go s.expirer()
    return s
}

// Close stops the expirer. The store stays readable.
func (s *Store) Close() {
    s.once.Do(func() { close(s.closed) })
    s.wg.Wait()
}

// FNV-1a
func (s *Store) shardFor(key string) *shard {
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[h%uint64(len(s.shards))]
}

func (s *Store) reserve(delta uint64) bool {
    if s.opts.MaxBytes == 0 {
        s.mBytes.Add(delta)
        return true
    }
    for {
        cur := s.mBytes.Load()
        if cur+delta > s.opts.MaxBytes { return false }
        if s.mBytes.CompareAndSwap(cur, cur+delta) { return true }
    }
}

func (s *Store) release(n int) { if n > 0 { s.mBytes.Add(^uint64(n - 1)) } }

// Set stores a copy of val. ttl <= 0 means no expiry. It returns false when
// the byte limit would be exceeded.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    var exp int64
    if ttl > 0 { exp = s.nowFn().Add(ttl).UnixNano() }
    v := append([]byte(nil), val...)

    sh := s.shardFor(key)
    sh.mu.Lock()
    prev, existed := sh.m[key]
    old := 0
    if existed { old = len(prev.val) }
    if d := len(v) - old; d > 0 && !s.reserve(uint64(d)) {
        sh.mu.Unlock()
        return false
    }
    if d := old - len(v); d > 0 { s.release(d) }
    sh.m[key] = &entry{val: v, expireAt: exp}
    sh.mu.Unlock()

    if !existed { s.mKeys.Add(1) }
    s.mSets.Add(1)
    if exp != 0 { s.schedule(key, exp) }
    return true
}

// Get returns a copy of the value.
func (s *Store) Get(key string) ([]byte, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if !ok || e.expired(s.nowFn().UnixNano()) {
        if ok { s.expire(key) }
        s.mMisses.Add(1)
        return nil, false
    }
    s.mHits.Add(1)
    return append([]byte(nil), e.val...), true
}

func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok { delete(sh.m, key) }
    sh.mu.Unlock()
    if !ok { return false }
    s.mDels.Add(1)
    s.mKeys.Add(^uint64(0))
    s.release(len(e.val))
    return true
}

// TTL returns the remaining lifetime; 0 with ok=true means no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    sh.mu.RUnlock()
    if !ok { return 0, false }
    if e.expireAt == 0 { return 0, true }
    now := s.nowFn().UnixNano()
    if e.expired(now) {
        s.expire(key)
        return 0, false
    }
    return time.Duration(e.expireAt - now), true
}

// Keys returns the number of stored keys, expired ones not yet swept included.
func (s *Store) Keys() int { return int(s.mKeys.Load()) }

// expire removes key if it is still expired under the write lock.
func (s *Store) expire(key string) {
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok && e.expired(s.nowFn().UnixNano()) {
        delete(sh.m, key)
    } else {
        ok = false
    }
    sh.mu.Unlock()
    if !ok { return }
    s.mExpired.Add(1)
    s.mKeys.Add(^uint64(0))
    s.release(len(e.val))
}

type Stats struct {
    Keys    uint64
    Bytes   uint64
    Sets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
}

func (s *Store) Metrics() Stats {
    return Stats{
        Keys:    s.mKeys.Load(),
        Bytes:   s.mBytes.Load(),
        Sets:    s.mSets.Load(),
        Hits:    s.mHits.Load(),
        Misses:  s.mMisses.Load(),
        Dels:    s.mDels.Load(),
        Expired: s.mExpired.Load(),
    }
}

type expItem struct {
    when int64
    key  string
}

type expQueue struct {
    mu    sync.Mutex
    items []expItem
}

func (q *expQueue) Len() int           { return len(q.items) }
func (q *expQueue) Less(i, j int) bool { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)         { q.items = append(q.items, x.(expItem)) }
func (q *expQueue) Pop() any {
    n := len(q.items)
    it := q.items[n-1]
    q.items = q.items[:n-1]
    return it
}

func (s *Store) schedule(key string, when int64) {
    s.expq.mu.Lock()
    heap.Push(&s.expq, expItem{when: when, key: key})
    s.expq.mu.Unlock()
    select { case s.wake <- struct{}{}: default: }
}

func (s *Store) expirer() {
    defer s.wg.Done()
    for {
        s.expq.mu.Lock()
        var wait time.Duration = -1
        now := s.nowFn().UnixNano()
        var due []string
        for s.expq.Len() > 0 {
            it := s.expq.items[0]
            if it.when > now {
                wait = time.Duration(it.when - now)
                break
            }
            heap.Pop(&s.expq)
            due = append(due, it.key)
        }
        s.expq.mu.Unlock()
        for _, k := range due { s.expire(k) }

        var timer <-chan time.Time
        if wait >= 0 {
            t := time.NewTimer(wait)
            timer = t.C
            select {
            case <-timer:
            case <-s.wake:
            case <-s.closed:
                t.Stop()
                return
            }
            t.Stop()
            continue
        }
        select {
        case <-s.wake:
        case <-s.closed:
            return
        }
    }
}
