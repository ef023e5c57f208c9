// Package synccache keeps a deduplicated, stale-while-revalidate view of remote resources
// and fans every change out to the observers subscribed to a key.
//
// A Cache is safe for concurrent use. For any key, at most one retrieval is in flight at a
// time: readers arriving while a retrieval is outstanding wait for its result instead of
// starting their own. Keys are independent and never contend with each other.
//
// Observers run synchronously on the goroutine that changed the data and must not call
// back into the Cache for the key they observe.
package synccache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tymastrangelo/groupgrade-sub000/core"
)

const fallbackTTL = time.Minute

// Observer is notified with the new data every time a key changes.
type Observer[T any] func(data T)

// outcome is what a retrieval hands to every reader sharing it.
type outcome[T any] struct {
	data T
	ok   bool
}

type entry[T any] struct {
	mu       sync.Mutex
	notifyMu sync.Mutex // serializes deliveries so observers see changes in order

	data        T
	ok          bool
	token       Token
	refreshedAt time.Time
	stale       bool
	ttl         time.Duration
	touchedAt   time.Time
	decode      Decoder[T]
	observers   map[uint64]Observer[T]
	waiting     int  // readers blocked on a retrieval
	fetching    bool // a retrieval is running
	evicted     bool
}

func (e *entry[T]) fresh(now time.Time, ttl time.Duration) bool {
	return e.ok && !e.stale && now.Sub(e.refreshedAt) < ttl
}

func (e *entry[T]) advance(now time.Time) {
	if now.After(e.refreshedAt) {
		e.refreshedAt = now
	}
	e.stale = false
}

func (e *entry[T]) snapshot() []Observer[T] {
	if len(e.observers) == 0 {
		return nil
	}
	obs := make([]Observer[T], 0, len(e.observers))
	for _, o := range e.observers {
		obs = append(obs, o)
	}
	return obs
}

// Cache maps resource keys to their last known data.
type Cache[T any] struct {
	fetcher Fetcher
	opts    options[T]

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]*entry[T]
	seq     uint64
}

// New returns an empty Cache retrieving resources through fetcher.
// Unless WithDecoder is given, bodies are decoded as JSON into T.
func New[T any](fetcher Fetcher, opts ...Option[T]) (*Cache[T], error) {
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	o := options[T]{
		decode:     Unwrap[T](""),
		logger:     core.NewNopLogger(),
		metrics:    nopMetrics{},
		now:        time.Now,
		defaultTTL: fallbackTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Cache[T]{
		fetcher: fetcher,
		opts:    o,
		entries: make(map[string]*entry[T]),
	}, nil
}

func (c *Cache[T]) lookup(key string) *entry[T] {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok = c.entries[key]; !ok {
		e = &entry[T]{touchedAt: c.opts.now()}
		c.entries[key] = e
	}
	return e
}

// acquire returns the live entry for key with its mutex held.
func (c *Cache[T]) acquire(key string) *entry[T] {
	for {
		e := c.lookup(key)
		e.mu.Lock()
		if !e.evicted {
			return e
		}
		e.mu.Unlock()
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
}

// SetDecoder installs a decoder used for key only, overriding the Cache default.
func (c *Cache[T]) SetDecoder(key string, d Decoder[T]) {
	e := c.acquire(key)
	e.decode = d
	e.mu.Unlock()
}

// Read returns the data for key.
//
// If the cached data was refreshed less than ttl ago it is returned right away without any
// I/O. Otherwise the data is retrieved (or the outstanding retrieval for key is joined), with
// the stored token passed to the Fetcher as a conditional hint.
//
// On failure the returned error wraps ErrRetrievalFailed and the previously cached data, if
// any, is returned alongside it; the entry itself is left untouched. If ctx ends before the
// retrieval completes Read returns ctx.Err(), but the retrieval keeps running and its result
// is still cached.
func (c *Cache[T]) Read(ctx context.Context, key string, ttl time.Duration) (T, bool, error) {
	now := c.opts.now()
	e := c.acquire(key)
	e.touchedAt = now
	if ttl > 0 {
		e.ttl = ttl
	}
	if e.fresh(now, ttl) {
		data := e.data
		e.mu.Unlock()
		c.opts.metrics.Hit(key)
		return data, true, nil
	}
	if e.waiting > 0 || e.fetching {
		c.opts.metrics.Deduplicated(key)
	} else {
		c.opts.metrics.Miss(key)
	}
	e.waiting++
	e.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return c.retrieve(detached, key, ttl)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}
	e.mu.Lock()
	e.waiting--
	e.mu.Unlock()

	out, _ := res.Val.(outcome[T])
	return out.data, out.ok, res.Err
}

// retrieve runs inside the singleflight call for key: it fetches, decodes and updates the
// entry, then notifies observers.
func (c *Cache[T]) retrieve(ctx context.Context, key string, ttl time.Duration) (interface{}, error) {
	e := c.acquire(key)
	if e.fresh(c.opts.now(), ttl) {
		// refreshed by the call that just completed
		out := outcome[T]{data: e.data, ok: true}
		e.mu.Unlock()
		return out, nil
	}
	e.fetching = true
	token := e.token
	decode := e.decode
	if decode == nil {
		decode = c.opts.decode
	}
	e.mu.Unlock()

	res, err := c.fetcher.Fetch(ctx, key, token)
	var data T
	if err == nil && !res.NotModified {
		data, err = decode(res.Body)
	}

	var (
		observers []Observer[T]
		failure   error
	)
	e.mu.Lock()
	switch {
	case err != nil:
		failure = &RetrievalError{Key: key, Err: err}
	case res.NotModified && !e.ok:
		failure = &RetrievalError{Key: key, Err: errNotModifiedWithoutData}
	case res.NotModified:
		e.advance(c.opts.now())
		c.opts.metrics.NotModified(key)
	default:
		e.data, e.ok, e.token = data, true, res.Token
		e.advance(c.opts.now())
		observers = e.snapshot()
	}
	if failure != nil {
		c.opts.metrics.Failed(key)
	}
	out := outcome[T]{data: e.data, ok: e.ok}
	e.fetching = false
	e.notifyMu.Lock()
	e.mu.Unlock()

	for _, o := range observers {
		o(out.data)
	}
	e.notifyMu.Unlock()
	return out, failure
}

// Subscribe registers observer for key. It is called right away with the current data, if any,
// and again after every change. The returned function removes the observer; calling it more
// than once is a no-op.
func (c *Cache[T]) Subscribe(key string, observer Observer[T]) (unsubscribe func()) {
	id := atomic.AddUint64(&c.seq, 1)

	e := c.acquire(key)
	if e.observers == nil {
		e.observers = make(map[uint64]Observer[T])
	}
	e.observers[id] = observer
	data, ok := e.data, e.ok
	e.notifyMu.Lock()
	e.mu.Unlock()
	if ok {
		observer(data)
	}
	e.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.observers, id)
			e.mu.Unlock()
		})
	}
}

// Write replaces the data and token of key, marks it as just refreshed and notifies observers.
// Use it when the authoritative value is already known, e.g. after a create or update.
func (c *Cache[T]) Write(key string, data T, token Token) {
	e := c.acquire(key)
	c.store(e, data, token)
}

// Mutate applies an optimistic local update: transform receives the current data (ok is false
// when there is none) and its result is written without a token.
func (c *Cache[T]) Mutate(key string, transform func(current T, ok bool) T) {
	e := c.acquire(key)
	c.store(e, transform(e.data, e.ok), "")
}

// store expects e.mu to be held and releases it.
func (c *Cache[T]) store(e *entry[T], data T, token Token) {
	now := c.opts.now()
	e.data, e.ok, e.token = data, true, token
	e.touchedAt = now
	e.advance(now)
	observers := e.snapshot()
	e.notifyMu.Lock()
	e.mu.Unlock()

	for _, o := range observers {
		o(data)
	}
	e.notifyMu.Unlock()
}

// Invalidate makes the next Read of key retrieve it regardless of its TTL and starts that
// retrieval in the background. Background failures are logged, never returned.
func (c *Cache[T]) Invalidate(key string) {
	e := c.acquire(key)
	e.stale = true
	ttl := e.ttl
	e.mu.Unlock()
	if ttl <= 0 {
		ttl = c.opts.defaultTTL
	}

	go func() {
		if _, _, err := c.Read(context.Background(), key, ttl); err != nil {
			c.opts.logger.Warn(fmt.Sprintf("synccache: refreshing %q after invalidation", key), err)
		}
	}()
}

// Peek returns the cached data for key without any I/O and without touching TTL state.
func (c *Cache[T]) Peek(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data, e.ok
}

// Len returns the number of entries currently held.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep evicts the entries that have no observers, no retrieval in flight and were not touched
// for longer than the configured max idle duration. It returns the number of evicted entries.
//
// Entries are checked one at a time without holding the Cache lock, so a Sweep never waits on
// an entry while blocking lookups of other keys.
func (c *Cache[T]) Sweep(now time.Time) int {
	if c.opts.maxIdle <= 0 {
		return 0
	}

	c.mu.RLock()
	candidates := make(map[string]*entry[T], len(c.entries))
	for key, e := range c.entries {
		candidates[key] = e
	}
	c.mu.RUnlock()

	evicted := make(map[string]*entry[T])
	for key, e := range candidates {
		e.mu.Lock()
		if len(e.observers) == 0 && e.waiting == 0 && !e.fetching && now.Sub(e.touchedAt) > c.opts.maxIdle {
			e.evicted = true
			evicted[key] = e
		}
		e.mu.Unlock()
	}
	if len(evicted) == 0 {
		return 0
	}

	c.mu.Lock()
	for key, e := range evicted {
		if c.entries[key] == e {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()

	c.opts.metrics.Evicted(len(evicted))
	return len(evicted)
}

// Run sweeps the cache every interval until ctx is done.
func (c *Cache[T]) Run(ctx context.Context, interval time.Duration) {
	if c.opts.maxIdle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Sweep(c.opts.now()); n > 0 {
				c.opts.logger.Debug(fmt.Sprintf("synccache: evicted %d idle entries", n))
			}
		}
	}
}
