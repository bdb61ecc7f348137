// Package query caches store reads per Key, deduplicates concurrent fetches,
// retries transient failures and re-fetches invalidated entries that still
// have subscribers.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/client/client"
	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrDisabled is returned by Fetch for a query that is not enabled.
	ErrDisabled = errors.New("query disabled")

	// ErrUnknownKey is returned by Refetch for a key that was never fetched.
	ErrUnknownKey = errors.New("no query registered for key")
)

const (
	DefaultStaleTime = time.Minute
	defaultBackoff   = 200 * time.Millisecond
)

type fetchFunc func(ctx context.Context) (any, error)

type entry struct {
	snap Snapshot
	// seq changes whenever results of earlier loads must be discarded.
	seq     uint64
	fetch   fetchFunc
	retries int
}

// Cache holds query results in memory. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	subs    map[Key]map[uint64]func(Snapshot)
	nextSub uint64
	// gen changes on Clear; loads started under an older gen are discarded.
	gen uint64

	group singleflight.Group
	bg    sync.WaitGroup

	locksMu sync.Mutex
	locks   map[Key]chan struct{}

	staleTime time.Duration
	backoff   time.Duration
	retryable func(error) bool
	now       func() time.Time
	log       logging.Logger
}

type Option func(*Cache)

// WithStaleTime sets how long a successful result is served without a
// refetch. Zero makes every Fetch go to the store.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) { c.staleTime = d }
}

// WithBackoff sets the base delay of the exponential retry backoff.
func WithBackoff(d time.Duration) Option {
	return func(c *Cache) { c.backoff = d }
}

// WithRetryable overrides which errors are retried. By default only
// transient store errors are.
func WithRetryable(fn func(error) bool) Option {
	return func(c *Cache) { c.retryable = fn }
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Cache) { c.log = l }
}

func NewCache(opts ...Option) *Cache {
	c := &Cache{
		entries:   map[Key]*entry{},
		subs:      map[Key]map[uint64]func(Snapshot){},
		locks:     map[Key]chan struct{}{},
		staleTime: DefaultStaleTime,
		backoff:   defaultBackoff,
		retryable: client.IsTransient,
		now:       time.Now,
		log:       logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Peek returns the current state of key without fetching.
func (c *Cache) Peek(key Key) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key]; ok {
		return e.snap
	}
	return Snapshot{}
}

// Subscribe registers fn to be called with every state change of key. The
// returned function removes the subscription; calling it twice is harmless.
// Subscribed entries are re-fetched in the background when invalidated.
func (c *Cache) Subscribe(key Key, fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	if c.subs[key] == nil {
		c.subs[key] = map[uint64]func(Snapshot){}
	}
	c.subs[key][id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs[key], id)
			if len(c.subs[key]) == 0 {
				delete(c.subs, key)
			}
		})
	}
}

// Refetch loads key again with its last fetch function, ignoring freshness
// and any load already in flight.
func (c *Cache) Refetch(ctx context.Context, key Key) error {
	_, err := c.load(ctx, key, nil, 0, true)
	return err
}

// Invalidate marks every entry matching one of prefixes stale, so the next
// Fetch goes to the store, and discards results of loads already in flight.
// Matching entries that are subscribed to or currently loading are re-fetched
// in the background.
func (c *Cache) Invalidate(prefixes ...Key) {
	type change struct {
		fns  []func(Snapshot)
		snap Snapshot
	}
	var (
		changes []change
		refetch []Key
	)

	c.mu.Lock()
	for key, e := range c.entries {
		if !matchesAny(key, prefixes) {
			continue
		}
		e.seq++
		e.snap.Stale = true
		if e.fetch != nil && (len(c.subs[key]) > 0 || e.snap.Status == StatusLoading) {
			refetch = append(refetch, key)
		}
		changes = append(changes, change{fns: c.listenersLocked(key), snap: e.snap})
	}
	c.mu.Unlock()

	for _, ch := range changes {
		emit(ch.fns, ch.snap)
	}

	for _, key := range refetch {
		c.bg.Add(1)
		go func(key Key) {
			defer c.bg.Done()
			ctx := context.Background()
			if _, err := c.load(ctx, key, nil, 0, false); err != nil {
				c.log.Warn(ctx, "background refetch failed", "key", key.String(), "error", err)
			}
		}(key)
	}
}

// Clear drops every entry. Results of loads in flight are discarded and
// subscribers see an idle snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.gen++
	var notify []func(Snapshot)
	for key := range c.entries {
		notify = append(notify, c.listenersLocked(key)...)
	}
	c.entries = map[Key]*entry{}
	c.mu.Unlock()

	emit(notify, Snapshot{})
}

// Wait blocks until background refetches started by Invalidate finish.
func (c *Cache) Wait() {
	c.bg.Wait()
}

// Lock acquires the per-key locks of keys in a fixed order and returns the
// function releasing them. Mutations hold it across their write and the
// following invalidation. If ctx ends first, locks already taken are released
// and ctx.Err() is returned.
func (c *Cache) Lock(ctx context.Context, keys ...Key) (unlock func(), err error) {
	seen := make(map[Key]struct{}, len(keys))
	uniq := make([]Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].String() < uniq[j].String() })

	c.locksMu.Lock()
	sems := make([]chan struct{}, len(uniq))
	for i, k := range uniq {
		sem, ok := c.locks[k]
		if !ok {
			sem = make(chan struct{}, 1)
			c.locks[k] = sem
		}
		sems[i] = sem
	}
	c.locksMu.Unlock()

	release := func(held []chan struct{}) {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for i, sem := range sems {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			release(sems[:i])
			return nil, ctx.Err()
		}
	}
	return func() { release(sems) }, nil
}

func (c *Cache) load(ctx context.Context, key Key, fn fetchFunc, retries int, force bool) (any, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	if fn != nil {
		e.fetch, e.retries = fn, retries
	} else {
		fn, retries = e.fetch, e.retries
	}
	if fn == nil {
		if !ok {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	if !force && c.freshLocked(e) {
		data := e.snap.Data
		c.mu.Unlock()
		return data, nil
	}
	if force {
		e.seq++
	}
	seq, gen := e.seq, c.gen

	var notify []func(Snapshot)
	if e.snap.Status != StatusLoading {
		e.snap.Status = StatusLoading
		notify = c.listenersLocked(key)
	}
	snap := e.snap
	c.mu.Unlock()
	emit(notify, snap)

	// Callers share one load per (gen, key, seq). The load runs detached from
	// the first caller's cancellation so the others still get a result.
	flight := fmt.Sprintf("%d|%s|%d", gen, key, seq)
	ch := c.group.DoChan(flight, func() (any, error) {
		return c.run(context.WithoutCancel(ctx), key, fn, retries, gen, seq)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) run(ctx context.Context, key Key, fn fetchFunc, retries int, gen, seq uint64) (any, error) {
	v, err := c.fetchWithRetry(ctx, key, fn, retries)

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || c.gen != gen || e.seq != seq {
		c.mu.Unlock()
		c.log.Debug(ctx, "discarding superseded result", "key", key.String())
		return v, err
	}
	if err != nil {
		e.snap.Err = err
		e.snap.Status = StatusError
	} else {
		e.snap = Snapshot{Data: v, Status: StatusSuccess, UpdatedAt: c.now()}
	}
	snap := e.snap
	notify := c.listenersLocked(key)
	c.mu.Unlock()

	emit(notify, snap)
	return v, err
}

func (c *Cache) fetchWithRetry(ctx context.Context, key Key, fn fetchFunc, retries int) (any, error) {
	if retries <= 0 {
		return fn(ctx)
	}

	var (
		out     any
		attempt int
	)
	b := retry.WithMaxRetries(uint64(retries), retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		v, err := fn(ctx)
		if err == nil {
			out = v
			return nil
		}
		if c.retryable(err) {
			c.log.Debug(ctx, "retrying query", "key", key.String(), "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) freshLocked(e *entry) bool {
	return e.snap.Status == StatusSuccess &&
		!e.snap.Stale &&
		c.now().Sub(e.snap.UpdatedAt) < c.staleTime
}

func (c *Cache) listenersLocked(key Key) []func(Snapshot) {
	subs := c.subs[key]
	if len(subs) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]func(Snapshot), len(ids))
	for i, id := range ids {
		fns[i] = subs[id]
	}
	return fns
}

func emit(fns []func(Snapshot), snap Snapshot) {
	for _, fn := range fns {
		fn(snap)
	}
}

func matchesAny(key Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if key.Matches(p) {
			return true
		}
	}
	return false
}
