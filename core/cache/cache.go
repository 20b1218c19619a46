// Package cache serves recent snapshots of whole document collections.
//
// A snapshot is refreshed when it is older than the TTL given by the caller, or pushed
// by a store watch. Writes made through the store do not invalidate snapshots: readers
// may see data up to one TTL old unless the collection is watched.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
)

type (
	Options struct {
		Clock      quartz.Clock // defaults to the real clock
		Logger     core.Logger
		Registerer prometheus.Registerer
	}

	Cache struct {
		gw     *docstore.Gateway
		clock  quartz.Clock
		logger core.Logger

		ctx    context.Context
		cancel context.CancelFunc
		wg     sync.WaitGroup

		mu       sync.Mutex
		closed   bool
		entries  map[string]*entry
		watching map[string]bool
		subs     map[int]chan string
		nextSub  int

		requests *prometheus.CounterVec
	}

	// entry is the snapshot of one collection. Its mutex is held while the snapshot is
	// checked and refreshed, so a reader never sees a half written snapshot.
	entry struct {
		mu        sync.Mutex
		docs      []docstore.Document
		fetchedAt time.Time
		loaded    bool
	}
)

func New(gw *docstore.Gateway, opts Options) *Cache {
	clock := opts.Clock
	if clock == nil {
		clock = quartz.NewReal()
	}
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cache",
			Subsystem: "snapshots",
			Name:      "requests_total",
			Help:      "Snapshot reads by collection and result (hit or miss).",
		},
		[]string{"collection", "result"},
	)
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(requests)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		gw:       gw,
		clock:    clock,
		logger:   opts.Logger,
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
		watching: make(map[string]bool),
		subs:     make(map[int]chan string),
		requests: requests,
	}
}

func (c *Cache) entry(collection string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[collection]
	if !ok {
		e = new(entry)
		c.entries[collection] = e
	}
	return e
}

func copyDocs(docs []docstore.Document) []docstore.Document {
	cp := make([]docstore.Document, len(docs))
	copy(cp, docs)
	return cp
}

// GetCached returns the collection snapshot if it is at most ttl old, else fetches a fresh one.
// Concurrent misses on the same collection result in a single fetch.
func (c *Cache) GetCached(ctx context.Context, collection string, ttl time.Duration) []docstore.Document {
	e := c.entry(collection)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.loaded && c.clock.Now().Sub(e.fetchedAt) <= ttl {
		c.requests.WithLabelValues(collection, "hit").Inc()
		return copyDocs(e.docs)
	}

	c.requests.WithLabelValues(collection, "miss").Inc()
	docs, ok := c.gw.ListOK(ctx, collection)
	if !ok {
		// keep the last good snapshot; the next read fetches again
		if e.loaded {
			return copyDocs(e.docs)
		}
		return docs
	}
	e.docs = docs
	e.fetchedAt = c.clock.Now()
	e.loaded = true
	return copyDocs(e.docs)
}

// Refresh replaces the collection snapshot with a fresh one and notifies the subscribers.
// A failed fetch leaves the snapshot untouched and notifies nobody.
func (c *Cache) Refresh(ctx context.Context, collection string) {
	e := c.entry(collection)
	e.mu.Lock()
	docs, ok := c.gw.ListOK(ctx, collection)
	if ok {
		e.docs = docs
		e.fetchedAt = c.clock.Now()
		e.loaded = true
	}
	e.mu.Unlock()

	if ok {
		c.publish(collection)
	}
}

// Invalidate drops the collection snapshot; the next read fetches.
func (c *Cache) Invalidate(collection string) {
	e := c.entry(collection)
	e.mu.Lock()
	e.loaded = false
	e.docs = nil
	e.mu.Unlock()
}

// StartWatch keeps the collection snapshot up to date with the store change notifications.
// Only the first call per collection has an effect. A watch that cannot be established,
// or whose notifications stop before Close, is logged and forgotten, so a later call may retry it.
func (c *Cache) StartWatch(collection string) {
	c.mu.Lock()
	if c.closed || c.watching[collection] {
		c.mu.Unlock()
		return
	}
	c.watching[collection] = true
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		changes, err := c.gw.Watch(c.ctx, collection)
		if err != nil {
			c.logger.Error(fmt.Sprintf("cache: watching %s: %v", collection, err), err)
			c.mu.Lock()
			delete(c.watching, collection)
			c.mu.Unlock()
			return
		}
		c.logger.Debug(fmt.Sprintf("cache: watching %s", collection))

		for range changes {
			c.Refresh(c.ctx, collection)
		}
		if c.ctx.Err() != nil {
			return
		}

		c.logger.Error(fmt.Sprintf("cache: watch on %s ended", collection))
		c.mu.Lock()
		delete(c.watching, collection)
		c.mu.Unlock()
	}()
}

// Watching reports whether a watch is registered for the collection.
func (c *Cache) Watching(collection string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watching[collection]
}

// Subscribe returns a channel receiving the name of every refreshed collection, and a
// function to unsubscribe. Notifications are dropped for subscribers that are not ready.
func (c *Cache) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 8)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

func (c *Cache) publish(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- collection:
		default:
		}
	}
}

// Close stops the watches and waits for them to return.
func (c *Cache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
