// ABOUTME: Time-windowed cache of recently forwarded codes.
// ABOUTME: Decides forward eligibility and expires entries in O(expired) sweeps.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultSweepInterval is how often the background sweeper runs when no
// interval is configured.
const DefaultSweepInterval = time.Minute

// entry stores the forward time and list element for a cached code.
type entry struct {
	code        string
	forwardedAt time.Time
	element     *list.Element
}

// Cache tracks when each code was last forwarded. Entries are kept in a
// doubly-linked list ordered by forward time (oldest at front) so expired
// entries can be removed without scanning the whole map.
//
// A window of zero disables expiry: a forwarded code stays suppressed for the
// life of the process.
//
// maxEntries is a soft bound. When the cache is full, expired entries are
// reclaimed first; an entry still inside its window is never dropped, so the
// cache grows past the bound rather than re-forward a live code.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	order      *list.List
	window     time.Duration
	maxEntries int
	done       chan struct{}
	closed     bool
}

// New creates a cache with the given suppression window and size bound.
// maxEntries <= 0 means unbounded.
func New(window time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]*entry),
		order:      list.New(),
		window:     window,
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
}

// Window returns the configured suppression window.
func (c *Cache) Window() time.Duration {
	return c.window
}

// Len returns the number of tracked codes, including expired entries that
// have not been swept yet.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// ShouldForward reports whether code may be forwarded at now. It returns
// false only when an unexpired entry exists. It never mutates the cache.
func (c *Cache) ShouldForward(code string, now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[code]
	if !ok {
		return true
	}
	return c.expired(e, now)
}

// LastForwarded returns the time code was last forwarded, if tracked.
func (c *Cache) LastForwarded(code string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[code]
	if !ok {
		return time.Time{}, false
	}
	return e.forwardedAt, true
}

// MarkForwarded records that code was successfully forwarded at now,
// replacing any previous entry. If the cache is full, expired entries are
// reclaimed before inserting.
func (c *Cache) MarkForwarded(code string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[code]; ok {
		c.order.Remove(e.element)
		delete(c.entries, code)
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.evictExpired(now)
	}

	e := &entry{code: code, forwardedAt: now}
	e.element = c.insertOrdered(e)
	c.entries[code] = e
}

// insertOrdered places e so the list stays sorted by forwardedAt. Callers
// almost always pass a non-decreasing now, so the walk from the back stops
// immediately. Must be called with mu held.
func (c *Cache) insertOrdered(e *entry) *list.Element {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		prev, _ := el.Value.(*entry)
		if !prev.forwardedAt.After(e.forwardedAt) {
			return c.order.InsertAfter(e, el)
		}
	}
	return c.order.PushFront(e)
}

// evictExpired removes every entry outside the window at now, oldest first.
// Must be called with mu held.
func (c *Cache) evictExpired(now time.Time) int {
	removed := 0
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		e, _ := el.Value.(*entry)
		if !c.expired(e, now) {
			break
		}
		c.order.Remove(el)
		delete(c.entries, e.code)
		removed++
	}
	return removed
}

// expired reports whether e is outside the window at now.
func (c *Cache) expired(e *entry, now time.Time) bool {
	if c.window == 0 {
		return false
	}
	return now.Sub(e.forwardedAt) > c.window
}

// Sweep removes every entry whose window has elapsed at now and returns the
// number removed. It walks from the oldest entry and stops at the first
// unexpired one.
func (c *Cache) Sweep(now time.Time) int {
	if c.window == 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evictExpired(now)
}

// StartSweeper runs Sweep every interval in a background goroutine until
// Close is called. now supplies the sweep time.
func (c *Cache) StartSweeper(interval time.Duration, now func() time.Time) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	go c.sweepLoop(interval, now)
}

func (c *Cache) sweepLoop(interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(now())
		case <-c.done:
			return
		}
	}
}

// Close stops the background sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
