// ABOUTME: Thread-safe TTL cache of idempotency keys for the send endpoint
// ABOUTME: A key is reserved once per window; a failed request releases it for retry

package dedupe

import (
	"container/list"
	"strconv"
	"sync"
	"time"
)

// maxCleanupInterval caps how often expired keys are swept.
const maxCleanupInterval = time.Minute

type cacheEntry struct {
	reserved time.Time
	element  *list.Element
}

// Cache tracks idempotency keys seen within a TTL window. It is bounded:
// when full, the oldest reservation is evicted. Insertion order is kept in a
// doubly-linked list for O(1) eviction.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache with the given window and capacity. A background
// goroutine sweeps expired keys until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	if maxSize < 1 {
		maxSize = 1
	}
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Key scopes a client-supplied idempotency key to one user.
func Key(userID int64, key string) string {
	return strconv.FormatInt(userID, 10) + ":" + key
}

// Reserve claims key. It returns true when the key was free (never seen or
// expired) and is now reserved, false when a live reservation exists.
func (c *Cache) Reserve(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok {
		if now.Sub(e.reserved) < c.ttl {
			return false
		}
		c.order.Remove(e.element)
		delete(c.entries, key)
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[key] = &cacheEntry{reserved: now, element: c.order.PushBack(key)}
	return true
}

// Release forgets key so the same request can be retried. Used when the
// request failed before it changed anything.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.order.Remove(e.element)
		delete(c.entries, key)
	}
}

// Seen reports whether key holds a live reservation.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && c.now().Sub(e.reserved) < c.ttl
}

// Len returns the number of keys held, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked removes the oldest reservation. Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

func (c *Cache) sweepLoop() {
	interval := c.ttl
	if interval <= 0 || interval > maxCleanupInterval {
		interval = maxCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep drops expired keys. Reservations are ordered oldest first, so it
// stops at the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for el := c.order.Front(); el != nil; {
		key, _ := el.Value.(string)
		e := c.entries[key]
		if e == nil || now.Sub(e.reserved) < c.ttl {
			return
		}
		next := el.Next()
		c.order.Remove(el)
		delete(c.entries, key)
		el = next
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
