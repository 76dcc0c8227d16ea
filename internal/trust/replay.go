// ABOUTME: Thread-safe TTL cache tracking trust assertions that were already used
// ABOUTME: Ensures an assertion establishes a session at most once

package trust

import (
	"container/list"
	"sync"
	"time"
)

// replayEntry stores the timestamp and list element for a cached assertion ID.
type replayEntry struct {
	timestamp time.Time
	element   *list.Element
}

// replayCache is a TTL-based, size-limited record of assertion IDs that have
// already authenticated a request. Uses a doubly-linked list to maintain
// insertion order for O(1) eviction of the oldest entry.
type replayCache struct {
	mu      sync.Mutex
	seen    map[string]*replayEntry
	order   *list.List // assertion IDs in insertion order, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// newReplayCache creates a replay cache. A background goroutine periodically
// removes expired entries. The TTL should cover the assertion validity window;
// an assertion that has already expired cannot replay regardless.
func newReplayCache(ttl time.Duration, maxSize int) *replayCache {
	c := &replayCache{
		seen:    make(map[string]*replayEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// checkAndMark atomically reports whether the assertion ID was already used
// and, if not, records it. Returns true for a replay.
func (c *replayCache) checkAndMark(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.seen[id]
	if ok && time.Since(entry.timestamp) < c.ttl {
		return true
	}

	c.markLocked(id)
	return false
}

// mark records an assertion ID without checking. Used on logout so a
// lingering assertion cannot silently re-establish the session.
func (c *replayCache) mark(id string) {
	c.mu.Lock()
	c.markLocked(id)
	c.mu.Unlock()
}

func (c *replayCache) markLocked(id string) {
	if entry, ok := c.seen[id]; ok {
		entry.timestamp = time.Now()
		c.order.MoveToBack(entry.element)
		return
	}

	for c.maxSize > 0 && c.order.Len() >= c.maxSize {
		oldest := c.order.Front()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.seen, oldest.Value.(string))
	}

	elem := c.order.PushBack(id)
	c.seen[id] = &replayEntry{timestamp: time.Now(), element: elem}
}

// cleanup removes expired entries every ttl/2 until Close.
func (c *replayCache) cleanup() {
	interval := c.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			for id, entry := range c.seen {
				if time.Since(entry.timestamp) >= c.ttl {
					c.order.Remove(entry.element)
					delete(c.seen, id)
				}
			}
			c.mu.Unlock()
		}
	}
}

// close stops the cleanup goroutine.
func (c *replayCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
