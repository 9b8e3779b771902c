package proxy

import "sync"

// Cache is the fixed-capacity memory of recently proxied original message
// ids, used to recognize moderation delete-log entries caused by the
// delete-and-repost pattern. The oldest entry is evicted on overflow.
//
// The original deployment ran with capacity 1; the capacity is configurable
// here because a single slot only protects the most recent proxied message.
type Cache struct {
	mu      sync.Mutex
	entries []string
	next    int
	filled  int
}

// NewCache creates a cache holding up to capacity entries.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{entries: make([]string, capacity)}
}

// Add records an original message id, evicting the oldest entry when full.
func (c *Cache) Add(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.next] = messageID
	c.next = (c.next + 1) % len(c.entries)
	if c.filled < len(c.entries) {
		c.filled++
	}
}

// Contains reports whether the message id is still remembered.
func (c *Cache) Contains(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < c.filled; i++ {
		if c.entries[i] == messageID {
			return true
		}
	}
	return false
}

// Entries returns a snapshot of the remembered message ids.
func (c *Cache) Entries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, c.filled)
	for i := 0; i < c.filled; i++ {
		if c.entries[i] != "" {
			out = append(out, c.entries[i])
		}
	}
	return out
}
