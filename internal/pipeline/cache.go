package pipeline

import (
	"sync"

	"drainwatch/internal/metrics"
)

// Cache is the fixed-capacity, insertion-ordered buffer of recent committed
// results. It only primes newly connected subscribers; durable reads go to
// the store. Append and Snapshot are safe for concurrent use; an append is
// indivisible relative to any snapshot.
type Cache struct {
	mu   sync.Mutex
	buf  []*Result
	head int // index of the oldest entry
	size int
}

func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cache{buf: make([]*Result, capacity)}
}

// Append adds one committed result, evicting the oldest entry when full.
// O(1), no allocation past the fixed arena.
func (c *Cache) Append(r *Result) {
	c.mu.Lock()
	tail := (c.head + c.size) % len(c.buf)
	c.buf[tail] = r
	if c.size == len(c.buf) {
		c.head = (c.head + 1) % len(c.buf)
	} else {
		c.size++
	}
	size := c.size
	c.mu.Unlock()

	metrics.CacheSize.Set(float64(size))
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Snapshot returns up to n of the most recent entries in arrival order
// (oldest of the window first). The returned slice is a copy.
func (c *Cache) Snapshot(n int) []*Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > c.size {
		n = c.size
	}
	out := make([]*Result, 0, n)
	// skip the entries older than the requested window
	start := c.size - n
	for i := start; i < c.size; i++ {
		out = append(out, c.buf[(c.head+i)%len(c.buf)])
	}
	return out
}
