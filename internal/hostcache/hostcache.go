// Package hostcache caches host name resolutions behind a fixed number of
// slots with TTL expiry and least-recently-resolved eviction.
package hostcache

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// Resolver resolves a host name to an IPv4 address in host byte order.
type Resolver func(host string) (uint32, error)

// DefaultResolver resolves via the system resolver and returns the first
// IPv4 address found.
func DefaultResolver(host string) (uint32, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return 0, fmt.Errorf("resolving %q: %w", host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return binary.BigEndian.Uint32(v4), nil
		}
	}
	return 0, fmt.Errorf("resolving %q: no IPv4 address", host)
}

type entry struct {
	host        string
	address     uint32
	resolveTime time.Time
}

// Cache is a bounded host name cache. Only successful resolutions are
// cached; failures are returned to the caller and retried on the next
// lookup.
type Cache struct {
	mu       sync.Mutex
	entries  []entry
	capacity int
	ttl      time.Duration
	resolve  Resolver
	now      func() time.Time

	onHit  func()
	onMiss func()
}

// New creates a Cache with the given capacity and entry lifetime. A nil
// resolver uses DefaultResolver.
func New(capacity int, ttl time.Duration, resolve Resolver) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	if resolve == nil {
		resolve = DefaultResolver
	}
	return &Cache{
		entries:  make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		resolve:  resolve,
		now:      time.Now,
	}
}

// SetTTL updates the entry lifetime. Applies to existing entries on their
// next lookup.
func (c *Cache) SetTTL(ttl time.Duration) {
	c.mu.Lock()
	c.ttl = ttl
	c.mu.Unlock()
}

// OnStats installs hit/miss callbacks. Either may be nil.
func (c *Cache) OnStats(hit, miss func()) {
	c.mu.Lock()
	c.onHit = hit
	c.onMiss = miss
	c.mu.Unlock()
}

// Resolve returns the IPv4 address for host in host byte order. Expired
// entries are dropped during the scan; on a miss the resolver runs with
// the lock held so concurrent lookups of the same host do not race a
// duplicate resolution. Host comparison is case sensitive.
func (c *Cache) Resolve(host string) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for i := 0; i < len(c.entries); {
		e := &c.entries[i]
		if now.Sub(e.resolveTime) >= c.ttl {
			c.entries[i] = c.entries[len(c.entries)-1]
			c.entries = c.entries[:len(c.entries)-1]
			continue
		}
		if e.host == host {
			if c.onHit != nil {
				c.onHit()
			}
			return e.address, true
		}
		i++
	}

	if c.onMiss != nil {
		c.onMiss()
	}
	address, err := c.resolve(host)
	if err != nil {
		slog.Error("host name resolution failed", "host", host, "err", err)
		return 0, false
	}

	if len(c.entries) < c.capacity {
		c.entries = append(c.entries, entry{host, address, now})
		return address, true
	}

	// All slots taken: replace the least recently resolved entry.
	oldest := 0
	for i := 1; i < len(c.entries); i++ {
		if c.entries[i].resolveTime.Before(c.entries[oldest].resolveTime) {
			oldest = i
		}
	}
	c.entries[oldest] = entry{host, address, now}
	return address, true
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
