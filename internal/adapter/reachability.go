package adapter

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"fleetwall/internal/domain"
)

// ReachabilityCache remembers probe answers per host for a TTL
type ReachabilityCache struct {
	prober      Prober
	ttl         time.Duration
	defaultPort int
	now         func() time.Time

	mu      sync.Mutex
	entries map[string]reachEntry
}

type reachEntry struct {
	err     error
	checked time.Time
}

// NewReachabilityCache wraps prober. Devices without a port are probed on
// defaultPort.
func NewReachabilityCache(prober Prober, ttl time.Duration, defaultPort int) *ReachabilityCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if defaultPort == 0 {
		defaultPort = 22
	}
	return &ReachabilityCache{
		prober:      prober,
		ttl:         ttl,
		defaultPort: defaultPort,
		now:         time.Now,
		entries:     make(map[string]reachEntry),
	}
}

// Check returns the cached answer for the device, probing when stale
func (c *ReachabilityCache) Check(ctx context.Context, device domain.Device) error {
	key := device.HostPort(c.defaultPort)

	c.mu.Lock()
	entry, ok := c.entries[key]
	c.mu.Unlock()
	if ok && c.now().Sub(entry.checked) < c.ttl {
		return entry.err
	}

	port := device.Port
	if port == 0 {
		port = c.defaultPort
	}

	err := c.prober.Probe(ctx, device.Address, port)
	if err != nil {
		err = fmt.Errorf("%s probe of %s: %w", c.prober.Name(), key, err)
		log.Printf("Reachability: %s unreachable: %v", device.Label(), err)
	}

	// a probe cut short by the caller says nothing about the device
	if ctx.Err() == nil {
		c.mu.Lock()
		c.entries[key] = reachEntry{err: err, checked: c.now()}
		c.mu.Unlock()
	}
	return err
}

// Invalidate forgets every cached answer for host, on any port
func (c *ReachabilityCache) Invalidate(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if hostOf(key) == host {
			delete(c.entries, key)
		}
	}
}

// Clear forgets all cached answers
func (c *ReachabilityCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]reachEntry)
}

// Len returns the number of cached answers
func (c *ReachabilityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func hostOf(hostport string) string {
	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		return hostport
	}
	return host
}
