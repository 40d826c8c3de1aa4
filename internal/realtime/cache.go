// Package realtime maintains an in-memory set of DIDs currently listed
// on the realtime tab, refreshed on an interval.
package realtime

import (
	"sync/atomic"

	"github.com/callrelay-systems/callrelay/internal/metrics"
)

// Cache holds the current DID set. Reads are lock-free; Replace swaps
// the whole set atomically so readers never see a half-built snapshot.
type Cache struct {
	dids atomic.Pointer[map[string]struct{}]
}

func NewCache() *Cache {
	c := &Cache{}
	empty := make(map[string]struct{})
	c.dids.Store(&empty)
	return c
}

// Contains reports whether the normalized DID is in the current set.
func (c *Cache) Contains(did string) bool {
	set := c.dids.Load()
	_, ok := (*set)[did]
	return ok
}

// Size returns the number of DIDs in the current set.
func (c *Cache) Size() int {
	return len(*c.dids.Load())
}

// Replace swaps in a new DID set.
func (c *Cache) Replace(dids map[string]struct{}) {
	c.dids.Store(&dids)
	metrics.RealtimeCacheSize.Set(float64(len(dids)))
}

// Snapshot returns a copy of the current set.
func (c *Cache) Snapshot() map[string]struct{} {
	set := *c.dids.Load()
	out := make(map[string]struct{}, len(set))
	for did := range set {
		out[did] = struct{}{}
	}
	return out
}
