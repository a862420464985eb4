package chunkcache

import "sync/atomic"

// cacheStats holds the monotonic counters and gauge spec.md §6 requires:
// lookups, hits, chunks_admitted, chunks_evicted, exceeded_capacity,
// retries, and bytes (the only gauge — everything else only goes up).
type cacheStats struct {
	lookups          atomic.Uint64
	hits             atomic.Uint64
	chunksAdmitted   atomic.Uint64
	chunksEvicted    atomic.Uint64
	exceededCapacity atomic.Uint64
	retries          atomic.Uint64
	bytesUsed        atomic.Uint64
}

// Stats is a point-in-time snapshot of cache statistics.
type Stats struct {
	Lookups          uint64
	Hits             uint64
	ChunksAdmitted   uint64
	ChunksEvicted    uint64
	ExceededCapacity uint64
	Retries          uint64
	BytesUsed        uint64
}

// addBytesUsed atomically adds n to the bytes_used gauge.
func (s *cacheStats) addBytesUsed(n uint64) uint64 {
	return s.bytesUsed.Add(n)
}

// subBytesUsed atomically subtracts n from the bytes_used gauge. atomic.Uint64
// has no Sub; two's-complement addition of the negation does the same thing.
func (s *cacheStats) subBytesUsed(n uint64) uint64 {
	return s.bytesUsed.Add(^(n - 1))
}

// Stats returns a snapshot of the cache's current statistics.
func (c *Cache) Stats() Stats {
	return Stats{
		Lookups:          c.stats.lookups.Load(),
		Hits:             c.stats.hits.Load(),
		ChunksAdmitted:   c.stats.chunksAdmitted.Load(),
		ChunksEvicted:    c.stats.chunksEvicted.Load(),
		ExceededCapacity: c.stats.exceededCapacity.Load(),
		Retries:          c.stats.retries.Load(),
		BytesUsed:        c.stats.bytesUsed.Load(),
	}
}
