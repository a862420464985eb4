package chunkcache

import (
	"time"

	"github.com/dittofs/chunkcache/internal/logger"
)

// runEvictor is the background loop started by Setup and stopped when
// stopEvictor is closed by Shutdown. It is a steady-state trimmer, not a
// synchronous back-pressure mechanism for admission: a Get that hits
// capacity exhaustion returns Miss without blocking on the evictor.
func (c *Cache) runEvictor(interval time.Duration) {
	defer close(c.evictorDone)

	for {
		if c.stats.bytesUsed.Load()+c.chunkSize > c.capacity {
			c.evictOne()
		}

		select {
		case <-c.stopEvictor:
			return
		case <-time.After(interval):
		}
	}
}

// evictOne pops the LRU tail, marks it EVICTING, unlinks it from its
// bucket, and frees its payload. Returns false if the LRU was empty.
//
// Lock order here is deliberately inverted from the rest of the cache
// (LRU before bucket): popTailAsEvicting flips the chunk to EVICTING
// under the LRU lock before the bucket lock is ever taken. That flag,
// not lock ordering, is what keeps this safe against a concurrent
// Remove — see remove.go.
func (c *Cache) evictOne() bool {
	victim := c.lru.popTailAsEvicting()
	if victim == nil {
		return false
	}

	c.index.lock(victim.bucketID)
	c.index.unlink(victim)
	c.index.unlock(victim.bucketID)

	c.backend.Free(victim.payload)
	c.stats.subBytesUsed(uint64(victim.chunkSize))
	c.stats.chunksEvicted.Add(1)
	c.metrics.observeEviction()
	c.metrics.setBytesUsed(c.stats.bytesUsed.Load())

	logger.Debug("chunk evicted",
		logger.ChunkOffset(victim.chunkOffset),
		logger.ChunkSize(victim.chunkSize),
		logger.BucketID(victim.bucketID),
	)

	return true
}
