package chunkcache

import "github.com/dittofs/chunkcache/internal/logger"

// Remove invalidates every chunk of block/objectID whose aligned window
// overlaps [offset, offset+size). Repeatedly removing an already-removed
// range is a no-op: a chunk not present in its bucket is simply skipped.
func (c *Cache) Remove(objectID uint64, block BlockDescriptor, offset, size int64) {
	if !c.enabled || size <= 0 {
		return
	}

	start := alignDown(uint64(offset), c.chunkSize)
	end := uint64(offset) + uint64(size)

	for chunkOffset := start; chunkOffset < end; chunkOffset += c.chunkSize {
		id := newHashId(block.Name, objectID, chunkOffset)
		bucketID := c.index.bucketFor(id)
		c.removeOne(bucketID, id, chunkOffset)
	}
}

// removeOne cooperates with the evictor via the chunk's state. state ==
// StateEvicting is set only by the evictor after it has detached the
// chunk from the LRU but before it detaches from the bucket, so the two
// can never both free the same chunk: the invalidator checks for
// EVICTING under the LRU lock and, if it sees it, backs off.
func (c *Cache) removeOne(bucketID uint32, id HashId, chunkOffset uint64) {
	c.index.lock(bucketID)

	chunk := c.index.find(bucketID, id)
	if chunk == nil || chunk.State() == StateReserved {
		c.index.unlock(bucketID)
		return
	}

	c.index.unlink(chunk)

	c.lru.mu.Lock()
	if chunk.State() == StateEvicting {
		c.lru.mu.Unlock()
		c.index.unlock(bucketID)
		return // the evictor already committed to freeing this chunk
	}
	c.lru.unlink(chunk)
	c.lru.mu.Unlock()
	c.index.unlock(bucketID)

	c.backend.Free(chunk.payload)
	c.stats.subBytesUsed(uint64(chunk.chunkSize))
	c.metrics.setBytesUsed(c.stats.bytesUsed.Load())

	logger.Debug("chunk invalidated", logger.ChunkOffset(chunkOffset), logger.BucketID(bucketID))
}
