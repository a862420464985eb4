package chunkcache

import (
	"context"
	"fmt"

	"github.com/dittofs/chunkcache/internal/logger"
)

// Get satisfies [offset, offset+size) of block out of the cache,
// fetching and admitting any missing chunks from block.Read. It returns
// Hit only if every requested byte was served; any non-nil error is a
// non-retryable condition (allocation failure, backing-store error) and
// the caller should fall back to its own read path exactly as it would
// for a Miss.
func (c *Cache) Get(ctx context.Context, objectID uint64, block BlockDescriptor, offset, size int64, dst []byte) (Result, error) {
	if !c.enabled {
		return Miss, nil
	}
	if size <= 0 || int64(len(dst)) < size {
		return Miss, fmt.Errorf("chunkcache: dst too small for requested size")
	}

	c.stats.lookups.Add(1)

	cursor := uint64(offset)
	remaining := uint64(size)
	dstOff := uint64(0)
	admitted := false

	for remaining > 0 {
		chunkOffset := alignDown(cursor, c.chunkSize)
		id := newHashId(block.Name, objectID, chunkOffset)
		bucketID := c.index.bucketFor(id)

		n, result, didAdmit, err := c.serveOrAdmit(ctx, block, id, bucketID, chunkOffset, cursor, remaining, dst[dstOff:])
		if didAdmit {
			admitted = true
		}
		if err != nil {
			c.metrics.observeLookup(Miss, false)
			return Miss, err
		}
		if result == Miss {
			c.metrics.observeLookup(Miss, false)
			return Miss, nil
		}

		cursor += n
		dstOff += n
		remaining -= n
	}

	// hits counts lookups served with zero admissions: a Get that had to
	// admit a chunk along the way still returns Hit, but is not a cache hit.
	if !admitted {
		c.stats.hits.Add(1)
	}
	c.metrics.observeLookup(Hit, !admitted)
	return Hit, nil
}

// serveOrAdmit handles one iteration of the Get loop for the chunk
// identified by id: it either copies out bytes from an existing VALID
// chunk, backs off on a RESERVED chunk, or admits a new chunk and
// fetches it from the backing store. It returns the number of bytes
// advanced (0 on Miss/error) and whether a chunk was admitted.
func (c *Cache) serveOrAdmit(ctx context.Context, block BlockDescriptor, id HashId, bucketID uint32, chunkOffset, cursor, remaining uint64, dst []byte) (uint64, Result, bool, error) {
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		c.index.lock(bucketID)
		chunk := c.index.find(bucketID, id)

		if chunk == nil {
			n, result, err := c.admitAndFetch(ctx, block, id, bucketID, chunkOffset, cursor, remaining, dst)
			// admitAndFetch releases the bucket lock itself (it must
			// release before the backing-store read).
			return n, result, result == Hit, err
		}

		state := chunk.State()
		switch state {
		case StateValid:
			n := copyLen(chunk.chunkOffset, chunk.chunkSize, cursor, remaining)
			copy(dst[:n], chunk.payload[cursor-chunk.chunkOffset:])
			c.index.unlock(bucketID)
			c.lru.touch(chunk)
			return n, Hit, false, nil

		default: // StateReserved or StateEvicting: back off and retry
			c.index.unlock(bucketID)
			if attempt == MaxRetries {
				return 0, Miss, false, nil
			}
			if state == StateReserved {
				c.stats.retries.Add(1)
				c.metrics.observeRetry()
			}
		}
	}
	return 0, Miss, false, nil
}

// admitAndFetch is called with bucketID locked and no matching chunk
// present. It performs admission (4.4.1), inserts a RESERVED placeholder
// before releasing the bucket lock (the single-flight mechanism, 4.4.2),
// fetches from the backing store with no cache lock held, and on success
// transitions the chunk to VALID and pushes it onto the LRU head.
func (c *Cache) admitAndFetch(ctx context.Context, block BlockDescriptor, id HashId, bucketID uint32, chunkOffset, cursor, remaining uint64, dst []byte) (uint64, Result, error) {
	chunkSize := chunkSizeFor(chunkOffset, block.Size, c.chunkSize)
	if chunkSize == 0 {
		c.index.unlock(bucketID)
		return 0, Miss, nil
	}

	proposed := c.stats.bytesUsed.Load() + c.chunkSize
	if proposed > c.capacity {
		c.index.unlock(bucketID)
		c.stats.exceededCapacity.Add(1)
		c.metrics.observeExceededCapacity()
		return 0, Miss, nil
	}

	payload, err := c.backend.Alloc(chunkSize)
	if err != nil {
		c.index.unlock(bucketID)
		return 0, Miss, fmt.Errorf("%w: %v", ErrOutOfMemory, err)
	}

	chunk := newChunk(id, chunkOffset, bucketID)
	chunk.chunkSize = chunkSize
	chunk.payload = payload
	c.index.insertHead(chunk)
	c.stats.addBytesUsed(uint64(chunkSize))
	c.metrics.setBytesUsed(c.stats.bytesUsed.Load())
	c.index.unlock(bucketID)

	n, err := block.Read(ctx, int64(chunkOffset), int64(chunkSize), chunk.payload)
	if err != nil || n != int(chunkSize) {
		c.abandonReservation(bucketID, chunk)
		if err == nil {
			err = fmt.Errorf("%w: short read", ErrBackingStore)
		} else {
			err = fmt.Errorf("%w: %v", ErrBackingStore, err)
		}
		logger.Warn("chunk fetch failed", logger.ChunkOffset(chunkOffset), logger.ErrAttr(err))
		return 0, Miss, err
	}

	chunk.setState(StateValid)
	c.lru.mu.Lock()
	c.lru.pushHead(chunk)
	c.lru.mu.Unlock()

	c.stats.chunksAdmitted.Add(1)
	c.metrics.observeAdmission()
	logger.Debug("chunk admitted", logger.ChunkOffset(chunkOffset), logger.ChunkSize(chunkSize), logger.BucketID(bucketID))

	copyN := copyLen(chunkOffset, chunkSize, cursor, remaining)
	copy(dst[:copyN], chunk.payload[cursor-chunkOffset:])
	return copyN, Hit, nil
}

// abandonReservation unlinks and frees a RESERVED chunk whose
// backing-store fetch failed, freeing the identity for a later retry.
func (c *Cache) abandonReservation(bucketID uint32, chunk *Chunk) {
	c.index.lock(bucketID)
	c.index.unlink(chunk)
	c.index.unlock(bucketID)
	c.backend.Free(chunk.payload)
	c.stats.subBytesUsed(uint64(chunk.chunkSize))
	c.metrics.setBytesUsed(c.stats.bytesUsed.Load())
}
