package chunkcache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Bucket bounds. The table is fixed-size after setup: no rehashing is
// supported, to avoid a global rebuild lock.
const (
	MinHashSize     = 1024
	MaxHashSize     = 1 << 20
	defaultHashSize = 65536
)

// bucketLock separates adjacent bucket locks onto their own cache line so
// unrelated buckets never contend over a shared line.
type bucketLock struct {
	mu sync.Mutex
	_  [56]byte // pad sync.Mutex (8 bytes) out to 64
}

// hashIndex is the sharded, open-chained table keyed by chunk identity.
// Each bucket owns a dedicated lock so unrelated buckets never contend;
// a chunk carries its bucketID so unlink from a chain is O(1).
type hashIndex struct {
	locks   []bucketLock
	heads   []*Chunk
	size    uint32
}

func newHashIndex(size uint32) *hashIndex {
	return &hashIndex{
		locks: make([]bucketLock, size),
		heads: make([]*Chunk, size),
		size:  size,
	}
}

// normalizeHashSize clamps a configured hashsize into [MinHashSize,
// MaxHashSize], substituting the default when the caller passes 0.
func normalizeHashSize(configured uint32) uint32 {
	if configured == 0 {
		return defaultHashSize
	}
	if configured < MinHashSize {
		return MinHashSize
	}
	if configured > MaxHashSize {
		return MaxHashSize
	}
	return configured
}

// bucketFor computes bucket_id = xxhash(identity bytes) mod hashtable_size.
func (h *hashIndex) bucketFor(id HashId) uint32 {
	b := id.bytes()
	return uint32(xxhash.Sum64(b[:]) % uint64(h.size))
}

// lock acquires the bucket lock for bucketID. Callers must unlock via
// unlock with the same bucketID.
func (h *hashIndex) lock(bucketID uint32) {
	h.locks[bucketID].mu.Lock()
}

func (h *hashIndex) unlock(bucketID uint32) {
	h.locks[bucketID].mu.Unlock()
}

// find walks the chain under the caller-held bucket lock, returning the
// chunk matching id, or nil.
func (h *hashIndex) find(bucketID uint32, id HashId) *Chunk {
	for c := h.heads[bucketID]; c != nil; c = c.nextInBucket {
		if c.id == id {
			return c
		}
	}
	return nil
}

// insertHead links chunk at the head of its bucket chain. Caller must
// hold the bucket lock for chunk.bucketID.
func (h *hashIndex) insertHead(chunk *Chunk) {
	chunk.nextInBucket = h.heads[chunk.bucketID]
	h.heads[chunk.bucketID] = chunk
}

// unlink removes chunk from its bucket chain. Caller must hold the
// bucket lock for chunk.bucketID. A no-op if chunk is not present.
func (h *hashIndex) unlink(chunk *Chunk) {
	bucketID := chunk.bucketID
	if h.heads[bucketID] == chunk {
		h.heads[bucketID] = chunk.nextInBucket
		chunk.nextInBucket = nil
		return
	}
	for c := h.heads[bucketID]; c != nil; c = c.nextInBucket {
		if c.nextInBucket == chunk {
			c.nextInBucket = chunk.nextInBucket
			chunk.nextInBucket = nil
			return
		}
	}
}
