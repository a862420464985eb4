// Package chunkcache implements a block-granularity chunk cache that sits in
// front of an immutable, object-addressable backing store. Callers request
// arbitrary byte ranges of a logical block; the cache satisfies those reads
// out of a bounded pool of fixed-size chunks, fetching missing chunks from
// the backing store exactly once per concurrent miss, while a background
// evictor keeps total residency under a configured capacity.
//
// The cache never blocks correctness: every failure mode degrades to a Miss
// and the caller falls back to reading the backing store directly.
package chunkcache

import (
	"encoding/binary"
	"errors"
	"sync/atomic"
)

// PrefixLen is the fixed width of the object-name prefix folded into a
// chunk's identity. Truncating (rather than hashing) the name keeps
// HashId a plain comparable value.
const PrefixLen = 32

// HashId is a chunk's identity: the object-name prefix, the object id, and
// the chunk-aligned offset within the object. It is a fixed-size, POD value
// comparable with ==, matching invariant 3 (at most one chunk per HashId per
// bucket) without a separate Equal method.
type HashId struct {
	Prefix      [PrefixLen]byte
	ObjectID    uint64
	ChunkOffset uint64
}

// newHashId builds a HashId for the chunk containing byte offset
// chunkOffset (already aligned by the caller) of object objectID whose
// block is named name.
func newHashId(name string, objectID, chunkOffset uint64) HashId {
	var id HashId
	copy(id.Prefix[:], name)
	id.ObjectID = objectID
	id.ChunkOffset = chunkOffset
	return id
}

// idBytesLen is the length of the byte encoding used to feed the hash
// index's bucket function.
const idBytesLen = PrefixLen + 8 + 8

// bytes encodes the HashId into a fixed-size buffer for hashing. This
// exists so bucket placement doesn't rely on struct layout/padding, which
// Go does not guarantee is stable across versions.
func (id HashId) bytes() [idBytesLen]byte {
	var buf [idBytesLen]byte
	copy(buf[:PrefixLen], id.Prefix[:])
	binary.LittleEndian.PutUint64(buf[PrefixLen:PrefixLen+8], id.ObjectID)
	binary.LittleEndian.PutUint64(buf[PrefixLen+8:], id.ChunkOffset)
	return buf
}

// ChunkState is a chunk's position in its lifecycle. Transitions are
// one-way: RESERVED -> VALID -> EVICTING, with RESERVED -> gone on fetch
// failure. No chunk re-enters RESERVED.
type ChunkState int32

const (
	// StateReserved marks a placeholder inserted under the bucket lock
	// before the backing-store fetch completes. Single-flight: any other
	// goroutine racing for the same HashId observes RESERVED and backs off.
	StateReserved ChunkState = iota
	// StateValid marks a chunk whose payload holds the fetched bytes and
	// which is linked into the LRU.
	StateValid
	// StateEvicting marks a chunk the evictor has committed to freeing.
	// Set under the LRU lock, observed under the bucket lock; once set, no
	// new reader may observe the chunk.
	StateEvicting
)

// Chunk is the cache's unit of admission and eviction: a fixed-size,
// chunk-aligned window into an object. Chunks are arena-owned by the
// cache and never reference-counted — their lifetime is explicit
// (RESERVED -> VALID -> EVICTING -> freed) and a refcount would mask
// that state machine.
type Chunk struct {
	id          HashId
	chunkOffset uint64
	chunkSize   uint32
	payload     []byte
	bucketID    uint32

	// state crosses the bucket lock and the LRU lock: the evictor sets
	// StateEvicting under the LRU lock, readers and the invalidator
	// observe it under the bucket lock. An atomic gives that crossing a
	// well-defined happens-before edge instead of relying on incidental
	// lock ordering.
	state atomic.Int32

	nextInBucket *Chunk
	lruPrev      *Chunk
	lruNext      *Chunk
}

func newChunk(id HashId, chunkOffset uint64, bucketID uint32) *Chunk {
	c := &Chunk{id: id, chunkOffset: chunkOffset, bucketID: bucketID}
	c.state.Store(int32(StateReserved))
	return c
}

// State returns the chunk's current lifecycle state.
func (c *Chunk) State() ChunkState {
	return ChunkState(c.state.Load())
}

func (c *Chunk) setState(s ChunkState) {
	c.state.Store(int32(s))
}

// Errors surfaced by the cache. Per the error handling design, InvalidConfig
// is the only error fatal to the cache itself; everything else reduces a
// call to Miss.
var (
	// ErrInvalidConfig is returned from Setup only.
	ErrInvalidConfig = errors.New("chunkcache: invalid configuration")
	// ErrOutOfMemory signals a metadata or payload allocation failure
	// during admission. Converted to Miss on the hot path.
	ErrOutOfMemory = errors.New("chunkcache: out of memory")
	// ErrBackingStore wraps an underlying fetch failure. Converted to
	// Miss; the placeholder chunk is removed.
	ErrBackingStore = errors.New("chunkcache: backing store read failed")
	// errCapacityExhausted is internal; always converted to Miss before
	// reaching the caller.
	errCapacityExhausted = errors.New("chunkcache: capacity exhausted")
)

// Result is the outcome of Get.
type Result int

const (
	// Miss means the caller must fall back to its own read path for at
	// least part of the requested range.
	Miss Result = iota
	// Hit means every requested byte was served from the cache.
	Hit
)

func (r Result) String() string {
	if r == Hit {
		return "hit"
	}
	return "miss"
}
