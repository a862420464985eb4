// Package memory implements the chunk cache's pluggable payload backend:
// a thin adapter with no knowledge of chunks that allocates and frees
// fixed-size payload buffers, either from the process heap (DRAM) or from
// a persistent-memory-backed region (PMEM).
package memory

import "errors"

// BackendKind names a memory backend variant.
type BackendKind string

const (
	DRAM BackendKind = "dram"
	PMEM BackendKind = "pmem"
)

// ErrOutOfMemory is returned by Alloc when the backend cannot satisfy a
// request.
var ErrOutOfMemory = errors.New("memory: out of memory")

// ErrPlatformUnsupported is returned by NewPMEM on platforms without a
// persistent-memory allocator. Setup turns this into chunkcache.ErrInvalidConfig.
var ErrPlatformUnsupported = errors.New("memory: pmem backend not supported on this platform")

// Backend allocates and frees chunk payload buffers. A chunk's payload
// lifetime is exclusively owned by the chunk that allocated it; the
// backend itself tracks no per-allocation bookkeeping beyond what its
// variant requires to free the buffer later.
type Backend interface {
	Alloc(size uint32) ([]byte, error)
	Free(payload []byte)
	Kind() BackendKind
}

// dramBackend allocates payload buffers straight from the Go heap.
type dramBackend struct{}

// NewDRAM returns a Backend that allocates from the process heap.
func NewDRAM() Backend {
	return dramBackend{}
}

func (dramBackend) Alloc(size uint32) (payload []byte, err error) {
	if size == 0 {
		return nil, nil
	}
	defer func() {
		// make(...) panics on an allocation request that would exceed
		// addressable memory; the cache always sizes requests from a
		// configured chunk size, but guard the boundary anyway since the
		// caller treats allocation failure as a recoverable Miss, not a
		// crash.
		if recover() != nil {
			payload, err = nil, ErrOutOfMemory
		}
	}()
	return make([]byte, size), nil
}

func (dramBackend) Free(_ []byte) {
	// Left to the garbage collector; DRAM payloads hold no external
	// resources.
}

func (dramBackend) Kind() BackendKind {
	return DRAM
}
