//go:build unix

package memory

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// pmemRegionSize is the size of the backing file/mapping created for a
// PMEM device path. The region is carved into fixed-size payload slices
// by a simple freelist allocator; it is not a general-purpose heap.
const pmemRegionSize = 256 * 1024 * 1024 // 256MiB

// pmemBackend allocates chunk payloads from a single mmap'd region backed
// by a regular file at devicePath, emulating a persistent-memory device.
// Freed slices are returned to a freelist keyed by slice size so repeated
// alloc/free cycles of the same chunk size don't re-grow the region.
type pmemBackend struct {
	mu       sync.Mutex
	file     *os.File
	data     []byte
	next     int // bump offset into data, in bytes
	freelist map[uint32][][]byte
}

// NewPMEM opens (creating if necessary) a file at devicePath and maps a
// fixed-size region from it, emulating a persistent-memory allocator.
func NewPMEM(devicePath string) (Backend, error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("memory: open pmem device: %w", err)
	}
	if err := f.Truncate(pmemRegionSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("memory: size pmem device: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, pmemRegionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("memory: mmap pmem device: %w", err)
	}
	return &pmemBackend{
		file:     f,
		data:     data,
		freelist: make(map[uint32][][]byte),
	}, nil
}

func (b *pmemBackend) Alloc(size uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if free := b.freelist[size]; len(free) > 0 {
		payload := free[len(free)-1]
		b.freelist[size] = free[:len(free)-1]
		return payload, nil
	}

	if b.next+int(size) > len(b.data) {
		return nil, ErrOutOfMemory
	}
	payload := b.data[b.next : b.next+int(size) : b.next+int(size)]
	b.next += int(size)
	return payload, nil
}

func (b *pmemBackend) Free(payload []byte) {
	if len(payload) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	size := uint32(len(payload))
	b.freelist[size] = append(b.freelist[size], payload)
}

func (b *pmemBackend) Kind() BackendKind {
	return PMEM
}

// Close unmaps the region and closes the backing file. Not part of the
// Backend interface — the cache's Shutdown does not need to reclaim the
// device, only its in-memory bookkeeping; callers that want the file
// closed own a concrete *pmemBackend and call this directly.
func (b *pmemBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := unix.Munmap(b.data); err != nil {
		b.file.Close()
		return err
	}
	return b.file.Close()
}
