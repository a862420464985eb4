package chunkcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dittofs/chunkcache/internal/bytesize"
	"github.com/dittofs/chunkcache/internal/logger"
	"github.com/dittofs/chunkcache/pkg/chunkcache/memory"
)

// MaxRetries bounds the number of spins a reader performs against a
// RESERVED chunk before giving up and returning a soft Miss.
const MaxRetries = 8

// DefaultEvictInterval is the steady-state trimming period; implementers
// may tune it, but it is not a synchronous back-pressure mechanism for
// admission.
const DefaultEvictInterval = time.Second

// Config is the cache's external configuration, the Go form of the
// chunk_cache.* key namespace.
type Config struct {
	// Enabled, if false, makes every entry point a no-op that returns
	// immediately (Get always Miss, Remove a no-op).
	Enabled bool

	// Capacity is the soft upper bound on BytesUsed. Exhaustion is
	// non-fatal: Get returns Miss and increments ExceededCapacity.
	Capacity bytesize.ByteSize

	// ChunkSize is the default chunk granularity.
	ChunkSize bytesize.ByteSize

	// HashSize is the number of hash buckets; clamped to
	// [MinHashSize, MaxHashSize]. 0 selects the default.
	HashSize uint32

	// BackendType selects the memory backend: "dram" or "file" (pmem).
	// Case-insensitive.
	BackendType string

	// DevicePath is the absolute path to the pmem device. Required iff
	// BackendType is "file".
	DevicePath string

	// EvictInterval is the evictor's sleep period between capacity
	// checks. Zero selects DefaultEvictInterval.
	EvictInterval time.Duration
}

// BlockDescriptor identifies the logical block a Get/Remove call targets
// and supplies the backing-store read function the cache calls on a miss.
// The cache treats any error from Read as a fetch failure; it does not
// interpret error kinds.
type BlockDescriptor struct {
	Name string
	Size uint64
	Read func(ctx context.Context, offset, size int64, dst []byte) (int, error)
}

// Cache is a single process-wide instance attached by a host via Setup
// and detached via Shutdown. It is not ambient state: callers own the
// *Cache they receive from Setup.
type Cache struct {
	cfg Config

	enabled   bool
	chunkSize uint64
	capacity  uint64
	backend   memory.Backend
	index     *hashIndex
	lru       lruList
	stats     cacheStats
	metrics   *Metrics

	stopEvictor  chan struct{}
	evictorDone  chan struct{}
}

// Option customizes a Cache at Setup time.
type Option func(*Cache)

// WithMetrics wires Prometheus metrics into the cache. Every recording
// call is a no-op if m is nil, so passing WithMetrics(nil) is harmless.
func WithMetrics(m *Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Setup validates cfg and returns a ready Cache with its evictor running.
// Reconfiguration after Setup is unsupported: callers needing different
// settings must Shutdown and Setup again.
func Setup(cfg Config, opts ...Option) (*Cache, error) {
	c := &Cache{
		cfg:         cfg,
		stopEvictor: make(chan struct{}),
		evictorDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if !cfg.Enabled {
		c.enabled = false
		return c, nil
	}
	c.enabled = true

	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%w: capacity must be > 0", ErrInvalidConfig)
	}
	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("%w: chunk_size must be > 0", ErrInvalidConfig)
	}
	c.capacity = uint64(cfg.Capacity)
	c.chunkSize = uint64(cfg.ChunkSize)

	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}
	c.backend = backend

	hashSize := normalizeHashSize(cfg.HashSize)
	c.index = newHashIndex(hashSize)

	evictInterval := cfg.EvictInterval
	if evictInterval <= 0 {
		evictInterval = DefaultEvictInterval
	}

	logger.Info("chunk cache started",
		logger.Capacity(c.capacity),
		logger.BackendKind(string(backend.Kind())),
		"hash_size", hashSize,
	)

	go c.runEvictor(evictInterval)

	return c, nil
}

// newBackend constructs the memory backend named by cfg.BackendType.
func newBackend(cfg Config) (memory.Backend, error) {
	switch strings.ToLower(cfg.BackendType) {
	case "", "dram":
		return memory.NewDRAM(), nil
	case "file":
		if cfg.DevicePath == "" {
			return nil, fmt.Errorf("%w: device_path required for file backend", ErrInvalidConfig)
		}
		backend, err := memory.NewPMEM(cfg.DevicePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return backend, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend type %q", ErrInvalidConfig, cfg.BackendType)
	}
}

// Shutdown stops the evictor, drains every bucket, and frees all chunk
// payloads. The host must quiesce readers before calling Shutdown; the
// cache does not wait for in-flight Get calls to complete.
func (c *Cache) Shutdown(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	close(c.stopEvictor)

	select {
	case <-c.evictorDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	var freed sync.WaitGroup
	for bucketID := uint32(0); bucketID < c.index.size; bucketID++ {
		freed.Add(1)
		go func(bucketID uint32) {
			defer freed.Done()
			c.index.lock(bucketID)
			defer c.index.unlock(bucketID)
			for chunk := c.index.heads[bucketID]; chunk != nil; {
				next := chunk.nextInBucket
				c.backend.Free(chunk.payload)
				c.stats.subBytesUsed(uint64(chunk.chunkSize))
				chunk = next
			}
			c.index.heads[bucketID] = nil
		}(bucketID)
	}
	freed.Wait()

	c.stats.bytesUsed.Store(0)
	c.metrics.setBytesUsed(0)

	logger.Info("chunk cache shut down")
	return nil
}
