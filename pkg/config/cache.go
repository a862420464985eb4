package config

import "github.com/dittofs/chunkcache/pkg/chunkcache"

// ToChunkCacheConfig converts the wire-format CacheConfig into the
// chunkcache.Config the cache package actually consumes.
func (c CacheConfig) ToChunkCacheConfig() chunkcache.Config {
	return chunkcache.Config{
		Enabled:       c.Enabled,
		Capacity:      c.Capacity,
		ChunkSize:     c.ChunkSize,
		HashSize:      c.HashSize,
		BackendType:   c.Backend,
		DevicePath:    c.DevicePath,
		EvictInterval: c.EvictInterval,
	}
}
