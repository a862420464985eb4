package chunkcache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dittofs/chunkcache/internal/bytesize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test fixtures
// ============================================================================

// objectMod251 builds an in-memory object of the given size filled with
// byte value = offset mod 251, matching the concrete scenarios.
func objectMod251(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func blockFor(name string, data []byte) BlockDescriptor {
	return BlockDescriptor{
		Name: name,
		Size: uint64(len(data)),
		Read: func(_ context.Context, offset, size int64, dst []byte) (int, error) {
			return copy(dst[:size], data[offset:offset+size]), nil
		},
	}
}

func testConfig() Config {
	return Config{
		Enabled:       true,
		Capacity:      1 * bytesize.MiB,
		ChunkSize:     64 * bytesize.KiB,
		HashSize:      64,
		BackendType:   "dram",
		EvictInterval: 10 * time.Millisecond,
	}
}

func setupTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	c, err := Setup(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// ============================================================================
// Concrete scenarios (spec §8)
// ============================================================================

func TestScenarios(t *testing.T) {
	data := objectMod251(1 << 20)
	block := blockFor("obj-7", data)

	t.Run("ColdReadAdmitsOneChunk", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		dst := make([]byte, 16)

		result, err := c.Get(context.Background(), 7, block, 0, 16, dst)
		require.NoError(t, err)
		assert.Equal(t, Hit, result)
		assert.Equal(t, data[:16], dst)

		stats := c.Stats()
		assert.EqualValues(t, 1, stats.Lookups)
		assert.EqualValues(t, 0, stats.Hits)
		assert.EqualValues(t, 1, stats.ChunksAdmitted)
		assert.EqualValues(t, 64*1024, stats.BytesUsed)
	})

	t.Run("RepeatReadIsAHit", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		dst1 := make([]byte, 16)
		dst2 := make([]byte, 16)

		_, err := c.Get(context.Background(), 7, block, 0, 16, dst1)
		require.NoError(t, err)
		_, err = c.Get(context.Background(), 7, block, 0, 16, dst2)
		require.NoError(t, err)

		assert.Equal(t, dst1, dst2)
		stats := c.Stats()
		assert.EqualValues(t, 2, stats.Lookups)
		assert.EqualValues(t, 1, stats.Hits)
		assert.EqualValues(t, 1, stats.ChunksAdmitted)
	})

	t.Run("ReadSpanningTwoChunksAdmitsBoth", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		dst := make([]byte, 32)

		result, err := c.Get(context.Background(), 7, block, 65520, 32, dst)
		require.NoError(t, err)
		assert.Equal(t, Hit, result)

		expected := make([]byte, 32)
		for i := range expected {
			expected[i] = byte((65520 + i) % 251)
		}
		assert.Equal(t, expected, dst)
		assert.EqualValues(t, 2, c.Stats().ChunksAdmitted)
	})

	t.Run("ConcurrentGetSingleFlightsOneAdmission", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		before := c.Stats().ChunksAdmitted

		const n = 16
		results := make([][]byte, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				dst := make([]byte, 64)
				_, err := c.Get(context.Background(), 7, block, 131072, 64, dst)
				require.NoError(t, err)
				results[i] = dst
			}(i)
		}
		wg.Wait()

		for i := 1; i < n; i++ {
			assert.Equal(t, results[0], results[i])
		}
		assert.EqualValues(t, before+1, c.Stats().ChunksAdmitted)
	})

	t.Run("CapacityExhaustionMissesThenEvictorRecovers", func(t *testing.T) {
		// object holds 17 chunks' worth of data so the 17th chunk is a
		// legitimate in-range admission, not an out-of-bounds chunkSize==0 Miss.
		wideData := objectMod251(17 * 64 * 1024)
		wideBlock := blockFor("obj-capacity", wideData)

		cfg := testConfig()
		cfg.Capacity = 16 * 64 * bytesize.KiB // exactly 16 chunks
		c := setupTestCache(t, cfg)

		// fill all 16 chunk slots
		for i := 0; i < 16; i++ {
			dst := make([]byte, 1)
			_, err := c.Get(context.Background(), 7, wideBlock, int64(i)*64*1024, 1, dst)
			require.NoError(t, err)
		}
		require.EqualValues(t, 16, c.Stats().ChunksAdmitted)

		// a 17th distinct, in-range chunk exceeds capacity before the evictor runs
		dst := make([]byte, 1)
		result, err := c.Get(context.Background(), 7, wideBlock, 16*64*1024, 1, dst)
		require.NoError(t, err)
		assert.Equal(t, Miss, result)
		assert.GreaterOrEqual(t, c.Stats().ExceededCapacity, uint64(1))

		// once the evictor has had time to free a slot, a retry succeeds
		assert.Eventually(t, func() bool {
			res, err := c.Get(context.Background(), 7, wideBlock, 16*64*1024, 1, dst)
			return err == nil && res == Hit
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("RemoveThenRefetchAdmitsTwice", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		dst := make([]byte, 1)

		_, err := c.Get(context.Background(), 7, block, 0, 1, dst)
		require.NoError(t, err)
		before := c.Stats().ChunksAdmitted

		c.Remove(7, block, 0, 1)
		_, err = c.Get(context.Background(), 7, block, 0, 1, dst)
		require.NoError(t, err)

		assert.EqualValues(t, before+1, c.Stats().ChunksAdmitted)
	})
}

// ============================================================================
// Round-trip / idempotence (spec §8)
// ============================================================================

func TestRoundTripIdempotence(t *testing.T) {
	data := objectMod251(1 << 20)
	block := blockFor("obj-1", data)

	t.Run("IdenticalGetsReturnIdenticalBytes", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		dst1 := make([]byte, 100)
		dst2 := make([]byte, 100)

		_, err := c.Get(context.Background(), 1, block, 1000, 100, dst1)
		require.NoError(t, err)
		_, err = c.Get(context.Background(), 1, block, 1000, 100, dst2)
		require.NoError(t, err)
		assert.Equal(t, dst1, dst2)
	})

	t.Run("RemoveThenGetPopulatesFreshChunk", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		dst := make([]byte, 100)
		_, err := c.Get(context.Background(), 1, block, 0, 100, dst)
		require.NoError(t, err)

		c.Remove(1, block, 0, 100)

		dst2 := make([]byte, 100)
		result, err := c.Get(context.Background(), 1, block, 0, 100, dst2)
		require.NoError(t, err)
		assert.Equal(t, Hit, result)
		assert.Equal(t, dst, dst2)
	})

	t.Run("RepeatedRemoveIsANoOp", func(t *testing.T) {
		c := setupTestCache(t, testConfig())
		c.Remove(1, block, 0, 100)
		c.Remove(1, block, 0, 100)
		assert.EqualValues(t, 0, c.Stats().ChunksEvicted)
	})
}

// ============================================================================
// Boundary behaviors (spec §8)
// ============================================================================

func TestBoundaryBehaviors(t *testing.T) {
	t.Run("LastChunkOfNonMultipleBlockIsShort", func(t *testing.T) {
		data := objectMod251(64*1024 + 100) // 100 bytes past one chunk
		block := blockFor("obj-short", data)
		c := setupTestCache(t, testConfig())

		dst := make([]byte, 100)
		result, err := c.Get(context.Background(), 2, block, 64*1024, 100, dst)
		require.NoError(t, err)
		assert.Equal(t, Hit, result)
		assert.Equal(t, data[64*1024:], dst)
	})

	t.Run("BlockBeginningMidChunkLoopsAtLeastTwice", func(t *testing.T) {
		data := objectMod251(1 << 20)
		block := blockFor("obj-mid", data)
		c := setupTestCache(t, testConfig())

		dst := make([]byte, 128)
		result, err := c.Get(context.Background(), 3, block, 64*1024-64, 128, dst)
		require.NoError(t, err)
		assert.Equal(t, Hit, result)
		assert.Equal(t, data[64*1024-64:64*1024+64], dst)
		assert.EqualValues(t, 2, c.Stats().ChunksAdmitted)
	})
}

// ============================================================================
// Shutdown
// ============================================================================

func TestShutdownFreesEverything(t *testing.T) {
	data := objectMod251(1 << 20)
	block := blockFor("obj-shutdown", data)
	c, err := Setup(testConfig())
	require.NoError(t, err)

	dst := make([]byte, 16)
	_, err = c.Get(context.Background(), 1, block, 0, 16, dst)
	require.NoError(t, err)
	require.Greater(t, c.Stats().BytesUsed, uint64(0))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(ctx))

	assert.EqualValues(t, 0, c.Stats().BytesUsed)
}

// ============================================================================
// Disabled cache
// ============================================================================

func TestDisabledCacheIsANoOp(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c, err := Setup(cfg)
	require.NoError(t, err)

	data := objectMod251(1024)
	block := blockFor("obj-disabled", data)
	dst := make([]byte, 16)

	result, err := c.Get(context.Background(), 1, block, 0, 16, dst)
	require.NoError(t, err)
	assert.Equal(t, Miss, result)

	c.Remove(1, block, 0, 16) // must not panic

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, c.Shutdown(ctx))
}

// ============================================================================
// Setup validation
// ============================================================================

func TestSetupValidation(t *testing.T) {
	t.Run("RejectsZeroCapacity", func(t *testing.T) {
		cfg := testConfig()
		cfg.Capacity = 0
		_, err := Setup(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("RejectsZeroChunkSize", func(t *testing.T) {
		cfg := testConfig()
		cfg.ChunkSize = 0
		_, err := Setup(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("RejectsUnknownBackend", func(t *testing.T) {
		cfg := testConfig()
		cfg.BackendType = "nvme"
		_, err := Setup(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("RejectsFileBackendWithoutDevicePath", func(t *testing.T) {
		cfg := testConfig()
		cfg.BackendType = "file"
		_, err := Setup(cfg)
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}
