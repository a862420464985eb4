package chunkcache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChunk(offset uint64) *Chunk {
	c := newChunk(newHashId("block", 1, offset), offset, 0)
	c.setState(StateValid)
	return c
}

func TestLRUPushAndOrder(t *testing.T) {
	l := &lruList{}
	a := newTestChunk(0)
	b := newTestChunk(64 * 1024)

	l.mu.Lock()
	l.pushHead(a)
	l.pushHead(b)
	l.mu.Unlock()

	require.Same(t, b, l.head)
	require.Same(t, a, l.tail)
}

func TestLRUUnlinkMiddle(t *testing.T) {
	l := &lruList{}
	a := newTestChunk(0)
	b := newTestChunk(64 * 1024)
	c := newTestChunk(128 * 1024)

	l.mu.Lock()
	l.pushHead(a)
	l.pushHead(b)
	l.pushHead(c)
	l.unlink(b)
	l.mu.Unlock()

	assert.Same(t, c, l.head)
	assert.Same(t, a, l.tail)
	assert.Same(t, c, a.lruPrev)
	assert.Same(t, a, c.lruNext)
}

func TestLRUUnlinkIsIdempotent(t *testing.T) {
	l := &lruList{}
	a := newTestChunk(0)

	l.mu.Lock()
	l.pushHead(a)
	l.unlink(a)
	l.unlink(a) // must not panic
	l.mu.Unlock()

	assert.Nil(t, l.head)
	assert.Nil(t, l.tail)
}

func TestLRUTouchMovesToHead(t *testing.T) {
	l := &lruList{}
	a := newTestChunk(0)
	b := newTestChunk(64 * 1024)

	l.mu.Lock()
	l.pushHead(a)
	l.pushHead(b)
	l.mu.Unlock()

	l.touch(a)
	assert.Same(t, a, l.head)
}

func TestLRUTouchIgnoresEvictingChunk(t *testing.T) {
	l := &lruList{}
	a := newTestChunk(0)
	b := newTestChunk(64 * 1024)

	l.mu.Lock()
	l.pushHead(a)
	l.pushHead(b)
	l.mu.Unlock()

	a.setState(StateEvicting)
	l.touch(a)
	assert.Same(t, b, l.head, "an EVICTING chunk must not be re-admitted to the head")
}

func TestPopTailAsEvictingMarksAndDetaches(t *testing.T) {
	l := &lruList{}
	a := newTestChunk(0)
	b := newTestChunk(64 * 1024)

	l.mu.Lock()
	l.pushHead(a)
	l.pushHead(b)
	l.mu.Unlock()

	victim := l.popTailAsEvicting()
	require.Same(t, a, victim)
	assert.Equal(t, StateEvicting, victim.State())
	assert.Same(t, b, l.head)
	assert.Same(t, b, l.tail)
}

func TestPopTailAsEvictingEmptyListReturnsNil(t *testing.T) {
	l := &lruList{}
	assert.Nil(t, l.popTailAsEvicting())
}
