package chunkcache

import "sync"

// lruList is the process-wide doubly-linked recency list over VALID
// chunks, protected by a single lock. Head is most recently admitted;
// tail is the eviction candidate.
type lruList struct {
	mu   sync.Mutex
	head *Chunk
	tail *Chunk
}

// pushHead links chunk at the list head. Called on RESERVED -> VALID.
// Caller must hold l.mu.
func (l *lruList) pushHead(chunk *Chunk) {
	chunk.lruPrev = nil
	chunk.lruNext = l.head
	if l.head != nil {
		l.head.lruPrev = chunk
	}
	l.head = chunk
	if l.tail == nil {
		l.tail = chunk
	}
}

// unlink removes chunk from the list. Tolerates a chunk that is already
// unlinked (no-op) so invalidation racing the evictor never double-frees
// list pointers. Caller must hold l.mu.
func (l *lruList) unlink(chunk *Chunk) {
	if l.head != chunk && l.tail != chunk && chunk.lruPrev == nil && chunk.lruNext == nil {
		return // already unlinked
	}
	if chunk.lruPrev != nil {
		chunk.lruPrev.lruNext = chunk.lruNext
	} else if l.head == chunk {
		l.head = chunk.lruNext
	}
	if chunk.lruNext != nil {
		chunk.lruNext.lruPrev = chunk.lruPrev
	} else if l.tail == chunk {
		l.tail = chunk.lruPrev
	}
	chunk.lruPrev = nil
	chunk.lruNext = nil
}

// touch moves chunk to the head if it is not already there. A no-op for
// EVICTING chunks — once a chunk is committed to eviction it must not be
// re-admitted to the list the evictor is draining it from.
func (l *lruList) touch(chunk *Chunk) {
	if chunk.State() == StateEvicting {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if chunk.State() == StateEvicting || l.head == chunk {
		return
	}
	l.unlink(chunk)
	l.pushHead(chunk)
}

// popTailAsEvicting atomically (under l.mu) detaches the tail chunk and
// flips it to EVICTING. This is the marker that lets a concurrent
// invalidator know the evictor has committed to freeing the chunk: once
// set, the invalidator must not free it itself.
func (l *lruList) popTailAsEvicting() *Chunk {
	l.mu.Lock()
	defer l.mu.Unlock()

	victim := l.tail
	if victim == nil {
		return nil
	}
	l.unlink(victim)
	victim.setState(StateEvicting)
	return victim
}
