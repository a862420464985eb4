package chunkcache

// alignDown rounds offset down to a multiple of chunkSize.
func alignDown(offset, chunkSize uint64) uint64 {
	return (offset / chunkSize) * chunkSize
}

// chunkSizeFor returns the admitted size of the chunk starting at
// chunkOffset for an object of objectSize bytes: the configured chunk
// size, clipped to what remains in the object. A single logical block may
// span multiple chunks; callers loop to cover it.
func chunkSizeFor(chunkOffset, objectSize, configuredChunkSize uint64) uint32 {
	remaining := objectSize - chunkOffset
	if remaining > configuredChunkSize {
		remaining = configuredChunkSize
	}
	return uint32(remaining)
}

// copyLen returns how many bytes of a request starting at cursor can be
// served from a chunk spanning [chunkOffset, chunkOffset+chunkSize),
// bounded by the remaining request size.
func copyLen(chunkOffset uint64, chunkSize uint32, cursor uint64, remaining uint64) uint64 {
	avail := chunkOffset + uint64(chunkSize) - cursor
	if avail > remaining {
		return remaining
	}
	return avail
}
