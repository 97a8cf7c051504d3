package pool

import (
	"sync"
)

// DefaultChunkSize matches the largest single transfer a byte channel accepts.
const DefaultChunkSize = 16 * 1024

var (
	defaultOnce sync.Once
	defaultPool *ChunkPool
)

// DefaultChunkPool returns a process-wide ChunkPool so all pipes share chunk
// storage instead of fragmenting allocations.
func DefaultChunkPool() *ChunkPool {
	defaultOnce.Do(func() {
		defaultPool = NewChunkPool(DefaultChunkSize)
	})
	return defaultPool
}
