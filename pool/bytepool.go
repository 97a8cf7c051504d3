// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>

package pool

import "sync/atomic"

// ChunkPool hands out fixed-size byte chunks used as message-pipe storage.
// Chunks are passed around as *[]byte so Put does not allocate.
type ChunkPool struct {
	size   int
	pool   *SyncPool[*[]byte]
	allocs atomic.Uint64
}

// NewChunkPool creates a pool of chunks of exactly size bytes.
func NewChunkPool(size int) *ChunkPool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	cp := &ChunkPool{size: size}
	cp.pool = NewSyncPool(func() *[]byte {
		cp.allocs.Add(1)
		b := make([]byte, size)
		return &b
	}, func(b *[]byte) *[]byte {
		*b = (*b)[:size]
		return b
	})
	return cp
}

// Size returns the chunk size.
func (cp *ChunkPool) Size() int { return cp.size }

// Get returns a chunk of Size() bytes.
func (cp *ChunkPool) Get() *[]byte {
	return cp.pool.Get()
}

// Put returns a chunk; chunks of a foreign size are dropped.
func (cp *ChunkPool) Put(b *[]byte) {
	if b == nil || cap(*b) < cp.size {
		return
	}
	cp.pool.Put(b)
}

// Allocs reports how many chunks were allocated rather than reused.
func (cp *ChunkPool) Allocs() uint64 { return cp.allocs.Load() }
