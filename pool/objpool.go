// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package pool

import "sync"

// ObjectPool is a generic object pool.
type ObjectPool[T any] interface {
	Get() T
	Put(T)
}

// SyncPool wraps sync.Pool for generic usage. An optional reset hook runs on
// every object handed back by Get, whether fresh or recycled.
type SyncPool[T any] struct {
	pool  sync.Pool
	reset func(T) T
}

var _ ObjectPool[*[]byte] = (*ChunkPool)(nil)

// NewSyncPool creates a SyncPool with a creator and an optional reset hook.
func NewSyncPool[T any](creator func() T, reset func(T) T) *SyncPool[T] {
	sp := &SyncPool[T]{reset: reset}
	sp.pool.New = func() any { return creator() }
	return sp
}

// Get returns a pooled or freshly created object.
func (sp *SyncPool[T]) Get() T {
	obj := sp.pool.Get().(T)
	if sp.reset != nil {
		obj = sp.reset(obj)
	}
	return obj
}

// Put makes obj available for reuse.
func (sp *SyncPool[T]) Put(obj T) {
	sp.pool.Put(obj)
}
