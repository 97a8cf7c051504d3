// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for pool accounting.
// Exposes counters in a thread-safe map keyed "<pool>.<counter>".

package control

import (
	"sync"
	"time"

	"github.com/momentics/pseudopoll/api"
)

// MetricsRegistry holds the latest published metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// RecordPool stores every counter of st under st.Name.
func (mr *MetricsRegistry) RecordPool(st api.PoolStats) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	p := st.Name + "."
	mr.metrics[p+"capacity"] = st.Capacity
	mr.metrics[p+"in_use"] = st.InUse
	mr.metrics[p+"created"] = st.Created
	mr.metrics[p+"exhausted"] = st.Exhausted
	mr.metrics[p+"reads"] = st.Reads
	mr.metrics[p+"writes"] = st.Writes
	mr.metrics[p+"would_block"] = st.WouldBlock
	mr.metrics[p+"suspensions"] = st.Suspensions
	mr.metrics[p+"waits"] = st.Waits
	mr.metrics[p+"events"] = st.Events
	mr.metrics[p+"timeouts"] = st.Timeouts
	mr.updated = time.Now()
}

// Get returns one metric.
func (mr *MetricsRegistry) Get(key string) (any, bool) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	v, ok := mr.metrics[key]
	return v, ok
}

// Updated reports when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}
