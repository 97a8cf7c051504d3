package control_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/control"
)

func TestMetricsRegistryRecordPool(t *testing.T) {
	reg := control.NewMetricsRegistry()
	assert.Assert(t, reg.Updated().IsZero())

	reg.RecordPool(api.PoolStats{Name: "eventfd", Capacity: 64, InUse: 3, Reads: 7})
	reg.Set("poll_interval", "10ms")

	v, ok := reg.Get("eventfd.in_use")
	assert.Assert(t, ok)
	assert.Equal(t, v, 3)
	snap := reg.GetSnapshot()
	assert.Equal(t, snap["eventfd.reads"], uint64(7))
	assert.Equal(t, snap["poll_interval"], "10ms")
	assert.Assert(t, !reg.Updated().IsZero())

	snap["eventfd.in_use"] = 99
	v, _ = reg.Get("eventfd.in_use")
	assert.Equal(t, v, 3)
}

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	calls := 0
	dp.RegisterProbe("custom", func() any { calls++; return calls })

	assert.DeepEqual(t, dp.Names(), []string{"custom", "platform.cpus", "platform.goroutines", "platform.pid"})
	state := dp.DumpState()
	assert.Equal(t, state["custom"], 1)
	assert.Assert(t, state["platform.cpus"].(int) > 0)
}
