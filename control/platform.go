// control/platform.go
// Author: momentics <momentics@gmail.com>
//
// Host platform probes.

package control

import (
	"os"
	"runtime"
)

// RegisterPlatformProbes sets host-level debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.goroutines", func() any {
		return runtime.NumGoroutine()
	})
	dp.RegisterProbe("platform.pid", func() any {
		return os.Getpid()
	})
}
