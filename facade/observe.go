// File: facade/observe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import (
	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/control"
)

// Stats returns accounting for every pool, multiplexer first.
func (s *System) Stats() []api.PoolStats {
	return []api.PoolStats{s.epolls.Stats(), s.eventfds.Stats(), s.pipes.Stats()}
}

// PublishMetrics copies the current pool accounting into reg.
func (s *System) PublishMetrics(reg *control.MetricsRegistry) {
	for _, st := range s.Stats() {
		reg.RecordPool(st)
	}
	reg.Set("poll_interval", s.spin.Interval().String())
}

// RegisterProbes exposes per-pool dumps and the live configuration.
func (s *System) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("epoll.instances", func() any { return s.epolls.Dump() })
	dp.RegisterProbe("eventfd.channels", func() any { return s.eventfds.Dump() })
	dp.RegisterProbe("pipe.channels", func() any { return s.pipes.Dump() })
	dp.RegisterProbe("config", func() any { return s.Config() })
}
