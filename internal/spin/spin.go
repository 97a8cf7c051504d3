// File: internal/spin/spin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Cooperative micro-sleep used by every blocking emulation. Callers release
// their locks, call Idle.Sleep, reacquire and recheck their condition.

package spin

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"k8s.io/utils/clock"
)

// DefaultInterval is the sleep granularity between readiness sweeps.
const DefaultInterval = 10 * time.Millisecond

// Strategy selects the idle sleep schedule.
type Strategy string

const (
	// Constant sleeps exactly one interval per retry.
	Constant Strategy = "constant"
	// Exponential starts at a tenth of the interval and grows up to it.
	Exponential Strategy = "exponential"
)

// ParseStrategy accepts "", "constant" or "exponential".
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", Constant:
		return Constant, nil
	case Exponential:
		return Exponential, nil
	}
	return "", fmt.Errorf("spin: unknown idle strategy %q", s)
}

// Spinner owns the clock and sleep schedule shared by one set of pools.
type Spinner struct {
	clock    clock.Clock
	interval atomic.Int64
	strategy Strategy
}

// New builds a Spinner. A nil clock means the real clock, a non-positive
// interval means DefaultInterval.
func New(clk clock.Clock, interval time.Duration, strategy Strategy) *Spinner {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if strategy == "" {
		strategy = Constant
	}
	s := &Spinner{clock: clk, strategy: strategy}
	s.SetInterval(interval)
	return s
}

// Clock returns the injected clock.
func (s *Spinner) Clock() clock.Clock { return s.clock }

// Interval returns the current maximum sleep per retry.
func (s *Spinner) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// SetInterval changes the sleep granularity for subsequent Idle schedules.
func (s *Spinner) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultInterval
	}
	s.interval.Store(int64(d))
}

// Idle returns a fresh schedule for one blocking call.
func (s *Spinner) Idle() *Idle {
	interval := s.Interval()
	var b backoff.BackOff
	switch s.strategy {
	case Exponential:
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = interval / 10
		if eb.InitialInterval <= 0 {
			eb.InitialInterval = interval
		}
		eb.MaxInterval = interval
		eb.RandomizationFactor = 0
		eb.MaxElapsedTime = 0
		eb.Clock = s.clock
		eb.Reset()
		b = eb
	default:
		b = backoff.NewConstantBackOff(interval)
	}
	return &Idle{clock: s.clock, fallback: interval, schedule: b}
}

// Idle is the per-call sleep schedule. It is not safe for concurrent use.
type Idle struct {
	clock    clock.Clock
	fallback time.Duration
	schedule backoff.BackOff
	sleeps   int
}

// Sleep suspends the caller for the next interval of the schedule.
func (i *Idle) Sleep() {
	d := i.schedule.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		d = i.fallback
	}
	i.sleeps++
	i.clock.Sleep(d)
}

// Sleeps reports how many times Sleep was called.
func (i *Idle) Sleeps() int { return i.sleeps }
