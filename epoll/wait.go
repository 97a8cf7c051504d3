// File: epoll/wait.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package epoll

import (
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/internal/spin"
)

// Wait fills events with ready descriptors of epfd and returns how many were
// written. timeoutMs == 0 polls once, a negative timeout waits until at least
// one event is ready, a positive one waits at most that many milliseconds.
func (p *Pool) Wait(epfd int, events []api.Event, timeoutMs int) (int, error) {
	if !p.layout.Epoll.Contains(epfd) {
		return -1, unix.EBADF
	}
	if len(events) == 0 {
		return -1, unix.EINVAL
	}

	p.mu.Lock()
	inst := p.lookup(epfd)
	if inst == nil {
		p.mu.Unlock()
		return -1, unix.EINVAL
	}
	p.waits.Add(1)

	clk := p.spin.Clock()
	start := clk.Now()
	timeout := time.Duration(timeoutMs) * time.Millisecond
	var idle *spin.Idle

	for {
		n := p.sweep(inst, events)
		switch {
		case n > 0:
			p.mu.Unlock()
			p.reported.Add(uint64(n))
			return n, nil
		case timeoutMs == 0, timeoutMs > 0 && clk.Since(start) >= timeout:
			p.mu.Unlock()
			p.timeouts.Add(1)
			return 0, nil
		}

		if idle == nil {
			idle = p.spin.Idle()
		}
		p.mu.Unlock()
		idle.Sleep()
		p.sleeps.Add(1)
		p.mu.Lock()
	}
}

// sweep visits the interest set once in descriptor order and writes one event
// per ready entry, carrying only the requested bits that are actually ready.
// Caller holds p.mu.
func (p *Pool) sweep(inst *instance, events []api.Event) int {
	n := 0
	inst.interest.Ascend(func(it interest) bool {
		if n == len(events) {
			return false
		}
		kind := p.layout.Classify(it.fd)
		src := p.sources[kind]
		if src == nil {
			p.log.WithFields(logrus.Fields{"epfd": inst.fd, "fd": it.fd}).Debug("skipping descriptor of unknown type")
			return true
		}
		readable, writeable, ok := src.Status(it.fd)
		if !ok {
			return true
		}

		var ready api.EventMask
		if it.ev.Events&api.EPOLLIN != 0 && readable {
			ready |= api.EPOLLIN
		}
		if it.ev.Events&api.EPOLLOUT != 0 && writeable {
			ready |= api.EPOLLOUT
		}
		if ready == 0 {
			return true
		}
		events[n] = api.Event{Events: ready, Data: it.ev.Data}
		n++
		p.log.WithFields(logrus.Fields{
			"epfd":   inst.fd,
			"fd":     it.fd,
			"kind":   kind.String(),
			"events": ready.String(),
		}).Debug("reporting event")
		return true
	})
	return n
}
