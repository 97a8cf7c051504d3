// File: eventfd/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package eventfd

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/spin"
)

// MaxValue is the largest value a counter can hold. Adding beyond it blocks.
const MaxValue = math.MaxUint64 - 1

// Size is the exact transfer size of every read and write.
const Size = 8

const knownFlags = api.EFD_NONBLOCK | api.EFD_SEMAPHORE | api.EFD_CLOEXEC

type channel struct {
	mu    sync.Mutex
	fd    int // -1 when the slot is free
	value uint64
	flags int
}

func (c *channel) nonBlocking() bool { return c.flags&api.EFD_NONBLOCK != 0 }
func (c *channel) semaphore() bool   { return c.flags&api.EFD_SEMAPHORE != 0 }

// Pool owns every counter channel of one descriptor range. The pool lock
// guards slot allocation and lookup; each channel lock guards its value.
// Mutations hold both, pool first.
type Pool struct {
	mu    sync.Mutex
	rng   fdspace.Range
	slots []channel
	spin  *spin.Spinner
	log   logrus.FieldLogger

	created     atomic.Uint64
	exhausted   atomic.Uint64
	reads       atomic.Uint64
	writes      atomic.Uint64
	wouldBlock  atomic.Uint64
	suspensions atomic.Uint64
}

var _ api.ReadinessSource = (*Pool)(nil)

// Option configures a Pool.
type Option func(*Pool)

// WithSpinner sets the clock and sleep schedule used while blocking.
func WithSpinner(s *spin.Spinner) Option {
	return func(p *Pool) { p.spin = s }
}

// WithLogger sets the logger; entries carry component=eventfd.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pool) { p.log = l }
}

// NewPool allocates rng.Max free slots.
func NewPool(rng fdspace.Range, opts ...Option) *Pool {
	p := &Pool{
		rng:   rng,
		slots: make([]channel, rng.Max),
	}
	for i := range p.slots {
		p.slots[i].fd = -1
	}
	for _, o := range opts {
		o(p)
	}
	if p.spin == nil {
		p.spin = spin.New(nil, spin.DefaultInterval, spin.Constant)
	}
	if p.log == nil {
		p.log = logrus.StandardLogger()
	}
	p.log = p.log.WithField("component", "eventfd")
	return p
}

// lookup returns the live channel for fd. Caller holds p.mu.
func (p *Pool) lookup(fd int) *channel {
	i, ok := p.rng.Index(fd)
	if !ok || p.slots[i].fd != fd {
		return nil
	}
	return &p.slots[i]
}

// Create allocates a counter initialised to initval.
func (p *Pool) Create(initval uint32, flags int) (int, error) {
	if flags&^knownFlags != 0 {
		return -1, unix.EINVAL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		c := &p.slots[i]
		if c.fd != -1 {
			continue
		}
		c.mu.Lock()
		c.fd = p.rng.Base + i
		c.value = uint64(initval)
		c.flags = flags
		c.mu.Unlock()

		p.created.Add(1)
		p.log.WithFields(logrus.Fields{
			"fd":        c.fd,
			"initval":   initval,
			"semaphore": c.semaphore(),
			"nonblock":  c.nonBlocking(),
		}).Debug("eventfd created")
		return c.fd, nil
	}

	p.exhausted.Add(1)
	p.log.WithField("max", p.rng.Max).Debug("eventfd pool exhausted")
	return -1, unix.EMFILE
}

// Owns reports whether fd is a live counter channel.
func (p *Pool) Owns(fd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(fd) != nil
}

// Read consumes the counter into buf[:8]. In semaphore mode it yields 1 and
// decrements; otherwise it yields the whole value and resets it to zero.
func (p *Pool) Read(fd int, buf []byte) (int, error) {
	p.mu.Lock()
	c := p.lookup(fd)
	if c == nil || len(buf) < Size {
		p.mu.Unlock()
		return -1, unix.EINVAL
	}
	c.mu.Lock()

	if c.value == 0 {
		if c.nonBlocking() {
			c.mu.Unlock()
			p.mu.Unlock()
			p.wouldBlock.Add(1)
			return -1, unix.EAGAIN
		}
		idle := p.spin.Idle()
		for c.value == 0 {
			c.mu.Unlock()
			p.mu.Unlock()
			idle.Sleep()
			p.mu.Lock()
			c.mu.Lock()
		}
		p.suspensions.Add(uint64(idle.Sleeps()))
	}

	var val uint64
	if c.semaphore() {
		val = 1
		c.value--
	} else {
		val = c.value
		c.value = 0
	}
	c.mu.Unlock()
	p.mu.Unlock()

	binary.NativeEndian.PutUint64(buf, val)
	p.reads.Add(1)
	return Size, nil
}

// Write adds the 8-byte value in buf to the counter. An addend that would
// push the counter past MaxValue blocks until a reader makes room.
func (p *Pool) Write(fd int, buf []byte) (int, error) {
	p.mu.Lock()
	c := p.lookup(fd)
	if c == nil || len(buf) < Size {
		p.mu.Unlock()
		return -1, unix.EINVAL
	}
	val := binary.NativeEndian.Uint64(buf)
	if val == math.MaxUint64 {
		p.mu.Unlock()
		return -1, unix.EINVAL
	}
	c.mu.Lock()

	if MaxValue-c.value < val {
		if c.nonBlocking() {
			c.mu.Unlock()
			p.mu.Unlock()
			p.wouldBlock.Add(1)
			return -1, unix.EAGAIN
		}
		idle := p.spin.Idle()
		for MaxValue-c.value < val {
			c.mu.Unlock()
			p.mu.Unlock()
			idle.Sleep()
			p.mu.Lock()
			c.mu.Lock()
		}
		p.suspensions.Add(uint64(idle.Sleeps()))
	}

	c.value += val
	c.mu.Unlock()
	p.mu.Unlock()

	p.writes.Add(1)
	return Size, nil
}

// Status implements api.ReadinessSource.
func (p *Pool) Status(fd int) (readable, writeable, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.lookup(fd)
	if c == nil {
		return false, false, false
	}
	c.mu.Lock()
	readable = c.value > 0
	writeable = c.value < MaxValue
	c.mu.Unlock()
	return readable, writeable, true
}

// Stats returns pool accounting.
func (p *Pool) Stats() api.PoolStats {
	p.mu.Lock()
	inUse := 0
	for i := range p.slots {
		if p.slots[i].fd != -1 {
			inUse++
		}
	}
	p.mu.Unlock()
	return api.PoolStats{
		Name:        "eventfd",
		Capacity:    len(p.slots),
		InUse:       inUse,
		Created:     p.created.Load(),
		Exhausted:   p.exhausted.Load(),
		Reads:       p.reads.Load(),
		Writes:      p.writes.Load(),
		WouldBlock:  p.wouldBlock.Load(),
		Suspensions: p.suspensions.Load(),
	}
}

// ChannelInfo is a point-in-time view of one counter channel.
type ChannelInfo struct {
	FD          int    `json:"fd"`
	Value       uint64 `json:"value"`
	Semaphore   bool   `json:"semaphore"`
	NonBlocking bool   `json:"nonblock"`
}

// Dump lists every live channel in descriptor order.
func (p *Pool) Dump() []ChannelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ChannelInfo
	for i := range p.slots {
		c := &p.slots[i]
		if c.fd == -1 {
			continue
		}
		c.mu.Lock()
		out = append(out, ChannelInfo{
			FD:          c.fd,
			Value:       c.value,
			Semaphore:   c.semaphore(),
			NonBlocking: c.nonBlocking(),
		})
		c.mu.Unlock()
	}
	return out
}
