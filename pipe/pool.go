// File: pipe/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipe

import (
	"errors"
	"sync"
	"sync/atomic"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/spin"
	"github.com/momentics/pseudopoll/pool"
)

// ChunkSize caps a single read or write and sizes each channel's buffer.
const ChunkSize = 16 * 1024

const knownFlags = api.O_NONBLOCK | api.O_CLOEXEC

type channel struct {
	readFD    int // -1 when the slot is free
	writeFD   int
	transport Transport
	flags     int
	readable  bool
	writeable bool
}

func (c *channel) nonBlocking() bool { return c.flags&api.O_NONBLOCK != 0 }

// Pool owns every byte channel of one descriptor range. A single lock guards
// slots, flags and transfers.
type Pool struct {
	mu         sync.Mutex
	rng        fdspace.Range
	slots      []channel
	chunkSize  int
	edgeStatus bool
	factory    TransportFactory
	spin       *spin.Spinner
	log        logrus.FieldLogger

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

// WithLogger sets the logger; entries carry component=pipe.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pool) { p.log = l }
}

// WithTransportFactory replaces the message-pipe transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(p *Pool) { p.factory = f }
}

// WithChunkSize sets the per-call transfer cap and channel capacity.
func WithChunkSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.chunkSize = n
		}
	}
}

// WithEdgeStatus makes Status report the stored flags and then clear them,
// so each write is reported once. The default is level-triggered.
func WithEdgeStatus(on bool) Option {
	return func(p *Pool) { p.edgeStatus = on }
}

// NewPool allocates rng.Max/2 free channel slots.
func NewPool(rng fdspace.Range, opts ...Option) *Pool {
	p := &Pool{
		rng:       rng,
		slots:     make([]channel, rng.Max/2),
		chunkSize: ChunkSize,
	}
	for i := range p.slots {
		p.slots[i].readFD = -1
		p.slots[i].writeFD = -1
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
	if p.factory == nil {
		chunks := pool.DefaultChunkPool()
		if p.chunkSize != chunks.Size() {
			chunks = pool.NewChunkPool(p.chunkSize)
		}
		p.factory = MsgPipeFactory(chunks)
	}
	p.log = p.log.WithField("component", "pipe")
	return p
}

// slotFor returns the live channel owning fd, whichever half. Caller holds p.mu.
func (p *Pool) slotFor(fd int) *channel {
	i, ok := p.rng.Index(fd)
	if !ok {
		return nil
	}
	c := &p.slots[i/2]
	if c.readFD == -1 {
		return nil
	}
	return c
}

// Create allocates a channel and returns its read and write descriptors.
func (p *Pool) Create(flags int) (readFD, writeFD int, err error) {
	if flags&^knownFlags != 0 {
		return -1, -1, unix.EINVAL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.factory(p.chunkSize)
	if err != nil {
		p.log.WithError(err).Warn("message pipe creation failed")
		return -1, -1, pkgerrors.Wrap(unix.EIO, err.Error())
	}

	for i := range p.slots {
		c := &p.slots[i]
		if c.readFD != -1 {
			continue
		}
		c.readFD = p.rng.Base + 2*i
		c.writeFD = c.readFD + 1
		c.transport = t
		c.flags = flags
		c.readable = false
		c.writeable = true

		p.created.Add(1)
		p.log.WithFields(logrus.Fields{
			"read_fd":  c.readFD,
			"write_fd": c.writeFD,
		}).Debug("pipe created")
		return c.readFD, c.writeFD, nil
	}

	if cerr := t.Close(); cerr != nil {
		p.log.WithError(cerr).Warn("closing unused message pipe")
	}
	p.exhausted.Add(1)
	p.log.WithField("max", len(p.slots)).Debug("pipe pool exhausted")
	return -1, -1, unix.EMFILE
}

// Owns reports whether fd is either half of a live channel.
func (p *Pool) Owns(fd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotFor(fd) != nil
}

// Read transfers up to ChunkSize bytes from the channel whose read half is
// fd. readable is cleared once the channel is left empty.
func (p *Pool) Read(fd int, buf []byte) (int, error) {
	p.mu.Lock()
	c := p.slotFor(fd)
	if c == nil || c.readFD != fd {
		p.mu.Unlock()
		return -1, unix.EINVAL
	}
	if len(buf) > p.chunkSize {
		buf = buf[:p.chunkSize]
	}
	if len(buf) == 0 {
		p.mu.Unlock()
		return 0, nil
	}

	var idle *spin.Idle
	for {
		n, remaining, err := c.transport.TryReceive(buf)
		if err == nil {
			if remaining == 0 {
				c.readable = false
			}
			p.mu.Unlock()
			p.trackSleeps(idle)
			p.reads.Add(1)
			return n, nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			p.mu.Unlock()
			p.trackSleeps(idle)
			p.log.WithError(err).WithField("fd", fd).Warn("message pipe receive failed")
			return -1, pkgerrors.Wrapf(unix.EIO, "pipe %d receive: %v", fd, err)
		}
		// Nothing buffered: the channel is drained whatever the flag says.
		c.readable = false
		if c.nonBlocking() {
			p.mu.Unlock()
			p.wouldBlock.Add(1)
			return -1, unix.EAGAIN
		}
		if idle == nil {
			idle = p.spin.Idle()
		}
		p.mu.Unlock()
		idle.Sleep()
		p.mu.Lock()
	}
}

// Write transfers up to ChunkSize bytes into the channel whose write half is
// fd. The transfer is all-or-nothing; readable is set on success.
func (p *Pool) Write(fd int, buf []byte) (int, error) {
	p.mu.Lock()
	c := p.slotFor(fd)
	if c == nil || c.writeFD != fd {
		p.mu.Unlock()
		return -1, unix.EINVAL
	}
	if len(buf) > p.chunkSize {
		buf = buf[:p.chunkSize]
	}
	if len(buf) == 0 {
		p.mu.Unlock()
		return 0, nil
	}

	var idle *spin.Idle
	for {
		n, err := c.transport.TrySend(buf)
		if err == nil {
			if n > 0 {
				c.readable = true
			}
			p.mu.Unlock()
			p.trackSleeps(idle)
			p.writes.Add(1)
			return n, nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			p.mu.Unlock()
			p.trackSleeps(idle)
			p.log.WithError(err).WithField("fd", fd).Warn("message pipe send failed")
			return -1, pkgerrors.Wrapf(unix.EIO, "pipe %d send: %v", fd, err)
		}
		if c.nonBlocking() {
			p.mu.Unlock()
			p.wouldBlock.Add(1)
			return -1, unix.EAGAIN
		}
		if idle == nil {
			idle = p.spin.Idle()
		}
		p.mu.Unlock()
		idle.Sleep()
		p.mu.Lock()
	}
}

func (p *Pool) trackSleeps(idle *spin.Idle) {
	if idle != nil {
		p.suspensions.Add(uint64(idle.Sleeps()))
	}
}

// Status implements api.ReadinessSource for either half of a channel.
//
// In level mode readable means bytes are buffered and writeable means there
// is free space. In edge mode the stored flags are returned and cleared.
func (p *Pool) Status(fd int) (readable, writeable, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.slotFor(fd)
	if c == nil {
		return false, false, false
	}
	if p.edgeStatus {
		readable, writeable = c.readable, c.writeable
		c.readable = false
		c.writeable = false
		return readable, writeable, true
	}
	return c.transport.Buffered() > 0, c.transport.Free() > 0, true
}

// Stats returns pool accounting. Capacity counts descriptors, two per channel.
func (p *Pool) Stats() api.PoolStats {
	p.mu.Lock()
	inUse := 0
	for i := range p.slots {
		if p.slots[i].readFD != -1 {
			inUse += 2
		}
	}
	p.mu.Unlock()
	return api.PoolStats{
		Name:        "pipe",
		Capacity:    2 * len(p.slots),
		InUse:       inUse,
		Created:     p.created.Load(),
		Exhausted:   p.exhausted.Load(),
		Reads:       p.reads.Load(),
		Writes:      p.writes.Load(),
		WouldBlock:  p.wouldBlock.Load(),
		Suspensions: p.suspensions.Load(),
	}
}

// ChannelInfo is a point-in-time view of one byte channel.
type ChannelInfo struct {
	ReadFD    int  `json:"read_fd"`
	WriteFD   int  `json:"write_fd"`
	Buffered  int  `json:"buffered"`
	Readable  bool `json:"readable"`
	Writeable bool `json:"writeable"`
}

// Dump lists every live channel in descriptor order.
func (p *Pool) Dump() []ChannelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []ChannelInfo
	for i := range p.slots {
		c := &p.slots[i]
		if c.readFD == -1 {
			continue
		}
		out = append(out, ChannelInfo{
			ReadFD:    c.readFD,
			WriteFD:   c.writeFD,
			Buffered:  c.transport.Buffered(),
			Readable:  c.readable,
			Writeable: c.writeable,
		})
	}
	return out
}
