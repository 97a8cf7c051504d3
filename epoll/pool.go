// File: epoll/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package epoll

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/spin"
)

// exclusiveCompanions are the only bits EPOLLEXCLUSIVE may be combined with.
const exclusiveCompanions = api.EPOLLIN | api.EPOLLOUT | api.EPOLLEXCLUSIVE

const btreeDegree = 8

type interest struct {
	fd int
	ev api.Event
}

func interestLess(a, b interest) bool { return a.fd < b.fd }

type instance struct {
	fd       int // -1 when the slot is free
	interest *btree.BTreeG[interest]
}

// Pool owns every multiplexer instance of the layout's epoll range.
type Pool struct {
	mu      sync.Mutex
	layout  fdspace.Layout
	slots   []instance
	sources map[fdspace.Kind]api.ReadinessSource
	spin    *spin.Spinner
	log     logrus.FieldLogger

	created   atomic.Uint64
	exhausted atomic.Uint64
	waits     atomic.Uint64
	sleeps    atomic.Uint64
	timeouts  atomic.Uint64
	reported  atomic.Uint64
}

// Option configures a Pool.
type Option func(*Pool)

// WithSource registers the readiness source for descriptors of kind.
func WithSource(kind fdspace.Kind, src api.ReadinessSource) Option {
	return func(p *Pool) { p.sources[kind] = src }
}

// WithSpinner sets the clock and sleep schedule used between sweeps.
func WithSpinner(s *spin.Spinner) Option {
	return func(p *Pool) { p.spin = s }
}

// WithLogger sets the logger; entries carry component=epoll.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pool) { p.log = l }
}

// NewPool allocates layout.Epoll.Max free instances.
func NewPool(layout fdspace.Layout, opts ...Option) *Pool {
	p := &Pool{
		layout:  layout,
		slots:   make([]instance, layout.Epoll.Max),
		sources: make(map[fdspace.Kind]api.ReadinessSource),
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
	p.log = p.log.WithField("component", "epoll")
	return p
}

// lookup returns the live instance for epfd. Caller holds p.mu.
func (p *Pool) lookup(epfd int) *instance {
	i, ok := p.layout.Epoll.Index(epfd)
	if !ok || p.slots[i].fd != epfd {
		return nil
	}
	return &p.slots[i]
}

// CreateSize is epoll_create: size is a hint that must be positive.
func (p *Pool) CreateSize(size int) (int, error) {
	if size <= 0 {
		return -1, unix.EINVAL
	}
	return p.Create(0)
}

// Create is epoll_create1. EPOLL_CLOEXEC is accepted and ignored.
func (p *Pool) Create(flags int) (int, error) {
	if flags != 0 && flags != api.EPOLL_CLOEXEC {
		return -1, unix.EINVAL
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		inst := &p.slots[i]
		if inst.fd != -1 {
			continue
		}
		inst.fd = p.layout.Epoll.Base + i
		inst.interest = btree.NewG(btreeDegree, interestLess)
		p.created.Add(1)
		p.log.WithField("epfd", inst.fd).Debug("epoll instance created")
		return inst.fd, nil
	}

	p.exhausted.Add(1)
	p.log.WithField("max", len(p.slots)).Debug("epoll pool exhausted")
	return -1, unix.EMFILE
}

// Owns reports whether epfd is a live instance.
func (p *Pool) Owns(epfd int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(epfd) != nil
}

func opName(op int) string {
	switch op {
	case api.EPOLL_CTL_ADD:
		return "ADD"
	case api.EPOLL_CTL_MOD:
		return "MOD"
	case api.EPOLL_CTL_DEL:
		return "DEL"
	}
	return "UNKNOWN"
}

// Ctl adds, modifies or removes fd in the interest set of epfd. ev is
// ignored for EPOLL_CTL_DEL and required otherwise.
func (p *Pool) Ctl(epfd, op, fd int, ev *api.Event) error {
	log := p.log.WithFields(logrus.Fields{"epfd": epfd, "op": opName(op), "fd": fd})

	if !p.layout.Epoll.Contains(epfd) || fd < 0 || fd == epfd {
		log.Debug("EBADF: epfd or fd is not a valid descriptor")
		return unix.EBADF
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	inst := p.lookup(epfd)
	if inst == nil {
		log.Debug("EINVAL: epfd is not an epoll instance")
		return unix.EINVAL
	}
	if op != api.EPOLL_CTL_ADD && op != api.EPOLL_CTL_MOD && op != api.EPOLL_CTL_DEL {
		log.Debug("EINVAL: unknown op")
		return unix.EINVAL
	}

	existing, watched := inst.interest.Get(interest{fd: fd})
	if op == api.EPOLL_CTL_ADD && watched {
		log.Debug("EEXIST: fd already registered")
		return unix.EEXIST
	}
	if ev == nil && op != api.EPOLL_CTL_DEL {
		log.Debug("EINVAL: event is required for ADD and MOD")
		return unix.EINVAL
	}
	if (op == api.EPOLL_CTL_MOD || op == api.EPOLL_CTL_DEL) && !watched {
		log.Debug("ENOENT: fd is not registered")
		return unix.ENOENT
	}
	if op == api.EPOLL_CTL_MOD && (existing.ev.Events&api.EPOLLEXCLUSIVE != 0 || ev.Events&api.EPOLLEXCLUSIVE != 0) {
		log.Debug("EINVAL: exclusive registrations cannot be modified")
		return unix.EINVAL
	}
	if op == api.EPOLL_CTL_ADD && ev.Events&api.EPOLLEXCLUSIVE != 0 && ev.Events&^exclusiveCompanions != 0 {
		log.Debug("EINVAL: invalid event type combined with EPOLLEXCLUSIVE")
		return unix.EINVAL
	}
	if p.layout.Epoll.Contains(fd) {
		// Nested instances are not supported at any depth.
		log.Debug("ELOOP: fd refers to an epoll instance")
		return unix.ELOOP
	}

	if op == api.EPOLL_CTL_DEL {
		inst.interest.Delete(interest{fd: fd})
		log.Debug("fd removed")
		return nil
	}
	inst.interest.ReplaceOrInsert(interest{fd: fd, ev: *ev})
	log.WithField("events", ev.Events.String()).Debug("fd registered")
	return nil
}

// InterestInfo describes one watched descriptor.
type InterestInfo struct {
	FD     int    `json:"fd"`
	Events string `json:"events"`
	Data   uint64 `json:"data"`
}

// InstanceInfo is a point-in-time view of one multiplexer instance.
type InstanceInfo struct {
	FD       int            `json:"epfd"`
	Interest []InterestInfo `json:"interest"`
}

// Dump lists every live instance and its interest set in descriptor order.
func (p *Pool) Dump() []InstanceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []InstanceInfo
	for i := range p.slots {
		inst := &p.slots[i]
		if inst.fd == -1 {
			continue
		}
		info := InstanceInfo{FD: inst.fd}
		inst.interest.Ascend(func(it interest) bool {
			info.Interest = append(info.Interest, InterestInfo{
				FD:     it.fd,
				Events: it.ev.Events.String(),
				Data:   it.ev.Data,
			})
			return true
		})
		out = append(out, info)
	}
	return out
}

// Stats returns pool accounting. Suspensions counts sweeps that ended in a
// sleep.
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
		Name:        "epoll",
		Capacity:    len(p.slots),
		InUse:       inUse,
		Created:     p.created.Load(),
		Exhausted:   p.exhausted.Load(),
		Suspensions: p.sleeps.Load(),
		Waits:       p.waits.Load(),
		Events:      p.reported.Load(),
		Timeouts:    p.timeouts.Load(),
	}
}
