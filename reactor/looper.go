// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor - callback loop over a pseudo epoll instance.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/momentics/pseudopoll/api"
)

// ErrClosed is returned by every call on a closed Looper.
var ErrClosed = errors.New("reactor: looper closed")

// Multiplexer is the subset of facade.System a Looper drives.
type Multiplexer interface {
	Eventfd(initval uint32, flags int) (int, error)
	EpollCreate1(flags int) (int, error)
	EpollCtl(epfd, op, fd int, ev *api.Event) error
	EpollWait(epfd int, events []api.Event, timeoutMs int) (int, error)
	Read(fd int, buf []byte) (int, error)
	Write(fd int, buf []byte) (int, error)
}

// Callback receives the ready subset of the registered mask.
type Callback func(fd int, events api.EventMask)

// Looper dispatches readiness of registered descriptors to callbacks.
type Looper struct {
	mux    Multiplexer
	epfd   int
	wakeFD int
	log    logrus.FieldLogger

	mu        sync.Mutex
	callbacks map[int]Callback

	pollMu sync.Mutex
	events []api.Event

	closed atomic.Bool
}

// Option configures a Looper.
type Option func(*Looper)

// WithLogger sets the logger; entries carry component=looper.
func WithLogger(l logrus.FieldLogger) Option {
	return func(lp *Looper) { lp.log = l }
}

// WithMaxEvents sets how many events a single Poll can dispatch.
func WithMaxEvents(n int) Option {
	return func(lp *Looper) {
		if n > 0 {
			lp.events = make([]api.Event, n)
		}
	}
}

// NewLooper creates an epoll instance and a wake counter on mux.
func NewLooper(mux Multiplexer, opts ...Option) (*Looper, error) {
	lp := &Looper{
		mux:       mux,
		callbacks: make(map[int]Callback),
		events:    make([]api.Event, 64),
	}
	for _, o := range opts {
		o(lp)
	}
	if lp.log == nil {
		lp.log = logrus.StandardLogger()
	}
	lp.log = lp.log.WithField("component", "looper")

	epfd, err := mux.EpollCreate1(api.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("looper epoll create: %w", err)
	}
	wakeFD, err := mux.Eventfd(0, api.EFD_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("looper wake eventfd: %w", err)
	}
	ev := api.Event{Events: api.EPOLLIN, Data: uint64(wakeFD)}
	if err := mux.EpollCtl(epfd, api.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		return nil, fmt.Errorf("looper wake register: %w", err)
	}
	lp.epfd, lp.wakeFD = epfd, wakeFD
	return lp, nil
}

// EpollFD reports the underlying instance.
func (lp *Looper) EpollFD() int { return lp.epfd }

// Register watches fd for events and routes readiness to cb. Registering a
// watched fd again replaces its mask and callback.
func (lp *Looper) Register(fd int, events api.EventMask, cb Callback) error {
	if lp.closed.Load() {
		return ErrClosed
	}
	if cb == nil {
		return api.ErrInvalidArgument
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()

	ev := api.Event{Events: events, Data: uint64(fd)}
	op := api.EPOLL_CTL_ADD
	if _, ok := lp.callbacks[fd]; ok {
		op = api.EPOLL_CTL_MOD
	}
	if err := lp.mux.EpollCtl(lp.epfd, op, fd, &ev); err != nil {
		return fmt.Errorf("looper register %d: %w", fd, err)
	}
	lp.callbacks[fd] = cb
	return nil
}

// Unregister stops watching fd.
func (lp *Looper) Unregister(fd int) error {
	if lp.closed.Load() {
		return ErrClosed
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	if err := lp.mux.EpollCtl(lp.epfd, api.EPOLL_CTL_DEL, fd, nil); err != nil {
		return fmt.Errorf("looper unregister %d: %w", fd, err)
	}
	delete(lp.callbacks, fd)
	return nil
}

// Poll waits up to timeoutMs (negative blocks) and runs the callbacks of
// every ready descriptor. A panicking callback is logged and does not stop
// the others. It returns the number of callbacks run; a Wake alone yields 0.
func (lp *Looper) Poll(timeoutMs int) (int, error) {
	if lp.closed.Load() {
		return 0, ErrClosed
	}
	lp.pollMu.Lock()
	defer lp.pollMu.Unlock()

	n, err := lp.mux.EpollWait(lp.epfd, lp.events, timeoutMs)
	if err != nil {
		return 0, fmt.Errorf("looper wait: %w", err)
	}

	dispatched := 0
	for _, ev := range lp.events[:n] {
		fd := int(ev.Data)
		if fd == lp.wakeFD {
			lp.drainWake()
			continue
		}
		lp.mu.Lock()
		cb, ok := lp.callbacks[fd]
		lp.mu.Unlock()
		if !ok {
			continue
		}
		lp.dispatch(cb, fd, ev.Events)
		dispatched++
	}
	return dispatched, nil
}

func (lp *Looper) dispatch(cb Callback, fd int, events api.EventMask) {
	defer func() {
		if r := recover(); r != nil {
			lp.log.WithFields(logrus.Fields{"fd": fd, "panic": r}).Error("callback panicked")
		}
	}()
	cb(fd, events)
}

func (lp *Looper) drainWake() {
	var buf [8]byte
	if _, err := lp.mux.Read(lp.wakeFD, buf[:]); err != nil && !errors.Is(err, api.ErrWouldBlock) {
		lp.log.WithError(err).Warn("draining wake counter")
	}
}

// Wake makes a concurrent or the next Poll return.
func (lp *Looper) Wake() error {
	if lp.closed.Load() {
		return ErrClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, err := lp.mux.Write(lp.wakeFD, buf[:])
	return err
}

// Close deregisters every descriptor. Descriptors stay allocated in their
// pools, which never release slots.
func (lp *Looper) Close() error {
	if lp.closed.Swap(true) {
		return ErrClosed
	}
	lp.mu.Lock()
	defer lp.mu.Unlock()
	var errs []error
	for fd := range lp.callbacks {
		if err := lp.mux.EpollCtl(lp.epfd, api.EPOLL_CTL_DEL, fd, nil); err != nil {
			errs = append(errs, err)
		}
		delete(lp.callbacks, fd)
	}
	if err := lp.mux.EpollCtl(lp.epfd, api.EPOLL_CTL_DEL, lp.wakeFD, nil); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
