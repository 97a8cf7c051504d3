// File: facade/system.go
// Unified facade over the descriptor pools.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// System aggregates the counter, byte and multiplexer pools over one
// descriptor layout, shares a spinner and logger between them, and routes
// generic read/write calls by descriptor range.

package facade

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/control"
	"github.com/momentics/pseudopoll/epoll"
	"github.com/momentics/pseudopoll/eventfd"
	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/spin"
	"github.com/momentics/pseudopoll/pipe"
)

// System is the main facade type.
type System struct {
	store    *control.ConfigStore
	layout   fdspace.Layout
	spin     *spin.Spinner
	logger   *logrus.Logger
	log      logrus.FieldLogger
	platform Platform

	eventfds *eventfd.Pool
	pipes    *pipe.Pool
	epolls   *epoll.Pool
}

type options struct {
	clock     clock.Clock
	platform  Platform
	logger    *logrus.Logger
	transport pipe.TransportFactory
}

// Option customises New.
type Option func(*options)

// WithClock drives every suspension from clk instead of the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithPlatform replaces the fallback used for foreign descriptors.
func WithPlatform(p Platform) Option {
	return func(o *options) { o.platform = p }
}

// WithLogger sets the logger whose level follows log_level.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTransportFactory replaces the transport under byte channels.
func WithTransportFactory(f pipe.TransportFactory) Option {
	return func(o *options) { o.transport = f }
}

// New builds a System from cfg. A nil cfg means control.DefaultConfig().
func New(cfg *control.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = control.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := options{platform: HostPlatform(), logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	strategy, err := spin.ParseStrategy(cfg.IdleBackoff)
	if err != nil {
		return nil, err
	}

	s := &System{
		store:    control.NewConfigStore(cfg),
		layout:   cfg.Layout(),
		spin:     spin.New(o.clock, cfg.PollInterval.Duration, strategy),
		logger:   o.logger,
		log:      o.logger.WithField("component", "facade"),
		platform: o.platform,
	}
	s.applyLevel(cfg.LogLevel)

	s.eventfds = eventfd.NewPool(s.layout.Eventfd,
		eventfd.WithSpinner(s.spin),
		eventfd.WithLogger(o.logger),
	)
	pipeOpts := []pipe.Option{
		pipe.WithSpinner(s.spin),
		pipe.WithLogger(o.logger),
		pipe.WithChunkSize(cfg.PipeChunkSize),
		pipe.WithEdgeStatus(cfg.PipeEdgeStatus),
	}
	if o.transport != nil {
		pipeOpts = append(pipeOpts, pipe.WithTransportFactory(o.transport))
	}
	s.pipes = pipe.NewPool(s.layout.Pipe, pipeOpts...)
	s.epolls = epoll.NewPool(s.layout,
		epoll.WithSource(fdspace.KindEventfd, s.eventfds),
		epoll.WithSource(fdspace.KindPipe, s.pipes),
		epoll.WithSpinner(s.spin),
		epoll.WithLogger(o.logger),
	)

	s.store.OnReload(s.applyConfig)
	s.log.WithFields(logrus.Fields{
		"epoll":    s.layout.Epoll,
		"eventfd":  s.layout.Eventfd,
		"pipe":     s.layout.Pipe,
		"interval": cfg.PollInterval.Duration,
	}).Debug("system ready")
	return s, nil
}

var (
	defaultOnce sync.Once
	defaultSys  *System
)

// Default returns the process-wide System built from control.DefaultConfig.
func Default() *System {
	defaultOnce.Do(func() {
		s, err := New(control.DefaultConfig())
		if err != nil {
			panic(fmt.Sprintf("facade: default config rejected: %v", err))
		}
		defaultSys = s
	})
	return defaultSys
}

func (s *System) applyLevel(name string) {
	if name == "" {
		return
	}
	if lvl, err := logrus.ParseLevel(name); err == nil {
		s.logger.SetLevel(lvl)
	}
}

func (s *System) applyConfig(cfg *control.Config) {
	s.spin.SetInterval(cfg.PollInterval.Duration)
	s.applyLevel(cfg.LogLevel)
	s.log.WithFields(logrus.Fields{
		"interval": cfg.PollInterval.Duration,
		"level":    cfg.LogLevel,
	}).Info("configuration reloaded")
}

// Reload changes the hot-reloadable settings through fn. Changes to the
// layout, chunk size, edge mode or backoff strategy are rejected.
func (s *System) Reload(fn func(*control.Config)) error {
	return s.store.Update(fn)
}

// Config returns a copy of the live configuration.
func (s *System) Config() *control.Config { return s.store.Snapshot() }

// Layout reports the descriptor layout.
func (s *System) Layout() fdspace.Layout { return s.layout }

// Kind classifies fd against the layout.
func (s *System) Kind(fd int) fdspace.Kind { return s.layout.Classify(fd) }

// Eventfd creates a counter channel.
func (s *System) Eventfd(initval uint32, flags int) (int, error) {
	return s.eventfds.Create(initval, flags)
}

// Pipe creates a byte channel and returns its read and write descriptors.
func (s *System) Pipe() (r, w int, err error) { return s.pipes.Create(0) }

// Pipe2 is Pipe with O_NONBLOCK/O_CLOEXEC flags.
func (s *System) Pipe2(flags int) (r, w int, err error) { return s.pipes.Create(flags) }

// EpollCreate creates a multiplexer instance; size must be positive.
func (s *System) EpollCreate(size int) (int, error) { return s.epolls.CreateSize(size) }

// EpollCreate1 creates a multiplexer instance with EPOLL_CLOEXEC or 0.
func (s *System) EpollCreate1(flags int) (int, error) { return s.epolls.Create(flags) }

// EpollCtl edits the interest set of epfd.
func (s *System) EpollCtl(epfd, op, fd int, ev *api.Event) error {
	return s.epolls.Ctl(epfd, op, fd, ev)
}

// EpollWait collects ready events. A negative timeout waits forever.
func (s *System) EpollWait(epfd int, events []api.Event, timeoutMs int) (int, error) {
	return s.epolls.Wait(epfd, events, timeoutMs)
}

// Read routes by descriptor range; foreign descriptors go to the platform.
func (s *System) Read(fd int, buf []byte) (int, error) {
	switch s.layout.Classify(fd) {
	case fdspace.KindEventfd:
		return s.eventfds.Read(fd, buf)
	case fdspace.KindPipe:
		return s.pipes.Read(fd, buf)
	case fdspace.KindEpoll:
		return -1, api.ErrInvalidArgument
	}
	return s.platform.Read(fd, buf)
}

// Write routes by descriptor range; foreign descriptors go to the platform.
func (s *System) Write(fd int, buf []byte) (int, error) {
	switch s.layout.Classify(fd) {
	case fdspace.KindEventfd:
		return s.eventfds.Write(fd, buf)
	case fdspace.KindPipe:
		return s.pipes.Write(fd, buf)
	case fdspace.KindEpoll:
		return -1, api.ErrInvalidArgument
	}
	return s.platform.Write(fd, buf)
}
