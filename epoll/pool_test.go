package epoll_test

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/epoll"
	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/spin"
)

// stubSource reports whatever readiness the test sets.
type stubSource struct {
	mu    sync.Mutex
	ready map[int][2]bool
}

func newStub() *stubSource { return &stubSource{ready: make(map[int][2]bool)} }

func (s *stubSource) set(fd int, readable, writeable bool) {
	s.mu.Lock()
	s.ready[fd] = [2]bool{readable, writeable}
	s.mu.Unlock()
}

func (s *stubSource) Status(fd int) (bool, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.ready[fd]
	return r[0], r[1], ok
}

type fixture struct {
	pool   *epoll.Pool
	stub   *stubSource
	clock  *clocktesting.FakeClock
	layout fdspace.Layout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		stub:   newStub(),
		clock:  clocktesting.NewFakeClock(time.Unix(0, 0)),
		layout: fdspace.DefaultLayout(),
	}
	f.pool = epoll.NewPool(f.layout,
		epoll.WithSource(fdspace.KindEventfd, f.stub),
		epoll.WithSpinner(spin.New(f.clock, 10*time.Millisecond, spin.Constant)),
	)
	return f
}

func (f *fixture) create(t *testing.T) int {
	t.Helper()
	epfd, err := f.pool.Create(0)
	assert.NilError(t, err)
	return epfd
}

func in(data uint64) *api.Event { return &api.Event{Events: api.EPOLLIN, Data: data} }

func TestCreate(t *testing.T) {
	f := newFixture(t)
	epfd, err := f.pool.Create(api.EPOLL_CLOEXEC)
	assert.NilError(t, err)
	assert.Equal(t, epfd, 128)
	assert.Assert(t, f.pool.Owns(epfd))

	_, err = f.pool.Create(0x1)
	assert.ErrorIs(t, err, unix.EINVAL)

	_, err = f.pool.CreateSize(0)
	assert.ErrorIs(t, err, unix.EINVAL)
	epfd, err = f.pool.CreateSize(1)
	assert.NilError(t, err)
	assert.Equal(t, epfd, 129)
}

func TestCreateExhaustion(t *testing.T) {
	layout := fdspace.DefaultLayout()
	layout.Epoll.Max = 1
	p := epoll.NewPool(layout)
	_, err := p.Create(0)
	assert.NilError(t, err)
	_, err = p.Create(0)
	assert.ErrorIs(t, err, unix.EMFILE)
	assert.Equal(t, p.Stats().Exhausted, uint64(1))
}

func TestCtlErrors(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)
	other := f.create(t)
	excl := &api.Event{Events: api.EPOLLIN | api.EPOLLEXCLUSIVE}

	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 256, in(0)))
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 257, excl))

	cases := []struct {
		name string
		epfd int
		op   int
		fd   int
		ev   *api.Event
		want error
	}{
		{"epfd out of range", 5, api.EPOLL_CTL_ADD, 256, in(0), unix.EBADF},
		{"negative fd", epfd, api.EPOLL_CTL_ADD, -1, in(0), unix.EBADF},
		{"self watch", epfd, api.EPOLL_CTL_ADD, epfd, in(0), unix.EBADF},
		{"dead instance", 150, api.EPOLL_CTL_ADD, 256, in(0), unix.EINVAL},
		{"unknown op", epfd, 9, 258, in(0), unix.EINVAL},
		{"duplicate add", epfd, api.EPOLL_CTL_ADD, 256, in(0), unix.EEXIST},
		{"nil event on add", epfd, api.EPOLL_CTL_ADD, 258, nil, unix.EINVAL},
		{"nil event on mod", epfd, api.EPOLL_CTL_MOD, 256, nil, unix.EINVAL},
		{"mod unwatched", epfd, api.EPOLL_CTL_MOD, 258, in(0), unix.ENOENT},
		{"del unwatched", epfd, api.EPOLL_CTL_DEL, 258, nil, unix.ENOENT},
		{"mod exclusive entry", epfd, api.EPOLL_CTL_MOD, 257, in(0), unix.EINVAL},
		{"mod to exclusive", epfd, api.EPOLL_CTL_MOD, 256, excl, unix.EINVAL},
		{"exclusive with other bits", epfd, api.EPOLL_CTL_ADD, 258, &api.Event{Events: api.EPOLLEXCLUSIVE | 0x2}, unix.EINVAL},
		{"nested instance", epfd, api.EPOLL_CTL_ADD, other, in(0), unix.ELOOP},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, f.pool.Ctl(tc.epfd, tc.op, tc.fd, tc.ev), tc.want)
		})
	}
}

func TestInterestSetExclusivity(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)

	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 300, in(1)))
	assert.ErrorIs(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 300, in(1)), unix.EEXIST)
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_DEL, 300, nil))
	assert.ErrorIs(t, f.pool.Ctl(epfd, api.EPOLL_CTL_DEL, 300, nil), unix.ENOENT)
}

func TestModReplacesEvents(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)
	f.stub.set(256, false, true)

	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 256, in(7)))
	n, err := f.pool.Wait(epfd, make([]api.Event, 4), 0)
	assert.NilError(t, err)
	assert.Equal(t, n, 0)

	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_MOD, 256, &api.Event{Events: api.EPOLLOUT, Data: 8}))
	events := make([]api.Event, 4)
	n, err = f.pool.Wait(epfd, events, 0)
	assert.NilError(t, err)
	if diff := cmp.Diff([]api.Event{{Events: api.EPOLLOUT, Data: 8}}, events[:n]); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestWaitReportsMatchedSubsetInOrder(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)

	f.stub.set(260, true, true)
	f.stub.set(258, false, true)
	f.stub.set(259, false, false)
	both := &api.Event{Events: api.EPOLLIN | api.EPOLLOUT}
	for _, fd := range []int{260, 259, 258} {
		ev := *both
		ev.Data = uint64(fd)
		assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, fd, &ev))
	}
	// Outside every pool range: never reported.
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 3, in(3)))

	events := make([]api.Event, 8)
	n, err := f.pool.Wait(epfd, events, 0)
	assert.NilError(t, err)
	want := []api.Event{
		{Events: api.EPOLLOUT, Data: 258},
		{Events: api.EPOLLIN | api.EPOLLOUT, Data: 260},
	}
	if diff := cmp.Diff(want, events[:n]); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestWaitRespectsMaxEvents(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)
	for fd := 256; fd < 261; fd++ {
		f.stub.set(fd, true, false)
		assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, fd, in(uint64(fd))))
	}

	events := make([]api.Event, 3)
	n, err := f.pool.Wait(epfd, events, -1)
	assert.NilError(t, err)
	assert.Equal(t, n, 3)
	assert.Equal(t, events[2].Data, uint64(258))
}

func TestWaitZeroTimeoutDoesNotBlock(t *testing.T) {
	p := epoll.NewPool(fdspace.DefaultLayout())
	epfd, err := p.Create(0)
	assert.NilError(t, err)

	start := time.Now()
	n, err := p.Wait(epfd, make([]api.Event, 1), 0)
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
	assert.Assert(t, time.Since(start) < spin.DefaultInterval)
	assert.Equal(t, p.Stats().Timeouts, uint64(1))
}

func TestWaitFiniteTimeoutUsesClock(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 256, in(0)))

	start := f.clock.Now()
	n, err := f.pool.Wait(epfd, make([]api.Event, 1), 100)
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
	assert.Assert(t, f.clock.Since(start) >= 100*time.Millisecond)

	st := f.pool.Stats()
	assert.Equal(t, st.Suspensions, uint64(10))
	assert.Equal(t, st.Timeouts, uint64(1))
}

func TestWaitInfiniteReturnsOnReadiness(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 256, in(42)))

	go func() {
		time.Sleep(20 * time.Millisecond)
		f.stub.set(256, true, true)
	}()

	events := make([]api.Event, 2)
	n, err := f.pool.Wait(epfd, events, -1)
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
	assert.Equal(t, events[0], api.Event{Events: api.EPOLLIN, Data: 42})
}

func TestWaitArgumentErrors(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)

	_, err := f.pool.Wait(1, make([]api.Event, 1), 0)
	assert.ErrorIs(t, err, unix.EBADF)
	_, err = f.pool.Wait(epfd, nil, 0)
	assert.ErrorIs(t, err, unix.EINVAL)
	_, err = f.pool.Wait(epfd+1, make([]api.Event, 1), 0)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestDump(t *testing.T) {
	f := newFixture(t)
	epfd := f.create(t)
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 300, &api.Event{Events: api.EPOLLIN | api.EPOLLOUT, Data: 9}))
	assert.NilError(t, f.pool.Ctl(epfd, api.EPOLL_CTL_ADD, 290, in(1)))

	want := []epoll.InstanceInfo{{
		FD: epfd,
		Interest: []epoll.InterestInfo{
			{FD: 290, Events: "IN", Data: 1},
			{FD: 300, Events: "IN|OUT", Data: 9},
		},
	}}
	assert.DeepEqual(t, f.pool.Dump(), want)
}
