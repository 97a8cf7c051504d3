// Package posix
// Author: momentics <momentics@gmail.com>
//
// Integer API over the process-wide System following the C calling
// convention: failing calls return -1 and record the errno, which Errno
// reports. The recorded errno is process-wide, not per goroutine.

package posix

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/facade"
)

var (
	lastErrno atomic.Uintptr
	bound     atomic.Pointer[facade.System]
)

// Bind routes every call to s instead of facade.Default. A nil s restores
// the default.
func Bind(s *facade.System) { bound.Store(s) }

func system() *facade.System {
	if s := bound.Load(); s != nil {
		return s
	}
	return facade.Default()
}

// Errno returns the errno recorded by the most recent failing call.
func Errno() unix.Errno { return unix.Errno(lastErrno.Load()) }

// SetErrno overwrites the recorded errno.
func SetErrno(e unix.Errno) { lastErrno.Store(uintptr(e)) }

func fail(err error) int {
	SetErrno(api.Errno(err))
	return -1
}

// Eventfd mirrors eventfd(2).
func Eventfd(initval uint32, flags int) int {
	fd, err := system().Eventfd(initval, flags)
	if err != nil {
		return fail(err)
	}
	return fd
}

// Pipe mirrors pipe(2): fds[0] is the read end, fds[1] the write end.
func Pipe(fds *[2]int) int {
	return Pipe2(fds, 0)
}

// Pipe2 mirrors pipe2(2).
func Pipe2(fds *[2]int, flags int) int {
	if fds == nil {
		SetErrno(unix.EFAULT)
		return -1
	}
	r, w, err := system().Pipe2(flags)
	if err != nil {
		return fail(err)
	}
	fds[0], fds[1] = r, w
	return 0
}

// EpollCreate mirrors epoll_create(2).
func EpollCreate(size int) int {
	fd, err := system().EpollCreate(size)
	if err != nil {
		return fail(err)
	}
	return fd
}

// EpollCreate1 mirrors epoll_create1(2).
func EpollCreate1(flags int) int {
	fd, err := system().EpollCreate1(flags)
	if err != nil {
		return fail(err)
	}
	return fd
}

// EpollCtl mirrors epoll_ctl(2).
func EpollCtl(epfd, op, fd int, ev *api.Event) int {
	if err := system().EpollCtl(epfd, op, fd, ev); err != nil {
		return fail(err)
	}
	return 0
}

// EpollWait mirrors epoll_wait(2); maxevents is len(events).
func EpollWait(epfd int, events []api.Event, timeoutMs int) int {
	n, err := system().EpollWait(epfd, events, timeoutMs)
	if err != nil {
		return fail(err)
	}
	return n
}

// Read mirrors read(2).
func Read(fd int, buf []byte) int {
	n, err := system().Read(fd, buf)
	if err != nil {
		return fail(err)
	}
	return n
}

// Write mirrors write(2).
func Write(fd int, buf []byte) int {
	n, err := system().Write(fd, buf)
	if err != nil {
		return fail(err)
	}
	return n
}
