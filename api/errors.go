// Package api
// Author: momentics <momentics@gmail.com>
//
// Common error values and classification helpers for pseudopoll.
// Every pool reports failures as x/sys/unix errnos so callers can keep the
// POSIX contract while still using errors.Is.

package api

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Common errors used across the library.
var (
	ErrBadDescriptor     error = unix.EBADF
	ErrInvalidArgument   error = unix.EINVAL
	ErrAlreadyExists     error = unix.EEXIST
	ErrNotFound          error = unix.ENOENT
	ErrWouldCycle        error = unix.ELOOP
	ErrResourceExhausted error = unix.EMFILE
	ErrWouldBlock        error = unix.EAGAIN
	ErrIO                error = unix.EIO
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeBadDescriptor
	ErrCodeInvalidArgument
	ErrCodeAlreadyExists
	ErrCodeNotFound
	ErrCodeWouldCycle
	ErrCodeResourceExhausted
	ErrCodeWouldBlock
	ErrCodeInternal
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeOK:
		return "ok"
	case ErrCodeBadDescriptor:
		return "bad-descriptor"
	case ErrCodeInvalidArgument:
		return "invalid-argument"
	case ErrCodeAlreadyExists:
		return "already-exists"
	case ErrCodeNotFound:
		return "not-found"
	case ErrCodeWouldCycle:
		return "would-cycle"
	case ErrCodeResourceExhausted:
		return "resource-exhausted"
	case ErrCodeWouldBlock:
		return "would-block"
	default:
		return "internal"
	}
}

// Code classifies err. A nil error is ErrCodeOK; anything that does not wrap
// one of the known errnos is ErrCodeInternal.
func Code(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	switch {
	case errors.Is(err, unix.EBADF):
		return ErrCodeBadDescriptor
	case errors.Is(err, unix.EINVAL):
		return ErrCodeInvalidArgument
	case errors.Is(err, unix.EEXIST):
		return ErrCodeAlreadyExists
	case errors.Is(err, unix.ENOENT):
		return ErrCodeNotFound
	case errors.Is(err, unix.ELOOP):
		return ErrCodeWouldCycle
	case errors.Is(err, unix.EMFILE):
		return ErrCodeResourceExhausted
	case errors.Is(err, unix.EAGAIN):
		return ErrCodeWouldBlock
	default:
		return ErrCodeInternal
	}
}

// Errno extracts the errno carried by err. Errors without one map to EIO,
// which is what a C caller would observe for a failed transfer.
func Errno(err error) unix.Errno {
	if err == nil {
		return 0
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}
