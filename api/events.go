// File: api/events.go
// Package api defines the readiness event types shared by the pools.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import (
	"strconv"
	"strings"
)

// EventMask is a set of epoll event bits. Values match Linux so descriptors
// and masks can be handed to code written against <sys/epoll.h>.
type EventMask uint32

const (
	EPOLLIN        EventMask = 0x1
	EPOLLOUT       EventMask = 0x4
	EPOLLEXCLUSIVE EventMask = 1 << 28
)

// Ops accepted by the multiplexer control call.
const (
	EPOLL_CTL_ADD = 1
	EPOLL_CTL_DEL = 2
	EPOLL_CTL_MOD = 3
)

// Creation flags. Only the bits listed here are recognised.
const (
	EPOLL_CLOEXEC = 0x80000

	EFD_SEMAPHORE = 0x1
	EFD_NONBLOCK  = 0x800
	EFD_CLOEXEC   = 0x80000

	O_NONBLOCK = 0x800
	O_CLOEXEC  = 0x80000
)

func (m EventMask) String() string {
	if m == 0 {
		return "0"
	}
	var parts []string
	if m&EPOLLIN != 0 {
		parts = append(parts, "IN")
	}
	if m&EPOLLOUT != 0 {
		parts = append(parts, "OUT")
	}
	if m&EPOLLEXCLUSIVE != 0 {
		parts = append(parts, "EXCLUSIVE")
	}
	if rest := m &^ (EPOLLIN | EPOLLOUT | EPOLLEXCLUSIVE); rest != 0 {
		parts = append(parts, "0x"+strconv.FormatUint(uint64(rest), 16))
	}
	return strings.Join(parts, "|")
}

// Event is the epoll_event analog. Data is opaque to the multiplexer and is
// copied verbatim into reported events.
type Event struct {
	Events EventMask
	Data   uint64
}
