// Package epoll
// Author: momentics <momentics@gmail.com>
//
// Readiness multiplexer: a level-triggered, poll-based epoll emulation.
// Each instance keeps an ordered interest set; Wait sweeps it, asking the
// pool that owns each watched descriptor for its readiness, and sleeps one
// poll interval between sweeps until something is ready or the timeout
// expires. Nested instances are rejected with ELOOP.
package epoll
