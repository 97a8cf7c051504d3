// Package api
// Author: momentics
//
// Readiness contract between the multiplexer and the descriptor pools.

package api

// ReadinessSource is implemented by every leaf pool the multiplexer can watch.
type ReadinessSource interface {
    // Status reports the current readiness of fd. ok is false when fd is not
    // a live descriptor of this source.
    Status(fd int) (readable, writeable, ok bool)
}
