// File: pipe/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pipe

import (
	"github.com/momentics/pseudopoll/internal/msgpipe"
	"github.com/momentics/pseudopoll/pool"
)

// ErrWouldBlock is what a Transport returns when a call cannot complete now.
var ErrWouldBlock = msgpipe.ErrWouldBlock

// Transport is the platform message-pipe a byte channel is built on. Calls
// never block; the pool turns ErrWouldBlock into its own busy-poll loop.
type Transport interface {
	TrySend(b []byte) (int, error)
	TryReceive(b []byte) (n, remaining int, err error)
	Buffered() int
	Free() int
	Close() error
}

// TransportFactory creates a transport able to buffer capacity bytes.
type TransportFactory func(capacity int) (Transport, error)

// MsgPipeFactory returns a factory backed by internal/msgpipe and chunks.
func MsgPipeFactory(chunks *pool.ChunkPool) TransportFactory {
	return func(capacity int) (Transport, error) {
		return msgpipe.New(capacity, chunks)
	}
}
