// File: internal/msgpipe/msgpipe.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded in-process message pipe. It stands in for the platform's kernel
// message-pipe object: byte-oriented, fixed capacity, all-or-nothing sends.

package msgpipe

import (
	"errors"
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/pseudopoll/pool"
)

var (
	// ErrWouldBlock is returned when a transfer cannot complete right now.
	ErrWouldBlock = errors.New("msgpipe: operation would block")

	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("msgpipe: pipe is closed")

	// ErrInvalidCapacity rejects pipes that could never hold a byte.
	ErrInvalidCapacity = errors.New("msgpipe: invalid capacity")
)

type chunk struct {
	buf *[]byte
	off int
	end int
}

// Pipe is a bounded FIFO of bytes stored as a queue of pooled chunks.
type Pipe struct {
	mu       sync.Mutex
	chunks   *queue.Queue // of *chunk
	store    *pool.ChunkPool
	buffered int
	capacity int
	closed   bool
}

// New creates a pipe holding at most capacity bytes. Chunk storage comes
// from store, or the process-wide chunk pool when store is nil.
func New(capacity int, store *pool.ChunkPool) (*Pipe, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if store == nil {
		store = pool.DefaultChunkPool()
	}
	return &Pipe{
		chunks:   queue.New(),
		store:    store,
		capacity: capacity,
	}, nil
}

// TrySend appends all of b or nothing. It fails with ErrWouldBlock when the
// free space is smaller than len(b).
func (p *Pipe) TrySend(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	if len(b) == 0 {
		return 0, nil
	}
	if p.capacity-p.buffered < len(b) {
		return 0, ErrWouldBlock
	}
	n := len(b)
	for len(b) > 0 {
		// Top up the tail chunk before taking a fresh one.
		var c *chunk
		if p.chunks.Length() > 0 {
			tail := p.chunks.Get(-1).(*chunk)
			if tail.end < len(*tail.buf) {
				c = tail
			}
		}
		if c == nil {
			c = &chunk{buf: p.store.Get()}
			p.chunks.Add(c)
		}
		w := copy((*c.buf)[c.end:], b)
		c.end += w
		b = b[w:]
	}
	p.buffered += n
	return n, nil
}

// TryReceive copies up to len(b) bytes out of the pipe and reports how many
// bytes remain buffered afterwards. It fails with ErrWouldBlock when empty.
func (p *Pipe) TryReceive(b []byte) (n, remaining int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, 0, ErrClosed
	}
	if p.buffered == 0 {
		return 0, 0, ErrWouldBlock
	}
	for len(b) > 0 && p.chunks.Length() > 0 {
		c := p.chunks.Peek().(*chunk)
		r := copy(b, (*c.buf)[c.off:c.end])
		c.off += r
		n += r
		b = b[r:]
		if c.off == c.end {
			p.chunks.Remove()
			p.store.Put(c.buf)
		}
	}
	p.buffered -= n
	return n, p.buffered, nil
}

// Buffered returns the number of bytes waiting to be received.
func (p *Pipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

// Free returns the number of bytes that can be sent without blocking.
func (p *Pipe) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.capacity - p.buffered
}

// Cap returns the pipe capacity in bytes.
func (p *Pipe) Cap() int { return p.capacity }

// Close releases buffered chunks. Further calls fail with ErrClosed.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	for p.chunks.Length() > 0 {
		c := p.chunks.Remove().(*chunk)
		p.store.Put(c.buf)
	}
	p.buffered = 0
	return nil
}
