// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake byte-channel transports with injectable failures.

package fake

import (
	"errors"
	"sync"

	"github.com/momentics/pseudopoll/pipe"
)

// ErrTransportClosed is returned by a closed Transport.
var ErrTransportClosed = errors.New("fake: transport closed")

// Transport is a flat in-memory pipe.Transport. Messages are not preserved;
// a receive reports the whole buffer as one message.
type Transport struct {
	mu        sync.Mutex
	buf       []byte
	capacity  int
	closed    bool
	sendError error
	recvError error
}

var _ pipe.Transport = (*Transport)(nil)

// NewTransport creates a transport buffering at most capacity bytes.
func NewTransport(capacity int) *Transport {
	return &Transport{capacity: capacity}
}

// TrySend implements pipe.Transport.
func (t *Transport) TrySend(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ErrTransportClosed
	}
	if t.sendError != nil {
		return 0, t.sendError
	}
	if len(b) > t.capacity-len(t.buf) {
		return 0, pipe.ErrWouldBlock
	}
	t.buf = append(t.buf, b...)
	return len(b), nil
}

// TryReceive implements pipe.Transport.
func (t *Transport) TryReceive(b []byte) (int, int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, 0, ErrTransportClosed
	}
	if t.recvError != nil {
		return 0, 0, t.recvError
	}
	if len(t.buf) == 0 {
		return 0, 0, pipe.ErrWouldBlock
	}
	n := copy(b, t.buf)
	t.buf = t.buf[n:]
	return n, len(t.buf), nil
}

// Buffered implements pipe.Transport.
func (t *Transport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

// Free implements pipe.Transport.
func (t *Transport) Free() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.capacity - len(t.buf)
}

// Close implements pipe.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// SetSendError injects an error into subsequent TrySend calls.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	t.sendError = err
	t.mu.Unlock()
}

// SetRecvError injects an error into subsequent TryReceive calls.
func (t *Transport) SetRecvError(err error) {
	t.mu.Lock()
	t.recvError = err
	t.mu.Unlock()
}

// Factory hands out Transports and records them.
type Factory struct {
	mu       sync.Mutex
	created  []*Transport
	failNext error
}

// FailNext makes the next creation fail with err.
func (f *Factory) FailNext(err error) {
	f.mu.Lock()
	f.failNext = err
	f.mu.Unlock()
}

// Created returns every transport handed out so far.
func (f *Factory) Created() []*Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Transport(nil), f.created...)
}

// New is a pipe.TransportFactory.
func (f *Factory) New(capacity int) (pipe.Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return nil, err
	}
	t := NewTransport(capacity)
	f.created = append(f.created, t)
	return t, nil
}
