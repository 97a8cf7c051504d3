// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the facade collaborators.

package fake

import (
	"bytes"
	"sync"

	"golang.org/x/sys/unix"
)

// Platform is an in-memory facade.Platform. Every descriptor it knows is a
// byte buffer; unknown descriptors fail with EBADF.
type Platform struct {
	mu       sync.Mutex
	files    map[int]*bytes.Buffer
	readErr  error
	writeErr error
	calls    int
}

// NewPlatform creates a platform with no open descriptors.
func NewPlatform() *Platform {
	return &Platform{files: make(map[int]*bytes.Buffer)}
}

// Open makes fd readable with a copy of data.
func (p *Platform) Open(fd int, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[fd] = bytes.NewBuffer(append([]byte(nil), data...))
}

// Contents returns the unread bytes of fd.
func (p *Platform) Contents(fd int) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.files[fd]; ok {
		return append([]byte(nil), f.Bytes()...)
	}
	return nil
}

// SetReadError forces subsequent reads to fail.
func (p *Platform) SetReadError(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

// SetWriteError forces subsequent writes to fail.
func (p *Platform) SetWriteError(err error) {
	p.mu.Lock()
	p.writeErr = err
	p.mu.Unlock()
}

// Calls reports how many reads and writes reached the platform.
func (p *Platform) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Read drains up to len(b) bytes; an empty file reads as end-of-file.
func (p *Platform) Read(fd int, b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.readErr != nil {
		return 0, p.readErr
	}
	f, ok := p.files[fd]
	if !ok {
		return 0, unix.EBADF
	}
	if f.Len() == 0 {
		return 0, nil
	}
	return f.Read(b)
}

// Write appends b to fd.
func (p *Platform) Write(fd int, b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	f, ok := p.files[fd]
	if !ok {
		return 0, unix.EBADF
	}
	return f.Write(b)
}
