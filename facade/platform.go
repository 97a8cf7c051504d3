// File: facade/platform.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package facade

import "golang.org/x/sys/unix"

// Platform serves reads and writes for descriptors outside every pool range.
type Platform interface {
	Read(fd int, p []byte) (int, error)
	Write(fd int, p []byte) (int, error)
}

type hostPlatform struct{}

func (hostPlatform) Read(fd int, p []byte) (int, error)  { return unix.Read(fd, p) }
func (hostPlatform) Write(fd int, p []byte) (int, error) { return unix.Write(fd, p) }

// HostPlatform forwards to the operating system.
func HostPlatform() Platform { return hostPlatform{} }
