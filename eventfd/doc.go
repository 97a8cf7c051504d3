// Package eventfd
// Author: momentics <momentics@gmail.com>
//
// Counter-channel pool: a fixed set of eventfd-like 64-bit saturating
// counters living in their own descriptor range. Blocking reads and writes
// are emulated by releasing all locks, sleeping one poll interval and
// rechecking, so no wakeup source is required from the platform.
package eventfd
