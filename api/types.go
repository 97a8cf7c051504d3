// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations, DTOs, and constants.

package api

// PoolStats provides a standard layout for pool accounting.
type PoolStats struct {
	Name        string
	Capacity    int    // descriptors the pool can hand out
	InUse       int    // descriptors currently allocated
	Created     uint64 // successful create calls
	Exhausted   uint64 // create calls rejected with EMFILE
	Reads       uint64
	Writes      uint64
	WouldBlock  uint64 // EAGAIN returns in non-blocking mode
	Suspensions uint64 // sleep intervals spent waiting in blocking mode

	// Multiplexer only.
	Waits    uint64
	Events   uint64 // events reported by Wait
	Timeouts uint64 // waits that returned zero events
}
