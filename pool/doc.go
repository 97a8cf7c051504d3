// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable storage for the message-pipe transport: a generic sync.Pool wrapper
// and a fixed-size chunk pool shared by every byte channel.
package pool
