// Package pipe
// Author: momentics <momentics@gmail.com>
//
// Byte-channel pool: anonymous-pipe emulation over a bounded message-pipe
// transport. Each channel owns a pair of adjacent descriptors, read half
// first, and a coarse readable/writeable flag pair consulted by the
// multiplexer.
package pipe
