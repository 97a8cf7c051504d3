// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides a callback event loop over the pseudo epoll
// multiplexer, in the manner of an Android ALooper.
package reactor
