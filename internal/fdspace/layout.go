// File: internal/fdspace/layout.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Partitioning of the shared descriptor namespace into per-pool ranges.

package fdspace

import (
	"fmt"
)

// Kind identifies which pool owns a descriptor.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindEpoll
	KindEventfd
	KindPipe
)

func (k Kind) String() string {
	switch k {
	case KindEpoll:
		return "epoll"
	case KindEventfd:
		return "eventfd"
	case KindPipe:
		return "pipe"
	default:
		return "unknown"
	}
}

// Range is a half-open descriptor interval [Base, Base+Max).
type Range struct {
	Base int
	Max  int
}

// Contains reports whether fd falls inside r.
func (r Range) Contains(fd int) bool {
	return fd >= r.Base && fd < r.Base+r.Max
}

// Index returns the slot index of fd within r.
func (r Range) Index(fd int) (int, bool) {
	if !r.Contains(fd) {
		return 0, false
	}
	return fd - r.Base, true
}

func (r Range) overlaps(o Range) bool {
	return r.Base < o.Base+o.Max && o.Base < r.Base+r.Max
}

// Layout assigns one range to each pool.
type Layout struct {
	Epoll   Range
	Eventfd Range
	Pipe    Range
}

// DefaultLayout mirrors the historical numbering: epoll 128.., eventfd 256..,
// pipe 384.., 64 descriptors each.
func DefaultLayout() Layout {
	return Layout{
		Epoll:   Range{Base: 128, Max: 64},
		Eventfd: Range{Base: 256, Max: 64},
		Pipe:    Range{Base: 384, Max: 64},
	}
}

// Validate checks that ranges are non-empty, non-negative and disjoint, and
// that the pipe range holds whole pairs.
func (l Layout) Validate() error {
	named := []struct {
		name string
		r    Range
	}{{"epoll", l.Epoll}, {"eventfd", l.Eventfd}, {"pipe", l.Pipe}}
	for _, n := range named {
		if n.r.Base < 0 || n.r.Max <= 0 {
			return fmt.Errorf("fdspace: %s range [%d,+%d) is empty or negative", n.name, n.r.Base, n.r.Max)
		}
	}
	if l.Pipe.Max%2 != 0 {
		return fmt.Errorf("fdspace: pipe range size %d is not a whole number of pairs", l.Pipe.Max)
	}
	for i := range named {
		for j := i + 1; j < len(named); j++ {
			if named[i].r.overlaps(named[j].r) {
				return fmt.Errorf("fdspace: %s and %s ranges overlap", named[i].name, named[j].name)
			}
		}
	}
	return nil
}

// Classify returns the pool that owns fd by numeric range alone.
func (l Layout) Classify(fd int) Kind {
	switch {
	case l.Epoll.Contains(fd):
		return KindEpoll
	case l.Eventfd.Contains(fd):
		return KindEventfd
	case l.Pipe.Contains(fd):
		return KindPipe
	default:
		return KindUnknown
	}
}
