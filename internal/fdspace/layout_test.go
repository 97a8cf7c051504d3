package fdspace_test

import (
	"testing"

	"gotest.tools/v3/assert"

	"github.com/momentics/pseudopoll/internal/fdspace"
)

func TestClassifyDefaultLayout(t *testing.T) {
	l := fdspace.DefaultLayout()
	assert.NilError(t, l.Validate())

	cases := map[int]fdspace.Kind{
		-1:  fdspace.KindUnknown,
		0:   fdspace.KindUnknown,
		127: fdspace.KindUnknown,
		128: fdspace.KindEpoll,
		191: fdspace.KindEpoll,
		192: fdspace.KindUnknown,
		256: fdspace.KindEventfd,
		319: fdspace.KindEventfd,
		384: fdspace.KindPipe,
		447: fdspace.KindPipe,
		448: fdspace.KindUnknown,
	}
	for fd, want := range cases {
		assert.Equal(t, l.Classify(fd), want, "fd %d", fd)
	}
}

func TestValidateRejectsOverlap(t *testing.T) {
	l := fdspace.DefaultLayout()
	l.Eventfd = fdspace.Range{Base: 150, Max: 64}
	assert.ErrorContains(t, l.Validate(), "overlap")
}

func TestValidateRejectsOddPipeRange(t *testing.T) {
	l := fdspace.DefaultLayout()
	l.Pipe.Max = 63
	assert.ErrorContains(t, l.Validate(), "pairs")
}

func TestRangeIndex(t *testing.T) {
	r := fdspace.Range{Base: 10, Max: 4}
	i, ok := r.Index(13)
	assert.Assert(t, ok)
	assert.Equal(t, i, 3)
	_, ok = r.Index(14)
	assert.Assert(t, !ok)
}
