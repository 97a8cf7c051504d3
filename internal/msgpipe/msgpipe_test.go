package msgpipe

import (
	"bytes"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/momentics/pseudopoll/pool"
)

func TestSendReceiveAcrossChunks(t *testing.T) {
	p, err := New(64, pool.NewChunkPool(16))
	assert.NilError(t, err)

	payload := bytes.Repeat([]byte("abcdefgh"), 5) // 40 bytes, three chunks
	n, err := p.TrySend(payload)
	assert.NilError(t, err)
	assert.Equal(t, n, 40)
	assert.Equal(t, p.Buffered(), 40)
	assert.Equal(t, p.Free(), 24)

	out := make([]byte, 25)
	n, remaining, err := p.TryReceive(out)
	assert.NilError(t, err)
	assert.Equal(t, n, 25)
	assert.Equal(t, remaining, 15)
	assert.DeepEqual(t, out, payload[:25])

	out = make([]byte, 64)
	n, remaining, err = p.TryReceive(out)
	assert.NilError(t, err)
	assert.Equal(t, n, 15)
	assert.Equal(t, remaining, 0)
	assert.DeepEqual(t, out[:n], payload[25:])
}

func TestSendIsAllOrNothing(t *testing.T) {
	p, err := New(8, nil)
	assert.NilError(t, err)

	_, err = p.TrySend([]byte("12345"))
	assert.NilError(t, err)
	n, err := p.TrySend([]byte("6789"))
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, n, 0)
	assert.Equal(t, p.Buffered(), 5)
}

func TestReceiveEmptyWouldBlock(t *testing.T) {
	p, err := New(8, nil)
	assert.NilError(t, err)
	_, _, err = p.TryReceive(make([]byte, 4))
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestTailChunkIsToppedUp(t *testing.T) {
	cp := pool.NewChunkPool(16)
	p, err := New(32, cp)
	assert.NilError(t, err)
	for i := 0; i < 4; i++ {
		_, err = p.TrySend([]byte("abcd"))
		assert.NilError(t, err)
	}
	assert.Equal(t, p.chunks.Length(), 1)
}

func TestCloseRejectsFurtherUse(t *testing.T) {
	p, err := New(8, nil)
	assert.NilError(t, err)
	_, err = p.TrySend([]byte("x"))
	assert.NilError(t, err)
	assert.NilError(t, p.Close())

	_, err = p.TrySend([]byte("y"))
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = p.TryReceive(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, p.Close(), ErrClosed)
	assert.Equal(t, p.Free(), 0)
}

func TestInvalidCapacity(t *testing.T) {
	_, err := New(0, nil)
	assert.ErrorIs(t, err, ErrInvalidCapacity)
}
