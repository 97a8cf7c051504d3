package pipe_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"
	"gotest.tools/v3/assert"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/momentics/pseudopoll/api"
	"github.com/momentics/pseudopoll/internal/fdspace"
	"github.com/momentics/pseudopoll/internal/msgpipe"
	"github.com/momentics/pseudopoll/internal/spin"
	"github.com/momentics/pseudopoll/pipe"
)

var testRange = fdspace.Range{Base: 384, Max: 4}

func fakeSpinner() *spin.Spinner {
	return spin.New(clocktesting.NewFakeClock(time.Unix(0, 0)), 10*time.Millisecond, spin.Constant)
}

func newPool(opts ...pipe.Option) *pipe.Pool {
	return pipe.NewPool(testRange, append([]pipe.Option{pipe.WithSpinner(fakeSpinner())}, opts...)...)
}

type countingFactory struct {
	opened, closed int
}

type trackedPipe struct {
	*msgpipe.Pipe
	f *countingFactory
}

func (t trackedPipe) Close() error {
	t.f.closed++
	return t.Pipe.Close()
}

func (f *countingFactory) New(capacity int) (pipe.Transport, error) {
	mp, err := msgpipe.New(capacity, nil)
	if err != nil {
		return nil, err
	}
	f.opened++
	return trackedPipe{Pipe: mp, f: f}, nil
}

func TestCreateAllocatesAdjacentPairs(t *testing.T) {
	f := &countingFactory{}
	p := newPool(pipe.WithTransportFactory(f.New))

	r, w, err := p.Create(0)
	assert.NilError(t, err)
	assert.Equal(t, r, 384)
	assert.Equal(t, w, 385)

	r, w, err = p.Create(api.O_CLOEXEC)
	assert.NilError(t, err)
	assert.Equal(t, r, 386)
	assert.Equal(t, w, 387)

	_, _, err = p.Create(0)
	assert.ErrorIs(t, err, unix.EMFILE)
	assert.Equal(t, f.opened, 3)
	assert.Equal(t, f.closed, 1, "transport of the rejected pipe must be torn down")

	st := p.Stats()
	assert.Equal(t, st.Capacity, 4)
	assert.Equal(t, st.InUse, 4)
	assert.Equal(t, st.Exhausted, uint64(1))
}

func TestCreateTransportFailureIsIOError(t *testing.T) {
	p := newPool(pipe.WithTransportFactory(func(int) (pipe.Transport, error) {
		return nil, errors.New("out of kernel memory")
	}))
	_, _, err := p.Create(0)
	assert.ErrorIs(t, err, unix.EIO)
	assert.ErrorContains(t, err, "out of kernel memory")
	assert.Equal(t, p.Stats().InUse, 0)
}

func TestCreateRejectsUnknownFlags(t *testing.T) {
	p := newPool()
	_, _, err := p.Create(0x1)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func TestPairLinkageLevelTriggered(t *testing.T) {
	p := newPool()
	r, w, err := p.Create(0)
	assert.NilError(t, err)

	readable, writeable, ok := p.Status(r)
	assert.Assert(t, ok)
	assert.Assert(t, !readable)
	assert.Assert(t, writeable)

	n, err := p.Write(w, []byte("hello"))
	assert.NilError(t, err)
	assert.Equal(t, n, 5)

	for _, fd := range []int{r, w, r} {
		readable, _, ok = p.Status(fd)
		assert.Assert(t, ok)
		assert.Assert(t, readable, "fd %d", fd)
	}

	buf := make([]byte, 16)
	n, err = p.Read(r, buf)
	assert.NilError(t, err)
	assert.Equal(t, string(buf[:n]), "hello")

	readable, writeable, _ = p.Status(w)
	assert.Assert(t, !readable)
	assert.Assert(t, writeable)
}

func TestEdgeStatusConsumesFlags(t *testing.T) {
	p := newPool(pipe.WithEdgeStatus(true))
	r, w, err := p.Create(0)
	assert.NilError(t, err)

	_, err = p.Write(w, []byte("x"))
	assert.NilError(t, err)

	readable, writeable, ok := p.Status(w)
	assert.Assert(t, ok)
	assert.Assert(t, readable)
	assert.Assert(t, writeable)

	readable, writeable, _ = p.Status(r)
	assert.Assert(t, !readable)
	assert.Assert(t, !writeable)

	_, err = p.Write(w, []byte("y"))
	assert.NilError(t, err)
	buf := make([]byte, 1)
	_, err = p.Read(r, buf)
	assert.NilError(t, err)
	readable, _, _ = p.Status(r)
	assert.Assert(t, readable, "one byte is still buffered")

	_, err = p.Read(r, buf)
	assert.NilError(t, err)
	readable, _, _ = p.Status(r)
	assert.Assert(t, !readable, "draining read clears readable")
}

func TestTransfersAreCappedAtChunkSize(t *testing.T) {
	p := newPool()
	r, w, err := p.Create(api.O_NONBLOCK)
	assert.NilError(t, err)

	big := bytes.Repeat([]byte{0xab}, pipe.ChunkSize+100)
	n, err := p.Write(w, big)
	assert.NilError(t, err)
	assert.Equal(t, n, pipe.ChunkSize)

	_, err = p.Write(w, []byte("z"))
	assert.ErrorIs(t, err, unix.EAGAIN)

	out := make([]byte, len(big))
	n, err = p.Read(r, out)
	assert.NilError(t, err)
	assert.Equal(t, n, pipe.ChunkSize)
	assert.DeepEqual(t, out[:n], big[:n])

	_, err = p.Read(r, out)
	assert.ErrorIs(t, err, unix.EAGAIN)
	assert.Equal(t, p.Stats().WouldBlock, uint64(2))
}

func TestWrongHalfIsRejected(t *testing.T) {
	p := newPool()
	r, w, err := p.Create(0)
	assert.NilError(t, err)

	_, err = p.Read(w, make([]byte, 1))
	assert.ErrorIs(t, err, unix.EINVAL)
	_, err = p.Write(r, []byte("x"))
	assert.ErrorIs(t, err, unix.EINVAL)
	_, err = p.Read(w+2, make([]byte, 1))
	assert.ErrorIs(t, err, unix.EINVAL)
	assert.Assert(t, !p.Owns(w+2))
}

func TestBlockingReadWaitsForWriter(t *testing.T) {
	p := newPool()
	r, w, err := p.Create(0)
	assert.NilError(t, err)

	type result struct {
		data string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 8)
		n, err := p.Read(r, buf)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{data: string(buf[:n])}
	}()

	select {
	case res := <-done:
		t.Fatalf("read returned before any write: %+v", res)
	case <-time.After(20 * time.Millisecond):
	}

	_, err = p.Write(w, []byte("ping"))
	assert.NilError(t, err)

	select {
	case res := <-done:
		assert.NilError(t, res.err)
		assert.Equal(t, res.data, "ping")
	case <-time.After(5 * time.Second):
		t.Fatal("blocked read never completed")
	}
	assert.DeepEqual(t, p.Dump(), []pipe.ChannelInfo{{ReadFD: r, WriteFD: w, Writeable: true}})
}
