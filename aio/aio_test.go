package aio

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/compio-go/buf"
	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/internal/testkit"
	"github.com/ehrlich-b/compio-go/op"
	"github.com/ehrlich-b/compio-go/rawop"
)

func newFakeDriver(resolve testkit.Resolver) *driver.PollDriver {
	return driver.New(testkit.NewFakeBackend(resolve))
}

func TestAsyncReadWriteRoundTripThroughPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	d := newFakeDriver(func(pinned *rawop.Pin) (int, error) {
		switch o := pinned.Any().(type) {
		case *op.Send:
			return o.Perform(pinned)
		case *op.Recv:
			return o.Perform(pinned)
		default:
			t.Fatalf("unexpected opcode %T", o)
			return 0, nil
		}
	})

	n, _, err := AsyncWrite(d, int(w.Fd()), buf.Borrowed([]byte("hello")))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	dst := buf.NewFixedBytes(5)
	n, out, err := AsyncRead(d, int(r.Fd()), dst)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(buf.AsSlice(out)))
}

func TestAsyncReadAtWriteAtRoundTrip(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "aio-test")
	require.NoError(t, err)
	defer f.Close()

	d := newFakeDriver(func(pinned *rawop.Pin) (int, error) {
		switch o := pinned.Any().(type) {
		case *op.WriteAt:
			return o.Perform(pinned)
		case *op.ReadAt:
			return o.Perform(pinned)
		default:
			t.Fatalf("unexpected opcode %T", o)
			return 0, nil
		}
	})

	n, _, err := AsyncWriteAt(d, int(f.Fd()), 0, buf.Borrowed([]byte("world")))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	dst := buf.NewFixedBytes(5)
	n, out, err := AsyncReadAt(d, int(f.Fd()), 0, dst)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "world", string(buf.AsSlice(out)))
}

func TestAsyncAcceptReturnsAcceptedFd(t *testing.T) {
	d := newFakeDriver(func(pinned *rawop.Pin) (int, error) {
		_ = pinned.Any().(*op.Accept)
		return 99, nil
	})

	fd, err := AsyncAccept(d, 7)
	require.NoError(t, err)
	require.Equal(t, 99, fd)
}

func TestAsyncAcceptPropagatesError(t *testing.T) {
	d := newFakeDriver(func(*rawop.Pin) (int, error) {
		return 0, syscall.ECONNABORTED
	})

	_, err := AsyncAccept(d, 7)
	require.Error(t, err)
}

func TestSleepBlocksUntilDriverReportsElapsed(t *testing.T) {
	d := newFakeDriver(nil)

	start := time.Now()
	Sleep(d, time.Millisecond)
	require.False(t, time.Now().Before(start))
}

func TestNullReadWriteAreNoOps(t *testing.T) {
	var n Null

	dst := buf.NewFixedBytes(4)
	count, err := n.Read(dst)
	require.NoError(t, err)
	require.Equal(t, 0, count)

	count, err = n.Write(buf.Borrowed([]byte("data")))
	require.NoError(t, err)
	require.Equal(t, 0, count)

	require.NoError(t, n.Flush())
	require.NoError(t, n.Shutdown())
}
