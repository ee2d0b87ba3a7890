//go:build linux

package aio

import (
	"encoding/binary"
	"net"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ehrlich-b/compio-go/buf"
	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/pollbackend"
)

func newScenarioDriver(t *testing.T) *driver.PollDriver {
	t.Helper()
	backend, err := pollbackend.New()
	require.NoError(t, err)
	d := driver.New(backend)
	t.Cleanup(func() { d.Close() })
	return d
}

// inet4Sockaddr builds a syscall.RawSockaddrInet4, pinned for the duration
// of the caller's AsyncConnect call -- the same contract op.Connect
// documents ("assumes the sockaddr is already pinned in the caller").
func inet4Sockaddr(ip net.IP, port int) *syscall.RawSockaddrInet4 {
	sa := &syscall.RawSockaddrInet4{Family: syscall.AF_INET}
	binary.BigEndian.PutUint16((*[2]byte)(unsafe.Pointer(&sa.Port))[:], uint16(port))
	copy(sa.Addr[:], ip.To4())
	return sa
}

// TestLoopbackTCPEchoScenario drives a real accept/recv/send/connect/send/recv
// round trip over a loopback TCP socket through the epoll backend, with the
// server and client halves each running their own PollDriver concurrently on
// separate goroutines joined by an errgroup -- the module's one genuinely
// concurrent end-to-end scenario, since every other test in this tree drives
// a single PollDriver from a single goroutine.
func TestLoopbackTCPEchoScenario(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	lf, err := ln.(*net.TCPListener).File()
	require.NoError(t, err)
	ln.Close()
	defer lf.Close()

	listenFd := int(lf.Fd())
	require.NoError(t, syscall.SetNonblock(listenFd, true))
	port := ln.Addr().(*net.TCPAddr).Port

	serverDriver := newScenarioDriver(t)
	require.NoError(t, serverDriver.Attach(listenFd))

	var g errgroup.Group

	g.Go(func() error {
		connFd, err := AsyncAccept(serverDriver, listenFd)
		if err != nil {
			return err
		}
		defer syscall.Close(connFd)
		if err := serverDriver.Attach(connFd); err != nil {
			return err
		}

		dst := buf.NewFixedBytes(5)
		n, out, err := AsyncRead(serverDriver, connFd, dst)
		if err != nil {
			return err
		}
		require.Equal(t, 5, n)

		_, _, err = AsyncWrite(serverDriver, connFd, buf.Borrowed(buf.AsSlice(out)))
		return err
	})

	g.Go(func() error {
		clientFd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_STREAM, 0)
		if err != nil {
			return err
		}
		defer syscall.Close(clientFd)
		require.NoError(t, syscall.SetNonblock(clientFd, true))

		clientDriver := newScenarioDriver(t)
		require.NoError(t, clientDriver.Attach(clientFd))

		sa := inet4Sockaddr(net.ParseIP("127.0.0.1"), port)
		if err := AsyncConnect(clientDriver, clientFd, unsafe.Pointer(sa), uint64(unsafe.Sizeof(*sa))); err != nil {
			return err
		}

		if _, _, err := AsyncWrite(clientDriver, clientFd, buf.Borrowed([]byte("hello"))); err != nil {
			return err
		}

		dst := buf.NewFixedBytes(5)
		n, out, err := AsyncRead(clientDriver, clientFd, dst)
		if err != nil {
			return err
		}
		require.Equal(t, 5, n)
		require.Equal(t, "hello", string(buf.AsSlice(out)))
		return nil
	})

	require.NoError(t, g.Wait())
}
