// Package op supplies the concrete opcodes the module's specification
// declares out of scope to design in the abstract but requires in order
// to build and exercise end-to-end: accept, connect, recv, send,
// vectored recv/send, positional read/write, fsync, timeout, and close.
// Every type here implements both iouring.OpCode (in-place SQE
// preparation) and pollbackend.OpCode (readiness-gated retry), so the
// same pushed value is portable across either driver.Backend.
package op

import (
	"syscall"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/compio-go/buf"
	"github.com/ehrlich-b/compio-go/rawop"
)

func noDeadline() time.Time { return time.Time{} }

// Accept accepts one connection on a listening socket fd.
type Accept struct {
	fd       int
	accepted int
	err      error
}

func NewAccept(fd int) *Accept { return &Accept{fd: fd} }

// Accepted returns the accepted connection's fd, valid after completion.
func (a *Accept) Accepted() int { return a.accepted }

func (a *Accept) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareAccept(a.fd, 0, 0, 0)
}

func (a *Accept) Fd() int             { return a.fd }
func (a *Accept) Interest() uint32    { return unix.EPOLLIN }
func (a *Accept) Deadline() time.Time { return noDeadline() }

func (a *Accept) Perform(*rawop.Pin) (int, error) {
	nfd, _, err := unix.Accept4(a.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return 0, err
	}
	a.accepted = nfd
	return nfd, nil
}

// Connect connects fd to a peer address already resolved by the caller
// into a raw sockaddr pointer and length. The caller must keep the sockaddr
// alive and at a fixed address until the operation completes.
type Connect struct {
	fd      int
	addr    unsafe.Pointer
	addrLen uint64
}

func NewConnect(fd int, addr unsafe.Pointer, addrLen uint64) *Connect {
	return &Connect{fd: fd, addr: addr, addrLen: addrLen}
}

func (c *Connect) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareConnect(c.fd, uintptr(c.addr), c.addrLen)
}

func (c *Connect) Fd() int             { return c.fd }
func (c *Connect) Interest() uint32    { return unix.EPOLLOUT }
func (c *Connect) Deadline() time.Time { return noDeadline() }

func (c *Connect) Perform(*rawop.Pin) (int, error) {
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(c.fd), uintptr(c.addr), uintptr(c.addrLen))
	switch errno {
	case 0, unix.EISCONN:
		// EISCONN on a retry means the nonblocking connect from the first
		// attempt already succeeded.
		return 0, nil
	case unix.EINPROGRESS, unix.EALREADY:
		return 0, unix.EAGAIN
	default:
		return 0, errno
	}
}

// Recv reads into buf from a connected/datagram fd.
type Recv struct {
	fd  int
	buf buf.IoBufMut
	n   int
}

func NewRecv(fd int, b buf.IoBufMut) *Recv { return &Recv{fd: fd, buf: b} }

// Into recovers the destination buffer. Perform applies SetBufInit for the
// bytes it read; when the io_uring backend completes the operation Perform
// never runs, so the caller applies the completion's byte count itself.
func (r *Recv) Into() buf.IoBufMut { return r.buf }

func (r *Recv) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareRecv(r.fd, uintptr(r.buf.BufMutPtr()), uint32(r.buf.BufCap()), 0)
}

func (r *Recv) Fd() int             { return r.fd }
func (r *Recv) Interest() uint32    { return unix.EPOLLIN }
func (r *Recv) Deadline() time.Time { return noDeadline() }

func (r *Recv) Perform(*rawop.Pin) (int, error) {
	view := unsafe.Slice((*byte)(r.buf.BufMutPtr()), r.buf.BufCap())
	n, err := unix.Read(r.fd, view)
	if err != nil {
		return 0, err
	}
	r.buf.SetBufInit(n)
	r.n = n
	return n, nil
}

// Send writes buf's filled region to a connected fd.
type Send struct {
	fd  int
	buf buf.IoBuf
}

func NewSend(fd int, b buf.IoBuf) *Send { return &Send{fd: fd, buf: b} }

func (s *Send) Into() buf.IoBuf { return s.buf }

func (s *Send) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareSend(s.fd, uintptr(s.buf.BufPtr()), uint32(s.buf.BufLen()), 0)
}

func (s *Send) Fd() int             { return s.fd }
func (s *Send) Interest() uint32    { return unix.EPOLLOUT }
func (s *Send) Deadline() time.Time { return noDeadline() }

func (s *Send) Perform(*rawop.Pin) (int, error) {
	view := unsafe.Slice((*byte)(s.buf.BufPtr()), s.buf.BufLen())
	n, err := unix.Write(s.fd, view)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecvVectored scatters a single recv across a vectored mutable buffer.
type RecvVectored struct {
	fd  int
	buf buf.IoVectoredBufMut
	iov []unix.Iovec
}

func NewRecvVectored(fd int, b buf.IoVectoredBufMut) *RecvVectored {
	return &RecvVectored{fd: fd, buf: b}
}

func (r *RecvVectored) Into() buf.IoVectoredBufMut { return r.buf }

func (r *RecvVectored) buildIovecs() []unix.Iovec {
	n := r.buf.NumSegments()
	iov := make([]unix.Iovec, n)
	for i := 0; i < n; i++ {
		seg := r.buf.SegmentMut(i)
		iov[i].Base = (*byte)(seg.BufMutPtr())
		iov[i].SetLen(seg.BufCap())
	}
	return iov
}

func (r *RecvVectored) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	r.iov = r.buildIovecs()
	sqe.PrepareReadv(r.fd, uintptr(unsafe.Pointer(&r.iov[0])), uint32(len(r.iov)), 0)
}

func (r *RecvVectored) Fd() int             { return r.fd }
func (r *RecvVectored) Interest() uint32    { return unix.EPOLLIN }
func (r *RecvVectored) Deadline() time.Time { return noDeadline() }

func (r *RecvVectored) Perform(*rawop.Pin) (int, error) {
	if r.iov == nil {
		r.iov = r.buildIovecs()
	}
	n, _, errno := unix.Syscall(unix.SYS_READV, uintptr(r.fd), uintptr(unsafe.Pointer(&r.iov[0])), uintptr(len(r.iov)))
	if errno != 0 {
		return 0, errno
	}
	r.buf.SetBufInit(int(n))
	return int(n), nil
}

// SendVectored gathers a single send from a vectored buffer.
type SendVectored struct {
	fd  int
	buf buf.IoVectoredBuf
	iov []unix.Iovec
}

func NewSendVectored(fd int, b buf.IoVectoredBuf) *SendVectored {
	return &SendVectored{fd: fd, buf: b}
}

func (s *SendVectored) Into() buf.IoVectoredBuf { return s.buf }

func (s *SendVectored) buildIovecs() []unix.Iovec {
	n := s.buf.NumSegments()
	iov := make([]unix.Iovec, n)
	for i := 0; i < n; i++ {
		seg := s.buf.Segment(i)
		iov[i].Base = (*byte)(seg.BufPtr())
		iov[i].SetLen(seg.BufLen())
	}
	return iov
}

func (s *SendVectored) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	s.iov = s.buildIovecs()
	sqe.PrepareWritev(s.fd, uintptr(unsafe.Pointer(&s.iov[0])), uint32(len(s.iov)), 0)
}

func (s *SendVectored) Fd() int             { return s.fd }
func (s *SendVectored) Interest() uint32    { return unix.EPOLLOUT }
func (s *SendVectored) Deadline() time.Time { return noDeadline() }

func (s *SendVectored) Perform(*rawop.Pin) (int, error) {
	if s.iov == nil {
		s.iov = s.buildIovecs()
	}
	n, _, errno := unix.Syscall(unix.SYS_WRITEV, uintptr(s.fd), uintptr(unsafe.Pointer(&s.iov[0])), uintptr(len(s.iov)))
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

// ReadAt reads from fd at a fixed offset, for regular files.
type ReadAt struct {
	fd     int
	offset int64
	buf    buf.IoBufMut
}

func NewReadAt(fd int, offset int64, b buf.IoBufMut) *ReadAt {
	return &ReadAt{fd: fd, offset: offset, buf: b}
}

func (r *ReadAt) Into() buf.IoBufMut { return r.buf }

func (r *ReadAt) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareRead(r.fd, uintptr(r.buf.BufMutPtr()), uint32(r.buf.BufCap()), uint64(r.offset))
}

// Fd returns -1: positional file I/O has no meaningful readiness state,
// so the polling fallback performs it eagerly on push (Deadline returns
// the zero value, meaning "fire as soon as Perform is attempted").
func (r *ReadAt) Fd() int             { return -1 }
func (r *ReadAt) Interest() uint32    { return 0 }
func (r *ReadAt) Deadline() time.Time { return noDeadline() }

func (r *ReadAt) Perform(*rawop.Pin) (int, error) {
	view := unsafe.Slice((*byte)(r.buf.BufMutPtr()), r.buf.BufCap())
	n, err := unix.Pread(r.fd, view, r.offset)
	if err != nil {
		return 0, err
	}
	r.buf.SetBufInit(n)
	return n, nil
}

// WriteAt writes to fd at a fixed offset, for regular files.
type WriteAt struct {
	fd     int
	offset int64
	buf    buf.IoBuf
}

func NewWriteAt(fd int, offset int64, b buf.IoBuf) *WriteAt {
	return &WriteAt{fd: fd, offset: offset, buf: b}
}

func (w *WriteAt) Into() buf.IoBuf { return w.buf }

func (w *WriteAt) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareWrite(w.fd, uintptr(w.buf.BufPtr()), uint32(w.buf.BufLen()), uint64(w.offset))
}

func (w *WriteAt) Fd() int             { return -1 }
func (w *WriteAt) Interest() uint32    { return 0 }
func (w *WriteAt) Deadline() time.Time { return noDeadline() }

func (w *WriteAt) Perform(*rawop.Pin) (int, error) {
	view := unsafe.Slice((*byte)(w.buf.BufPtr()), w.buf.BufLen())
	n, err := unix.Pwrite(w.fd, view, w.offset)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Fsync flushes fd's data (and metadata, if Full is set) to stable storage.
type Fsync struct {
	fd   int
	Full bool
}

func NewFsync(fd int, full bool) *Fsync { return &Fsync{fd: fd, Full: full} }

func (f *Fsync) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	var flags uint32
	if !f.Full {
		flags = giouring.FsyncDataSync
	}
	sqe.PrepareFsync(f.fd, flags)
}

func (f *Fsync) Fd() int             { return -1 }
func (f *Fsync) Interest() uint32    { return 0 }
func (f *Fsync) Deadline() time.Time { return noDeadline() }

func (f *Fsync) Perform(*rawop.Pin) (int, error) {
	if f.Full {
		return 0, unix.Fsync(f.fd)
	}
	return 0, unix.Fdatasync(f.fd)
}

// Timeout completes after Duration elapses, with no fd involved. Used by
// the cancel-then-timer scenario and as the building block for deadline
// APIs layered over the driver.
type Timeout struct {
	deadline time.Time
}

func NewTimeout(d time.Duration) *Timeout {
	return &Timeout{deadline: timeNow().Add(d)}
}

// timeNow is a seam so tests can construct a Timeout with a fixed
// deadline without depending on wall-clock time.
var timeNow = time.Now

func (t *Timeout) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	ts := syscall.NsecToTimespec(time.Until(t.deadline).Nanoseconds())
	sqe.PrepareTimeout(&ts, 0, 0)
}

func (t *Timeout) Fd() int             { return -1 }
func (t *Timeout) Interest() uint32    { return 0 }
func (t *Timeout) Deadline() time.Time { return t.deadline }

func (t *Timeout) Perform(*rawop.Pin) (int, error) {
	if timeNow().Before(t.deadline) {
		return 0, syscall.EAGAIN
	}
	return 0, nil
}

// Close closes fd.
type Close struct {
	fd int
}

func NewClose(fd int) *Close { return &Close{fd: fd} }

func (c *Close) PrepareSQE(sqe *giouring.SubmissionQueueEntry) {
	sqe.PrepareClose(c.fd)
}

func (c *Close) Fd() int             { return -1 }
func (c *Close) Interest() uint32    { return 0 }
func (c *Close) Deadline() time.Time { return noDeadline() }

func (c *Close) Perform(*rawop.Pin) (int, error) {
	return 0, unix.Close(c.fd)
}
