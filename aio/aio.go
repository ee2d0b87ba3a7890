// Package aio supplies AsyncRead/AsyncWrite-flavored convenience wrappers
// over a shared *driver.PollDriver. Go has no async/await, so "asynchronous
// operation" here is what every completion-based Go I/O wrapper does in
// practice: a blocking call from the caller's own goroutine that drives the
// shared driver's event loop itself (push, then re-enter Poll/Pop until its
// own operation's Entry arrives) -- single-threaded cooperative, per the
// driver's concurrency model, not a thread pool.
package aio

import (
	"time"
	"unsafe"

	"github.com/ehrlich-b/compio-go/buf"
	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/op"
	"github.com/ehrlich-b/compio-go/rawop"
)

// run pushes op onto d, then re-enters Poll until id's completion shows up
// in a popped batch, and returns that completion. It is the single
// building block every function in this package is written against.
//
// run assumes it is the only in-flight operation on d when called -- this
// package is a thin façade meant to exercise the driver end-to-end, not a
// multiplexing scheduler, so a completion belonging to some other pushed
// operation is simply dropped rather than redelivered to whichever call
// pushed it.
func run[T driver.OpCode](d *driver.PollDriver, o T) (driver.Entry, T) {
	id := driver.Push(d, o)

	var batch []driver.Entry
	var result driver.Entry
	var found bool
	var recovered T

	for !found {
		batch = batch[:0]
		if err := d.Poll(nil, &batch); err != nil {
			return driver.Entry{UserData: id, Err: err}, o
		}
		d.Pop(batch, func(e driver.Entry, _ driver.CancelReason, raw *rawop.RawOp) {
			if e.UserData != id {
				// Another in-flight operation on the same driver completed
				// first; its own caller is responsible for it, not this one.
				return
			}
			result = e
			recovered = rawop.Into[T](raw)
			found = true
		})
	}
	return result, recovered
}

// AsyncRead reads into b via a single recv, blocking the calling goroutine
// until the driver reports completion.
//
// The filled length is applied from entry.Result rather than trusted from
// the opcode's own state: the io_uring backend never calls Recv.Perform (the
// kernel writes the buffer directly and reports the byte count in the
// completion), so SetBufInit must happen here to work identically across
// both backends.
func AsyncRead(d *driver.PollDriver, fd int, b buf.IoBufMut) (int, buf.IoBufMut, error) {
	entry, recv := run(d, op.NewRecv(fd, b))
	out := recv.Into()
	if entry.Err == nil {
		out.SetBufInit(entry.Result)
	}
	return entry.Result, out, entry.Err
}

// AsyncWrite writes b's filled region via a single send.
func AsyncWrite(d *driver.PollDriver, fd int, b buf.IoBuf) (int, buf.IoBuf, error) {
	entry, send := run(d, op.NewSend(fd, b))
	return entry.Result, send.Into(), entry.Err
}

// AsyncReadAt reads into b at a fixed file offset.
func AsyncReadAt(d *driver.PollDriver, fd int, offset int64, b buf.IoBufMut) (int, buf.IoBufMut, error) {
	entry, r := run(d, op.NewReadAt(fd, offset, b))
	out := r.Into()
	if entry.Err == nil {
		out.SetBufInit(entry.Result)
	}
	return entry.Result, out, entry.Err
}

// AsyncWriteAt writes b's filled region to fd at a fixed offset.
func AsyncWriteAt(d *driver.PollDriver, fd int, offset int64, b buf.IoBuf) (int, buf.IoBuf, error) {
	entry, w := run(d, op.NewWriteAt(fd, offset, b))
	return entry.Result, w.Into(), entry.Err
}

// AsyncConnect connects fd to addr, a raw sockaddr the caller has already
// resolved and must keep alive (and unmoved) until this call returns --
// op.Connect's documented contract.
func AsyncConnect(d *driver.PollDriver, fd int, addr unsafe.Pointer, addrLen uint64) error {
	entry, _ := run(d, op.NewConnect(fd, addr, addrLen))
	return entry.Err
}

// AsyncAccept accepts one connection on a listening socket fd.
//
// The accepted fd comes from entry.Result, not Accept.Accepted(): the
// io_uring backend never calls Accept.Perform, so only the completion's
// result carries the accepted fd in that case.
func AsyncAccept(d *driver.PollDriver, fd int) (int, error) {
	entry, _ := run(d, op.NewAccept(fd))
	if entry.Err != nil {
		return 0, entry.Err
	}
	return entry.Result, nil
}

// Sleep blocks the calling goroutine until d's driver loop reports that
// duration has elapsed, driving the shared driver the same way every other
// function in this package does rather than calling time.Sleep directly --
// this keeps the driver's event loop alive while a caller is "asleep" so
// other pushed operations on the same driver still make progress.
func Sleep(d *driver.PollDriver, duration time.Duration) {
	run(d, op.NewTimeout(duration))
}

// Null is an AsyncRead/AsyncWrite black hole: every read reports 0 bytes
// and leaves the buffer untouched, every write reports 0 bytes written.
type Null struct{}

// Read always returns (0, nil).
func (Null) Read(b buf.IoBufMut) (int, error) { return 0, nil }

// Write always returns (0, nil).
func (Null) Write(b buf.IoBuf) (int, error) { return 0, nil }

// WriteVectored always returns (0, nil).
func (Null) WriteVectored(b buf.IoVectoredBuf) (int, error) { return 0, nil }

// Flush is a no-op.
func (Null) Flush() error { return nil }

// Shutdown is a no-op.
func (Null) Shutdown() error { return nil }
