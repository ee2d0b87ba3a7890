//go:build linux

// Package pollbackend implements the epoll-based fallback driver.Backend
// for kernels without a usable io_uring (EpollCreate1/EpollCtl/EpollWait
// wiring), translating readiness into completions: each pushed operation
// that needs readiness is retried inline against its underlying syscall
// when its fd reports readiness, and wrapped into the same
// Entry{UserData, Result, Err} shape the iouring backend produces.
package pollbackend

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/rawop"
)

// OpCode is implemented by opcodes this backend can drive: readiness-gated
// operations on a file descriptor, and zero-fd deadline-only operations
// (timers).
type OpCode interface {
	// Fd returns the file descriptor to wait for readiness on, or -1 for a
	// pure deadline operation.
	Fd() int
	// Interest returns the epoll event mask (EPOLLIN/EPOLLOUT) the operation
	// needs. This Driver does not consult it: Attach registers every fd for
	// both EPOLLIN and EPOLLOUT, and any readiness event on an fd retries
	// every operation waiting on that fd.
	Interest() uint32
	// Perform attempts the underlying syscall once: on push, and again
	// every time Fd() reports readiness. Returning unix.EAGAIN or
	// unix.EWOULDBLOCK means "not ready yet, keep waiting"; any other
	// result completes the operation.
	Perform(pinned *rawop.Pin) (int, error)
	// Deadline returns the absolute time this operation fires if it never
	// becomes ready. The zero Time means no deadline.
	Deadline() time.Time
}

type waiting struct {
	userData uint64
	op       OpCode
}

const maxEpollEvents = 128

// Driver is the epoll-based driver.Backend. Attach is mandatory here
// (EpollCtl ADD): unlike io_uring, epoll requires a file descriptor to be
// registered before it can report readiness on it.
type Driver struct {
	epfd int

	mu        sync.Mutex
	byFd      map[int][]waiting
	timers    []waiting
	cancelled map[uint64]bool
	pushed    []uint64
}

// New creates an epoll-backed Driver.
func New() (*Driver, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	return &Driver{
		epfd:      epfd,
		byFd:      make(map[int][]waiting),
		cancelled: make(map[uint64]bool),
	}, nil
}

func (d *Driver) Attach(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	return unix.EpollCtl(d.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (d *Driver) Cancel(userData uint64) {
	d.mu.Lock()
	d.cancelled[userData] = true
	d.mu.Unlock()
}

func (d *Driver) Push(userData uint64) {
	d.mu.Lock()
	d.pushed = append(d.pushed, userData)
	d.mu.Unlock()
}

func (d *Driver) AsRawHandle() int { return d.epfd }

func (d *Driver) Close() error { return unix.Close(d.epfd) }

func (d *Driver) consumeCancelled(userData uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancelled[userData] {
		delete(d.cancelled, userData)
		return true
	}
	return false
}

func cancelledEntry(userData uint64) driver.Entry {
	return driver.Entry{UserData: userData, Err: unix.ETIMEDOUT}
}

// dispatchPushed recovers each newly pushed id's opcode, attempts it
// immediately once (it may already be ready), and either completes it,
// files it under its fd waiting for readiness, or files it as a
// deadline-only timer.
func (d *Driver) dispatchPushed(registry driver.Registry, entries *[]driver.Entry) {
	d.mu.Lock()
	pushed := d.pushed
	d.pushed = nil
	d.mu.Unlock()

	for _, id := range pushed {
		if d.consumeCancelled(id) {
			*entries = append(*entries, cancelledEntry(id))
			continue
		}
		pin := registry.Pin(id)
		op, ok := pin.Any().(OpCode)
		if !ok {
			panic(fmt.Sprintf("pollbackend: operation %d does not implement pollbackend.OpCode", id))
		}
		w := waiting{userData: id, op: op}
		if op.Fd() < 0 {
			if op.Deadline().IsZero() {
				// No fd to wait on and no deadline to park behind: this
				// opcode (ReadAt/WriteAt/Fsync/Close) has to run eagerly
				// right here, or it would never complete.
				res, err := op.Perform(pin)
				*entries = append(*entries, driver.Entry{UserData: id, Result: res, Err: err})
				continue
			}
			d.mu.Lock()
			d.timers = append(d.timers, w)
			d.mu.Unlock()
			continue
		}
		res, err := op.Perform(pin)
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			d.mu.Lock()
			d.byFd[op.Fd()] = append(d.byFd[op.Fd()], w)
			d.mu.Unlock()
			continue
		}
		*entries = append(*entries, driver.Entry{UserData: id, Result: res, Err: err})
	}
}

// sweepCancelled completes any already-waiting operation (parked in byFd or
// timers from a previous Poll call) that Cancel has since marked, without
// waiting for its fd to become ready or its deadline to expire. Without this,
// a cancel arriving between two Poll calls would sit unnoticed until
// whichever happens first of: the fd's next readiness event, or the timer's
// own deadline -- neither of which a cancel should have to wait on.
func (d *Driver) sweepCancelled(entries *[]driver.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.cancelled) == 0 {
		return
	}

	for fd, waiters := range d.byFd {
		var remaining []waiting
		for _, w := range waiters {
			if d.cancelled[w.userData] {
				delete(d.cancelled, w.userData)
				*entries = append(*entries, cancelledEntry(w.userData))
				continue
			}
			remaining = append(remaining, w)
		}
		if len(remaining) == 0 {
			delete(d.byFd, fd)
		} else {
			d.byFd[fd] = remaining
		}
	}

	var remainingTimers []waiting
	for _, t := range d.timers {
		if d.cancelled[t.userData] {
			delete(d.cancelled, t.userData)
			*entries = append(*entries, cancelledEntry(t.userData))
			continue
		}
		remainingTimers = append(remainingTimers, t)
	}
	d.timers = remainingTimers
}

func (d *Driver) nextDeadline() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	var earliest time.Time
	for _, t := range d.timers {
		dl := t.op.Deadline()
		if dl.IsZero() {
			continue
		}
		if earliest.IsZero() || dl.Before(earliest) {
			earliest = dl
		}
	}
	return earliest
}

func resolveTimeoutMs(timeout *time.Duration, deadline time.Time) int {
	ms := -1
	if timeout != nil {
		ms = int(timeout.Milliseconds())
	}
	if !deadline.IsZero() {
		until := int(time.Until(deadline).Milliseconds())
		if until < 0 {
			until = 0
		}
		if ms < 0 || until < ms {
			ms = until
		}
	}
	return ms
}

func (d *Driver) fireExpiredTimers(entries *[]driver.Entry) {
	now := time.Now()
	d.mu.Lock()
	var remaining, fired []waiting
	for _, t := range d.timers {
		if dl := t.op.Deadline(); !dl.IsZero() && !now.Before(dl) {
			fired = append(fired, t)
			continue
		}
		remaining = append(remaining, t)
	}
	d.timers = remaining
	d.mu.Unlock()

	for _, t := range fired {
		if d.consumeCancelled(t.userData) {
			*entries = append(*entries, cancelledEntry(t.userData))
			continue
		}
		*entries = append(*entries, driver.Entry{UserData: t.userData})
	}
}

// Poll implements driver.Backend: dispatch newly pushed operations, wait
// for readiness (bounded by timeout and by the nearest timer deadline),
// retry every fd that became ready, and fire any timers that expired
// while waiting. Returns ETIMEDOUT if the wait was bounded and elapsed
// with nothing completed.
func (d *Driver) Poll(timeout *time.Duration, entries *[]driver.Entry, registry driver.Registry) error {
	d.dispatchPushed(registry, entries)
	d.sweepCancelled(entries)
	if len(*entries) > 0 {
		return nil
	}

	deadline := d.nextDeadline()
	timeoutMs := resolveTimeoutMs(timeout, deadline)

	var events [maxEpollEvents]unix.EpollEvent
	n, err := unix.EpollWait(d.epfd, events[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			d.fireExpiredTimers(entries)
			return nil
		}
		return err
	}

	d.mu.Lock()
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		waiters := d.byFd[fd]
		var remaining []waiting
		for _, w := range waiters {
			if d.cancelled[w.userData] {
				delete(d.cancelled, w.userData)
				*entries = append(*entries, cancelledEntry(w.userData))
				continue
			}
			pin := registry.Pin(w.userData)
			res, perr := w.op.Perform(pin)
			if perr == unix.EAGAIN || perr == unix.EWOULDBLOCK {
				remaining = append(remaining, w)
				continue
			}
			*entries = append(*entries, driver.Entry{UserData: w.userData, Result: res, Err: perr})
		}
		if len(remaining) == 0 {
			delete(d.byFd, fd)
		} else {
			d.byFd[fd] = remaining
		}
	}
	d.mu.Unlock()

	d.fireExpiredTimers(entries)

	if len(*entries) == 0 && timeoutMs >= 0 {
		return unix.ETIMEDOUT
	}
	return nil
}

var _ driver.Backend = (*Driver)(nil)
