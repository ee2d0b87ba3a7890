// Package iouring implements the io_uring-backed driver.Backend: the
// flush_submissions / submit_auto / poll_entries / poll loop over
// github.com/pawelgaczynski/giouring.
package iouring

import (
	"fmt"
	"syscall"
	"time"

	"github.com/pawelgaczynski/giouring"

	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/rawop"
)

// cancelUserData tags the AsyncCancel entries this driver submits on
// behalf of Cancel; their completions are swallowed in pollEntries and
// never reported to the caller.
const cancelUserData = driver.CancelUserData

const completionBatch = 128

// OpCode is implemented by opcodes that can fill in a submission-queue
// entry obtained from the ring. Concrete opcodes in package op implement
// this directly; a pushed operation's rawop.Pin is type-asserted to it
// during flush.
type OpCode interface {
	PrepareSQE(sqe *giouring.SubmissionQueueEntry)
}

// Driver is the io_uring driver.Backend.
type Driver struct {
	ring        *giouring.Ring
	cancelQueue []uint64
	squeue      []uint64
}

// New creates a Driver backed by a ring of the given submission-queue
// depth.
func New(entries uint32) (*Driver, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, err
	}
	return &Driver{
		ring:   ring,
		squeue: make([]uint64, 0, entries),
	}, nil
}

// Attach is a no-op: io_uring needs no per-fd registration to submit
// operations against it.
func (d *Driver) Attach(int) error { return nil }

func (d *Driver) Cancel(userData uint64) {
	d.cancelQueue = append(d.cancelQueue, userData)
}

func (d *Driver) Push(userData uint64) {
	d.squeue = append(d.squeue, userData)
}

func (d *Driver) AsRawHandle() int {
	return d.ring.EnterRingFd()
}

func (d *Driver) Close() error {
	d.ring.QueueExit()
	return nil
}

// flushSubmissions drains squeue and cancelQueue into the ring's native
// submission queue until either is empty or the ring's SQEs run out.
// Returns true once both queues have been fully drained, the signal Poll
// uses to decide whether the next submitAuto call should wait.
func (d *Driver) flushSubmissions(registry driver.Registry) bool {
	endedOps := false
	for {
		if len(d.squeue) == 0 {
			endedOps = true
			break
		}
		sqe := d.ring.GetSQE()
		if sqe == nil {
			break
		}
		userData := d.squeue[0]
		d.squeue = d.squeue[1:]

		pin := registry.Pin(userData)
		op, ok := pin.Any().(OpCode)
		if !ok {
			panic(fmt.Sprintf("iouring: operation %d does not implement iouring.OpCode", userData))
		}
		op.PrepareSQE(sqe)
		sqe.UserData = userData
	}
	if len(d.squeue) == 0 {
		endedOps = true
	}

	endedCancel := false
	for {
		if len(d.cancelQueue) == 0 {
			endedCancel = true
			break
		}
		sqe := d.ring.GetSQE()
		if sqe == nil {
			break
		}
		target := d.cancelQueue[0]
		d.cancelQueue = d.cancelQueue[1:]

		sqe.PrepareCancel64(target, 0)
		sqe.UserData = cancelUserData
	}
	if len(d.cancelQueue) == 0 {
		endedCancel = true
	}

	return endedOps && endedCancel
}

// submitAuto submits the ring's staged SQEs, waiting for at least one
// completion when wait is true. ETIME is remapped to ETIMEDOUT; EBUSY and
// EAGAIN are absorbed (the queue is retried on the next loop iteration
// rather than surfaced as errors).
func (d *Driver) submitAuto(timeout *time.Duration, wait bool) error {
	var err error
	switch {
	case !wait:
		_, err = d.ring.Submit()
	case timeout != nil:
		ts := syscall.NsecToTimespec(timeout.Nanoseconds())
		_, err = d.ring.SubmitAndWaitTimeout(1, &ts, nil)
	default:
		_, err = d.ring.SubmitAndWait(1)
	}
	if err == nil {
		return nil
	}
	if errno, ok := err.(syscall.Errno); ok {
		switch errno {
		case syscall.ETIME:
			return syscall.ETIMEDOUT
		case syscall.EBUSY, syscall.EAGAIN:
			return nil
		}
	}
	return err
}

// pollEntries drains available completions into entries, dropping the
// cancel-tagged ones and remapping ECANCELED to ETIMEDOUT.
func (d *Driver) pollEntries(entries *[]driver.Entry) {
	var batch [completionBatch]*giouring.CompletionQueueEvent
	for {
		n := d.ring.PeekBatchCQE(batch[:])
		for _, cqe := range batch[:n] {
			if cqe.UserData == cancelUserData {
				continue
			}
			*entries = append(*entries, toEntry(cqe))
		}
		d.ring.CQAdvance(n)
		if n < completionBatch {
			return
		}
	}
}

func toEntry(cqe *giouring.CompletionQueueEvent) driver.Entry {
	if cqe.Res < 0 {
		errno := syscall.Errno(-cqe.Res)
		if errno == syscall.ECANCELED {
			errno = syscall.ETIMEDOUT
		}
		return driver.Entry{UserData: cqe.UserData, Err: errno}
	}
	return driver.Entry{UserData: cqe.UserData, Result: int(cqe.Res)}
}

// Poll flushes, submits (waiting only once both queues are fully drained),
// collects, and repeats until drained.
func (d *Driver) Poll(timeout *time.Duration, entries *[]driver.Entry, registry driver.Registry) error {
	for {
		ended := d.flushSubmissions(registry)
		if err := d.submitAuto(timeout, ended); err != nil {
			return err
		}
		d.pollEntries(entries)
		if ended {
			return nil
		}
	}
}

var _ driver.Backend = (*Driver)(nil)
