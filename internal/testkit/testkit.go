// Package testkit provides a fake driver.Backend for exercising package
// driver and package aio without a live io_uring-capable kernel, in the
// same call-tracking-mock style used throughout this codebase's tests.
package testkit

import (
	"sync"
	"syscall"
	"time"

	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/rawop"
)

var errTimedOut = syscall.ETIMEDOUT

// Resolver is supplied by the caller to turn a pushed opcode into an
// immediate result, standing in for a kernel that would otherwise report
// completion asynchronously. It mirrors the shape of OpCode.Perform in
// package pollbackend, since both are "run it synchronously and report
// the outcome" -- FakeBackend has no readiness model of its own.
type Resolver func(pinned *rawop.Pin) (int, error)

// FakeBackend is a driver.Backend that resolves every pushed operation
// immediately against a caller-supplied Resolver, and tracks call counts
// for assertions in tests.
type FakeBackend struct {
	mu sync.Mutex

	resolve Resolver

	attached  map[int]bool
	cancelled map[uint64]bool
	pending   []uint64
	closed    bool

	AttachCalls int
	CancelCalls int
	PushCalls   int
	PollCalls   int
}

// NewFakeBackend creates a FakeBackend that resolves pushed operations via
// resolve. A nil resolve always reports (0, nil).
func NewFakeBackend(resolve Resolver) *FakeBackend {
	if resolve == nil {
		resolve = func(*rawop.Pin) (int, error) { return 0, nil }
	}
	return &FakeBackend{
		resolve:   resolve,
		attached:  make(map[int]bool),
		cancelled: make(map[uint64]bool),
	}
}

func (b *FakeBackend) Attach(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.AttachCalls++
	b.attached[fd] = true
	return nil
}

func (b *FakeBackend) Cancel(userData uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CancelCalls++
	b.cancelled[userData] = true
}

func (b *FakeBackend) Push(userData uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.PushCalls++
	b.pending = append(b.pending, userData)
}

// Poll resolves every pending operation synchronously via Resolver,
// remapping a cancelled id's outcome to ETIMEDOUT the same way both real
// backends remap ECANCELED, and appends one Entry per resolved id.
func (b *FakeBackend) Poll(_ *time.Duration, entries *[]driver.Entry, registry driver.Registry) error {
	b.mu.Lock()
	b.PollCalls++
	pending := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, id := range pending {
		b.mu.Lock()
		cancelled := b.cancelled[id]
		delete(b.cancelled, id)
		b.mu.Unlock()

		if cancelled {
			*entries = append(*entries, driver.Entry{UserData: id, Err: errTimedOut})
			continue
		}

		pin := registry.Pin(id)
		n, err := b.resolve(pin)
		*entries = append(*entries, driver.Entry{UserData: id, Result: n, Err: err})
	}
	return nil
}

func (b *FakeBackend) AsRawHandle() int { return -1 }

func (b *FakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (b *FakeBackend) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Attached reports whether fd was registered via Attach.
func (b *FakeBackend) Attached(fd int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached[fd]
}

var _ driver.Backend = (*FakeBackend)(nil)
