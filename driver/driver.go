// Package driver implements the backend-agnostic poll driver: the
// operation registry, submission/cancellation plumbing, and the
// Backend/Entry contract that the iouring and pollbackend packages
// satisfy.
package driver

import (
	"fmt"
	"time"

	"github.com/ehrlich-b/compio-go/internal/logging"
	"github.com/ehrlich-b/compio-go/internal/metrics"
	"github.com/ehrlich-b/compio-go/rawop"
)

// CancelUserData is reserved for the AsyncCancel submissions a Backend
// issues on behalf of Cancel. Push never mints this id: the registry only
// ever returns indices bounded by its current slot count, which stays far
// below the top of the uint64 range.
const CancelUserData = ^uint64(0)

// OpCode is the marker every concrete opcode in package op satisfies. It
// carries no methods of its own: the two backends need incompatible
// preparation shapes (in-place SQE mutation for io_uring, a retry-on-ready
// callback for the epoll fallback), so each backend declares its own
// dispatch interface and recovers it from the pushed opcode via a type
// assertion on rawop.Pin.Any().
type OpCode any

// Entry is a single completed operation, reported by the id Push returned
// for it.
type Entry struct {
	UserData uint64
	Result   int
	Err      error
}

// Registry is the read side of the operation registry a Backend needs
// while flushing submissions or reporting completions: it recovers the
// pinned, type-erased opcode for a previously pushed id.
type Registry interface {
	Pin(userData uint64) *rawop.Pin
}

// Backend abstracts the kernel-facing half of the driver.
type Backend interface {
	// Attach registers fd with the backend. A no-op for io_uring; mandatory
	// (epoll_ctl ADD) for the polling fallback.
	Attach(fd int) error
	// Cancel requests that a previously pushed operation be cancelled.
	// Cancellation is asynchronous: its outcome arrives later as a
	// completion for userData, not as a return value here.
	Cancel(userData uint64)
	// Push stages userData for submission on the next Poll call.
	Push(userData uint64)
	// Poll drains the submission and cancellation queues, blocks for at
	// most timeout (nil means wait indefinitely), and appends every
	// completed Entry it collects to entries.
	Poll(timeout *time.Duration, entries *[]Entry, registry Registry) error
	// AsRawHandle returns a file descriptor identifying the backend, for
	// diagnostics and for embedding one driver's readiness inside another
	// event loop.
	AsRawHandle() int
	// Close releases the backend's kernel resources.
	Close() error
}

// PollDriver is the single-threaded, cooperatively-driven completion
// driver. It owns the operation registry and delegates the kernel-facing
// half of its work to a Backend. None of its methods are safe for
// concurrent use: exclusive access is required for every public operation
// (serialization is the caller's job, not a mutex inside this type).
type PollDriver struct {
	backend  Backend
	registry *registry
	logger   *logging.Logger
	observer metrics.Observer

	// reasons records why a user-cancelled id's completion should be
	// reported as cancelled rather than as a plain timeout, resolving the
	// open question of distinguishing the two without changing the
	// ECANCELED->ETIMEDOUT wire-level remap every backend performs.
	reasons map[uint64]CancelReason
}

// CancelReason records why an id's completion arrived via the cancel path
// rather than naturally.
type CancelReason int

const (
	// CancelReasonNone is the zero value: the operation was not cancelled.
	CancelReasonNone CancelReason = iota
	// CancelReasonRequested means the caller explicitly called Cancel.
	CancelReasonRequested
)

const defaultEntries = 1024

// New creates a PollDriver over backend with a default registry capacity
// hint of 1024 in-flight operations.
func New(backend Backend) *PollDriver {
	return WithEntries(backend, defaultEntries)
}

// WithEntries creates a PollDriver over backend, pre-sizing the registry
// for capacityHint in-flight operations.
func WithEntries(backend Backend, capacityHint uint32) *PollDriver {
	return &PollDriver{
		backend:  backend,
		registry: newRegistry(int(capacityHint)),
		logger:   logging.Default(),
		observer: metrics.NoOp(),
		reasons:  make(map[uint64]CancelReason),
	}
}

// SetObserver installs an Observer for submission/completion/cancel/queue
// depth events. The default is a no-op observer.
func (d *PollDriver) SetObserver(o metrics.Observer) {
	if o == nil {
		o = metrics.NoOp()
	}
	d.observer = o
}

// Attach registers fd with the underlying backend.
func (d *PollDriver) Attach(fd int) error {
	return d.backend.Attach(fd)
}

// Cancel requests cancellation of the operation identified by id. Its
// completion, reported later through Pop, carries CancelReasonRequested.
func (d *PollDriver) Cancel(id uint64) {
	d.reasons[id] = CancelReasonRequested
	d.backend.Cancel(id)
	d.observer.ObserveCancel()
}

// Push heap-pins op via package rawop, assigns it a registry id, and
// stages that id for submission on the next Poll call. Ownership of op
// moves into the driver: the caller must not retain or mutate the value
// passed in after this call returns.
func Push[T OpCode](d *PollDriver, op T) uint64 {
	raw := rawop.New(op)
	id := d.registry.insert(raw)
	d.backend.Push(id)
	d.observer.ObserveSubmit()
	d.observer.ObserveQueueDepth(uint32(d.registry.inFlight()))
	return id
}

// Poll calls the backend's Poll once (which runs its flush/submit/collect
// cycle, repeating it internally until its queues are drained), appending
// newly completed entries to entries. A nil timeout blocks until at least
// one operation completes.
func (d *PollDriver) Poll(timeout *time.Duration, entries *[]Entry) error {
	before := len(*entries)
	err := d.backend.Poll(timeout, entries, d.registry)
	for _, e := range (*entries)[before:] {
		d.observer.ObserveComplete(e.Err == nil)
	}
	return err
}

// Pop recovers the opcode pushed for each entry's UserData by value,
// freeing its registry slot for reuse, and calls fn with the entry, the
// reason it was cancelled (CancelReasonNone if it completed normally),
// and the recovered RawOp so callers can type-assert it back to their own
// concrete opcode type via rawop.Into.
func (d *PollDriver) Pop(entries []Entry, fn func(Entry, CancelReason, *rawop.RawOp)) {
	for _, e := range entries {
		op := d.registry.remove(e.UserData)
		reason := d.reasons[e.UserData]
		delete(d.reasons, e.UserData)
		fn(e, reason, op)
	}
}

// AsRawHandle returns the backend's raw file descriptor.
func (d *PollDriver) AsRawHandle() int {
	return d.backend.AsRawHandle()
}

// Close releases the backend's kernel resources. The driver must not be
// used afterwards.
func (d *PollDriver) Close() error {
	return d.backend.Close()
}

// registry is the slab-style id->RawOp table: dense, free-list-recycled
// integer ids over a growable slab.
type registry struct {
	slots []*rawop.RawOp
	free  []uint64
	live  int
}

func newRegistry(capacityHint int) *registry {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &registry{slots: make([]*rawop.RawOp, 0, capacityHint)}
}

func (r *registry) insert(op *rawop.RawOp) uint64 {
	r.live++
	if n := len(r.free); n > 0 {
		id := r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[id] = op
		return id
	}
	id := uint64(len(r.slots))
	r.slots = append(r.slots, op)
	return id
}

func (r *registry) remove(id uint64) *rawop.RawOp {
	op := r.slots[id]
	if op == nil {
		panic(fmt.Sprintf("driver: id %d already popped or never pushed", id))
	}
	r.slots[id] = nil
	r.free = append(r.free, id)
	r.live--
	return op
}

func (r *registry) inFlight() int { return r.live }

func (r *registry) Pin(userData uint64) *rawop.Pin {
	if userData >= uint64(len(r.slots)) || r.slots[userData] == nil {
		panic(fmt.Sprintf("driver: unknown operation id %d", userData))
	}
	return r.slots[userData].AsDynMut()
}

var _ Registry = (*registry)(nil)
