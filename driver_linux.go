//go:build linux

package compio

import (
	"github.com/ehrlich-b/compio-go/driver"
	"github.com/ehrlich-b/compio-go/iouring"
	"github.com/ehrlich-b/compio-go/pollbackend"
)

// NewDriver constructs a driver.PollDriver backed by io_uring, falling back
// to the epoll-based pollbackend when the kernel has no usable io_uring
// (older kernels, seccomp profiles that block the io_uring syscalls,
// exhausted per-user ring limits). Both backends satisfy driver.Backend
// identically from the caller's point of view, so the fallback is invisible
// beyond AsRawHandle returning an epoll fd instead of a ring fd.
func NewDriver() (*driver.PollDriver, error) {
	return WithEntries(1024)
}

// WithEntries is NewDriver with an explicit submission-queue depth hint.
func WithEntries(entries uint32) (*driver.PollDriver, error) {
	backend, err := iouring.New(entries)
	if err == nil {
		return driver.WithEntries(backend, entries), nil
	}

	fallback, ferr := pollbackend.New()
	if ferr != nil {
		return nil, Wrap("new", err)
	}
	return driver.WithEntries(fallback, entries), nil
}
