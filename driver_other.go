//go:build !linux

package compio

import "github.com/ehrlich-b/compio-go/driver"

// NewDriver is unavailable outside Linux: both backends this module ships
// (io_uring and the epoll fallback) are Linux-specific kernel interfaces.
func NewDriver() (*driver.PollDriver, error) {
	return nil, NewError("new", ErrCodeConstructFailed, "compio-go has no backend for this platform")
}

// WithEntries is NewDriver with an explicit submission-queue depth hint.
func WithEntries(uint32) (*driver.PollDriver, error) {
	return NewDriver()
}
