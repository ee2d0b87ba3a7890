// Package compio is the root package of the completion-driven I/O runtime
// core: it carries the structured error type shared by the driver,
// backend, and async-façade packages.
package compio

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is a structured driver-level error: a kernel submission fault,
// construction failure, or attach failure, carrying enough context to be
// logged usefully and compared with errors.Is/As. Per-operation completion
// errors travel with their Entry instead (see driver.Entry) and are never
// wrapped in an Error -- only driver-wide construction/attach/submission
// failures reach here.
type Error struct {
	Op    string    // "new", "with_entries", "attach", "cancel", "push", "poll"
	Code  ErrorCode // high-level error category
	Errno syscall.Errno // kernel errno, 0 if not applicable
	Msg   string
	Inner error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op != "" {
		if e.Errno != 0 {
			return fmt.Sprintf("compio: %s (op=%s errno=%d)", msg, e.Op, e.Errno)
		}
		return fmt.Sprintf("compio: %s (op=%s)", msg, e.Op)
	}
	return fmt.Sprintf("compio: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is a high-level error category, independent of the specific
// errno or backend that produced it.
type ErrorCode string

const (
	ErrCodeTimedOut          ErrorCode = "timed out"
	ErrCodeCancelled         ErrorCode = "cancelled"
	ErrCodeRingFull          ErrorCode = "submission ring full"
	ErrCodeUnknownIdentifier ErrorCode = "unknown identifier"
	ErrCodeAttachFailed      ErrorCode = "attach failed"
	ErrCodeConstructFailed   ErrorCode = "construction failed"
	ErrCodeIO                ErrorCode = "I/O error"
)

// ErrTimedOut is the structured timed-out error: errors.Is matches it
// against any *Error carrying ErrCodeTimedOut, including WrapErrno's
// remapped ECANCELED. PollDriver.Poll and per-operation Entry errors do not
// return it; they carry the raw ETIMEDOUT errno.
var ErrTimedOut = &Error{Code: ErrCodeTimedOut, Msg: "poll deadline elapsed"}

// NewError constructs a driver-wide error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WrapErrno wraps a kernel errno under the given operation, mapping it to
// an ErrorCode and remapping ECANCELED to timed-out.
func WrapErrno(op string, errno syscall.Errno) *Error {
	if errno == syscall.ECANCELED {
		return &Error{Op: op, Code: ErrCodeTimedOut, Errno: syscall.ETIMEDOUT, Msg: "operation cancelled", Inner: syscall.ETIMEDOUT}
	}
	return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: errno}
}

// Wrap wraps an arbitrary error under the given operation name, preserving
// a structured Error's fields or classifying a raw syscall.Errno.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if ce, ok := inner.(*Error); ok {
		wrapped := *ce
		wrapped.Op = op
		return &wrapped
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return WrapErrno(op, errno)
	}
	return &Error{Op: op, Code: ErrCodeIO, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ETIMEDOUT:
		return ErrCodeTimedOut
	case syscall.ECANCELED:
		return ErrCodeCancelled
	default:
		return ErrCodeIO
	}
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// IsTransient reports whether errno should be absorbed and retried by the
// submission loop rather than surfaced.
func IsTransient(errno syscall.Errno) bool {
	return errno == syscall.EBUSY || errno == syscall.EAGAIN
}
