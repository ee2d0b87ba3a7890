package compio

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("poll", ErrCodeRingFull, "submission ring full")
	require.Equal(t, "poll", err.Op)
	require.Equal(t, ErrCodeRingFull, err.Code)
	require.Equal(t, "compio: submission ring full (op=poll)", err.Error())
}

func TestWrapErrnoRemapsCancelled(t *testing.T) {
	err := WrapErrno("poll", syscall.ECANCELED)
	require.Equal(t, ErrCodeTimedOut, err.Code)
	require.Equal(t, syscall.ETIMEDOUT, err.Errno)
}

func TestWrapPreservesStructuredError(t *testing.T) {
	inner := NewError("push", ErrCodeRingFull, "full")
	wrapped := Wrap("poll", inner)
	require.Equal(t, "poll", wrapped.Op)
	require.Equal(t, ErrCodeRingFull, wrapped.Code)
}

func TestWrapClassifiesErrno(t *testing.T) {
	err := Wrap("attach", syscall.ENOENT)
	require.Equal(t, ErrCodeIO, err.Code)
	require.True(t, errors.Is(err, syscall.ENOENT))
}

func TestIsCode(t *testing.T) {
	err := NewError("poll", ErrCodeTimedOut, "deadline elapsed")
	require.True(t, IsCode(err, ErrCodeTimedOut))
	require.False(t, IsCode(err, ErrCodeIO))
	require.False(t, IsCode(nil, ErrCodeTimedOut))
}

func TestIsTransient(t *testing.T) {
	require.True(t, IsTransient(syscall.EBUSY))
	require.True(t, IsTransient(syscall.EAGAIN))
	require.False(t, IsTransient(syscall.EIO))
}

func TestErrTimedOutIsCode(t *testing.T) {
	require.True(t, errors.Is(ErrTimedOut, &Error{Code: ErrCodeTimedOut}))
}
