package buf

import (
	"unsafe"

	"github.com/bytedance/gopkg/lang/dirtmake"
)

// Bytes is a growable byte vector conformance, the Go analogue of Vec<u8>.
// Its initialized length is len(b) and its capacity is cap(b); SetBufInit uses
// dirtmake to extend the backing array without zeroing the new tail, since
// consumers must treat uninitialized bytes as such regardless.
type Bytes []byte

func (b Bytes) BufPtr() unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func (b Bytes) BufLen() int { return len(b) }
func (b Bytes) BufCap() int { return cap(b) }

func (b *Bytes) BufMutPtr() unsafe.Pointer {
	if cap(*b) == 0 {
		return nil
	}
	full := (*b)[:cap(*b)]
	return unsafe.Pointer(&full[0])
}

// SetBufInit raises the initialized length to n, growing the backing array
// with an uninitialized-tail allocation if n exceeds the current capacity.
// Calls with a smaller n than the current length are no-ops.
func (b *Bytes) SetBufInit(n int) {
	if n <= len(*b) {
		return
	}
	if n > cap(*b) {
		grown := dirtmake.Bytes(n, n)
		copy(grown, *b)
		*b = grown
		return
	}
	*b = (*b)[:n]
}

// NewBytes allocates a Bytes with the given initialized length and
// capacity, using an uninitialized-tail allocation for the region beyond
// length (matching the write side's "must not assume the tail is zeroed"
// contract).
func NewBytes(length, capacity int) Bytes {
	if capacity < length {
		capacity = length
	}
	return Bytes(dirtmake.Bytes(length, capacity))
}

// FixedBytes is a boxed byte slice: its length equals its capacity for its
// entire lifetime, the Go analogue of Box<[u8]>.
type FixedBytes []byte

func NewFixedBytes(n int) FixedBytes {
	return FixedBytes(dirtmake.Bytes(n, n))
}

func (b FixedBytes) BufPtr() unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
func (b FixedBytes) BufLen() int { return len(b) }
func (b FixedBytes) BufCap() int { return len(b) }
func (b FixedBytes) BufMutPtr() unsafe.Pointer {
	return b.BufPtr()
}
func (b FixedBytes) SetBufInit(n int) {
	if n > len(b) {
		panic("buf: set_buf_init exceeds capacity")
	}
}

// Borrowed is a read-only view over a caller-owned byte slice, the Go
// analogue of &'static [u8] (Go has no lifetimes, so "unbounded lifetime"
// is simply "the caller is responsible for keeping the backing array
// alive").
type Borrowed []byte

func (b Borrowed) BufPtr() unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
func (b Borrowed) BufLen() int { return len(b) }
func (b Borrowed) BufCap() int { return len(b) }

// BorrowedMut is a mutable view over a caller-owned byte slice, the Go
// analogue of &'static mut [u8].
type BorrowedMut []byte

func (b BorrowedMut) BufPtr() unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}
func (b BorrowedMut) BufLen() int        { return len(b) }
func (b BorrowedMut) BufCap() int        { return len(b) }
func (b BorrowedMut) BufMutPtr() unsafe.Pointer { return b.BufPtr() }
func (b BorrowedMut) SetBufInit(n int) {
	if n > len(b) {
		panic("buf: set_buf_init exceeds capacity")
	}
}

// String wraps a Go string as a read-only IoBuf conformance, the analogue
// of Rust's String impl. Strings are immutable in Go, so String never
// implements IoBufMut.
type String string

func (s String) BufPtr() unsafe.Pointer {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.StringData(string(s)))
}
func (s String) BufLen() int { return len(s) }
func (s String) BufCap() int { return len(s) }
