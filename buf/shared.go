package buf

import (
	"sync/atomic"
	"unsafe"
)

// sharedState is the heap allocation multiple Shared/SharedMut values can
// point at once. Its backing array's address never changes after
// construction, which is what lets Shared satisfy the buffer-address
// stability invariant across clones.
type sharedState struct {
	data []byte
	refs atomic.Int64
}

// Shared is a reference-counted, immutable byte buffer -- the Go analogue
// of bytes::Bytes. No library in the retrieved example pack supplies this
// shape directly (Go's ecosystem has no single dominant equivalent of the
// `bytes` crate), so it is hand-rolled here; see DESIGN.md.
type Shared struct {
	st  *sharedState
	off int
	len int
}

// NewShared wraps data as a Shared buffer with one reference.
func NewShared(data []byte) Shared {
	st := &sharedState{data: data}
	st.refs.Store(1)
	return Shared{st: st, off: 0, len: len(data)}
}

// Clone returns a new Shared handle over the same backing storage,
// incrementing the reference count.
func (s Shared) Clone() Shared {
	s.st.refs.Add(1)
	return s
}

// Release decrements the reference count. Shared does not free Go memory
// explicitly (the GC does that once the last reference is dropped); Release
// exists so callers can assert balanced clone/release pairs in tests.
func (s Shared) Release() int64 {
	return s.st.refs.Add(-1)
}

func (s Shared) BufPtr() unsafe.Pointer {
	if s.len == 0 {
		return nil
	}
	return unsafe.Pointer(&s.st.data[s.off])
}
func (s Shared) BufLen() int { return s.len }
func (s Shared) BufCap() int { return s.len }

// SharedMut is a reference-counted, mutable byte buffer -- the Go analogue
// of bytes::BytesMut. Unlike Shared it is expected to have exactly one
// owner at a time while mutated; the refcount exists for the same
// clone-into-immutable-Shared lifecycle bytes::BytesMut supports.
type SharedMut struct {
	st     *sharedState
	length int
}

// NewSharedMut allocates a SharedMut with the given initialized length and
// capacity.
func NewSharedMut(length, capacity int) SharedMut {
	if capacity < length {
		capacity = length
	}
	st := &sharedState{data: make([]byte, length, capacity)}
	st.refs.Store(1)
	return SharedMut{st: st, length: length}
}

func (s SharedMut) BufPtr() unsafe.Pointer {
	if s.length == 0 {
		return nil
	}
	return unsafe.Pointer(&s.st.data[0])
}
func (s SharedMut) BufLen() int { return s.length }
func (s SharedMut) BufCap() int { return cap(s.st.data) }
func (s SharedMut) BufMutPtr() unsafe.Pointer {
	full := s.st.data[:cap(s.st.data)]
	if len(full) == 0 {
		return nil
	}
	return unsafe.Pointer(&full[0])
}

func (s *SharedMut) SetBufInit(n int) {
	if n <= s.length {
		return
	}
	if n > cap(s.st.data) {
		panic("buf: set_buf_init exceeds capacity")
	}
	s.length = n
	s.st.data = s.st.data[:n]
}

// Freeze converts a SharedMut into an immutable Shared over the same
// backing storage, matching bytes::BytesMut::freeze.
func (s SharedMut) Freeze() Shared {
	return Shared{st: s.st, off: 0, len: s.length}
}
