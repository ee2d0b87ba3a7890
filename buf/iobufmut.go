package buf

import "unsafe"

// SetBufInit extends a buffer's initialized length.
//
// Precondition: n <= BufCap(). Semantics: if n exceeds the current
// initialized length, the initialized length becomes n (bounded by
// capacity); otherwise the call is a no-op. Repeated calls with a
// decreasing n must therefore never shrink the buffer.
type SetBufInit interface {
	SetBufInit(n int)
}

// IoBufMut is implemented by byte containers that a read operation may
// write into. The uninitialized tail [BufLen():BufCap()) must be treated by
// callers as possibly-uninitialized memory -- implementations are not
// required to zero it.
type IoBufMut interface {
	IoBuf
	SetBufInit
	// BufMutPtr returns a mutable pointer to the start of the buffer's
	// storage. It returns the same address as BufPtr whenever BufLen() > 0;
	// for an empty buffer with spare capacity it still points at the
	// storage, where BufPtr returns nil.
	BufMutPtr() unsafe.Pointer
}

// UninitTail returns the uninitialized tail of b as raw bytes. Reading these
// bytes before they are written by the kernel observes unspecified memory;
// callers must only use this to know how much room a write operation has.
func UninitTail(b IoBufMut) []byte {
	n := b.BufCap() - b.BufLen()
	if n <= 0 {
		return nil
	}
	base := unsafe.Add(b.BufMutPtr(), b.BufLen())
	return unsafe.Slice((*byte)(base), n)
}

// MutSlice is the mutable counterpart of Slice. Go's generic system cannot
// conditionally add IoBufMut's methods to Slice[B] based on whether B
// happens to implement IoBufMut, so mutable scoped views are a distinct
// concrete type -- see DESIGN.md's Open Question resolution.
type MutSlice[B IoBufMut] struct {
	buf        B
	begin, end int
}

// NewMutSlice constructs a MutSlice over buf[begin:end), with the same
// preconditions as NewSlice.
func NewMutSlice[B IoBufMut](buf B, begin, end int) MutSlice[B] {
	cap_ := buf.BufCap()
	if begin > cap_ {
		panic("buf: slice begin exceeds capacity")
	}
	if end > cap_ {
		panic("buf: slice end exceeds capacity")
	}
	if begin > buf.BufLen() {
		panic("buf: slice begin exceeds initialized length")
	}
	return MutSlice[B]{buf: buf, begin: begin, end: end}
}

func (s MutSlice[B]) BufPtr() unsafe.Pointer {
	return unsafe.Add(s.buf.BufPtr(), s.begin)
}

func (s MutSlice[B]) BufMutPtr() unsafe.Pointer {
	return unsafe.Add(s.buf.BufMutPtr(), s.begin)
}

func (s MutSlice[B]) BufLen() int {
	l := s.buf.BufLen()
	if l > s.end {
		l = s.end
	}
	return l - s.begin
}

func (s MutSlice[B]) BufCap() int {
	return s.end - s.begin
}

func (s *MutSlice[B]) SetBufInit(n int) {
	if n > s.BufCap() {
		panic("buf: set_buf_init exceeds capacity")
	}
	cur := s.buf.BufLen() - s.begin
	if cur < 0 {
		cur = 0
	}
	if n > cur {
		s.buf.SetBufInit(s.begin + n)
	}
}

// Into recovers the original buffer.
func (s MutSlice[B]) Into() B { return s.buf }
