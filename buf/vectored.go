package buf

import "errors"

// ErrEmptyVectored is returned by OwnedIter construction when the composite
// buffer has no segments. The empty path still returns the composite's
// ownership to the caller -- see ErrEmptyVectored's Buf field and
// OwnedIter.Next's ErrExhausted, both of which carry the value back out
// rather than dropping it.
type ErrEmptyVectored struct {
	msg string
	// Buf is the empty composite passed to NewOwnedIter.
	Buf IoVectoredBuf
}

func (e *ErrEmptyVectored) Error() string { return e.msg }

var errExhausted = errors.New("buf: vectored owned iterator exhausted")

// ErrExhausted is returned by OwnedIter.Next once every segment has been
// consumed. The OwnedIter value returned alongside it is unchanged and still
// owns the composite buffer.
var ErrExhausted = errExhausted

// IoVectoredBuf is implemented by a composite of IoBuf segments.
type IoVectoredBuf interface {
	// NumSegments returns the number of segments in the composite.
	NumSegments() int
	// Segment returns the i'th segment, or nil if i is out of range.
	Segment(i int) IoBuf
}

// IoVectoredBufMut is the mutable counterpart of IoVectoredBuf.
type IoVectoredBufMut interface {
	IoVectoredBuf
	SetBufInit
	// SegmentMut returns the i'th segment as a mutable buffer, or nil if i
	// is out of range.
	SegmentMut(i int) IoBufMut
}

// IoIndexedBuf adds random access by position to a vectored buffer.
type IoIndexedBuf interface {
	IoVectoredBuf
	// BufNth returns the n'th segment and true, or (nil, false) if n is out
	// of range.
	BufNth(n int) (IoBuf, bool)
}

// IoIndexedBufMut is the mutable counterpart of IoIndexedBuf.
type IoIndexedBufMut interface {
	IoVectoredBufMut
	IoIndexedBuf
	BufNthMut(n int) (IoBufMut, bool)
}

// OwnedIter is a stateful, owning cursor over a vectored buffer's segments.
// It preserves ownership of the composite across calls to Next: on success
// it returns a new cursor over the remaining segments; on exhaustion it
// returns the same composite, unchanged, alongside ErrExhausted.
type OwnedIter struct {
	composite IoVectoredBuf
	next      int
}

// NewOwnedIter constructs an OwnedIter over composite, or returns
// ErrEmptyVectored wrapping composite back to the caller if it has no
// segments.
func NewOwnedIter(composite IoVectoredBuf) (OwnedIter, error) {
	if composite.NumSegments() == 0 {
		return OwnedIter{}, &ErrEmptyVectored{msg: "buf: vectored buffer has no segments", Buf: composite}
	}
	return OwnedIter{composite: composite, next: 0}, nil
}

// AsSlice returns the initialized bytes of the current segment.
func (it OwnedIter) AsSlice() []byte {
	return AsSlice(it.composite.Segment(it.next))
}

// Current returns the current segment.
func (it OwnedIter) Current() IoBuf {
	return it.composite.Segment(it.next)
}

// Next advances to the following segment. When no segments remain, it
// returns the iterator unchanged together with ErrExhausted so the caller
// never loses the composite.
func (it OwnedIter) Next() (OwnedIter, error) {
	if it.next+1 >= it.composite.NumSegments() {
		return it, errExhausted
	}
	return OwnedIter{composite: it.composite, next: it.next + 1}, nil
}

// Into recovers the composite buffer, discarding cursor position.
func (it OwnedIter) Into() IoVectoredBuf { return it.composite }

// distributeInit implements the greedy front-to-back SetBufInit
// distribution for vectored mutable buffers: each segment is saturated to
// its own capacity in order until the remainder of n is consumed.
func distributeInit(numSegments int, segmentAt func(int) IoBufMut, n int) {
	remaining := n
	for i := 0; i < numSegments && remaining > 0; i++ {
		seg := segmentAt(i)
		capacity := seg.BufCap()
		if remaining >= capacity {
			seg.SetBufInit(capacity)
			remaining -= capacity
		} else {
			seg.SetBufInit(remaining)
			remaining = 0
		}
	}
}
