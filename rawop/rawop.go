// Package rawop implements the heap-pinned, type-erased opcode handle that
// the poll driver's registry stores one of per in-flight operation.
//
// Go's garbage collector never relocates heap allocations reachable through
// a pointer (unlike a compacting collector), so address stability across
// moves is already structural in Go. RawOp still exists so a registry slot
// holds one small, non-growing struct (a pointer plus a vtable), never the
// opcode itself, so resizing the registry's backing slice never touches the
// opcode's memory, and the concrete opcode type is erased behind a single
// non-generic type the registry can store homogeneously.
package rawop

import (
	"reflect"
	"unsafe"
)

// opType is the vtable captured once at construction time for a concrete
// opcode type T. It recovers T's identity without requiring RawOp itself to
// be generic.
type opType struct {
	// asAny reconstructs the concrete opcode pointer from its pinned address
	// as an any (*T, or the stored T itself when T is already a pointer
	// type), so a backend can type-assert it to whichever per-backend opcode
	// interface it expects (e.g. iouring.OpCode or pollbackend.OpCode).
	asAny func(ptr unsafe.Pointer) any
}

// RawOp is an owning, type-erased reference to a pinned opcode value.
// Exactly one RawOp exists per opcode; there is no Clone.
type RawOp struct {
	ptr unsafe.Pointer
	typ *opType
}

// New heap-allocates op and returns a RawOp owning it. op's address is
// stable for the RawOp's entire lifetime.
func New[T any](op T) *RawOp {
	boxed := new(T)
	*boxed = op
	asAny := func(ptr unsafe.Pointer) any {
		return (*T)(ptr)
	}
	if reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Pointer {
		asAny = func(ptr unsafe.Pointer) any {
			return *(*T)(ptr)
		}
	}
	return &RawOp{
		ptr: unsafe.Pointer(boxed),
		typ: &opType{asAny: asAny},
	}
}

// Pin is a mutable dispatch handle over a RawOp's pinned opcode. Its target
// address never changes across calls to AsDynMut for the same RawOp.
type Pin struct {
	ptr unsafe.Pointer
	typ *opType
}

// Any reconstructs the concrete opcode pointer as an any. Callers type-assert
// it to the backend-specific opcode interface they need (e.g.
// `p.Any().(iouring.OpCode)`).
func (p *Pin) Any() any {
	return p.typ.asAny(p.ptr)
}

// Addr returns the pinned address, for diagnostics and for tests asserting
// address stability across registry moves.
func (p *Pin) Addr() unsafe.Pointer { return p.ptr }

// AsDynMut returns a Pin over r's opcode. The returned Pin's address is
// invariant across repeated calls.
func (r *RawOp) AsDynMut() *Pin {
	return &Pin{ptr: r.ptr, typ: r.typ}
}

// Into consumes r and recovers the underlying opcode by value. The caller
// asserts, by construction, that r was built from New[T]; calling it with
// the wrong T corrupts memory -- an unchecked downcast.
func Into[T any](r *RawOp) T {
	return *(*T)(r.ptr)
}
