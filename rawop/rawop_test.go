package rawop

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testOp struct {
	tag int
}

func TestAsDynMutAddressStable(t *testing.T) {
	r := New(testOp{tag: 7})
	addr1 := r.AsDynMut().Addr()
	addr2 := r.AsDynMut().Addr()
	require.Equal(t, addr1, addr2)
}

func TestIntoRecoversValue(t *testing.T) {
	r := New(testOp{tag: 42})
	got := Into[testOp](r)
	require.Equal(t, 42, got.tag)
}

func TestAnyTypeAssertion(t *testing.T) {
	type dispatcher interface{ Tag() int }
	r := New(taggedOp{tag: 9})
	any := r.AsDynMut().Any()
	d, ok := any.(dispatcher)
	require.True(t, ok)
	require.Equal(t, 9, d.Tag())
}

type taggedOp struct{ tag int }

func (t *taggedOp) Tag() int { return t.tag }
