package buf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVectoredSetBufInitDistribution(t *testing.T) {
	segs := VectorListMut[*Inline]{NewInline(4), NewInline(4), NewInline(4)}
	segs.SetBufInit(6)

	require.Equal(t, 4, segs[0].BufLen())
	require.Equal(t, 2, segs[1].BufLen())
	require.Equal(t, 0, segs[2].BufLen())
}

func TestOwnedIterPreservesOwnershipOnEmpty(t *testing.T) {
	empty := VectorList[Bytes]{}
	_, err := NewOwnedIter(empty)
	require.Error(t, err)
	var emptyErr *ErrEmptyVectored
	require.ErrorAs(t, err, &emptyErr)
	require.Equal(t, empty, emptyErr.Buf)
}

func TestOwnedIterWalksSegments(t *testing.T) {
	bufs := VectorList[Bytes]{Bytes("ab"), Bytes("cd")}
	it, err := NewOwnedIter(bufs)
	require.NoError(t, err)
	require.Equal(t, []byte("ab"), it.AsSlice())

	it, err = it.Next()
	require.NoError(t, err)
	require.Equal(t, []byte("cd"), it.AsSlice())

	same, err := it.Next()
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, it, same)
}

func TestIndexedBufRandomAccess(t *testing.T) {
	v := VectorFixed[Bytes]{Bytes("a"), Bytes("b")}
	seg, ok := v.BufNth(1)
	require.True(t, ok)
	require.Equal(t, []byte("b"), AsSlice(seg))

	_, ok = v.BufNth(5)
	require.False(t, ok)
}

func TestVectorInlinePanicsPastCapacity(t *testing.T) {
	vi := NewVectorInline[Bytes](1)
	vi.Push(Bytes("a"))
	require.Panics(t, func() { vi.Push(Bytes("b")) })
}
