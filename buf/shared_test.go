package buf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSharedCloneSharesStorage(t *testing.T) {
	s := NewShared([]byte("hello"))
	clone := s.Clone()

	require.Equal(t, s.BufPtr(), clone.BufPtr())
	require.Equal(t, int64(2), s.st.refs.Load())

	require.Equal(t, int64(1), clone.Release())
}

func TestSharedMutFreeze(t *testing.T) {
	m := NewSharedMut(0, 8)
	m.SetBufInit(4)
	shared := m.Freeze()

	require.Equal(t, 4, shared.BufLen())
	require.Equal(t, m.BufPtr(), shared.BufPtr())
}

func TestInlinePushAndSetBufInit(t *testing.T) {
	in := NewInline(8)
	in.Push([]byte("ab"))
	require.Equal(t, 2, in.BufLen())
	require.Panics(t, func() { in.SetBufInit(9) })
}
