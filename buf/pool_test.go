package buf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPooledBytesReturnsExactLength(t *testing.T) {
	b := NewPooledBytes(200 * 1024)
	require.Equal(t, 200*1024, len(b))
	ReleasePooledBytes(b)
}

func TestNewPooledBytesSmallSizeBypassesPool(t *testing.T) {
	b := NewPooledBytes(32)
	require.Equal(t, 32, len(b))
	require.Equal(t, 32, cap(b))
}

func TestReleaseAndReacquirePooledBytesReturnsExactLength(t *testing.T) {
	b := NewPooledBytes(128 * 1024)
	ReleasePooledBytes(b)

	again := NewPooledBytes(128 * 1024)
	require.Equal(t, 128*1024, len(again))
}
