package device

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClintMtimeRoundTrip(t *testing.T) {
	c := NewClint()

	err := c.Store(clintMtimeOff, 8, 0x1234)
	require.NoError(t, err)
	v, err := c.Load(clintMtimeOff, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1234), v)
}

func TestClintMtimecmpRoundTrip(t *testing.T) {
	c := NewClint()

	err := c.Store(clintMtimecmpOff, 8, 0xCAFE)
	require.NoError(t, err)
	v, err := c.Load(clintMtimecmpOff, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0xCAFE), v)
}

func TestClintNonEightByteFaults(t *testing.T) {
	c := NewClint()

	for _, w := range []uint{1, 2, 4} {
		_, err := c.Load(clintMtimeOff, w)
		require.Error(t, err)
		err = c.Store(clintMtimeOff, w, 1)
		require.Error(t, err)
	}
}

func TestClintOtherOffsetsReadZeroAndSwallowWrites(t *testing.T) {
	c := NewClint()

	err := c.Store(0x8, 8, 0xFFFF)
	require.NoError(t, err)
	v, err := c.Load(0x8, 8)
	require.NoError(t, err)
	require.Equal(t, uint64(0), v)
}
