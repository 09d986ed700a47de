package nibble

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnpack(t *testing.T) {
	var key [32]byte
	key[0] = 0xab
	key[31] = 0xcd

	p := Unpack(key)
	require.Len(t, p, 64)
	require.Equal(t, byte(0xa), p[0])
	require.Equal(t, byte(0xb), p[1])
	require.Equal(t, byte(0xc), p[62])
	require.Equal(t, byte(0xd), p[63])
}

func TestCommonPrefixLen(t *testing.T) {
	a := Path{1, 2, 3, 4}
	b := Path{1, 2, 9, 9}
	require.Equal(t, 2, a.CommonPrefixLen(b))
	require.Equal(t, 4, a.CommonPrefixLen(a))
	require.Equal(t, 0, a.CommonPrefixLen(Path{9}))
}

func TestCompactRoundTrip(t *testing.T) {
	cases := []struct {
		path        Path
		terminator  bool
	}{
		{Path{}, true},
		{Path{1}, false},
		{Path{1, 2}, true},
		{Path{0xa, 0xb, 0xc}, false},
		{Path{0xf, 0x0, 0x0, 0x1}, true},
	}

	for _, c := range cases {
		compact := c.path.Compact(c.terminator)
		got, term, err := FromCompact(compact)
		require.NoError(t, err)
		require.Equal(t, c.terminator, term)
		require.True(t, c.path.Equal(got), "path %v != %v", c.path, got)
	}
}

func TestSplit(t *testing.T) {
	p := Path{1, 2, 3, 4, 5}
	head, tail := p.Split(2)
	require.Equal(t, Path{1, 2}, head)
	require.Equal(t, Path{3, 4, 5}, tail)
}
