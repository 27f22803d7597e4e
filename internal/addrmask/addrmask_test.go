package addrmask

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHostNetworkMaskDefault(t *testing.T) {
	hs, err := ParseHostNetworkMask(Any)
	require.NoError(t, err)
	require.Len(t, hs, 1)
	assert.Equal(t, [16]byte{}, hs[0].Addr)
	assert.Equal(t, Mask{}, hs[0].Mask)
}

func TestParseHostNetworkMaskPrefixLen(t *testing.T) {
	hs, err := ParseHostNetworkMask("2001:db8::1/64")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	n, ok := hs[0].Mask.PrefixLen()
	require.True(t, ok)
	assert.Equal(t, 64, n)
	// Host bits beyond the prefix are masked out of the stored address.
	assert.Equal(t, byte(0x20), hs[0].Addr[0])
	assert.Equal(t, byte(0), hs[0].Addr[8])
}

func TestParseHostNetworkMaskNoSlash(t *testing.T) {
	hs, err := ParseHostNetworkMask("2001:db8::1")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	n, ok := hs[0].Mask.PrefixLen()
	require.True(t, ok)
	assert.Equal(t, 128, n)
}

func TestParseHostNetworkMaskAddressShapedMask(t *testing.T) {
	hs, err := ParseHostNetworkMask("::/ff00::")
	require.NoError(t, err)
	require.Len(t, hs, 1)
	_, ok := hs[0].Mask.PrefixLen()
	assert.True(t, ok) // ff00:: happens to be contiguous (prefix 8)
	assert.Equal(t, 8, mustPrefixLen(t, hs[0].Mask))
}

func TestParseHostNetworkMaskBadPrefix(t *testing.T) {
	_, err := ParseHostNetworkMask("2001:db8::1/129")
	assert.Error(t, err)
}

func TestParseHostNetworkMaskBadAddress(t *testing.T) {
	_, err := ParseHostNetworkMask("not-an-address/64")
	assert.Error(t, err)
}

func TestParseHostNetworkMaskRejectsIPv4(t *testing.T) {
	_, err := ParseHostNetworkMask("10.0.0.1/24")
	assert.Error(t, err)
}

func TestDedupIgnoresMaskedBits(t *testing.T) {
	a, err := ParseHostNetworkMask("2001:db8::1/64")
	require.NoError(t, err)
	b, err := ParseHostNetworkMask("2001:db8::ffff/64")
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, Dedup(a[0]), Dedup(b[0]))
}

func mustPrefixLen(t *testing.T, m Mask) int {
	t.Helper()
	n, ok := m.PrefixLen()
	require.True(t, ok)
	return n
}
