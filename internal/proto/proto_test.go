package proto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNumeric(t *testing.T) {
	s, err := Parse("58", false)
	require.NoError(t, err)
	assert.Equal(t, uint16(58), s.Number)
}

func TestParseName(t *testing.T) {
	s, err := Parse("TCP", true)
	require.NoError(t, err)
	assert.Equal(t, uint16(6), s.Number)
	assert.True(t, s.Invert)
}

func TestParseUnknown(t *testing.T) {
	_, err := Parse("bogus", false)
	assert.Error(t, err)
}

func TestNameRoundTrip(t *testing.T) {
	assert.Equal(t, "udp", Name(17))
	assert.Equal(t, "255", Name(255))
}
