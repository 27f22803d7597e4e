package iface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExactName(t *testing.T) {
	p, warnings, err := Parse("eth0")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, "eth0", p.String())
	assert.Equal(t, byte(0xff), p.Mask[4]) // covers the NUL terminator
}

func TestParseWildcard(t *testing.T) {
	p, _, err := Parse("eth+")
	require.NoError(t, err)
	assert.Equal(t, "eth+", p.String())
	assert.Equal(t, byte(0), p.Mask[3])
}

func TestParseTooLong(t *testing.T) {
	_, _, err := Parse("areallylongifacename")
	assert.Error(t, err)
}

func TestParseEmpty(t *testing.T) {
	p, warnings, err := Parse("")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Pattern{}, p)
}

func TestParseUnusualByteWarns(t *testing.T) {
	_, warnings, err := Parse("e\tth0")
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)
}
