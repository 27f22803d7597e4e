package ext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/ip6tables/internal/netfilter"
)

func TestMPLSRequiresNHLFE(t *testing.T) {
	m := NewMPLSTarget()
	m.Init()
	assert.Error(t, m.FinalCheck())
}

func TestMPLSParseHex(t *testing.T) {
	m := NewMPLSTarget()
	m.Init()
	require.NoError(t, m.Parse(optNHLFE, false, "0x2a"))
	require.NoError(t, m.FinalCheck())
	assert.Equal(t, "--nhlfe 0x2a ", m.Save(netfilter.Selector{}))
}

func TestMPLSRejectsDuplicate(t *testing.T) {
	m := NewMPLSTarget()
	m.Init()
	require.NoError(t, m.Parse(optNHLFE, false, "1"))
	assert.Error(t, m.Parse(optNHLFE, false, "2"))
}

func TestMPLSMarshalRoundTrip(t *testing.T) {
	m := NewMPLSTarget()
	m.Init()
	require.NoError(t, m.Parse(optNHLFE, false, "0x2a"))
	payload := m.Marshal()

	m2 := NewMPLSTarget()
	require.NoError(t, m2.Unmarshal(payload))
	assert.Equal(t, m.key, m2.key)
}
