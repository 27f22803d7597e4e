package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/ip6tables/internal/addrmask"
	"gvisor.dev/ip6tables/internal/ext"
	"gvisor.dev/ip6tables/internal/netfilter"
	"gvisor.dev/ip6tables/internal/validator"
)

func newTestCompiler() *Compiler {
	r := netfilter.NewRegistry(nil)
	ext.RegisterBuiltins(r)
	return New(r)
}

func TestCompileAppendAcceptAll(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-j", "ACCEPT"})
	require.NoError(t, err)
	assert.Equal(t, validator.CmdAppend, res.Command)
	assert.Equal(t, "INPUT", res.Chain)
	require.NotNil(t, res.Rule)
	assert.Equal(t, addrmask.Mask{}, addrmask.Mask(res.Rule.Header.Selector.SrcMask))
}

func TestCompileReachesFinalizedState(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-j", "ACCEPT"})
	require.NoError(t, err)
	assert.Equal(t, Finalized, res.State)
}

func TestCompileMissingJumpFails(t *testing.T) {
	c := newTestCompiler()
	_, err := c.Compile([]string{"-A", "INPUT"})
	assert.Error(t, err)
}

func TestCompileMPLSRequiresNHLFE(t *testing.T) {
	c := newTestCompiler()
	_, err := c.Compile([]string{"-A", "INPUT", "-j", "MPLS"})
	assert.Error(t, err)
}

func TestCompileMPLSWithNHLFE(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-j", "MPLS", "--nhlfe", "0x2a"})
	require.NoError(t, err)
	require.NotNil(t, res.Rule.Target)
	assert.Equal(t, "MPLS", res.Rule.Target.Name())
}

func TestCompileProtoImpliesMatchPort(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-p", "tcp", "--dport", "80", "-j", "ACCEPT"})
	require.NoError(t, err)
	require.Len(t, res.Rule.Matches, 1)
	assert.Equal(t, "tcp", res.Rule.Matches[0].Name())
}

func TestCompileSourceDestination(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-s", "2001:db8::1/64", "-d", "2001:db8::2", "-j", "DROP"})
	require.NoError(t, err)
	n, ok := addrmask.Mask(res.Rule.Header.Selector.SrcMask).PrefixLen()
	require.True(t, ok)
	assert.Equal(t, 64, n)
}

func TestCompileInvertedProtocol(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "!", "-p", "tcp", "-j", "DROP"})
	require.NoError(t, err)
	assert.NotZero(t, res.Rule.Header.Selector.InvFlags&netfilter.InvProto)
}

func TestCompileListCommand(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-L", "INPUT", "-n", "-v"})
	require.NoError(t, err)
	assert.Equal(t, validator.CmdList, res.Command)
	assert.True(t, res.Numeric)
	assert.True(t, res.Verbose)
	assert.Nil(t, res.Rule)
}

func TestCompileListZeroCombined(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-L", "-Z"})
	require.NoError(t, err)
	assert.Equal(t, validator.CmdList|validator.CmdZero, res.Command)
}

func TestCompileIncompatibleCommandsRejected(t *testing.T) {
	c := newTestCompiler()
	_, err := c.Compile([]string{"-A", "INPUT", "-j", "ACCEPT", "-F", "INPUT"})
	assert.Error(t, err)
}

func TestCompileUnknownOption(t *testing.T) {
	c := newTestCompiler()
	_, err := c.Compile([]string{"-A", "INPUT", "--bogus"})
	assert.Error(t, err)
}

func TestCompileListRejectsSourceOption(t *testing.T) {
	c := newTestCompiler()
	_, err := c.Compile([]string{"-L", "INPUT", "-s", "::1"})
	assert.Error(t, err)
}

func TestCompileProtoWithoutPortOptionOmitsMatch(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "FORWARD", "-p", "tcp", "!", "-s", "2001:db8::1", "-j", "DROP"})
	require.NoError(t, err)
	assert.Empty(t, res.Rule.Matches)
}

func TestCompileJumpUserChain(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-j", "LOGGING"})
	require.NoError(t, err)
	assert.Equal(t, "LOGGING", res.Rule.Target.Name())
}
