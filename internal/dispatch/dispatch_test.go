package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gvisor.dev/ip6tables/internal/compiler"
	"gvisor.dev/ip6tables/internal/ext"
	"gvisor.dev/ip6tables/internal/netfilter"
)

type fakeHandle struct {
	appended    []string
	flushed     []string
	zeroed      []string
	chains      []string
	committed   bool
	policies    map[string]string
	deletedMask [][]byte
}

func newFakeHandle(chains ...string) *fakeHandle {
	return &fakeHandle{chains: chains, policies: map[string]string{}}
}

func (f *fakeHandle) ChainExists(table, chain string) bool {
	for _, c := range f.chains {
		if c == chain {
			return true
		}
	}
	return false
}
func (f *fakeHandle) AppendEntry(table, chain string, entry []byte) error {
	f.appended = append(f.appended, chain)
	return nil
}
func (f *fakeHandle) InsertEntry(table, chain string, ruleNum int, entry []byte) error { return nil }
func (f *fakeHandle) ReplaceEntry(table, chain string, ruleNum int, entry []byte) error {
	return nil
}
func (f *fakeHandle) DeleteEntry(table, chain string, entry, mask []byte) error {
	f.deletedMask = append(f.deletedMask, mask)
	return nil
}
func (f *fakeHandle) DeleteEntryAt(table, chain string, ruleNum int) error { return nil }
func (f *fakeHandle) FlushChain(table, chain string) error {
	f.flushed = append(f.flushed, chain)
	return nil
}
func (f *fakeHandle) ZeroChain(table, chain string) error {
	f.zeroed = append(f.zeroed, chain)
	return nil
}
func (f *fakeHandle) NewChain(table, chain string) error       { f.chains = append(f.chains, chain); return nil }
func (f *fakeHandle) DeleteChain(table, chain string) error    { return nil }
func (f *fakeHandle) RenameChain(table, old, new string) error { return nil }
func (f *fakeHandle) SetPolicy(table, chain, target string) error {
	f.policies[chain] = target
	return nil
}
func (f *fakeHandle) ListEntries(table, chain string) ([]Entry, error) { return nil, nil }
func (f *fakeHandle) Chains(table string) []string                    { return f.chains }
func (f *fakeHandle) GetPolicy(table, chain string) string             { return f.policies[chain] }
func (f *fakeHandle) IsBuiltin(table, chain string) bool               { return f.ChainExists(table, chain) }
func (f *fakeHandle) GetReferences(table, chain string) int           { return 0 }
func (f *fakeHandle) ChainCounters(table, chain string) (uint64, uint64) {
	return 0, 0
}
func (f *fakeHandle) Commit() error { f.committed = true; return nil }

func newTestCompiler() *compiler.Compiler {
	r := netfilter.NewRegistry(nil)
	ext.RegisterBuiltins(r)
	return compiler.New(r)
}

func TestDispatchAppend(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-j", "ACCEPT"})
	require.NoError(t, err)

	h := newFakeHandle("INPUT")
	d := New(h)
	require.NoError(t, d.Run(res))
	assert.Equal(t, []string{"INPUT"}, h.appended)
	assert.True(t, h.committed)
}

func TestDispatchFlushAllChains(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-F"})
	require.NoError(t, err)

	h := newFakeHandle("INPUT", "OUTPUT")
	d := New(h)
	require.NoError(t, d.Run(res))
	assert.ElementsMatch(t, []string{"INPUT", "OUTPUT"}, h.flushed)
}

func TestDispatchListZeroRunsZero(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-L", "-Z", "INPUT"})
	require.NoError(t, err)

	h := newFakeHandle("INPUT")
	d := New(h)
	require.NoError(t, d.Run(res))
	assert.Equal(t, []string{"INPUT"}, h.zeroed)
}

func TestDispatchPolicy(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-P", "INPUT", "DROP"})
	require.NoError(t, err)

	h := newFakeHandle("INPUT")
	d := New(h)
	require.NoError(t, d.Run(res))
	assert.Equal(t, "DROP", h.policies["INPUT"])
}

func TestDeleteMaskAllHeaderBytesSet(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-j", "DROP"})
	require.NoError(t, err)

	mask := DeleteMask(res.Rule, res.Rule.SrcAddrs[0], res.Rule.DstAddrs[0])
	for i := 0; i < netfilter.HeaderSize; i++ {
		assert.Equal(t, byte(0xff), mask[i], "header byte %d", i)
	}
	assert.Equal(t, byte(0xff), mask[netfilter.HeaderSize])
}

func TestDispatchCartesianAppend(t *testing.T) {
	c := newTestCompiler()
	res, err := c.Compile([]string{"-A", "INPUT", "-s", "2001:db8::1", "-j", "ACCEPT"})
	require.NoError(t, err)

	h := newFakeHandle("INPUT")
	d := New(h)
	require.NoError(t, d.Run(res))
	assert.Equal(t, []string{"INPUT"}, h.appended)
}
