// Package ext provides the built-in match and target extensions
// shipped with this tool: the standard verdict targets, jump-to-chain,
// and the tcp/udp/MPLS extensions supplementing the distilled spec
// from original_source/.
package ext

import (
	"encoding/binary"
	"fmt"

	"gvisor.dev/ip6tables/internal/netfilter"
)

// Verdict is the numeric encoding a standard target carries, mirroring
// the original's -NF_ACCEPT-1 style encoding for built-in verdicts and
// a non-negative chain index for a jump.
type Verdict int32

const (
	VerdictDrop   Verdict = -1
	VerdictAccept Verdict = -2
	VerdictQueue  Verdict = -4
	VerdictReturn Verdict = -5
)

// standardNames lists every bare verdict name find_target resolves
// without an extension lookup.
var standardNames = map[string]Verdict{
	"ACCEPT": VerdictAccept,
	"DROP":   VerdictDrop,
	"QUEUE":  VerdictQueue,
	"RETURN": VerdictReturn,
}

// IsStandardName reports whether name is one of the bare verdicts.
func IsStandardName(name string) bool {
	_, ok := standardNames[name]
	return ok
}

// StandardTarget implements the four built-in verdicts as a single
// extension type parameterized by name, exactly as find_target treats
// them as one family distinct from a loadable .so target.
type StandardTarget struct {
	netfilter.TargetMarker
	name    string
	verdict Verdict
}

// NewStandardTarget builds the StandardTarget for one of the four
// built-in verdict names. It panics if name isn't one of them; callers
// should check IsStandardName first.
func NewStandardTarget(name string) *StandardTarget {
	v, ok := standardNames[name]
	if !ok {
		panic(fmt.Sprintf("ext: %q is not a standard target name", name))
	}
	return &StandardTarget{name: name, verdict: v}
}

func (t *StandardTarget) Name() string                { return t.name }
func (t *StandardTarget) Revision() uint8              { return 0 }
func (t *StandardTarget) Size() int                    { return 4 }
func (t *StandardTarget) Help() string                 { return fmt.Sprintf("%s target takes no options", t.name) }
func (t *StandardTarget) Options() []netfilter.Option  { return nil }
func (t *StandardTarget) Init()                        {}
func (t *StandardTarget) Parse(int, bool, string) error { return fmt.Errorf("ext: %s target takes no options", t.name) }
func (t *StandardTarget) FinalCheck() error            { return nil }
func (t *StandardTarget) Print(netfilter.Selector) string { return "" }
func (t *StandardTarget) Save(netfilter.Selector) string  { return "" }

func (t *StandardTarget) Marshal() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(int32(t.verdict)))
	return out
}

func (t *StandardTarget) Unmarshal(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("ext: standard target payload truncated")
	}
	t.verdict = Verdict(int32(binary.LittleEndian.Uint32(payload)))
	return nil
}

// ChainJumpTarget is the "jump to a user-defined chain" pseudo-target:
// the chain is identified by the blob's name, standing in for the
// original's bare chain-name target. Its marshaled payload is the index
// set by SetChainIndex, 0 when that was never called.
type ChainJumpTarget struct {
	netfilter.TargetMarker
	ChainName string
	index     int32
}

func NewChainJumpTarget(chainName string) *ChainJumpTarget {
	return &ChainJumpTarget{ChainName: chainName}
}

func (t *ChainJumpTarget) Name() string               { return t.ChainName }
func (t *ChainJumpTarget) Revision() uint8             { return 0 }
func (t *ChainJumpTarget) Size() int                   { return 4 }
func (t *ChainJumpTarget) Help() string                { return "jump to a user-defined chain" }
func (t *ChainJumpTarget) Options() []netfilter.Option { return nil }
func (t *ChainJumpTarget) Init()                       {}
func (t *ChainJumpTarget) Parse(int, bool, string) error {
	return fmt.Errorf("ext: chain jump takes no options")
}
func (t *ChainJumpTarget) FinalCheck() error               { return nil }
func (t *ChainJumpTarget) Print(netfilter.Selector) string { return t.ChainName }
func (t *ChainJumpTarget) Save(netfilter.Selector) string  { return t.ChainName }

// SetChainIndex records the chain's resolved position. Nothing in this
// module calls it.
func (t *ChainJumpTarget) SetChainIndex(i int32) { t.index = i }

func (t *ChainJumpTarget) Marshal() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(t.index))
	return out
}

func (t *ChainJumpTarget) Unmarshal(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("ext: chain jump payload truncated")
	}
	t.index = int32(binary.LittleEndian.Uint32(payload))
	return nil
}
