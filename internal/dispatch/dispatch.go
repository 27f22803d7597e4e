// Package dispatch implements the Cartesian src/dst expansion and
// transactional commit a rule-referencing command performs against a
// table handle, generalizing append_entry/insert_entry/delete_entry/
// make_delete_mask from original_source/ip6tables.c. There is no
// check (-C) operation.
package dispatch

import (
	"gvisor.dev/ip6tables/internal/compiler"
	"gvisor.dev/ip6tables/internal/ip6terr"
	"gvisor.dev/ip6tables/internal/netfilter"
	"gvisor.dev/ip6tables/internal/validator"
)

// TableHandle is the external, transactional collaborator that holds
// and commits a table's chains. Its wire encoding to the kernel is out
// of scope for this repository; callers inject a concrete
// implementation (or a fake, in tests).
type TableHandle interface {
	ChainExists(table, chain string) bool
	AppendEntry(table, chain string, entry []byte) error
	InsertEntry(table, chain string, ruleNum int, entry []byte) error
	ReplaceEntry(table, chain string, ruleNum int, entry []byte) error
	// DeleteEntry removes the first entry in chain whose bytes match
	// entry after applying mask (mask bytes of 0 are "don't care").
	DeleteEntry(table, chain string, entry, mask []byte) error
	DeleteEntryAt(table, chain string, ruleNum int) error
	FlushChain(table, chain string) error
	ZeroChain(table, chain string) error
	NewChain(table, chain string) error
	DeleteChain(table, chain string) error
	RenameChain(table, oldName, newName string) error
	SetPolicy(table, chain, target string) error
	ListEntries(table, chain string) ([]Entry, error)
	Chains(table string) []string
	// GetPolicy, IsBuiltin, GetReferences, and ChainCounters back the
	// listing header's "policy and counters (or reference count for
	// user chains)" line: a plain -L never learns anything about the
	// chain it didn't already have in the Result, so these read
	// straight from the table handle.
	GetPolicy(table, chain string) string
	IsBuiltin(table, chain string) bool
	GetReferences(table, chain string) int
	ChainCounters(table, chain string) (packets, bytes uint64)
	Commit() error
}

// Entry is one row of a listing: the raw bytes plus the chain it came
// from, used by internal/listing to format output.
type Entry struct {
	Chain string
	Raw   []byte
}

// Dispatcher drives a TableHandle from a compiler.Result.
type Dispatcher struct {
	handle TableHandle
}

func New(handle TableHandle) *Dispatcher {
	return &Dispatcher{handle: handle}
}

// Run executes res against the table handle and commits the
// transaction on success.
func (d *Dispatcher) Run(res *compiler.Result) error {
	if err := d.dispatch(res); err != nil {
		return err
	}
	if err := d.handle.Commit(); err != nil {
		return ip6terr.Dispatchf(err, "commit failed")
	}
	return nil
}

func (d *Dispatcher) dispatch(res *compiler.Result) error {
	switch {
	case res.Command == validator.CmdAppend:
		return d.append(res)
	case res.Command == validator.CmdInsert:
		return d.insert(res)
	case res.Command == validator.CmdReplace:
		return d.replace(res)
	case res.Command == validator.CmdDelete:
		return d.delete(res)
	case res.Command == validator.CmdFlush:
		return d.forEachChain(res.Table, res.Chain, d.handle.FlushChain)
	case res.Command == validator.CmdNewChain:
		return d.handle.NewChain(res.Table, res.Chain)
	case res.Command == validator.CmdDeleteChain:
		return d.forEachChain(res.Table, res.Chain, d.handle.DeleteChain)
	case res.Command == validator.CmdRenameChain:
		return d.handle.RenameChain(res.Table, res.Chain, res.NewChain)
	case res.Command == validator.CmdPolicy:
		return d.handle.SetPolicy(res.Table, res.Chain, res.PolicyName)
	case res.Command&validator.CmdZero != 0:
		// -Z alone, or the -L|-Z composite: either way the zero side
		// effect runs; a plain -L falls through to the default case.
		return d.forEachChain(res.Table, res.Chain, d.handle.ZeroChain)
	default:
		// List-only (and -V/-h) commands carry nothing for the
		// dispatcher to do; the command layer reads listing data
		// straight from the table handle.
		return nil
	}
}

func (d *Dispatcher) append(res *compiler.Result) error {
	if res.Rule == nil {
		return ip6terr.Paramf("append requires a compiled rule")
	}
	return forEachPair(res.Rule, func(src, dst [16]byte) error {
		return d.handle.AppendEntry(res.Table, res.Chain, assemble(res.Rule, src, dst))
	})
}

func (d *Dispatcher) insert(res *compiler.Result) error {
	if res.Rule == nil {
		return ip6terr.Paramf("insert requires a compiled rule")
	}
	ruleNum := 1
	if res.HasRuleNum {
		ruleNum = res.RuleNum
	}
	return forEachPair(res.Rule, func(src, dst [16]byte) error {
		return d.handle.InsertEntry(res.Table, res.Chain, ruleNum, assemble(res.Rule, src, dst))
	})
}

func (d *Dispatcher) replace(res *compiler.Result) error {
	if res.Rule == nil {
		return ip6terr.Paramf("replace requires a compiled rule")
	}
	if len(res.Rule.SrcAddrs) != 1 || len(res.Rule.DstAddrs) != 1 {
		return ip6terr.Paramf("replacement rule does not specify a unique address")
	}
	return d.handle.ReplaceEntry(res.Table, res.Chain, res.RuleNum, assemble(res.Rule, res.Rule.SrcAddrs[0], res.Rule.DstAddrs[0]))
}

func (d *Dispatcher) delete(res *compiler.Result) error {
	if res.HasRuleNum {
		return d.handle.DeleteEntryAt(res.Table, res.Chain, res.RuleNum)
	}
	if res.Rule == nil {
		return ip6terr.Paramf("delete requires either a rule number or a full rule specification")
	}
	mask := DeleteMask(res.Rule, res.Rule.SrcAddrs[0], res.Rule.DstAddrs[0])
	return forEachPair(res.Rule, func(src, dst [16]byte) error {
		entry := assemble(res.Rule, src, dst)
		return d.handle.DeleteEntry(res.Table, res.Chain, entry, mask)
	})
}

// forEachPair walks the Cartesian product of rule's source and
// destination addresses, generalizing append_entry/insert_entry/
// delete_entry's nested nsaddrs/ndaddrs loops: every pair is tried,
// and a failure on one pair doesn't stop the rest from being
// attempted, mirroring "ret &= ...Tc_entry(...)" never breaking out of
// the loop on a zero return.
func forEachPair(rule *compiler.CompiledRule, fn func(src, dst [16]byte) error) error {
	var firstErr error
	for _, src := range rule.SrcAddrs {
		for _, dst := range rule.DstAddrs {
			if err := fn(src, dst); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// forEachChain applies fn to every chain in table when chain == "",
// mirroring for_each_chain, or to the single named chain otherwise.
func (d *Dispatcher) forEachChain(table, chain string, fn func(table, chain string) error) error {
	if chain != "" {
		return fn(table, chain)
	}
	for _, c := range d.handle.Chains(table) {
		if err := fn(table, c); err != nil {
			return err
		}
	}
	return nil
}

// assemble lays out one Cartesian-expanded entry: rule's template
// header with src/dst substituted for this particular address pair.
func assemble(rule *compiler.CompiledRule, src, dst [16]byte) []byte {
	header := rule.Header
	header.Selector.Src = src
	header.Selector.Dst = dst

	matchBlobs := make([][]byte, len(rule.Matches))
	for i, m := range rule.Matches {
		matchBlobs[i] = netfilter.MarshalBlob(netfilter.Blob{
			Name:     m.Name(),
			Revision: m.Revision(),
			Payload:  m.Marshal(),
		})
	}
	targetBlob := netfilter.MarshalBlob(netfilter.Blob{
		Name:     rule.Target.Name(),
		Revision: rule.Target.Revision(),
		Payload:  rule.Target.Marshal(),
	})
	return netfilter.Assemble(header, matchBlobs, targetBlob)
}

// DeleteMask builds the byte mask make_delete_mask produces: every
// header byte 0xFF (packet/byte counters included — a delete compares
// the whole struct ip6t_entry, counters and all), each match's
// userspace-size bytes 0xFF, and the target's header+userspace-size
// bytes 0xFF.
func DeleteMask(rule *compiler.CompiledRule, src, dst [16]byte) []byte {
	entry := assemble(rule, src, dst)
	mask := make([]byte, len(entry))
	for i := range mask {
		mask[i] = 0xff
	}
	return mask
}
