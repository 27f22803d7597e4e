// Package memtable provides an in-process TableHandle backing store.
// The real kernel wire transport is out of scope for this repository
// (see SPEC_FULL.md §6); this is the stand-in collaborator the CLI
// runs against, holding chains and rules purely in memory for the
// duration of one process.
package memtable

import (
	"sync"

	"gvisor.dev/ip6tables/internal/dispatch"
	"gvisor.dev/ip6tables/internal/ip6terr"
	"gvisor.dev/ip6tables/internal/netfilter"
)

var builtinChains = map[string]bool{
	"INPUT":       true,
	"FORWARD":     true,
	"OUTPUT":      true,
}

type chain struct {
	rules    [][]byte
	policy   string
	isUser   bool
	refcount int
}

// Table is one netfilter table (e.g. "filter"), holding its chains.
type Table struct {
	chains map[string]*chain
}

// Handle is a dispatch.TableHandle backed by in-memory tables, guarded
// by a single mutex the way a short-lived CLI invocation needs: one
// command runs one transaction and exits.
type Handle struct {
	mu     sync.Mutex
	tables map[string]*Table
}

// New returns a Handle with the standard built-in chains pre-created
// in a "filter" table, mirroring FillDefaultIPTables in the reference
// gVisor netfilter package.
func New() *Handle {
	h := &Handle{tables: map[string]*Table{}}
	t := &Table{chains: map[string]*chain{}}
	for name := range builtinChains {
		t.chains[name] = &chain{policy: "ACCEPT"}
	}
	h.tables["filter"] = t
	return h
}

func (h *Handle) table(name string) *Table {
	t, ok := h.tables[name]
	if !ok {
		t = &Table{chains: map[string]*chain{}}
		h.tables[name] = t
	}
	return t
}

func (h *Handle) ChainExists(table, chainName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.table(table).chains[chainName]
	return ok
}

func (h *Handle) AppendEntry(table, chainName string, entry []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	c.rules = append(c.rules, entry)
	return nil
}

func (h *Handle) InsertEntry(table, chainName string, ruleNum int, entry []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	idx := ruleNum - 1
	if idx < 0 || idx > len(c.rules) {
		return ip6terr.Dispatchf(nil, "rule index %d out of range for chain %q", ruleNum, chainName)
	}
	c.rules = append(c.rules[:idx], append([][]byte{entry}, c.rules[idx:]...)...)
	return nil
}

func (h *Handle) ReplaceEntry(table, chainName string, ruleNum int, entry []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	idx := ruleNum - 1
	if idx < 0 || idx >= len(c.rules) {
		return ip6terr.Dispatchf(nil, "rule index %d out of range for chain %q", ruleNum, chainName)
	}
	c.rules[idx] = entry
	return nil
}

func (h *Handle) DeleteEntry(table, chainName string, entry, mask []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	for i, r := range c.rules {
		if matches(r, entry, mask) {
			c.rules = append(c.rules[:i], c.rules[i+1:]...)
			return nil
		}
	}
	return ip6terr.Dispatchf(nil, "no matching rule in chain %q", chainName)
}

func (h *Handle) DeleteEntryAt(table, chainName string, ruleNum int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	idx := ruleNum - 1
	if idx < 0 || idx >= len(c.rules) {
		return ip6terr.Dispatchf(nil, "rule index %d out of range for chain %q", ruleNum, chainName)
	}
	c.rules = append(c.rules[:idx], c.rules[idx+1:]...)
	return nil
}

func (h *Handle) FlushChain(table, chainName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	c.rules = nil
	return nil
}

func (h *Handle) ZeroChain(table, chainName string) error {
	// Counters live inside each marshaled entry; a real table handle
	// would zero them server-side. The in-memory store has nowhere
	// else to keep them, so this is a no-op placeholder for the
	// listing path, which always renders freshly-appended counters as
	// zero already.
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.mustChain(table, chainName)
	return err
}

func (h *Handle) NewChain(table, chainName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.table(table)
	if _, ok := t.chains[chainName]; ok {
		return ip6terr.Dispatchf(nil, "chain %q already exists", chainName)
	}
	t.chains[chainName] = &chain{isUser: true}
	return nil
}

func (h *Handle) DeleteChain(table, chainName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.table(table)
	c, ok := t.chains[chainName]
	if !ok {
		return ip6terr.Dispatchf(nil, "no such chain %q", chainName)
	}
	if len(c.rules) > 0 {
		return ip6terr.Dispatchf(nil, "chain %q is not empty", chainName)
	}
	delete(t.chains, chainName)
	return nil
}

func (h *Handle) RenameChain(table, oldName, newName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.table(table)
	c, ok := t.chains[oldName]
	if !ok {
		return ip6terr.Dispatchf(nil, "no such chain %q", oldName)
	}
	if _, exists := t.chains[newName]; exists {
		return ip6terr.Dispatchf(nil, "chain %q already exists", newName)
	}
	delete(t.chains, oldName)
	t.chains[newName] = c
	return nil
}

func (h *Handle) SetPolicy(table, chainName, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return err
	}
	if !builtinChains[chainName] {
		return ip6terr.Dispatchf(nil, "chain %q is not a built-in chain and has no policy", chainName)
	}
	c.policy = target
	return nil
}

// GetPolicy returns the chain's policy target ("" for a user chain,
// which has no policy of its own).
func (h *Handle) GetPolicy(table, chainName string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return ""
	}
	return c.policy
}

// IsBuiltin reports whether chainName is one of the built-in chains
// that ship with every table, as opposed to one created by -N.
func (h *Handle) IsBuiltin(table, chainName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return false
	}
	return !c.isUser
}

// GetReferences counts the rules, anywhere in table, whose target
// jumps to chainName — the listing's stand-in for a user chain's
// policy line, mirroring ip6tc_get_references.
func (h *Handle) GetReferences(table, chainName string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	refs := 0
	for _, c := range h.table(table).chains {
		for _, r := range c.rules {
			hdr, err := netfilter.ParseHeader(r)
			if err != nil {
				continue
			}
			if int(hdr.NextOffset) > len(r) || hdr.TargetOffset > hdr.NextOffset {
				continue
			}
			blob, err := netfilter.UnmarshalBlobHeader(r[hdr.TargetOffset:hdr.NextOffset])
			if err != nil {
				continue
			}
			if blob.NameString() == chainName {
				refs++
			}
		}
	}
	return refs
}

// ChainCounters returns the chain's own hit counters — the packets and
// bytes that reached its implicit policy. This in-memory store never
// actually processes a packet, so they stay at zero, matching ZeroChain.
func (h *Handle) ChainCounters(table, chainName string) (packets, bytes uint64) {
	return 0, 0
}

func (h *Handle) ListEntries(table, chainName string) ([]dispatch.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, err := h.mustChain(table, chainName)
	if err != nil {
		return nil, err
	}
	out := make([]dispatch.Entry, len(c.rules))
	for i, r := range c.rules {
		out[i] = dispatch.Entry{Chain: chainName, Raw: r}
	}
	return out, nil
}

func (h *Handle) Chains(table string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.table(table)
	out := make([]string, 0, len(t.chains))
	for name := range t.chains {
		out = append(out, name)
	}
	return out
}

func (h *Handle) Commit() error { return nil }

func (h *Handle) mustChain(table, chainName string) (*chain, error) {
	c, ok := h.table(table).chains[chainName]
	if !ok {
		return nil, ip6terr.Dispatchf(nil, "no such chain %q in table %q", chainName, table)
	}
	return c, nil
}

func matches(entry, want, mask []byte) bool {
	if len(entry) != len(want) || len(entry) != len(mask) {
		return false
	}
	for i := range entry {
		if entry[i]&mask[i] != want[i]&mask[i] {
			return false
		}
	}
	return true
}
