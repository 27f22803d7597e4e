// Package compiler implements the rule-specification compiler: it
// walks a tokenized argv, accumulates a Selector and the extensions
// that compose it, and produces a CompiledRule ready for assembly or
// dispatch. It generalizes do_command6 from
// original_source/ip6tables.c.
package compiler

import (
	"strconv"
	"strings"

	"gvisor.dev/ip6tables/internal/addrmask"
	"gvisor.dev/ip6tables/internal/ext"
	"gvisor.dev/ip6tables/internal/iface"
	"gvisor.dev/ip6tables/internal/ip6terr"
	"gvisor.dev/ip6tables/internal/netfilter"
	"gvisor.dev/ip6tables/internal/proto"
	"gvisor.dev/ip6tables/internal/validator"
)

// DefaultTable is used when -t/--table is never given.
const DefaultTable = "filter"

// commandTokens names every command-letter token, the set State uses to
// tell a command transition from an option/filter transition.
var commandTokens = map[string]bool{
	"-A": true, "--append": true,
	"-D": true, "--delete": true,
	"-R": true, "--replace": true,
	"-I": true, "--insert": true,
	"-L": true, "--list": true,
	"-F": true, "--flush": true,
	"-Z": true, "--zero": true,
	"-N": true, "--new-chain": true,
	"-X": true, "--delete-chain": true,
	"-E": true, "--rename-chain": true,
	"-P": true, "--policy": true,
	"-V": true, "--version": true,
	"-h": true, "--help": true,
}

// CompiledRule is the fully parsed, fully validated result of one
// compiler run targeting a rule-referencing command (-A/-I/-R/-D).
// Header carries the mask and every non-address selector field;
// SrcAddrs/DstAddrs name the Cartesian product of source and
// destination addresses the dispatcher must expand into per-pair
// rules, generalizing append_entry/insert_entry/delete_entry's
// nsaddrs/ndaddrs loops.
type CompiledRule struct {
	Header   netfilter.EntryHeader
	SrcAddrs [][16]byte
	DstAddrs [][16]byte
	Matches  []netfilter.MatchExtension
	Target   netfilter.TargetExtension
}

// Result is everything a compiler run produces: the selected command,
// the table/chain it applies to, an optional compiled rule (only for
// rule-referencing commands), and listing/bookkeeping flags.
type Result struct {
	Command     validator.Command
	Table       string
	Chain       string
	NewChain    string // -E's destination name
	RuleNum     int
	HasRuleNum  bool
	PolicyName  string // -P's target name
	Rule        *CompiledRule
	Numeric     bool
	Verbose     bool
	Exact       bool
	LineNumbers bool
	SetCounters bool
	Warnings    []string

	// State is the terminal parser state this run reached: Finalized on
	// a successful parse (Compile never returns a *Result otherwise).
	// Errored has no corresponding Result — a parse error is reported
	// through the returned error instead, the same way the recovered
	// panic in Compile never gets a chance to populate one.
	State State
}

// Compiler holds the registry extensions are resolved against across
// one run. A Compiler is not reused between rule-spec compilations in
// this tool, mirroring the original's per-invocation globals.
type Compiler struct {
	registry *netfilter.Registry
}

// New builds a Compiler backed by registry.
func New(registry *netfilter.Registry) *Compiler {
	return &Compiler{registry: registry}
}

type tokenStream struct {
	args []string
	pos  int
}

func (t *tokenStream) next() (string, bool) {
	if t.pos >= len(t.args) {
		return "", false
	}
	s := t.args[t.pos]
	t.pos++
	return s, true
}

func (t *tokenStream) peek() (string, bool) {
	if t.pos >= len(t.args) {
		return "", false
	}
	return t.args[t.pos], true
}

// Compile walks args and returns the parsed Result. It never mutates
// argv and never touches a TableHandle: dispatch is the caller's
// responsibility once a Result is in hand.
func (c *Compiler) Compile(args []string) (result *Result, err error) {
	// mustArg/mustRuleNum panic with a classified *ip6terr.Error when a
	// required positional argument is missing; recovered here the same
	// way encoding/json's decoder recovers its own internal panics, so
	// every other call site in the switch below can stay a plain value
	// return instead of threading an error through tokenStream helpers.
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*ip6terr.Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	res := &Result{Table: DefaultTable}
	var sel validator.Selector
	seen := map[validator.Option]bool{}

	var srcSpecs, dstSpecs []addrmask.HostNetworkMask
	srcSet, dstSet := false, false
	invSrc, invDst := false, false
	var inIface, outIface iface.Pattern
	inSet, outSet := false, false
	invIn, invOut := false, false
	var protoSel proto.Selector
	protoSet := false

	var matches []netfilter.MatchExtension
	var target netfilter.TargetExtension
	var positional []string

	state := Start
	advance := func(to State) {
		if to > state {
			state = to
		}
	}

	ts := &tokenStream{args: args}

	for {
		tok, ok := ts.next()
		if !ok {
			break
		}

		invert := false
		if tok == "!" {
			invert = true
			tok, ok = ts.next()
			if !ok {
				return nil, ip6terr.Paramf("'!' requires a following option")
			}
		}

		if !strings.HasPrefix(tok, "-") {
			positional = append(positional, tok)
			continue
		}

		name, arg, hasInlineArg := splitLongOption(tok)

		if invert {
			switch name {
			case "-j", "--jump", "-m", "--match", "-t", "--table", "-n", "--numeric",
				"-v", "--verbose", "-x", "--exact", "--line-numbers", "-c", "--set-counters":
				return nil, ip6terr.Paramf("cannot have ! before %s", name)
			}
		}

		switch name {
		case "-A", "--append":
			if err := sel.Add(validator.CmdAppend, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "chain name")
		case "-D", "--delete":
			if err := sel.Add(validator.CmdDelete, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "chain name")
			if v, ok := peekRuleNum(ts); ok {
				res.RuleNum = v
				res.HasRuleNum = true
			}
		case "-R", "--replace":
			if err := sel.Add(validator.CmdReplace, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "chain name")
			res.RuleNum, res.HasRuleNum = mustRuleNum(ts)
		case "-I", "--insert":
			if err := sel.Add(validator.CmdInsert, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "chain name")
			if v, ok := peekRuleNum(ts); ok {
				res.RuleNum = v
				res.HasRuleNum = true
			}
		case "-L", "--list":
			if err := sel.Add(validator.CmdList, invert); err != nil {
				return nil, err
			}
			if v, ok := ts.peek(); ok && !strings.HasPrefix(v, "-") {
				res.Chain, _ = ts.next()
			}
		case "-F", "--flush":
			if err := sel.Add(validator.CmdFlush, invert); err != nil {
				return nil, err
			}
			if v, ok := ts.peek(); ok && !strings.HasPrefix(v, "-") {
				res.Chain, _ = ts.next()
			}
		case "-Z", "--zero":
			if err := sel.Add(validator.CmdZero, invert); err != nil {
				return nil, err
			}
			if v, ok := ts.peek(); ok && !strings.HasPrefix(v, "-") {
				res.Chain, _ = ts.next()
			}
		case "-N", "--new-chain":
			if err := sel.Add(validator.CmdNewChain, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "chain name")
		case "-X", "--delete-chain":
			if err := sel.Add(validator.CmdDeleteChain, invert); err != nil {
				return nil, err
			}
			if v, ok := ts.peek(); ok && !strings.HasPrefix(v, "-") {
				res.Chain, _ = ts.next()
			}
		case "-E", "--rename-chain":
			if err := sel.Add(validator.CmdRenameChain, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "old chain name")
			res.NewChain = mustArg(ts, "new chain name")
		case "-P", "--policy":
			if err := sel.Add(validator.CmdPolicy, invert); err != nil {
				return nil, err
			}
			res.Chain = mustArg(ts, "chain name")
			res.PolicyName = mustArg(ts, "policy target")
		case "-V", "--version":
			if err := sel.Add(validator.CmdVersion, invert); err != nil {
				return nil, err
			}
		case "-h", "--help":
			if err := sel.Add(validator.CmdHelp, invert); err != nil {
				return nil, err
			}

		case "-p", "--protocol":
			seen[validator.OptProtocol] = true
			v := argOrInline(ts, arg, hasInlineArg, "protocol")
			p, err := proto.Parse(v, invert)
			if err != nil {
				return nil, err
			}
			// Proto-implies-match is lazy: recording protoSel here is
			// all "-p tcp" does by itself. The tcp/udp match is only
			// loaded later, from the default case, the moment some
			// option goes unclaimed by every already-active match and
			// target — mirroring find_proto's DONT_LOAD probe followed
			// by a TRY_LOAD retry with optind-- in do_command6.
			protoSel, protoSet = p, true
		case "-s", "--source":
			seen[validator.OptSource] = true
			v := argOrInline(ts, arg, hasInlineArg, "source address")
			h, err := addrmask.ParseHostNetworkMask(v)
			if err != nil {
				return nil, err
			}
			srcSpecs, srcSet, invSrc = h, true, invert
		case "-d", "--destination":
			seen[validator.OptDestination] = true
			v := argOrInline(ts, arg, hasInlineArg, "destination address")
			h, err := addrmask.ParseHostNetworkMask(v)
			if err != nil {
				return nil, err
			}
			dstSpecs, dstSet, invDst = h, true, invert
		case "-i", "--in-interface":
			seen[validator.OptInIface] = true
			v := argOrInline(ts, arg, hasInlineArg, "input interface")
			p, warnings, err := iface.Parse(v)
			if err != nil {
				return nil, err
			}
			inIface, inSet, invIn = p, true, invert
			res.Warnings = append(res.Warnings, warnings...)
		case "-o", "--out-interface":
			seen[validator.OptOutIface] = true
			v := argOrInline(ts, arg, hasInlineArg, "output interface")
			p, warnings, err := iface.Parse(v)
			if err != nil {
				return nil, err
			}
			outIface, outSet, invOut = p, true, invert
			res.Warnings = append(res.Warnings, warnings...)
		case "-j", "--jump":
			seen[validator.OptJump] = true
			v := argOrInline(ts, arg, hasInlineArg, "target")
			t, err := c.resolveTarget(v)
			if err != nil {
				return nil, err
			}
			target = t
		case "-m", "--match":
			seen[validator.OptMatch] = true
			v := argOrInline(ts, arg, hasInlineArg, "match")
			m, err := c.registry.FindMatch(v, netfilter.MustLoad)
			if err != nil {
				return nil, err
			}
			m.Init()
			matches = append(matches, m)
		case "-t", "--table":
			seen[validator.OptTable] = true
			res.Table = argOrInline(ts, arg, hasInlineArg, "table")
		case "-n", "--numeric":
			seen[validator.OptNumeric] = true
			res.Numeric = true
		case "-v", "--verbose":
			seen[validator.OptVerbose] = true
			res.Verbose = true
		case "-x", "--exact":
			seen[validator.OptExact] = true
			res.Exact = true
		case "--line-numbers":
			seen[validator.OptLineNumbers] = true
			res.LineNumbers = true
		case "-c", "--set-counters":
			seen[validator.OptSetCounters] = true
			res.SetCounters = true
			argOrInline(ts, arg, hasInlineArg, "packets")
			mustArg(ts, "bytes")

		default:
			// Not a base option: try the target, then every
			// currently-active match's own option table, mirroring the
			// original's default-case routing through the merged
			// match/target option ranges.
			handled, err := c.tryExtensionOption(name, arg, hasInlineArg, invert, ts, matches, target)
			if err != nil {
				return nil, err
			}
			if !handled && protoSet {
				// Nothing claimed it. If "-p tcp"/"-p udp" was given and
				// its match isn't active yet for this rule, load it now
				// and retry this same option once against it alone —
				// find_proto(protocol, DONT_LOAD) failing, then
				// find_proto(protocol, TRY_LOAD) succeeding, then
				// optind--; continue in do_command6.
				protoName := proto.Name(protoSel.Number)
				if !hasMatchNamed(matches, protoName) {
					if pm, lerr := c.registry.FindMatch(protoName, netfilter.TryLoad); lerr == nil && pm != nil {
						pm.Init()
						matches = append(matches, pm)
						handled, err = c.tryExtensionOption(name, arg, hasInlineArg, invert, ts, matches, target)
						if err != nil {
							return nil, err
						}
					}
				}
			}
			if !handled {
				return nil, ip6terr.Paramf("unknown option %q", tok)
			}
		}

		if commandTokens[name] {
			advance(CmdSet)
		} else {
			advance(OptAccumulate)
		}
	}

	res.Command = sel.Command()

	if err := validator.ValidateRequired(res.Command, seen); err != nil {
		return nil, err
	}
	for opt := range seen {
		if err := validator.ValidateOption(res.Command, opt); err != nil {
			return nil, err
		}
	}

	if res.Command&(validator.CmdAppend|validator.CmdInsert|validator.CmdReplace|validator.CmdDelete) != 0 {
		if !srcSet {
			srcSpecs, _ = addrmask.ParseHostNetworkMask(addrmask.Any)
		}
		if !dstSet {
			dstSpecs, _ = addrmask.ParseHostNetworkMask(addrmask.Any)
		}
		if (len(srcSpecs) > 1 || len(dstSpecs) > 1) && (invSrc || invDst) {
			return nil, ip6terr.Paramf("'!' not allowed with multiple source or destination IP addresses")
		}
		if res.Command == validator.CmdReplace && (len(srcSpecs) != 1 || len(dstSpecs) != 1) {
			return nil, ip6terr.Paramf("replacement rule does not specify a unique address")
		}
		for _, m := range matches {
			if err := m.FinalCheck(); err != nil {
				return nil, err
			}
		}
		if target != nil {
			if err := target.FinalCheck(); err != nil {
				return nil, err
			}
		}

		selector := netfilter.Selector{
			Src: srcSpecs[0].Addr, SrcMask: [16]byte(srcSpecs[0].Mask),
			Dst: dstSpecs[0].Addr, DstMask: [16]byte(dstSpecs[0].Mask),
		}
		if protoSet {
			selector.Protocol = protoSel.Number
			selector.Flags |= netfilter.FlagProto
			if protoSel.Invert {
				selector.InvFlags |= netfilter.InvProto
			}
		}
		if invSrc {
			selector.InvFlags |= netfilter.InvSrcIP
		}
		if invDst {
			selector.InvFlags |= netfilter.InvDstIP
		}
		if inSet {
			selector.InIface = inIface.Name
			selector.InIfaceMask = inIface.Mask
		}
		if invIn {
			selector.InvFlags |= netfilter.InvViaIn
		}
		if outSet {
			selector.OutIface = outIface.Name
			selector.OutIfaceMask = outIface.Mask
		}
		if invOut {
			selector.InvFlags |= netfilter.InvViaOut
		}

		srcAddrs := make([][16]byte, len(srcSpecs))
		for i, h := range srcSpecs {
			srcAddrs[i] = h.Addr
		}
		dstAddrs := make([][16]byte, len(dstSpecs))
		for i, h := range dstSpecs {
			dstAddrs[i] = h.Addr
		}

		res.Rule = &CompiledRule{
			Header:   netfilter.EntryHeader{Selector: selector},
			SrcAddrs: srcAddrs,
			DstAddrs: dstAddrs,
			Matches:  matches,
			Target:   target,
		}
	}

	advance(Finalized)
	res.State = state

	return res, nil
}

// resolveTarget handles -j's three forms: a standard verdict, a
// loadable target extension, or, for any other name, a user-defined
// chain jump. Whether that chain exists is not checked.
func (c *Compiler) resolveTarget(name string) (netfilter.TargetExtension, error) {
	if ext.IsStandardName(name) {
		return ext.NewStandardTarget(name), nil
	}
	t, err := c.registry.FindTarget(name, netfilter.TryLoad)
	if err != nil {
		return nil, err
	}
	if t != nil {
		t.Init()
		return t, nil
	}
	return ext.NewChainJumpTarget(name), nil
}

// tryExtensionOption gives the target first refusal on an unclaimed
// option, exactly as do_command6's default case tries target->parse
// before ever walking the match list.
func (c *Compiler) tryExtensionOption(name string, arg string, hasInline bool, invert bool, ts *tokenStream, matches []netfilter.MatchExtension, target netfilter.TargetExtension) (bool, error) {
	longName := strings.TrimLeft(name, "-")
	if target != nil {
		for _, o := range target.Options() {
			if o.Name == longName {
				v := argOrInline(ts, arg, hasInline, longName)
				return true, target.Parse(o.LocalCode, invert, v)
			}
		}
	}
	for _, m := range matches {
		for _, o := range m.Options() {
			if o.Name == longName {
				v := argOrInline(ts, arg, hasInline, longName)
				return true, m.Parse(o.LocalCode, invert, v)
			}
		}
	}
	return false, nil
}

// hasMatchNamed reports whether matches already contains the named
// extension, so proto-implies-match only ever loads it once.
func hasMatchNamed(matches []netfilter.MatchExtension, name string) bool {
	for _, m := range matches {
		if m.Name() == name {
			return true
		}
	}
	return false
}

// splitLongOption splits "--name=value" into ("--name", "value", true);
// anything else (including short options) returns (tok, "", false).
func splitLongOption(tok string) (name, arg string, hasArg bool) {
	if strings.HasPrefix(tok, "--") {
		if i := strings.IndexByte(tok, '='); i >= 0 {
			return tok[:i], tok[i+1:], true
		}
	}
	return tok, "", false
}

func argOrInline(ts *tokenStream, inline string, hasInline bool, what string) string {
	if hasInline {
		return inline
	}
	return mustArg(ts, what)
}

func mustArg(ts *tokenStream, what string) string {
	v, ok := ts.next()
	if !ok {
		panic(ip6terr.Paramf("missing argument for %s", what))
	}
	return v
}

func peekRuleNum(ts *tokenStream) (int, bool) {
	v, ok := ts.peek()
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	ts.pos++
	return n, true
}

func mustRuleNum(ts *tokenStream) (int, bool) {
	n, ok := peekRuleNum(ts)
	if !ok {
		panic(ip6terr.Paramf("missing rule number"))
	}
	return n, true
}
