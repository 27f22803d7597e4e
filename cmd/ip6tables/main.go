// Command ip6tables is the administration CLI: it compiles one
// argv-specified rule operation and commits it to a table handle,
// generalizing main()/do_command6() from
// original_source/ip6tables.c.
package main

import (
	"fmt"
	"os"
	"strings"

	"gvisor.dev/ip6tables/internal/compiler"
	"gvisor.dev/ip6tables/internal/dispatch"
	"gvisor.dev/ip6tables/internal/ext"
	"gvisor.dev/ip6tables/internal/ip6terr"
	"gvisor.dev/ip6tables/internal/listing"
	"gvisor.dev/ip6tables/internal/memtable"
	"gvisor.dev/ip6tables/internal/netfilter"
	"gvisor.dev/ip6tables/internal/nflog"
	"gvisor.dev/ip6tables/internal/validator"
)

const version = "ip6tables 1.0.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr *os.File) int {
	registry := netfilter.NewRegistry(nil)
	ext.RegisterBuiltins(registry)
	c := compiler.New(registry)

	res, err := c.Compile(args)
	if err != nil {
		return report(err, stderr)
	}

	for _, w := range res.Warnings {
		nflog.Warnf("%s", w)
	}
	nflog.SetVerbose(res.Verbose)

	switch res.Command {
	case validator.CmdVersion:
		fmt.Fprintln(stdout, version)
		return 0
	case validator.CmdHelp:
		fmt.Fprintln(stdout, help())
		return 0
	}

	handle := memtable.New()
	d := dispatch.New(handle)

	if err := d.Run(res); err != nil {
		return report(err, stderr)
	}
	res.State = compiler.Executed

	if res.Command&validator.CmdList != 0 {
		printListing(res, registry, handle, stdout)
	}

	return 0
}

func printListing(res *compiler.Result, registry *netfilter.Registry, handle *memtable.Handle, stdout *os.File) {
	chains := handle.Chains(res.Table)
	if res.Chain != "" {
		chains = []string{res.Chain}
	}
	for _, chainName := range chains {
		packets, bytes := handle.ChainCounters(res.Table, chainName)
		if handle.IsBuiltin(res.Table, chainName) {
			fmt.Fprintln(stdout, listing.Header(chainName, handle.GetPolicy(res.Table, chainName), packets, bytes, true))
		} else {
			refs := uint64(handle.GetReferences(res.Table, chainName))
			fmt.Fprintln(stdout, listing.Header(chainName, "", refs, 0, false))
		}
		entries, err := handle.ListEntries(res.Table, chainName)
		if err != nil {
			continue
		}
		for i, e := range entries {
			h, err := netfilter.ParseHeader(e.Raw)
			if err != nil {
				continue
			}
			targetName, matchText, targetText := describeRule(registry, h, e.Raw)
			fmt.Fprintln(stdout, listing.FormatRule(listing.RuleLine{
				LineNumber:  i + 1,
				Selector:    h.Selector,
				Counters:    h.Counters,
				TargetName:  targetName,
				MatchText:   matchText,
				TargetText:  targetText,
				Numeric:     res.Numeric,
				Verbose:     res.Verbose,
				LineNumbers: res.LineNumbers,
				Exact:       res.Exact,
			}))
		}
		fmt.Fprintln(stdout)
	}
}

// describeRule walks the match blobs between the header and the
// target, then the target blob itself, resolving each by name against
// registry and rendering its Print output, mirroring print_firewall's
// "match->print(); ...; target->print()" walk over ip6t_entry_match
// structures.
func describeRule(registry *netfilter.Registry, h netfilter.EntryHeader, raw []byte) (targetName, matchText, targetText string) {
	var matchParts []string
	off := netfilter.HeaderSize
	for off < int(h.TargetOffset) {
		bh, err := netfilter.UnmarshalBlobHeader(raw[off:])
		if err != nil || bh.Size == 0 || off+int(bh.Size) > int(h.TargetOffset) {
			break
		}
		payload := raw[off+netfilter.BlobHeaderSize : off+int(bh.Size)]
		if m, err := registry.FindMatch(bh.NameString(), netfilter.DontLoad); err == nil && m != nil {
			if err := m.Unmarshal(payload); err == nil {
				matchParts = append(matchParts, m.Print(h.Selector))
			}
		}
		off += int(bh.Size)
	}
	matchText = strings.Join(matchParts, "")

	if int(h.TargetOffset) >= int(h.NextOffset) || int(h.NextOffset) > len(raw) {
		return "", matchText, ""
	}
	tbh, err := netfilter.UnmarshalBlobHeader(raw[h.TargetOffset:])
	if err != nil {
		return "", matchText, ""
	}
	targetName = tbh.NameString()
	payload := raw[int(h.TargetOffset)+netfilter.BlobHeaderSize : h.NextOffset]

	switch {
	case ext.IsStandardName(targetName):
		t := ext.NewStandardTarget(targetName)
		if err := t.Unmarshal(payload); err == nil {
			targetText = t.Print(h.Selector)
		}
	default:
		if t, err := registry.FindTarget(targetName, netfilter.DontLoad); err == nil && t != nil {
			if err := t.Unmarshal(payload); err == nil {
				targetText = t.Print(h.Selector)
			}
		}
		// An unresolved name is a bare jump to a user-defined chain:
		// the column already carries the chain name, and there is no
		// extension to print further text for, exactly as the original
		// never calls a print() callback when target is NULL.
	}
	return targetName, matchText, targetText
}

func report(err error, stderr *os.File) int {
	if e, ok := err.(*ip6terr.Error); ok {
		fmt.Fprintf(stderr, "ip6tables: %s\n", e.Message)
		return e.Class.ExitCode()
	}
	fmt.Fprintf(stderr, "ip6tables: %v\n", err)
	return 1
}

func help() string {
	return `ip6tables v1.0.0

Usage: ip6tables [-t table] COMMAND [options]

Commands:
  -A chain                append a rule
  -D chain [rulenum]       delete a rule
  -R chain rulenum         replace a rule
  -I chain [rulenum]       insert a rule
  -L [chain]               list rules
  -F [chain]               flush rules
  -Z [chain]               zero counters
  -N chain                 create a new chain
  -X [chain]               delete a chain
  -E old new                rename a chain
  -P chain target           set a built-in chain's policy
  -V                        print version
  -h                        print this help

Options:
  -p, --protocol proto
  -s, --source address[/mask]
  -d, --destination address[/mask]
  -i, --in-interface name
  -o, --out-interface name
  -j, --jump target
  -m, --match extension
  -t, --table table
  -n, --numeric
  -v, --verbose
  -x, --exact
  --line-numbers
`
}
