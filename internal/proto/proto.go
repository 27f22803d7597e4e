// Package proto resolves protocol names/numbers for the "-p" option,
// generalizing parse_protocol from original_source/ip6tables.c.
package proto

import (
	"strconv"
	"strings"

	"gvisor.dev/ip6tables/internal/ip6terr"
)

// Selector is a parsed protocol specification: a numeric protocol
// value plus whether it was negated with "!".
type Selector struct {
	Number  uint16
	Invert  bool
}

// table is the name table Parse consults for a non-numeric spec,
// mirroring chain_protos[] in the original. It is the only source of
// names: no system protocol database is queried.
var table = map[string]uint16{
	"tcp":  6,
	"udp":  17,
	"icmp": 58, // ICMPv6
	"all":  0,
}

// Parse resolves name (already lower-cased comparison; case in the
// input is preserved in error messages) to a protocol Selector. A
// purely numeric spec is parsed directly; otherwise the fallback table
// is consulted.
func Parse(name string, invert bool) (Selector, error) {
	if n, err := strconv.ParseUint(name, 10, 16); err == nil {
		return Selector{Number: uint16(n), Invert: invert}, nil
	}
	if n, ok := table[strings.ToLower(name)]; ok {
		return Selector{Number: n, Invert: invert}, nil
	}
	return Selector{}, ip6terr.Paramf("unknown protocol %q specified", name)
}

// Name returns the canonical lowercase name for a protocol number, or
// its decimal string if it isn't in the fallback table.
func Name(n uint16) string {
	for name, num := range table {
		if num == n && name != "all" {
			return name
		}
	}
	return strconv.FormatUint(uint64(n), 10)
}
