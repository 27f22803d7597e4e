// Package addrmask parses ip6tables-style address/mask specifications
// into fixed 16-byte address and mask pairs, generalizing
// parse_hostnetworkmask, parse_hostnetwork, and parse_mask from
// original_source/ip6tables.c.
package addrmask

import (
	"net"
	"net/netip"
	"strconv"
	"strings"

	"gvisor.dev/ip6tables/internal/ip6terr"
)

// Any is the default source/destination: match every address. Unlike
// the C original, which spells this literal as the IPv4-shaped string
// "0.0.0.0/0" and relies on parse_mask's zero-mask fallback to turn it
// into "::", the default here is coded directly as "::/0" so a reader
// never has to trace through that fallback to see what it means.
const Any = "::/0"

// Mask is a 128-bit mask. Unlike a prefix length, it can express any
// bit pattern, not only a contiguous run of leading ones.
type Mask [16]byte

// PrefixLen reports the contiguous leading-one-bit count of m, and
// whether m is in fact contiguous (all set bits are a single run from
// the most significant bit). A non-contiguous mask has ok=false.
func (m Mask) PrefixLen() (n int, ok bool) {
	seenZero := false
	for _, b := range m {
		for bit := 7; bit >= 0; bit-- {
			set := b&(1<<uint(bit)) != 0
			if set {
				if seenZero {
					return 0, false
				}
				n++
			} else {
				seenZero = true
			}
		}
	}
	return n, true
}

// PrefixMask builds the contiguous mask for a /n prefix length by
// setting bits bit-exactly, rather than memset-ing whole bytes and
// patching a boundary byte the way the original parse_mask does (a
// source of an off-by-one on non-byte-aligned lengths there).
func PrefixMask(n int) Mask {
	var m Mask
	for i := 0; i < n && i < 128; i++ {
		m[i/8] |= 1 << uint(7-i%8)
	}
	return m
}

// And returns addr masked by m.
func And(addr [16]byte, m Mask) [16]byte {
	var out [16]byte
	for i := range addr {
		out[i] = addr[i] & m[i]
	}
	return out
}

// HostNetworkMask is the parsed result of one "-s"/"-d" argument:
// the address (already masked) and the mask itself.
type HostNetworkMask struct {
	Addr [16]byte
	Mask Mask
}

// ParseHostNetworkMask implements the spec's address/mask grammar:
// split on the rightmost '/', parse the mask (absent, numeric prefix
// length, or explicit address-shaped mask), parse the host part — a
// hostname may resolve to more than one address, exactly as
// parse_hostnetwork's host_to_addr path can return naddrs > 1 — AND
// each host address against the mask, and dedup the masked results so
// two addresses that only differ in masked-out bits collapse to one,
// mirroring parse_hostnetworkmask's own post-mask dedup loop.
func ParseHostNetworkMask(spec string) ([]HostNetworkMask, error) {
	hostPart := spec
	maskPart := ""
	if i := strings.LastIndexByte(spec, '/'); i >= 0 {
		hostPart = spec[:i]
		maskPart = spec[i+1:]
	}

	mask, err := parseMask(maskPart)
	if err != nil {
		return nil, err
	}

	// A null mask makes the host irrelevant, like "any/0".
	effectiveHost := hostPart
	if mask == (Mask{}) {
		effectiveHost = ""
	}

	addrs, err := parseHostNetwork(effectiveHost, mask)
	if err != nil {
		return nil, err
	}

	out := make([]HostNetworkMask, 0, len(addrs))
	seen := map[[16]byte]bool{}
	for _, a := range addrs {
		h := Dedup(HostNetworkMask{Addr: a, Mask: mask})
		if seen[h.Addr] {
			continue
		}
		seen[h.Addr] = true
		out = append(out, h)
	}
	return out, nil
}

// parseMask parses the portion after '/'. An absent mask means
// "match host exactly" (all ones); a numeric value 0-128 is a prefix
// length; anything else is parsed as an address-shaped mask, allowing
// non-contiguous masks.
func parseMask(s string) (Mask, error) {
	if s == "" {
		return PrefixMask(128), nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 128 {
			return Mask{}, ip6terr.Paramf("invalid prefix length %q in address mask (must be 0-128)", s)
		}
		return PrefixMask(n), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Mask{}, ip6terr.Paramf("bad mask %q in address specification: %v", s, err)
	}
	if !addr.Is6() {
		return Mask{}, ip6terr.Paramf("mask %q is not an IPv6 address", s)
	}
	return Mask(addr.As16()), nil
}

// parseHostNetwork parses the host/network portion into one or more
// addresses, generalizing parse_hostnetwork: a numeric literal always
// yields exactly one address, while a hostname is resolved and may
// yield one per AAAA record host_to_addr would have returned.
func parseHostNetwork(s string, mask Mask) ([][16]byte, error) {
	if mask == (Mask{}) && s == "" {
		return [][16]byte{{}}, nil
	}
	if s == "" {
		s = "::"
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		if addr.Is4() {
			return nil, ip6terr.Paramf("address %q is IPv4, this tool only handles IPv6", s)
		}
		if !addr.Is6() {
			return nil, ip6terr.Paramf("address %q is not a valid IPv6 address", s)
		}
		return [][16]byte{addr.As16()}, nil
	}

	ips, err := net.LookupIP(s)
	if err != nil || len(ips) == 0 {
		return nil, ip6terr.Paramf("host/network %q not found", s)
	}
	var out [][16]byte
	for _, ip := range ips {
		if ip.To4() != nil {
			continue
		}
		addr, ok := netip.AddrFromSlice(ip.To16())
		if !ok {
			continue
		}
		out = append(out, addr.As16())
	}
	if len(out) == 0 {
		return nil, ip6terr.Paramf("host %q has no IPv6 address", s)
	}
	return out, nil
}

// Dedup removes the bits outside mask from addr before a round-trip
// comparison, matching the original's "dedup after AND-masking"
// invariant: two specifications that differ only in masked-out bits
// must parse to the same HostNetworkMask.
func Dedup(h HostNetworkMask) HostNetworkMask {
	return HostNetworkMask{Addr: And(h.Addr, h.Mask), Mask: h.Mask}
}
