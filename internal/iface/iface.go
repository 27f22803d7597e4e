// Package iface parses ip6tables-style interface-name patterns,
// generalizing parse_interface from original_source/ip6tables.c.
package iface

import (
	"fmt"
	"strings"

	"gvisor.dev/ip6tables/internal/ip6terr"
)

// NameSize is the fixed width of an interface name buffer, matching
// IFNAMSIZ.
const NameSize = 16

// Pattern is a parsed interface match: a fixed-width name buffer and a
// parallel mask buffer. A trailing '+' in the original spec means
// "this name is a prefix"; it is encoded as a mask whose bytes after
// the literal prefix are zero, while an exact name's mask covers every
// byte actually occupied by the name (including its terminating NUL).
type Pattern struct {
	Name [NameSize]byte
	Mask [NameSize]byte
}

// Parse parses one interface-name argument. It returns warnings (never
// fatal) for any byte of the name that is not an ASCII letter or digit,
// leaving it to the caller to route them to stderr.
func Parse(spec string) (Pattern, []string, error) {
	if spec == "" {
		// An empty name/mask matches any interface: the zero Pattern
		// already means that, the same way a zero Selector mask means
		// "any address".
		return Pattern{}, nil, nil
	}

	wildcard := strings.HasSuffix(spec, "+")
	name := spec
	if wildcard {
		name = spec[:len(spec)-1]
	}

	if len(name)+1 > NameSize && !wildcard {
		return Pattern{}, nil, ip6terr.Paramf("interface name %q too long (max %d characters)", spec, NameSize-1)
	}
	if len(name) >= NameSize {
		return Pattern{}, nil, ip6terr.Paramf("interface name %q too long (max %d characters)", spec, NameSize-1)
	}

	var warnings []string
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			warnings = append(warnings, fmt.Sprintf("interface name %q contains unusual byte 0x%02x at position %d", spec, c, i))
		}
	}

	var p Pattern
	copy(p.Name[:], name)
	if wildcard {
		for i := 0; i < len(name); i++ {
			p.Mask[i] = 0xff
		}
	} else {
		for i := 0; i <= len(name) && i < NameSize; i++ {
			p.Mask[i] = 0xff
		}
	}
	return p, warnings, nil
}

// String reconstructs the original-style spec from a parsed Pattern,
// appending '+' when the mask doesn't cover the name's NUL terminator.
func (p Pattern) String() string {
	n := 0
	for n < NameSize && p.Name[n] != 0 {
		n++
	}
	name := string(p.Name[:n])
	if n < NameSize && p.Mask[n] == 0 {
		return name + "+"
	}
	return name
}
