package ext

import "gvisor.dev/ip6tables/internal/netfilter"

// RegisterBuiltins installs every built-in match and target extension
// into r. Standard verdict targets and chain jumps are resolved
// directly by the compiler (see IsStandardName) rather than through
// the registry, since they carry no option grammar of their own.
func RegisterBuiltins(r *netfilter.Registry) {
	r.RegisterMatch(NewTCPMatch())
	r.RegisterMatch(NewUDPMatch())
	r.RegisterTarget(NewMPLSTarget())
}
