// Package validator implements the command/option compatibility matrix
// and incremental command-selection rules, generalizing
// commands_v_options, inverse_for_options, and add_command from
// original_source/ip6tables.c.
package validator

import (
	"gvisor.dev/ip6tables/internal/ip6terr"
)

// Command is one of the mutually-exclusive top-level verbs.
type Command uint16

const (
	CmdAppend Command = 1 << iota
	CmdDelete
	CmdReplace
	CmdInsert
	CmdList
	CmdFlush
	CmdZero
	CmdNewChain
	CmdDeleteChain
	CmdRenameChain
	CmdPolicy
	CmdVersion
	CmdHelp
)

// onlyCompatiblePair is the single exception to "exactly one command":
// -L and -Z may be combined, exactly as the original permits CMD_LIST
// combined with CMD_ZERO.
const onlyCompatiblePair = CmdList | CmdZero

// Option is one of the filter/listing options a command can legally
// carry, independent of any extension's own merged options.
type Option int

const (
	OptProtocol Option = iota
	OptSource
	OptDestination
	OptInIface
	OptOutIface
	OptJump
	OptMatch
	OptTable
	OptNumeric
	OptVerbose
	OptExact
	OptLineNumbers
	OptRuleNum
	OptSetCounters
)

// Legality is the tri-state a (command, option) pair resolves to.
type Legality int

const (
	Illegal Legality = iota
	Allowed
	Required
)

// Invertible marks which options accept a leading "!", mirroring
// inverse_for_options.
var invertible = map[Option]bool{
	OptProtocol:    true,
	OptSource:      true,
	OptDestination: true,
	OptInIface:     true,
	OptOutIface:    true,
}

// IsInvertible reports whether opt accepts a "!" prefix.
func IsInvertible(opt Option) bool { return invertible[opt] }

// matrix mirrors commands_v_options: for each command, which options
// are legal and whether any of them is required.
var matrix = map[Command]map[Option]Legality{
	CmdAppend:  ruleOptions(Required),
	CmdInsert:  ruleOptions(Required),
	CmdReplace: ruleOptions(Required),
	CmdDelete:  ruleOptions(Allowed),
	CmdList: {
		OptTable:       Allowed,
		OptNumeric:     Allowed,
		OptVerbose:     Allowed,
		OptExact:       Allowed,
		OptLineNumbers: Allowed,
	},
	CmdFlush: {
		OptTable: Allowed,
	},
	CmdZero: {
		OptTable:       Allowed,
		OptSetCounters: Allowed,
	},
	CmdNewChain: {
		OptTable: Allowed,
	},
	CmdDeleteChain: {
		OptTable: Allowed,
	},
	CmdRenameChain: {
		OptTable: Allowed,
	},
	CmdPolicy: {
		OptTable: Allowed,
	},
	CmdVersion: {},
	CmdHelp:    {},
}

func ruleOptions(jump Legality) map[Option]Legality {
	return map[Option]Legality{
		OptProtocol:    Allowed,
		OptSource:      Allowed,
		OptDestination: Allowed,
		OptInIface:     Allowed,
		OptOutIface:    Allowed,
		OptJump:        jump,
		OptMatch:       Allowed,
		OptTable:       Allowed,
		OptRuleNum:     Allowed,
	}
}

// commandBits decomposes a possibly-composite cmd (only ever
// CmdList|CmdZero in practice) into its individual single-bit members.
func commandBits(cmd Command) []Command {
	var out []Command
	for b := Command(1); b != 0; b <<= 1 {
		if cmd&b != 0 {
			out = append(out, b)
		}
	}
	return out
}

// Check resolves the legality of opt under cmd, generalizing
// generic_opt_check: an option is illegal only if every individual
// command bit set in cmd marks it illegal; it is legal overall the
// moment any one of them allows or requires it, exactly as the
// original's comment puts it — "if an option is legal with *any*
// command given, it is legal overall (ie. -z and -l)".
func Check(cmd Command, opt Option) Legality {
	result := Illegal
	for _, b := range commandBits(cmd) {
		switch matrix[b][opt] {
		case Required:
			return Required
		case Allowed:
			result = Allowed
		}
	}
	return result
}

// ValidateOption returns an error if opt is not legal for cmd.
func ValidateOption(cmd Command, opt Option) error {
	if Check(cmd, opt) == Illegal {
		return ip6terr.Paramf("option not allowed with this command")
	}
	return nil
}

// ValidateRequired checks that every option the matrix marks Required
// for any of cmd's individual command bits is present in seen, mirroring
// generic_opt_check's per-command-bit '+' check.
func ValidateRequired(cmd Command, seen map[Option]bool) error {
	for _, b := range commandBits(cmd) {
		for opt, legality := range matrix[b] {
			if legality == Required && !seen[opt] {
				return ip6terr.Paramf("option required but not specified for this command")
			}
		}
	}
	return nil
}

// Selector accumulates the single active command across an argv walk,
// generalizing add_command's incremental bitmask check.
type Selector struct {
	current Command
	set     bool
}

// Add records newCmd as the active command. It is an error to set a
// second, incompatible command, and an error for invert to be true (a
// bare "!" may never precede a command letter).
func (s *Selector) Add(newCmd Command, invert bool) error {
	if invert {
		return ip6terr.Paramf("unexpected '!' flag before command")
	}
	if !s.set {
		s.current = newCmd
		s.set = true
		return nil
	}
	combined := s.current | newCmd
	if combined == onlyCompatiblePair {
		s.current = combined
		return nil
	}
	if s.current == newCmd {
		return ip6terr.Paramf("multiple commands of the same kind specified")
	}
	return ip6terr.Paramf("multiple, incompatible commands specified")
}

// Command returns the accumulated command, which may be the
// CmdList|CmdZero composite.
func (s *Selector) Command() Command { return s.current }

// HasCommand reports whether any command letter has been seen yet.
func (s *Selector) HasCommand() bool { return s.set }
