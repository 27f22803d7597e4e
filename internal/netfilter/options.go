package netfilter

import "fmt"

// HasArg mirrors getopt_long's argument-requirement tri-state.
type HasArg int

const (
	NoArgument HasArg = iota
	RequiredArgument
	OptionalArgument
)

// Option is one long-option entry in an extension's own, unmerged
// option table.
type Option struct {
	Name   string
	HasArg HasArg
	// LocalCode identifies this option within its own extension; it is
	// never exposed to the composed grammar directly.
	LocalCode int
}

// OptionBlockSize is the width reserved per merged extension, mirroring
// the original's OPTION_OFFSET=256: codes [base, base+OptionBlockSize)
// belong to one extension's merge.
const OptionBlockSize = 256

// mergedOption is one entry in the composed grammar: the original
// option plus the composed code a tokenizer will actually see and the
// owning extension it resolves back to.
type mergedOption struct {
	Option
	composedCode int
	owner        Extension
}

// Composer builds a single flat long-option table out of however many
// extensions get merged into a compiler run, assigning each merge a
// disjoint numeric range so that composedCode alone determines which
// extension and which of its local options was matched — generalizing
// merge_options/global_option_offset.
type Composer struct {
	entries    []mergedOption
	nextOffset int
}

// NewComposer returns a Composer seeded with the base command/filter
// option table; base options use their own LocalCode as composedCode
// (range [0, OptionBlockSize)), leaving every merged extension's range
// starting at OptionBlockSize.
func NewComposer(base []Option) *Composer {
	c := &Composer{nextOffset: OptionBlockSize}
	for _, o := range base {
		c.entries = append(c.entries, mergedOption{Option: o, composedCode: o.LocalCode, owner: nil})
	}
	return c
}

// Merge appends ext's option table under a freshly allocated range and
// returns the base offset assigned, i.e. composedCode = offset +
// LocalCode for every option in ext's table.
func (c *Composer) Merge(ext Extension) int {
	offset := c.nextOffset
	c.nextOffset += OptionBlockSize
	for _, o := range ext.Options() {
		if o.LocalCode < 0 || o.LocalCode >= OptionBlockSize {
			panic(fmt.Sprintf("netfilter: extension %q local option code %d out of range [0,%d)", ext.Name(), o.LocalCode, OptionBlockSize))
		}
		c.entries = append(c.entries, mergedOption{
			Option:       o,
			composedCode: offset + o.LocalCode,
			owner:        ext,
		})
	}
	return offset
}

// Resolve maps a composed code back to the owning extension (nil for a
// base option) and the extension's own local code.
func (c *Composer) Resolve(composedCode int) (owner Extension, localCode int, ok bool) {
	for _, e := range c.entries {
		if e.composedCode == composedCode {
			return e.owner, e.Option.LocalCode, true
		}
	}
	return nil, 0, false
}

// ByName finds a merged entry by long option name, e.g. turning
// "--nhlfe" into its composed code.
func (c *Composer) ByName(name string) (composedCode int, hasArg HasArg, ok bool) {
	for _, e := range c.entries {
		if e.Name == name {
			return e.composedCode, e.HasArg, true
		}
	}
	return 0, NoArgument, false
}

// Entries exposes the flattened table, e.g. for generating help text.
func (c *Composer) Entries() []Option {
	out := make([]Option, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Option
	}
	return out
}
