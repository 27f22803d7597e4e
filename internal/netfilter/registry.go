package netfilter

import (
	"fmt"

	"gvisor.dev/ip6tables/internal/ip6terr"
)

// LoadPolicy controls how Find behaves when a name is not already
// registered, mirroring the original DONT_LOAD/TRY_LOAD/LOAD_MUST_SUCCEED
// tri-state.
type LoadPolicy int

const (
	// DontLoad never consults the Loader; a miss returns a nil
	// extension and a nil error.
	DontLoad LoadPolicy = iota
	// TryLoad consults the Loader but tolerates a LoadError as a miss.
	TryLoad
	// MustLoad consults the Loader and propagates any LoadError.
	MustLoad
)

// Extension is the behavior every match and target plugin shares:
// name, ABI revision, help text, and the five callbacks a rule-spec
// compiler drives a plugin through while walking argv.
type Extension interface {
	Name() string
	Revision() uint8
	// Size is the marshaled payload size (pre-alignment) this revision
	// always produces.
	Size() int
	Help() string
	// Options returns this extension's option table, unmerged.
	// Composer.Merge assigns it a disjoint numeric range when it is
	// merged into a composed grammar.
	Options() []Option
	// Init is called once per rule before any option is parsed,
	// letting the extension zero or default its working state.
	Init()
	// Parse consumes one recognized option. localCode is the option's
	// code within this extension's own table, not the composed code.
	Parse(localCode int, invert bool, optarg string) error
	FinalCheck() error
	Print(sel Selector) string
	Save(sel Selector) string
	// Marshal serializes the extension's current working state into a
	// payload (without the BlobHeader).
	Marshal() []byte
	// Unmarshal loads working state back from a previously marshaled
	// payload, e.g. for listing an installed rule.
	Unmarshal(payload []byte) error
}

// MatchExtension is an Extension usable in the match position.
type MatchExtension interface {
	Extension
	// isMatchExtension distinguishes a match registration from a target
	// registration of the same underlying type at the type-assertion
	// boundary callers use when iterating a registry. Implementations
	// outside this package satisfy it by embedding MatchMarker, since an
	// unexported interface method can only be implemented by a type
	// defined in this package or one embedding such a type.
	isMatchExtension()
}

// TargetExtension is an Extension usable in the target position.
type TargetExtension interface {
	Extension
	isTargetExtension()
}

// MatchMarker is embedded by match extension implementations living
// outside this package to satisfy MatchExtension's unexported method.
type MatchMarker struct{}

func (MatchMarker) isMatchExtension() {}

// TargetMarker is embedded by target extension implementations living
// outside this package to satisfy TargetExtension's unexported method.
type TargetMarker struct{}

func (TargetMarker) isTargetExtension() {}

// Loader resolves a name against the external extension-packaging
// mechanism (a dynamic-library search path in the original tool).
// Out of scope for this repository: the shipped implementation only
// ever reports a miss, and built-ins are registered directly via
// RegisterMatch/RegisterTarget instead.
type Loader interface {
	LoadMatch(name string) (MatchExtension, error)
	LoadTarget(name string) (TargetExtension, error)
}

// NopLoader never finds anything; it is the default Loader for a
// Registry whose extensions are all pre-registered built-ins.
type NopLoader struct{}

func (NopLoader) LoadMatch(name string) (MatchExtension, error) {
	return nil, &ip6terr.Error{Class: ip6terr.Load, Message: fmt.Sprintf("can't find match %q in extension path (loading disabled)", name)}
}

func (NopLoader) LoadTarget(name string) (TargetExtension, error) {
	return nil, &ip6terr.Error{Class: ip6terr.Load, Message: fmt.Sprintf("can't find target %q in extension path (loading disabled)", name)}
}

// Registry is the set of known match and target extensions, keyed by
// name, generalizing itbiboo-gvisor's package-level matchMakers and
// targetMakers maps into an instance so a test can build an isolated
// registry instead of mutating global state.
type Registry struct {
	matches map[string]MatchExtension
	targets map[string]TargetExtension
	loader  Loader
}

// NewRegistry builds an empty registry backed by loader. A nil loader
// is replaced with NopLoader.
func NewRegistry(loader Loader) *Registry {
	if loader == nil {
		loader = NopLoader{}
	}
	return &Registry{
		matches: make(map[string]MatchExtension),
		targets: make(map[string]TargetExtension),
		loader:  loader,
	}
}

// RegisterMatch installs a built-in match extension. It panics on a
// duplicate name, exactly as registerMatchMaker does: two extensions
// sharing a name is a programming error caught at init time, not a
// runtime condition to recover from.
func (r *Registry) RegisterMatch(m MatchExtension) {
	if _, ok := r.matches[m.Name()]; ok {
		panic(fmt.Sprintf("netfilter: multiple matches registered with name %q", m.Name()))
	}
	r.matches[m.Name()] = m
}

// RegisterTarget installs a built-in target extension. Panics on a
// duplicate name.
func (r *Registry) RegisterTarget(t TargetExtension) {
	if _, ok := r.targets[t.Name()]; ok {
		panic(fmt.Sprintf("netfilter: multiple targets registered with name %q", t.Name()))
	}
	r.targets[t.Name()] = t
}

// FindMatch looks up a match extension by name under the given load
// policy.
func (r *Registry) FindMatch(name string, policy LoadPolicy) (MatchExtension, error) {
	if m, ok := r.matches[name]; ok {
		return m, nil
	}
	if policy == DontLoad {
		return nil, nil
	}
	m, err := r.loader.LoadMatch(name)
	if err != nil {
		if policy == TryLoad {
			return nil, nil
		}
		return nil, err
	}
	r.matches[name] = m
	return m, nil
}

// FindTarget looks up a target extension by name under the given load
// policy.
func (r *Registry) FindTarget(name string, policy LoadPolicy) (TargetExtension, error) {
	if t, ok := r.targets[name]; ok {
		return t, nil
	}
	if policy == DontLoad {
		return nil, nil
	}
	t, err := r.loader.LoadTarget(name)
	if err != nil {
		if policy == TryLoad {
			return nil, nil
		}
		return nil, err
	}
	r.targets[name] = t
	return t, nil
}
