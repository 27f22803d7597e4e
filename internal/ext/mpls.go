package ext

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"gvisor.dev/ip6tables/internal/netfilter"
)

// MPLSTarget sets an outgoing MPLS NHLFE key, ported in meaning from
// original_source/extensions/libxt_MPLS.c: a single required --nhlfe
// option holding a uint32 key, hex- or decimal-formatted.
type MPLSTarget struct {
	netfilter.TargetMarker
	key    uint32
	hasKey bool
}

const optNHLFE = 0

func NewMPLSTarget() *MPLSTarget { return &MPLSTarget{} }

func (t *MPLSTarget) Name() string   { return "MPLS" }
func (t *MPLSTarget) Revision() uint8 { return 0 }
func (t *MPLSTarget) Size() int      { return 4 }

func (t *MPLSTarget) Help() string {
	return "MPLS target options:\n  --nhlfe key              Set an outgoing MPLS NHLFE\n"
}

func (t *MPLSTarget) Options() []netfilter.Option {
	return []netfilter.Option{
		{Name: "nhlfe", HasArg: netfilter.RequiredArgument, LocalCode: optNHLFE},
	}
}

func (t *MPLSTarget) Init() {
	t.key = 0
	t.hasKey = false
}

func (t *MPLSTarget) Parse(localCode int, invert bool, optarg string) error {
	switch localCode {
	case optNHLFE:
		if t.hasKey {
			return fmt.Errorf("MPLS target: can't specify --nhlfe twice")
		}
		key, err := parseUint32(optarg)
		if err != nil {
			return fmt.Errorf("MPLS target: bad MPLS key %q: %w", optarg, err)
		}
		t.key = key
		t.hasKey = true
		return nil
	default:
		return fmt.Errorf("MPLS target: unrecognized option")
	}
}

// parseUint32 accepts both hex (0x-prefixed) and decimal forms, as
// xtables_strtoui does.
func parseUint32(s string) (uint32, error) {
	base := 10
	trimmed := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		trimmed = s[2:]
	}
	n, err := strconv.ParseUint(trimmed, base, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

func (t *MPLSTarget) FinalCheck() error {
	if !t.hasKey {
		return fmt.Errorf("MPLS target: parameter --nhlfe is required")
	}
	return nil
}

func (t *MPLSTarget) Print(netfilter.Selector) string {
	return fmt.Sprintf("nhlfe 0x%x ", t.key)
}

func (t *MPLSTarget) Save(netfilter.Selector) string {
	return fmt.Sprintf("--nhlfe 0x%x ", t.key)
}

func (t *MPLSTarget) Marshal() []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, t.key)
	return out
}

func (t *MPLSTarget) Unmarshal(payload []byte) error {
	if len(payload) < 4 {
		return fmt.Errorf("MPLS target: payload truncated")
	}
	t.key = binary.LittleEndian.Uint32(payload)
	t.hasKey = true
	return nil
}
