package ext

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"gvisor.dev/ip6tables/internal/netfilter"
)

// portRange is [Low, High] inclusive, matching a single port when
// Low == High.
type portRange struct {
	Low, High uint16
}

func parsePortRange(s string) (portRange, error) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		lowStr, highStr := s[:i], s[i+1:]
		low, high := uint16(0), uint16(65535)
		var err error
		if lowStr != "" {
			low, err = parsePort(lowStr)
			if err != nil {
				return portRange{}, err
			}
		}
		if highStr != "" {
			high, err = parsePort(highStr)
			if err != nil {
				return portRange{}, err
			}
		}
		if low > high {
			return portRange{}, fmt.Errorf("invalid port range %q: low > high", s)
		}
		return portRange{Low: low, High: high}, nil
	}
	p, err := parsePort(s)
	if err != nil {
		return portRange{}, err
	}
	return portRange{Low: p, High: p}, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q: %w", s, err)
	}
	return uint16(n), nil
}

const (
	optSourcePort = iota
	optDestinationPort
)

// portMatch is the shared implementation behind the tcp and udp
// matches: each protocol's sole difference from the other is its name
// and the protocol number proto-implies-match resolves it against, so
// one implementation backs both, the way xt_tcpudp.c does in spirit.
type portMatch struct {
	netfilter.MatchMarker
	protoName string
	src, dst  portRange
	hasSrc    bool
	hasDst    bool
	invSrc    bool
	invDst    bool
}

func NewTCPMatch() netfilter.MatchExtension { return &portMatch{protoName: "tcp"} }
func NewUDPMatch() netfilter.MatchExtension { return &portMatch{protoName: "udp"} }

func (m *portMatch) Name() string   { return m.protoName }
func (m *portMatch) Revision() uint8 { return 0 }
func (m *portMatch) Size() int      { return 2 + 2 + 2 + 2 + 1 + 1 }

func (m *portMatch) Help() string {
	return fmt.Sprintf("%s match options:\n"+
		"  --sport port[:port]     match source port(s)\n"+
		"  --dport port[:port]     match destination port(s)\n", m.protoName)
}

func (m *portMatch) Options() []netfilter.Option {
	return []netfilter.Option{
		{Name: "sport", HasArg: netfilter.RequiredArgument, LocalCode: optSourcePort},
		{Name: "dport", HasArg: netfilter.RequiredArgument, LocalCode: optDestinationPort},
		{Name: "source-port", HasArg: netfilter.RequiredArgument, LocalCode: optSourcePort},
		{Name: "destination-port", HasArg: netfilter.RequiredArgument, LocalCode: optDestinationPort},
	}
}

func (m *portMatch) Init() {
	*m = portMatch{protoName: m.protoName}
}

func (m *portMatch) Parse(localCode int, invert bool, optarg string) error {
	pr, err := parsePortRange(optarg)
	if err != nil {
		return fmt.Errorf("%s match: %w", m.protoName, err)
	}
	switch localCode {
	case optSourcePort:
		if m.hasSrc {
			return fmt.Errorf("%s match: can't specify --sport twice", m.protoName)
		}
		m.src, m.hasSrc, m.invSrc = pr, true, invert
	case optDestinationPort:
		if m.hasDst {
			return fmt.Errorf("%s match: can't specify --dport twice", m.protoName)
		}
		m.dst, m.hasDst, m.invDst = pr, true, invert
	default:
		return fmt.Errorf("%s match: unrecognized option", m.protoName)
	}
	return nil
}

func (m *portMatch) FinalCheck() error { return nil }

func (m *portMatch) formatRange(pr portRange, invert bool) string {
	sign := ""
	if invert {
		sign = "! "
	}
	if pr.Low == pr.High {
		return fmt.Sprintf("%s%d", sign, pr.Low)
	}
	return fmt.Sprintf("%s%d:%d", sign, pr.Low, pr.High)
}

func (m *portMatch) Print(netfilter.Selector) string {
	var b strings.Builder
	if m.hasSrc {
		fmt.Fprintf(&b, "spt:%s ", m.formatRange(m.src, m.invSrc))
	}
	if m.hasDst {
		fmt.Fprintf(&b, "dpt:%s ", m.formatRange(m.dst, m.invDst))
	}
	return b.String()
}

func (m *portMatch) Save(netfilter.Selector) string {
	var b strings.Builder
	if m.hasSrc {
		fmt.Fprintf(&b, "--sport %s ", m.formatRange(m.src, m.invSrc))
	}
	if m.hasDst {
		fmt.Fprintf(&b, "--dport %s ", m.formatRange(m.dst, m.invDst))
	}
	return b.String()
}

func (m *portMatch) Marshal() []byte {
	out := make([]byte, 10)
	binary.LittleEndian.PutUint16(out[0:2], m.src.Low)
	binary.LittleEndian.PutUint16(out[2:4], m.src.High)
	binary.LittleEndian.PutUint16(out[4:6], m.dst.Low)
	binary.LittleEndian.PutUint16(out[6:8], m.dst.High)
	if m.invSrc {
		out[8] = 1
	}
	if m.invDst {
		out[9] = 1
	}
	return out
}

func (m *portMatch) Unmarshal(payload []byte) error {
	if len(payload) < 10 {
		return fmt.Errorf("%s match: payload truncated", m.protoName)
	}
	m.src.Low = binary.LittleEndian.Uint16(payload[0:2])
	m.src.High = binary.LittleEndian.Uint16(payload[2:4])
	m.dst.Low = binary.LittleEndian.Uint16(payload[4:6])
	m.dst.High = binary.LittleEndian.Uint16(payload[6:8])
	m.invSrc = payload[8] != 0
	m.invDst = payload[9] != 0
	m.hasSrc = true
	m.hasDst = true
	return nil
}
