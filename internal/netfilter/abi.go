// Package netfilter implements the binary rule ABI, the extension
// registry, and the option-grammar composer shared by every command
// that walks a chain: the fixed-size entry header, the variable-length
// match and target blobs that follow it, and the bookkeeping needed to
// marshal and unmarshal them.
package netfilter

import (
	"encoding/binary"
	"fmt"
)

// Align is the byte boundary every blob is padded to, mirroring the
// kernel's XT_ALIGN macro.
const Align = 8

// AlignUp rounds n up to the next multiple of Align.
func AlignUp(n int) int {
	return (n + Align - 1) &^ (Align - 1)
}

// IfaceNameSize is the fixed width of an interface name/mask pair,
// matching IFNAMSIZ.
const IfaceNameSize = 16

// NameSize is the fixed width of an extension's name field inside a
// BlobHeader.
const NameSize = 32

// Selector is the fixed-size, protocol-independent match criteria
// every entry carries inline: source/destination address and mask,
// interface patterns, and protocol number. It corresponds to the
// "Rule Skeleton" header fields that are never optional.
type Selector struct {
	Src, SrcMask [16]byte
	Dst, DstMask [16]byte

	InIface, OutIface         [IfaceNameSize]byte
	InIfaceMask, OutIfaceMask [IfaceNameSize]byte

	Protocol uint16

	Flags    uint8
	InvFlags uint8
}

// Flag bits for Selector.Flags. Only the protocol needs an explicit
// presence flag: src/dst/interface constraints are implied by a
// non-zero mask.
const (
	FlagProto uint8 = 1 << iota
)

// Inversion bits for Selector.InvFlags.
const (
	InvProto uint8 = 1 << iota
	InvSrcIP
	InvDstIP
	InvViaIn
	InvViaOut
)

// Counters tracks packet and byte counts for a rule. New rules start
// zeroed; a listing operation reads them back from the table handle.
type Counters struct {
	Packets uint64
	Bytes   uint64
}

// EntryHeader is the fixed-size prefix of every assembled rule. It is
// followed in memory by zero or more match blobs and exactly one
// target blob.
type EntryHeader struct {
	Selector Selector
	NFCache  uint32
	Counters Counters

	// TargetOffset is the byte offset from the start of this header to
	// the target blob. NextOffset is the byte offset to the following
	// entry's header. Both are maintained by Assemble and must never be
	// computed by hand elsewhere.
	TargetOffset uint16
	NextOffset   uint16
}

// HeaderSize is the marshaled size of EntryHeader.
const HeaderSize = 16 + 16 + 16 + 16 + IfaceNameSize*4 + 2 + 1 + 1 + 4 + 8 + 8 + 2 + 2

// BlobHeader prefixes every match and target payload.
type BlobHeader struct {
	Size     uint16
	Name     [NameSize]byte
	Revision uint8
}

// BlobHeaderSize is the unaligned marshaled size of BlobHeader; actual
// blobs are padded to a multiple of Align.
const BlobHeaderSize = 2 + NameSize + 1

// Blob describes one match or target before marshaling: its name,
// revision and payload. MarshalBlob turns it into the aligned bytes.
type Blob struct {
	Name     string
	Revision uint8
	Payload  []byte
}

// MarshalBlob lays out a BlobHeader followed by payload, padded with
// zero bytes up to the next Align boundary.
func MarshalBlob(b Blob) []byte {
	if len(b.Name) >= NameSize {
		panic(fmt.Sprintf("netfilter: extension name %q too long for %d-byte field", b.Name, NameSize))
	}
	raw := BlobHeaderSize + len(b.Payload)
	size := AlignUp(raw)
	out := make([]byte, size)
	binary.LittleEndian.PutUint16(out[0:2], uint16(size))
	copy(out[2:2+NameSize], b.Name)
	out[2+NameSize] = b.Revision
	copy(out[BlobHeaderSize:], b.Payload)
	return out
}

// UnmarshalBlobHeader reads the header fields from the front of buf
// without copying the payload.
func UnmarshalBlobHeader(buf []byte) (BlobHeader, error) {
	if len(buf) < BlobHeaderSize {
		return BlobHeader{}, fmt.Errorf("netfilter: blob header truncated: have %d bytes, want %d", len(buf), BlobHeaderSize)
	}
	var h BlobHeader
	h.Size = binary.LittleEndian.Uint16(buf[0:2])
	copy(h.Name[:], buf[2:2+NameSize])
	h.Revision = buf[2+NameSize]
	return h, nil
}

// NameString returns the blob's registered extension name, trimmed of its
// trailing NUL padding.
func (h BlobHeader) NameString() string {
	n := 0
	for n < len(h.Name) && h.Name[n] != 0 {
		n++
	}
	return string(h.Name[:n])
}

// Assemble lays out a complete rule: header, then each match blob in
// order, then the target blob, filling in TargetOffset and
// NextOffset. The caller supplies a zeroed header with Selector,
// NFCache and Counters already populated.
func Assemble(header EntryHeader, matches [][]byte, target []byte) []byte {
	targetOffset := HeaderSize
	for _, m := range matches {
		targetOffset += len(m)
	}
	header.TargetOffset = uint16(targetOffset)
	header.NextOffset = uint16(targetOffset + len(target))

	out := make([]byte, header.NextOffset)
	putHeader(out, header)
	off := HeaderSize
	for _, m := range matches {
		copy(out[off:], m)
		off += len(m)
	}
	copy(out[off:], target)
	return out
}

func putHeader(out []byte, h EntryHeader) {
	off := 0
	put16 := func(b [16]byte) { copy(out[off:off+16], b[:]); off += 16 }
	putIface := func(b [IfaceNameSize]byte) { copy(out[off:off+IfaceNameSize], b[:]); off += IfaceNameSize }
	put16(h.Selector.Src)
	put16(h.Selector.SrcMask)
	put16(h.Selector.Dst)
	put16(h.Selector.DstMask)
	putIface(h.Selector.InIface)
	putIface(h.Selector.OutIface)
	putIface(h.Selector.InIfaceMask)
	putIface(h.Selector.OutIfaceMask)
	binary.LittleEndian.PutUint16(out[off:off+2], h.Selector.Protocol)
	off += 2
	out[off] = h.Selector.Flags
	off++
	out[off] = h.Selector.InvFlags
	off++
	binary.LittleEndian.PutUint32(out[off:off+4], h.NFCache)
	off += 4
	binary.LittleEndian.PutUint64(out[off:off+8], h.Counters.Packets)
	off += 8
	binary.LittleEndian.PutUint64(out[off:off+8], h.Counters.Bytes)
	off += 8
	binary.LittleEndian.PutUint16(out[off:off+2], h.TargetOffset)
	off += 2
	binary.LittleEndian.PutUint16(out[off:off+2], h.NextOffset)
}

// ParseHeader reads an EntryHeader from the front of buf.
func ParseHeader(buf []byte) (EntryHeader, error) {
	if len(buf) < HeaderSize {
		return EntryHeader{}, fmt.Errorf("netfilter: entry header truncated: have %d bytes, want %d", len(buf), HeaderSize)
	}
	var h EntryHeader
	off := 0
	get16 := func() (out [16]byte) { copy(out[:], buf[off:off+16]); off += 16; return }
	getIface := func() (out [IfaceNameSize]byte) { copy(out[:], buf[off:off+IfaceNameSize]); off += IfaceNameSize; return }
	h.Selector.Src = get16()
	h.Selector.SrcMask = get16()
	h.Selector.Dst = get16()
	h.Selector.DstMask = get16()
	h.Selector.InIface = getIface()
	h.Selector.OutIface = getIface()
	h.Selector.InIfaceMask = getIface()
	h.Selector.OutIfaceMask = getIface()
	h.Selector.Protocol = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	h.Selector.Flags = buf[off]
	off++
	h.Selector.InvFlags = buf[off]
	off++
	h.NFCache = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	h.Counters.Packets = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	h.Counters.Bytes = binary.LittleEndian.Uint64(buf[off : off+8])
	off += 8
	h.TargetOffset = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	h.NextOffset = binary.LittleEndian.Uint16(buf[off : off+2])
	return h, nil
}
