package netfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalBlobAligned(t *testing.T) {
	b := MarshalBlob(Blob{Name: "tcp", Revision: 0, Payload: []byte{1, 2, 3}})
	assert.Equal(t, 0, len(b)%Align)

	h, err := UnmarshalBlobHeader(b)
	require.NoError(t, err)
	assert.Equal(t, "tcp", h.NameString())
	assert.Equal(t, int(h.Size), len(b))
}

func TestAssembleOffsets(t *testing.T) {
	match := MarshalBlob(Blob{Name: "tcp", Payload: make([]byte, 10)})
	target := MarshalBlob(Blob{Name: "MPLS", Payload: make([]byte, 4)})

	entry := Assemble(EntryHeader{}, [][]byte{match}, target)

	h, err := ParseHeader(entry)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize+len(match), int(h.TargetOffset))
	assert.Equal(t, HeaderSize+len(match)+len(target), int(h.NextOffset))
	assert.Equal(t, len(entry), int(h.NextOffset))
}

func TestAssembleNoMatches(t *testing.T) {
	target := MarshalBlob(Blob{Name: "ACCEPT", Payload: make([]byte, 4)})
	entry := Assemble(EntryHeader{}, nil, target)
	h, err := ParseHeader(entry)
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, int(h.TargetOffset))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, 8, AlignUp(1))
	assert.Equal(t, 8, AlignUp(8))
	assert.Equal(t, 16, AlignUp(9))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := EntryHeader{
		Selector: Selector{Protocol: 6, Flags: FlagProto},
		NFCache:  42,
		Counters: Counters{Packets: 7, Bytes: 1000},
	}
	buf := make([]byte, HeaderSize)
	putHeader(buf, h)
	got, err := ParseHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h.Selector.Protocol, got.Selector.Protocol)
	assert.Equal(t, h.Counters, got.Counters)
	assert.Equal(t, h.NFCache, got.NFCache)
}
