package netfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMatch struct{ name string }

func (s *stubMatch) Name() string               { return s.name }
func (s *stubMatch) Revision() uint8            { return 0 }
func (s *stubMatch) Size() int                  { return 0 }
func (s *stubMatch) Help() string                { return "" }
func (s *stubMatch) Options() []Option           { return nil }
func (s *stubMatch) Init()                       {}
func (s *stubMatch) Parse(int, bool, string) error { return nil }
func (s *stubMatch) FinalCheck() error           { return nil }
func (s *stubMatch) Print(Selector) string       { return "" }
func (s *stubMatch) Save(Selector) string        { return "" }
func (s *stubMatch) Marshal() []byte             { return nil }
func (s *stubMatch) Unmarshal([]byte) error       { return nil }
func (s *stubMatch) isMatchExtension()           {}

func TestRegisterAndFindMatch(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterMatch(&stubMatch{name: "tcp"})

	m, err := r.FindMatch("tcp", DontLoad)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "tcp", m.Name())
}

func TestFindMatchMissDontLoad(t *testing.T) {
	r := NewRegistry(nil)
	m, err := r.FindMatch("nope", DontLoad)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestFindMatchMissTryLoad(t *testing.T) {
	r := NewRegistry(nil)
	m, err := r.FindMatch("nope", TryLoad)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestFindMatchMissMustLoad(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.FindMatch("nope", MustLoad)
	assert.Error(t, err)
}

func TestRegisterDuplicatePanics(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterMatch(&stubMatch{name: "tcp"})
	assert.Panics(t, func() {
		r.RegisterMatch(&stubMatch{name: "tcp"})
	})
}
