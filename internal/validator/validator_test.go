package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelectorSingleCommand(t *testing.T) {
	var s Selector
	assert.NoError(t, s.Add(CmdAppend, false))
	assert.Equal(t, CmdAppend, s.Command())
}

func TestSelectorIncompatible(t *testing.T) {
	var s Selector
	assert.NoError(t, s.Add(CmdAppend, false))
	assert.Error(t, s.Add(CmdDelete, false))
}

func TestSelectorListZeroCompatible(t *testing.T) {
	var s Selector
	assert.NoError(t, s.Add(CmdList, false))
	assert.NoError(t, s.Add(CmdZero, false))
	assert.Equal(t, CmdList|CmdZero, s.Command())
}

func TestSelectorRejectsInvert(t *testing.T) {
	var s Selector
	assert.Error(t, s.Add(CmdAppend, true))
}

func TestCheckIllegalOption(t *testing.T) {
	assert.Equal(t, Illegal, Check(CmdList, OptJump))
}

func TestCheckRequiredOption(t *testing.T) {
	assert.Equal(t, Required, Check(CmdAppend, OptJump))
}

func TestValidateRequiredMissing(t *testing.T) {
	err := ValidateRequired(CmdAppend, map[Option]bool{OptProtocol: true})
	assert.Error(t, err)
}

func TestValidateRequiredSatisfied(t *testing.T) {
	err := ValidateRequired(CmdAppend, map[Option]bool{OptJump: true})
	assert.NoError(t, err)
}

func TestIsInvertible(t *testing.T) {
	assert.True(t, IsInvertible(OptProtocol))
	assert.False(t, IsInvertible(OptJump))
}
