package listing

import (
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatCountBelowThreshold(t *testing.T) {
	assert.Equal(t, "42", FormatCount(42))
	assert.Equal(t, "99999", FormatCount(99999))
}

func TestFormatCountKilo(t *testing.T) {
	assert.Equal(t, "150K", FormatCount(150000))
}

func TestFormatCountHalfUpRounding(t *testing.T) {
	// 100499 rounds down to 100K, 100500 rounds up to 101K.
	assert.Equal(t, "100K", FormatCount(100499))
	assert.Equal(t, "101K", FormatCount(100500))
}

func TestFormatCountCascadesToGiga(t *testing.T) {
	got := FormatCount(999999999999)
	assert.Contains(t, got, "G")
}

func TestHeaderBuiltinChain(t *testing.T) {
	got := Header("INPUT", "ACCEPT", 10, 2000, true)
	want := "Chain INPUT (policy ACCEPT 10 packets, 2000 bytes)"
	requireNoDiff(t, want, got)
}

func TestHeaderUserChain(t *testing.T) {
	got := Header("LOGGING", "", 3, 0, false)
	assert.Equal(t, "Chain LOGGING (3 references)", got)
}

func TestFormatRuleDefaultAnyAddress(t *testing.T) {
	line := FormatRule(RuleLine{TargetName: "ACCEPT"})
	assert.Contains(t, line, "::/0")
	assert.Contains(t, line, "ACCEPT")
}

func requireNoDiff(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(want, got, false)
	require.Fail(t, "mismatch", dmp.DiffPrettyText(diffs))
}
