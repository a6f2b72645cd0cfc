package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlendingModeRoundTrip(t *testing.T) {
	for _, m := range AllBlendingModes() {
		got, ok := BlendingModeFromU32(m.ToU32())
		require.True(t, ok, "mode %s should decode", m)
		assert.Equal(t, m, got)
	}
}

func TestBlendingModeRejectsGap(t *testing.T) {
	_, ok := BlendingModeFromU32(18)
	assert.False(t, ok)
}

func TestBlendingModeRejectsOutOfRange(t *testing.T) {
	for _, v := range []uint32{27, 100, ^uint32(0)} {
		_, ok := BlendingModeFromU32(v)
		assert.False(t, ok, "value %d should be rejected", v)
	}
}

func TestBlendingModeNames(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range AllBlendingModes() {
		name := m.String()
		assert.NotEqual(t, "Unknown", name)
		assert.False(t, seen[name], "duplicate name %q", name)
		seen[name] = true
	}
	assert.Equal(t, "Normal", BlendNormal.String())
	assert.Equal(t, "Unknown", BlendingMode(18).String())
}
