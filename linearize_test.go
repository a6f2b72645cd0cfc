package silica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/silicaview/silica/compositor"
)

func leaf(image uint32, hidden, clipped bool) *SilicaLayer {
	return &SilicaLayer{
		Blend:   compositor.BlendNormal,
		Opacity: 1,
		Hidden:  hidden,
		Clipped: clipped,
		Image:   image,
	}
}

func TestLinearizeReversesChildOrder(t *testing.T) {
	// Children are stored front-to-back; the render list is bottom-to-top.
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(2, false, false),
		leaf(1, false, false),
		leaf(0, false, false),
	}}
	out := Linearize(root)
	require.Len(t, out, 3)
	assert.Equal(t, uint32(0), out[0].Texture)
	assert.Equal(t, uint32(1), out[1].Texture)
	assert.Equal(t, uint32(2), out[2].Texture)
	for _, l := range out {
		assert.Equal(t, compositor.ClipNone, l.Clipped)
	}
}

func TestLinearizeSkipsHidden(t *testing.T) {
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(2, false, false),
		leaf(1, true, false),
		&SilicaGroup{Hidden: true, Children: []SilicaHierarchy{
			leaf(3, false, false),
		}},
		leaf(0, false, false),
	}}
	out := Linearize(root)
	require.Len(t, out, 2)
	assert.Equal(t, uint32(0), out[0].Texture)
	assert.Equal(t, uint32(2), out[1].Texture)
}

func TestLinearizeClipIndices(t *testing.T) {
	// Front-to-back: two clipped layers above their base.
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(2, false, true),
		leaf(1, false, true),
		leaf(0, false, false),
	}}
	out := Linearize(root)
	require.Len(t, out, 3)
	assert.Equal(t, compositor.ClipNone, out[0].Clipped)
	// Both clipped entries reference the base by render-list index.
	assert.Equal(t, 0, out[1].Clipped)
	assert.Equal(t, 0, out[2].Clipped)
}

func TestLinearizeMaskPersistsAcrossGroups(t *testing.T) {
	// The base sits below a group; the clipped layer inside the group still
	// finds it.
	root := &SilicaGroup{Children: []SilicaHierarchy{
		&SilicaGroup{Children: []SilicaHierarchy{
			leaf(1, false, true),
		}},
		leaf(0, false, false),
	}}
	out := Linearize(root)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[1].Clipped)
}

func TestLinearizeMaskCarriesOutOfGroup(t *testing.T) {
	// A visible unclipped layer inside a group stays the mask source for
	// clipped layers after the group ends.
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(1, false, true),
		&SilicaGroup{Children: []SilicaHierarchy{
			leaf(0, false, false),
		}},
	}}
	out := Linearize(root)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[1].Clipped)
}

func TestLinearizeClippedWithoutMaskSkipped(t *testing.T) {
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(1, false, false),
		leaf(0, false, true),
	}}
	// Bottom-most layer is clipped with nothing beneath it.
	out := Linearize(root)
	require.Len(t, out, 1)
	assert.Equal(t, uint32(1), out[0].Texture)
}

func TestLinearizeHiddenMaskSkipsClipped(t *testing.T) {
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(1, false, true),
		leaf(0, true, false),
	}}
	out := Linearize(root)
	assert.Empty(t, out)
}

func TestLinearizeCopiesLayerState(t *testing.T) {
	l := leaf(0, false, false)
	l.Opacity = 0.25
	l.Blend = compositor.BlendMultiply
	out := Linearize(&SilicaGroup{Children: []SilicaHierarchy{l}})
	require.Len(t, out, 1)
	assert.Equal(t, float32(0.25), out[0].Opacity)
	assert.Equal(t, compositor.BlendMultiply, out[0].Blend)
}

func TestCountLayers(t *testing.T) {
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(0, false, false),
		&SilicaGroup{Children: []SilicaHierarchy{
			leaf(1, false, false),
			leaf(2, true, false),
		}},
	}}
	assert.Equal(t, uint32(3), root.CountLayers())
}

func TestGroupClone(t *testing.T) {
	root := &SilicaGroup{Children: []SilicaHierarchy{
		leaf(0, false, false),
		&SilicaGroup{Name: "inner", Children: []SilicaHierarchy{
			leaf(1, false, false),
		}},
	}}
	c := root.Clone()

	// Mutating the clone must not touch the original.
	c.Children[0].(*SilicaLayer).Hidden = true
	c.Children[1].(*SilicaGroup).Children[0].(*SilicaLayer).Opacity = 0
	assert.False(t, root.Children[0].(*SilicaLayer).Hidden)
	assert.Equal(t, float32(1), root.Children[1].(*SilicaGroup).Children[0].(*SilicaLayer).Opacity)
}
