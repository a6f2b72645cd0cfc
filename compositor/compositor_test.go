package compositor

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestAtlas builds a software-device atlas of 4px tiles with room for a
// handful of chunks.
func newTestAtlas(t *testing.T) *Atlas {
	t.Helper()
	a, err := NewAtlas(NewSoftwareDevice(), 8, 4)
	require.NoError(t, err)
	t.Cleanup(a.Destroy)
	return a
}

// solidLayer uploads one solid 4x4 chunk and returns a 4x4 layer over it.
func solidLayer(t *testing.T, a *Atlas, c color.RGBA) *LayerTexture {
	t.Helper()
	slot, err := a.Claim()
	require.NoError(t, err)
	require.NoError(t, a.Upload(slot, solidTile(4, 4, c), 4, 4))
	lt := NewLayerTexture(a, 4, 4)
	require.NoError(t, lt.SetChunk(0, 0, slot))
	return lt
}

func newTestCompositor(t *testing.T) *Compositor {
	t.Helper()
	c, err := New(NewSoftwareDevice())
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCompositorMaxChunks(t *testing.T) {
	c := newTestCompositor(t)
	// 16 sampled textures, one reserved for the output.
	assert.Equal(t, 15, c.MaxChunks())
}

func TestRenderNoLayers(t *testing.T) {
	c := newTestCompositor(t)

	out, err := c.Render(2, 2, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{}, out.At(0, 0, 0))

	bg := [4]float32{1, 0, 0, 1}
	out, err = c.Render(2, 2, &bg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.At(1, 1, 0))
}

func TestRenderOpaqueNormal(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	red := solidLayer(t, a, color.RGBA{R: 255, A: 255})

	bg := [4]float32{1, 1, 1, 1}
	out, err := c.Render(4, 4, &bg,
		[]CompositeLayer{{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal}},
		[]*LayerTexture{red})
	require.NoError(t, err)
	for y := uint32(0); y < 4; y++ {
		for x := uint32(0); x < 4; x++ {
			assert.Equal(t, color.RGBA{R: 255, A: 255}, out.At(x, y, 0))
		}
	}
}

func TestRenderHalfOpacity(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	red := solidLayer(t, a, color.RGBA{R: 255, A: 255})

	bg := [4]float32{1, 1, 1, 1}
	out, err := c.Render(4, 4, &bg,
		[]CompositeLayer{{Texture: 0, Clipped: ClipNone, Opacity: 0.5, Blend: BlendNormal}},
		[]*LayerTexture{red})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, B: 128, A: 255}, out.At(0, 0, 0))
}

func TestRenderMultiply(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	gray := solidLayer(t, a, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	bg := [4]float32{1, 1, 1, 1}
	out, err := c.Render(4, 4, &bg,
		[]CompositeLayer{{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendMultiply}},
		[]*LayerTexture{gray})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, out.At(2, 2, 0))
}

func TestRenderStacksInOrder(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	blue := solidLayer(t, a, color.RGBA{B: 255, A: 255})
	red := solidLayer(t, a, color.RGBA{R: 255, A: 255})

	out, err := c.Render(4, 4, nil,
		[]CompositeLayer{
			{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal},
			{Texture: 1, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal},
		},
		[]*LayerTexture{blue, red})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.At(0, 0, 0))
}

func TestRenderClippedToTransparentMask(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	// The mask source has no chunks, so its alpha is zero everywhere.
	empty := NewLayerTexture(a, 4, 4)
	red := solidLayer(t, a, color.RGBA{R: 255, A: 255})

	bg := [4]float32{1, 1, 1, 1}
	out, err := c.Render(4, 4, &bg,
		[]CompositeLayer{
			{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal},
			{Texture: 1, Clipped: 0, Opacity: 1, Blend: BlendNormal},
		},
		[]*LayerTexture{empty, red})
	require.NoError(t, err)
	// The clipped layer inherits the mask's zero alpha; the background
	// shows through untouched.
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, out.At(1, 1, 0))
}

func TestRenderClippedToOpaqueMask(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	white := solidLayer(t, a, color.RGBA{255, 255, 255, 255})
	red := solidLayer(t, a, color.RGBA{R: 255, A: 255})

	out, err := c.Render(4, 4, nil,
		[]CompositeLayer{
			{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal},
			{Texture: 1, Clipped: 0, Opacity: 1, Blend: BlendNormal},
		},
		[]*LayerTexture{white, red})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.At(3, 3, 0))
}

func TestRenderLayerSmallerThanCanvas(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)

	slot, err := a.Claim()
	require.NoError(t, err)
	require.NoError(t, a.Upload(slot, solidTile(2, 2, color.RGBA{G: 255, A: 255}), 2, 2))
	lt := NewLayerTexture(a, 2, 2)
	require.NoError(t, lt.SetChunk(0, 0, slot))

	out, err := c.Render(4, 4, nil,
		[]CompositeLayer{{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal}},
		[]*LayerTexture{lt})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{G: 255, A: 255}, out.At(1, 1, 0))
	// Beyond the layer's extent the canvas stays transparent.
	assert.Equal(t, color.RGBA{}, out.At(3, 3, 0))
}

func TestRenderValidatesReferences(t *testing.T) {
	c := newTestCompositor(t)

	_, err := c.Render(2, 2, nil,
		[]CompositeLayer{{Texture: 3, Clipped: ClipNone, Opacity: 1}}, nil)
	assert.Error(t, err)

	a := newTestAtlas(t)
	lt := solidLayer(t, a, color.RGBA{A: 255})
	_, err = c.Render(2, 2, nil,
		[]CompositeLayer{{Texture: 0, Clipped: 5, Opacity: 1}},
		[]*LayerTexture{lt})
	assert.Error(t, err)
}

func TestRenderManyBatches(t *testing.T) {
	c := newTestCompositor(t)
	a := newTestAtlas(t)
	// More layers than one batch holds; later batches must keep blending
	// on top of earlier output.
	gray := solidLayer(t, a, color.RGBA{R: 128, G: 128, B: 128, A: 255})

	layers := make([]CompositeLayer, c.MaxChunks()+2)
	for i := range layers {
		layers[i] = CompositeLayer{Texture: 0, Clipped: ClipNone, Opacity: 1, Blend: BlendNormal}
	}
	out, err := c.Render(4, 4, nil, layers, []*LayerTexture{gray})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, out.At(0, 0, 0))
}
