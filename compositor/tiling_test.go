package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanvasTiling(t *testing.T) {
	tl := NewCanvasTiling(100, 60, 32)
	assert.Equal(t, uint32(4), tl.Cols)
	assert.Equal(t, uint32(2), tl.Rows)
	assert.Equal(t, uint32(28), tl.Diff.Width)
	assert.Equal(t, uint32(4), tl.Diff.Height)

	// Cols*TileSize - Diff.Width == width.
	assert.Equal(t, uint32(100), tl.Cols*tl.TileSize-tl.Diff.Width)
	assert.Equal(t, uint32(60), tl.Rows*tl.TileSize-tl.Diff.Height)
}

func TestCanvasTilingExactMultiple(t *testing.T) {
	tl := NewCanvasTiling(64, 64, 32)
	assert.Equal(t, uint32(2), tl.Cols)
	assert.Equal(t, uint32(2), tl.Rows)
	assert.Equal(t, TileDiff{}, tl.Diff)
}

func TestTileExtent(t *testing.T) {
	tl := NewCanvasTiling(100, 60, 32)

	w, h := tl.TileExtent(0, 0)
	assert.Equal(t, uint32(32), w)
	assert.Equal(t, uint32(32), h)

	// The last column and row are clamped by the canvas edge.
	w, h = tl.TileExtent(3, 0)
	assert.Equal(t, uint32(4), w)
	assert.Equal(t, uint32(32), h)

	w, h = tl.TileExtent(3, 1)
	assert.Equal(t, uint32(4), w)
	assert.Equal(t, uint32(28), h)
}

func TestComputeAtlasSizeSingleRow(t *testing.T) {
	tl := ComputeAtlasSize(4, 256)
	assert.Equal(t, AtlasTextureTiling{Cols: 4, Rows: 1, Layers: 1}, tl)
}

func TestComputeAtlasSizeWrapsRows(t *testing.T) {
	tl := ComputeAtlasSize(100, 256)
	assert.Equal(t, AtlasTextureTiling{Cols: 32, Rows: 4, Layers: 1}, tl)
	assert.GreaterOrEqual(t, tl.Slots(), uint32(100))
	assert.LessOrEqual(t, tl.Cols*256, uint32(MaxTextureDim))
}

func TestComputeAtlasSizeSpillsLayers(t *testing.T) {
	tl := ComputeAtlasSize(5000, 256)
	assert.Equal(t, AtlasTextureTiling{Cols: 32, Rows: 32, Layers: 5}, tl)
	assert.GreaterOrEqual(t, tl.Slots(), uint32(5000))
}

func TestComputeAtlasSizeZeroCount(t *testing.T) {
	tl := ComputeAtlasSize(0, 256)
	assert.Equal(t, uint32(1), tl.Slots())
}

func TestAtlasIndexRoundTrip(t *testing.T) {
	tl := AtlasTextureTiling{Cols: 32, Rows: 4, Layers: 3}
	for _, i := range []uint32{0, 1, 31, 32, 37, 127, 128, 300} {
		col, row, layer := tl.Index(i)
		assert.Equal(t, i, col+row*tl.Cols+layer*tl.Cols*tl.Rows, "slot %d", i)
		assert.Less(t, col, tl.Cols)
		assert.Less(t, row, tl.Rows)
		assert.Less(t, layer, tl.Layers)
	}
}
