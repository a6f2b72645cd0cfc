package compositor

// MaxTextureDim is the largest single texture dimension the compositor will
// allocate. Atlases that would exceed it in either axis spill into
// additional array layers.
const MaxTextureDim = 8192

// TileDiff is the pixel shortfall of the last tile column/row against a full
// tile. Zero when the canvas dimension is an exact multiple of the tile size.
type TileDiff struct {
	Width  uint32
	Height uint32
}

// CanvasTiling describes how a canvas is cut into fixed-size tiles. It is
// computed once per document and never mutated.
type CanvasTiling struct {
	Cols     uint32
	Rows     uint32
	Diff     TileDiff
	TileSize uint32
}

// NewCanvasTiling computes the tile grid covering a width x height canvas.
// Cols*TileSize - Diff.Width == width holds, and likewise for rows/height.
func NewCanvasTiling(width, height, tileSize uint32) CanvasTiling {
	cols := ceilDiv(width, tileSize)
	rows := ceilDiv(height, tileSize)
	return CanvasTiling{
		Cols: cols,
		Rows: rows,
		Diff: TileDiff{
			Width:  cols*tileSize - width,
			Height: rows*tileSize - height,
		},
		TileSize: tileSize,
	}
}

// TileExtent returns the effective pixel size of the tile at (col, row).
// Edge tiles are clamped by the canvas diff.
func (t CanvasTiling) TileExtent(col, row uint32) (w, h uint32) {
	w, h = t.TileSize, t.TileSize
	if col == t.Cols-1 {
		w -= t.Diff.Width
	}
	if row == t.Rows-1 {
		h -= t.Diff.Height
	}
	return w, h
}

// AtlasTextureTiling describes how tile slots are packed into a texture
// array: Cols*Rows slots per array layer, Layers array layers.
type AtlasTextureTiling struct {
	Cols   uint32
	Rows   uint32
	Layers uint32
}

// ComputeAtlasSize packs count tiles of tileSize pixels into the smallest
// layout that keeps both texture dimensions within MaxTextureDim. Slots grow
// along a single row first, then wrap into more rows, then spill into more
// array layers. Cols*Rows*Layers >= count always holds.
func ComputeAtlasSize(count, tileSize uint32) AtlasTextureTiling {
	if count == 0 {
		count = 1
	}
	if count*tileSize <= MaxTextureDim {
		return AtlasTextureTiling{Cols: count, Rows: 1, Layers: 1}
	}
	cols := MaxTextureDim / tileSize
	rows := ceilDiv(count, cols)
	if rows*tileSize <= MaxTextureDim {
		return AtlasTextureTiling{Cols: cols, Rows: rows, Layers: 1}
	}
	rows = MaxTextureDim / tileSize
	layers := ceilDiv(count, cols*rows)
	return AtlasTextureTiling{Cols: cols, Rows: rows, Layers: layers}
}

// Index converts a linear slot index into its (col, row, layer) position.
// The inverse is col + row*Cols + layer*Cols*Rows.
func (t AtlasTextureTiling) Index(i uint32) (col, row, layer uint32) {
	col = i % t.Cols
	row = i / t.Cols % t.Rows
	layer = i / (t.Cols * t.Rows)
	return col, row, layer
}

// Slots returns the total slot capacity of the layout.
func (t AtlasTextureTiling) Slots() uint32 {
	return t.Cols * t.Rows * t.Layers
}

func ceilDiv(a, b uint32) uint32 {
	return (a + b - 1) / b
}
