package compositor

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Atlas packs decoded tile chunks into one texture array shared by every
// layer of a document. Slot 0 is reserved as the "no chunk" sentinel and is
// never assigned; the first Claim returns 1.
//
// Slot assignment is a single atomic increment so that layer loads can claim
// slots concurrently without locking. Uploads never overlap because each
// slot is claimed exactly once.
type Atlas struct {
	Tiling   AtlasTextureTiling
	TileSize uint32

	tex      *Texture
	dev      *Device
	buf      gpuBuffer
	qmu      sync.Mutex
	next     atomic.Uint32
	capacity uint32
}

// NewAtlas allocates an atlas with room for chunkCount tiles plus the
// reserved sentinel slot. On a GPU-backed device the backing store is also
// allocated as a device buffer that uploads mirror into.
func NewAtlas(dev *Device, chunkCount, tileSize uint32) (*Atlas, error) {
	tiling := ComputeAtlasSize(chunkCount+1, tileSize)
	w := tiling.Cols * tileSize
	h := tiling.Rows * tileSize
	a := &Atlas{
		Tiling:   tiling,
		TileSize: tileSize,
		tex:      NewTexture(w, h, tiling.Layers),
		dev:      dev,
		capacity: tiling.Slots(),
	}
	if !dev.Software() {
		buf, err := dev.createStorageBuffer("atlas",
			uint64(w)*uint64(h)*uint64(tiling.Layers)*4)
		if err != nil {
			return nil, fmt.Errorf("atlas: allocate device buffer: %w", err)
		}
		a.buf = buf
	}
	Logger().Debug("atlas allocated",
		"cols", tiling.Cols, "rows", tiling.Rows, "layers", tiling.Layers,
		"tile_size", tileSize, "capacity", a.capacity)
	return a, nil
}

// Claim reserves the next free slot. Safe for concurrent use.
func (a *Atlas) Claim() (uint32, error) {
	slot := a.next.Add(1)
	if slot >= a.capacity {
		return 0, fmt.Errorf("atlas: out of slots (capacity %d)", a.capacity)
	}
	return slot, nil
}

// Claimed returns the number of slots handed out so far.
func (a *Atlas) Claimed() uint32 {
	return a.next.Load()
}

// Upload copies a decoded w x h RGBA tile into the given slot. The tile may
// be smaller than the full tile size when it sits on the canvas edge.
func (a *Atlas) Upload(slot uint32, pix []byte, w, h uint32) error {
	if slot == 0 || slot >= a.capacity {
		return fmt.Errorf("atlas: upload to invalid slot %d", slot)
	}
	if w > a.TileSize || h > a.TileSize {
		return fmt.Errorf("atlas: tile %dx%d exceeds tile size %d", w, h, a.TileSize)
	}
	col, row, layer := a.Tiling.Index(slot)
	x, y := col*a.TileSize, row*a.TileSize
	if err := a.tex.Replace(x, y, layer, w, h, pix); err != nil {
		return err
	}
	if a.buf != nil {
		// Uploads arrive from concurrent layer loads; queue submissions
		// are serialized here rather than relying on queue internals.
		a.qmu.Lock()
		a.dev.writeBufferRegion(a.buf, a.tex.Width(), a.tex.Height(), x, y, layer, w, h, pix)
		a.qmu.Unlock()
	}
	return nil
}

// Texture exposes the host-side pixel store.
func (a *Atlas) Texture() *Texture { return a.tex }

// Destroy releases the device-side buffer, if any.
func (a *Atlas) Destroy() {
	if a.buf != nil {
		a.dev.destroyBuffer(a.buf)
		a.buf = nil
	}
}

// tilePixel reads one texel of a slot. x and y are offsets within the tile.
func (a *Atlas) tilePixel(slot, x, y uint32) (r, g, b, alpha uint8) {
	col, row, layer := a.Tiling.Index(slot)
	p := a.tex.At(col*a.TileSize+x, row*a.TileSize+y, layer)
	return p.R, p.G, p.B, p.A
}

// LayerTexture is a virtual texture for one layer: a grid of atlas slot
// references covering the layer's own tiling. Grid cells holding 0 are
// fully transparent (no chunk was stored for that tile).
type LayerTexture struct {
	width  uint32
	height uint32
	tiling CanvasTiling
	grid   []uint32
	atlas  *Atlas
}

// NewLayerTexture creates an empty (all-transparent) layer view over the
// atlas, tiled at the atlas tile size.
func NewLayerTexture(atlas *Atlas, width, height uint32) *LayerTexture {
	tiling := NewCanvasTiling(width, height, atlas.TileSize)
	return &LayerTexture{
		width:  width,
		height: height,
		tiling: tiling,
		grid:   make([]uint32, int(tiling.Cols)*int(tiling.Rows)),
		atlas:  atlas,
	}
}

// Width returns the layer width in pixels.
func (lt *LayerTexture) Width() uint32 { return lt.width }

// Height returns the layer height in pixels.
func (lt *LayerTexture) Height() uint32 { return lt.height }

// Tiling returns the layer's own tile grid geometry.
func (lt *LayerTexture) Tiling() CanvasTiling { return lt.tiling }

// SetChunk records that the tile at (col, row) lives in the given atlas
// slot. Distinct (col, row) cells may be set concurrently.
func (lt *LayerTexture) SetChunk(col, row, slot uint32) error {
	if col >= lt.tiling.Cols || row >= lt.tiling.Rows {
		return fmt.Errorf("layer texture: chunk (%d,%d) outside %dx%d grid",
			col, row, lt.tiling.Cols, lt.tiling.Rows)
	}
	if slot == 0 {
		return fmt.Errorf("layer texture: slot 0 is reserved")
	}
	lt.grid[row*lt.tiling.Cols+col] = slot
	return nil
}

// Slot returns the atlas slot of the tile at (col, row), 0 if empty.
func (lt *LayerTexture) Slot(col, row uint32) uint32 {
	return lt.grid[row*lt.tiling.Cols+col]
}

// sample reads the straight (non-premultiplied) color at a layer pixel,
// as floats in [0,1]. Coordinates outside the layer are transparent.
func (lt *LayerTexture) sample(x, y uint32) (r, g, b, alpha float32) {
	if x >= lt.width || y >= lt.height {
		return 0, 0, 0, 0
	}
	ts := lt.tiling.TileSize
	slot := lt.grid[(y/ts)*lt.tiling.Cols+x/ts]
	if slot == 0 {
		return 0, 0, 0, 0
	}
	pr, pg, pb, pa := lt.atlas.tilePixel(slot, x%ts, y%ts)
	const inv = 1.0 / 255.0
	return float32(pr) * inv, float32(pg) * inv, float32(pb) * inv, float32(pa) * inv
}

// Image flattens the layer view into a standard image. Used for the
// document's pre-rendered composite preview.
func (lt *LayerTexture) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(lt.width), int(lt.height)))
	for y := uint32(0); y < lt.height; y++ {
		for x := uint32(0); x < lt.width; x++ {
			r, g, b, a := lt.sample(x, y)
			o := img.PixOffset(int(x), int(y))
			img.Pix[o+0] = uint8(r*255 + 0.5)
			img.Pix[o+1] = uint8(g*255 + 0.5)
			img.Pix[o+2] = uint8(b*255 + 0.5)
			img.Pix[o+3] = uint8(a*255 + 0.5)
		}
	}
	return img
}
