// Package compositor flattens ordered layer lists into a single image using
// premultiplied-alpha blending with 26 blend modes and clip masking.
//
// Layers are processed in fixed-size batches bounded by the device's
// sampled-texture limit. Within a batch the per-layer scalars (blend mode,
// opacity, mask slot, texture slot) travel as flat arrays, and repeated
// texture references are deduplicated into a compact view table.
package compositor

import (
	"fmt"
	"runtime"
	"sync"
)

// Compositor renders flattened layer lists against a device. It borrows the
// atlas read-only and never mutates layer pixel data.
type Compositor struct {
	dev       *Device
	pipe      *pipeline
	maxChunks int
}

// New builds a compositor for the device. On a GPU-backed device the
// compositing pipeline is compiled up front; failure there is fatal.
func New(dev *Device) (*Compositor, error) {
	c := &Compositor{dev: dev, maxChunks: dev.MaxChunks()}
	if !dev.Software() {
		pipe, err := newPipeline(dev.device, dev.queue, c.maxChunks)
		if err != nil {
			return nil, err
		}
		c.pipe = pipe
	}
	return c, nil
}

// Close releases the pipeline resources. The device itself is owned by the
// caller.
func (c *Compositor) Close() {
	if c.pipe != nil {
		c.pipe.destroy()
		c.pipe = nil
	}
}

// MaxChunks returns the batch capacity in layers.
func (c *Compositor) MaxChunks() int { return c.maxChunks }

// Render flattens the layer list onto a new width x height texture.
// The accumulator starts at the background color when given, otherwise
// fully transparent. Batches execute strictly in list order; later batches
// blend on top of earlier output. Inputs are not mutated.
func (c *Compositor) Render(width, height uint32, background *[4]float32,
	layers []CompositeLayer, textures []*LayerTexture) (*Texture, error) {

	for i, l := range layers {
		if int(l.Texture) >= len(textures) {
			return nil, fmt.Errorf("compositor: layer %d references texture %d of %d", i, l.Texture, len(textures))
		}
		if l.Clipped != ClipNone && (l.Clipped < 0 || l.Clipped >= len(layers)) {
			return nil, fmt.Errorf("compositor: layer %d references mask source %d of %d", i, l.Clipped, len(layers))
		}
	}

	acc := make([]float32, int(width)*int(height)*4)
	if background != nil {
		for o := 0; o < len(acc); o += 4 {
			acc[o+0] = background[0]
			acc[o+1] = background[1]
			acc[o+2] = background[2]
			acc[o+3] = background[3]
		}
	}

	batches := buildBatches(layers, c.maxChunks)
	Logger().Debug("compositor: render",
		"size", fmt.Sprintf("%dx%d", width, height),
		"layers", len(layers), "batches", len(batches))

	var pass *passBuffers
	var gridOffsets []uint32
	if c.pipe != nil && len(textures) > 0 {
		grids := make([]uint32, 0)
		gridOffsets = make([]uint32, len(textures))
		for i, t := range textures {
			gridOffsets[i] = uint32(len(grids))
			grids = append(grids, t.grid...)
		}
		pb, err := c.pipe.beginPass(grids, uint64(width)*uint64(height))
		if err != nil {
			return nil, err
		}
		pass = pb
		defer c.pipe.endPass(pass)
	}

	for _, b := range batches {
		if c.pipe != nil {
			infos := make([]viewInfo, len(b.views))
			for s, ti := range b.views {
				t := textures[ti]
				infos[s] = viewInfo{
					Width:      t.width,
					Height:     t.height,
					Cols:       t.tiling.Cols,
					Rows:       t.tiling.Rows,
					GridOffset: gridOffsets[ti],
				}
			}
			var atlas *Atlas
			if len(textures) > 0 {
				atlas = textures[0].atlas
			}
			cfg := batchConfig{
				Width:     width,
				Height:    height,
				Count:     uint32(b.bufs.Count),
				ViewCount: uint32(len(b.views)),
			}
			if atlas != nil {
				cfg.TileSize = atlas.TileSize
				cfg.AtlasCols = atlas.Tiling.Cols
				cfg.AtlasRows = atlas.Tiling.Rows
			}
			c.pipe.writeBatch(cfg, &b.bufs, infos)
			// TODO: record and submit the compute dispatch once hal
			// grows storage-buffer readback; until then the fold below
			// is the executing implementation.
		}
		c.runBatch(acc, width, height, b, textures)
	}

	out := NewTexture(width, height, 1)
	row := make([]uint8, int(width)*4)
	for y := uint32(0); y < height; y++ {
		base := int(y) * int(width) * 4
		for i := 0; i < int(width)*4; i++ {
			row[i] = quantize(acc[base+i])
		}
		out.setRow(y, 0, row)
	}
	return out, nil
}

// runBatch folds one batch onto the accumulator, mirroring the per-pixel
// loop in shaders/composite.wgsl. Rows are split across workers; pixels are
// independent within a batch.
func (c *Compositor) runBatch(acc []float32, width, height uint32,
	b renderBatch, textures []*LayerTexture) {

	workers := runtime.GOMAXPROCS(0)
	if int(height) < workers {
		workers = int(height)
	}
	if workers < 1 {
		workers = 1
	}
	rowsPer := (int(height) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		y0 := w * rowsPer
		y1 := y0 + rowsPer
		if y1 > int(height) {
			y1 = int(height)
		}
		if y0 >= y1 {
			break
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			c.runRows(acc, width, uint32(y0), uint32(y1), b, textures)
		}(y0, y1)
	}
	wg.Wait()
}

func (c *Compositor) runRows(acc []float32, width, y0, y1 uint32,
	b renderBatch, textures []*LayerTexture) {

	for y := y0; y < y1; y++ {
		for x := uint32(0); x < width; x++ {
			o := (int(y)*int(width) + int(x)) * 4
			for i := 0; i < b.bufs.Count; i++ {
				tex := textures[b.views[b.bufs.LayerSlots[i]]]
				fr, fg, fb, fa := tex.sample(x, y)
				fa *= b.bufs.Opacities[i]
				if m := b.bufs.Masks[i]; m != MaskNone {
					_, _, _, ma := textures[b.views[m]].sample(x, y)
					fa = minf(ma, fa)
				}

				ba := acc[o+3]
				ao := ba + fa - ba*fa
				if ao <= 0 {
					continue
				}
				rgb := blendPixel(BlendingMode(b.bufs.Blends[i]),
					[4]float32{acc[o] * ba, acc[o+1] * ba, acc[o+2] * ba, ba},
					[4]float32{fr * fa, fg * fa, fb * fa, fa})
				acc[o+0] = rgb[0] / ao
				acc[o+1] = rgb[1] / ao
				acc[o+2] = rgb[2] / ao
				acc[o+3] = ao
			}
		}
	}
}

func quantize(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v*255 + 0.5)
}
