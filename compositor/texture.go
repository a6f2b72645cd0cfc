package compositor

import (
	"fmt"
	"image"
	"image/color"
)

// Texture is an RGBA8 texture array kept in host memory. Pixel data is
// written once during document load (atlas tiles) or produced by a render
// pass, then read back for display or export.
type Texture struct {
	width  uint32
	height uint32
	layers uint32
	pix    [][]uint8 // one slab per array layer, 4 bytes per pixel
}

// NewTexture allocates a zeroed (fully transparent) texture array.
func NewTexture(width, height, layers uint32) *Texture {
	if layers == 0 {
		layers = 1
	}
	pix := make([][]uint8, layers)
	for i := range pix {
		pix[i] = make([]uint8, int(width)*int(height)*4)
	}
	return &Texture{width: width, height: height, layers: layers, pix: pix}
}

// Width returns the texture width in pixels.
func (t *Texture) Width() uint32 { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() uint32 { return t.height }

// Layers returns the array layer count.
func (t *Texture) Layers() uint32 { return t.layers }

// Replace copies a w x h block of tightly packed RGBA bytes into the
// sub-rectangle at (x, y) of the given array layer. Concurrent calls are
// safe as long as the target regions do not overlap.
func (t *Texture) Replace(x, y, layer, w, h uint32, data []byte) error {
	if layer >= t.layers {
		return fmt.Errorf("texture: layer %d out of range (%d layers)", layer, t.layers)
	}
	if x+w > t.width || y+h > t.height {
		return fmt.Errorf("texture: region %dx%d at (%d,%d) exceeds %dx%d",
			w, h, x, y, t.width, t.height)
	}
	if uint32(len(data)) < w*h*4 {
		return fmt.Errorf("texture: %d bytes for %dx%d region, need %d",
			len(data), w, h, w*h*4)
	}
	dst := t.pix[layer]
	rowPitch := int(t.width) * 4
	srcPitch := int(w) * 4
	for r := 0; r < int(h); r++ {
		do := (int(y)+r)*rowPitch + int(x)*4
		copy(dst[do:do+srcPitch], data[r*srcPitch:(r+1)*srcPitch])
	}
	return nil
}

// At returns the pixel at (x, y) of the given array layer.
func (t *Texture) At(x, y, layer uint32) color.RGBA {
	o := (int(y)*int(t.width) + int(x)) * 4
	p := t.pix[layer]
	return color.RGBA{R: p[o], G: p[o+1], B: p[o+2], A: p[o+3]}
}

// setRow overwrites one full pixel row of a layer. Used by render passes
// when quantizing the float accumulator back to RGBA8.
func (t *Texture) setRow(y, layer uint32, row []uint8) {
	o := int(y) * int(t.width) * 4
	copy(t.pix[layer][o:o+len(row)], row)
}

// Image copies array layer 0 into a standard image. The texture stores
// straight (non-premultiplied) color, matching image.RGBA.
func (t *Texture) Image() *image.RGBA {
	return t.LayerImage(0)
}

// LayerImage copies one array layer into a standard image.
func (t *Texture) LayerImage(layer uint32) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, int(t.width), int(t.height)))
	copy(img.Pix, t.pix[layer])
	return img
}
